package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/job-insights/internal/types"
)

// TimeLayout is how timestamps are stored in backends without a native
// timestamp type. Values are always UTC so text order is time order.
const TimeLayout = "2006-01-02 15:04:05"

// Rows is the subset of a result set the reader needs. *sql.Rows satisfies it;
// pgx rows are adapted.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier runs a read query.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// ReadTx is a read-only transaction. Every query on it sees the same
// committed state. Close releases it without writing.
type ReadTx interface {
	Querier
	Close(ctx context.Context) error
}

// Source is a Querier that can also open a ReadTx.
type Source interface {
	Querier
	BeginRead(ctx context.Context) (ReadTx, error)
}

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	Name string

	placeholder func(n int) string
	monthExpr   string
	bindTime    func(t time.Time) any
	timeDest    func() any
	readTime    func(dest any) (*time.Time, error)
}

// Postgres is the dialect of the pgx store.
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	monthExpr:   `to_char(p.posted_date AT TIME ZONE 'UTC', 'YYYY-MM')`,
	bindTime:    func(t time.Time) any { return t.UTC() },
	timeDest:    func() any { return new(*time.Time) },
	readTime: func(dest any) (*time.Time, error) {
		v := *(dest.(**time.Time))
		if v == nil {
			return nil, nil
		}
		t := v.UTC()
		return &t, nil
	},
}

// SQLite is the dialect of the embedded file store.
var SQLite = Dialect{
	Name:        "sqlite",
	placeholder: func(int) string { return "?" },
	monthExpr:   `strftime('%Y-%m', p.posted_date)`,
	bindTime:    func(t time.Time) any { return t.UTC().Format(TimeLayout) },
	timeDest:    func() any { return new(sql.NullString) },
	readTime: func(dest any) (*time.Time, error) {
		v := dest.(*sql.NullString)
		if !v.Valid || v.String == "" {
			return nil, nil
		}
		t, err := time.ParseInLocation(TimeLayout, v.String, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid stored timestamp %q: %w", v.String, err)
		}
		return &t, nil
	},
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string { return d.placeholder(n) }

// BindTime converts t to the value stored for a timestamp column.
func (d Dialect) BindTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.bindTime(*t)
}

// Column lists in insert order.
var (
	CompanyColumns = []string{"company_id", "company_name", "company_name_normalized", "company_url", "location", "sector", "state"}
	JobColumns     = []string{"job_id", "company_id", "contract_type", "experience_level", "salary_rating"}
	PostingColumns = []string{"job_id", "job_url", "apply_url", "apply_type", "posted_time", "posted_date",
		"views_count", "applications_raw", "applications_count", "sector"}
	LoadRunColumns = []string{"id", "loaded_at", "companies_path", "postings_path", "jobs_path",
		"companies", "jobs", "postings", "warnings"}
)

// InsertSQL returns a single-row INSERT statement for table.
func (d Dialect) InsertSQL(table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

// CompanyValues returns c in CompanyColumns order.
func (d Dialect) CompanyValues(c types.Company) []any {
	var state *string
	if s := c.State(); s != "" {
		state = &s
	}
	return []any{c.ID, c.Name, c.NameNormalized, c.URL, c.Location, c.Sector, state}
}

// JobValues returns j in JobColumns order.
func (d Dialect) JobValues(j types.Job) []any {
	return []any{j.ID, j.CompanyID, j.ContractType, j.ExperienceLevel, j.SalaryRating}
}

// PostingValues returns p in PostingColumns order.
func (d Dialect) PostingValues(p types.JobPosting) []any {
	return []any{p.JobID, p.JobURL, p.ApplyURL, p.ApplyType, p.PostedTime, d.BindTime(p.PostedDate),
		p.ViewsCount, p.ApplicationsRaw, p.ApplicationsCount, p.Sector}
}

// LoadRunValues returns run in LoadRunColumns order.
func (d Dialect) LoadRunValues(run types.LoadRun) ([]any, error) {
	warnings := run.Warnings
	if warnings == nil {
		warnings = map[string]int{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal load warnings: %w", err)
	}
	return []any{run.ID.String(), d.BindTime(&run.LoadedAt), run.CompaniesPath, run.PostingsPath, run.JobsPath,
		run.Companies, run.Jobs, run.Postings, string(encoded)}, nil
}

const fromPostings = `
FROM job_postings p
JOIN jobs j ON j.job_id = p.job_id
LEFT JOIN companies c ON c.company_id = j.company_id`

// unknownState labels jobs whose company is unlinked or has no region.
const unknownState = "Unknown"

// query accumulates bind arguments and WHERE conditions for one statement.
type query struct {
	d     Dialect
	args  []any
	conds []string
}

func newQuery(d Dialect, s types.Scope) *query {
	q := &query{d: d}
	if s.Sector != "" {
		q.cond("p.sector = " + q.arg(s.Sector))
	}
	if s.ExperienceLevel != "" {
		q.cond("j.experience_level = " + q.arg(s.ExperienceLevel))
	}
	if s.State != "" {
		q.cond("c.state = " + q.arg(s.State))
	}
	if s.MinSalaryRating != nil {
		q.cond("j.salary_rating >= " + q.arg(*s.MinSalaryRating))
	}
	if s.MaxSalaryRating != nil {
		q.cond("j.salary_rating <= " + q.arg(*s.MaxSalaryRating))
	}
	if s.PostedSince != nil {
		q.cond("p.posted_date >= " + q.arg(d.BindTime(s.PostedSince)))
	}
	return q
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return q.d.placeholder(len(q.args))
}

func (q *query) cond(c string) {
	q.conds = append(q.conds, c)
}

func (q *query) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(q.conds, " AND ")
}

func groupExpr(g types.CategoryField) (string, error) {
	switch g {
	case types.GroupContractType:
		return "j.contract_type", nil
	case types.GroupExperience:
		return "j.experience_level", nil
	case types.GroupSector:
		return "p.sector", nil
	case types.GroupState:
		return fmt.Sprintf("COALESCE(NULLIF(c.state, ''), '%s')", unknownState), nil
	}
	return "", fmt.Errorf("unknown category field %q", g)
}

func numericExpr(f types.NumericField) (string, error) {
	switch f {
	case types.FieldViews:
		return "p.views_count", nil
	case types.FieldApplications:
		return "p.applications_count", nil
	case types.FieldSalary:
		return "j.salary_rating", nil
	}
	return "", fmt.Errorf("unknown numeric field %q", f)
}

func asFloat(expr string) string {
	return "CAST(" + expr + " AS DOUBLE PRECISION)"
}
