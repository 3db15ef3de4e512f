package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/job-insights/internal/types"
)

// Reader implements the aggregate reads shared by every backend. Methods that
// need more than one statement run them inside a snapshot, so every method
// sees exactly one committed load.
type Reader struct {
	d Dialect
	q Source
}

// NewReader returns a reader issuing d-flavored SQL through q.
func NewReader(d Dialect, q Source) *Reader {
	return &Reader{d: d, q: q}
}

type snapshotKey struct{}

type snapshot struct {
	owner *Reader
	tx    ReadTx
}

// Snapshot calls fn with a context under which every read on r sees the same
// committed load, even if a reload commits while fn runs. Nested calls join
// the open snapshot.
func (r *Reader) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if s, ok := ctx.Value(snapshotKey{}).(*snapshot); ok && s.owner == r {
		return fn(ctx)
	}
	tx, err := r.q.BeginRead(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin read snapshot: %w", err)
	}
	defer func() { _ = tx.Close(context.WithoutCancel(ctx)) }()

	return fn(context.WithValue(ctx, snapshotKey{}, &snapshot{owner: r, tx: tx}))
}

// querier returns the snapshot transaction carried by ctx, if any.
func (r *Reader) querier(ctx context.Context) Querier {
	if s, ok := ctx.Value(snapshotKey{}).(*snapshot); ok && s.owner == r {
		return s.tx
	}
	return r.q
}

// Dialect returns the reader's SQL dialect.
func (r *Reader) Dialect() Dialect { return r.d }

// each runs sqlText and calls scan for every row.
func (r *Reader) each(ctx context.Context, op, sqlText string, args []any, scan func(Rows) error) error {
	rows, err := r.querier(ctx).Query(ctx, sqlText, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan %s: %w", op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", op, err)
	}
	return nil
}

// CurrentLoad returns the most recent successful load, or nil before the first one.
func (r *Reader) CurrentLoad(ctx context.Context) (*types.LoadRun, error) {
	var run *types.LoadRun
	sqlText := `SELECT CAST(id AS TEXT), loaded_at, companies_path, postings_path, jobs_path,
	companies, jobs, postings, CAST(warnings AS TEXT)
FROM load_runs ORDER BY seq DESC LIMIT 1`

	err := r.each(ctx, "current load", sqlText, nil, func(rows Rows) error {
		var (
			id, warnings string
			loaded       = r.d.timeDest()
			lr           types.LoadRun
		)
		if err := rows.Scan(&id, loaded, &lr.CompaniesPath, &lr.PostingsPath, &lr.JobsPath,
			&lr.Companies, &lr.Jobs, &lr.Postings, &warnings); err != nil {
			return err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid load id %q: %w", id, err)
		}
		lr.ID = parsed
		at, err := r.d.readTime(loaded)
		if err != nil {
			return err
		}
		if at == nil {
			return fmt.Errorf("load %s has no timestamp", id)
		}
		lr.LoadedAt = *at
		if err := json.Unmarshal([]byte(warnings), &lr.Warnings); err != nil {
			return fmt.Errorf("invalid warnings for load %s: %w", id, err)
		}
		run = &lr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Counts returns jobs, postings and companies under s. With no filter every
// company counts; otherwise only companies linked to a matching job do.
func (r *Reader) Counts(ctx context.Context, s types.Scope) (types.Counts, error) {
	var counts types.Counts
	companies := "COUNT(DISTINCT j.company_id)"
	if s.Filter.IsZero() {
		companies = "(SELECT COUNT(*) FROM companies)"
	}
	q := newQuery(r.d, s)
	sqlText := "SELECT COUNT(*), " + companies + fromPostings + q.where()

	err := r.each(ctx, "counts", sqlText, q.args, func(rows Rows) error {
		return rows.Scan(&counts.Postings, &counts.Companies)
	})
	if err != nil {
		return types.Counts{}, err
	}
	counts.Jobs = counts.Postings
	return counts, nil
}

// Averages returns the unrounded mean and non-null count of field per group,
// ordered by group. An ungrouped call yields exactly one row with group "".
func (r *Reader) Averages(ctx context.Context, s types.Scope, field types.NumericField, group types.CategoryField) ([]types.GroupAverage, error) {
	num, err := numericExpr(field)
	if err != nil {
		return nil, err
	}
	grp := "''"
	if group != types.GroupNone {
		if grp, err = groupExpr(group); err != nil {
			return nil, err
		}
	}

	q := newQuery(r.d, s)
	sqlText := fmt.Sprintf("SELECT %s, AVG(%s), COUNT(%s)", grp, asFloat(num), num) + fromPostings + q.where()
	if group != types.GroupNone {
		sqlText += "\nGROUP BY 1 ORDER BY 1"
	}

	var out []types.GroupAverage
	err = r.each(ctx, "averages", sqlText, q.args, func(rows Rows) error {
		var (
			row  types.GroupAverage
			mean *float64
		)
		if err := rows.Scan(&row.Group, &mean, &row.Count); err != nil {
			return err
		}
		if mean != nil {
			row.Mean = *mean
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// Performance returns per-group view and application aggregates. Missing
// application counts add zero to the total.
func (r *Reader) Performance(ctx context.Context, s types.Scope, group types.CategoryField) ([]types.RawPerformance, error) {
	grp, err := groupExpr(group)
	if err != nil {
		return nil, err
	}
	q := newQuery(r.d, s)
	sqlText := fmt.Sprintf(`SELECT %s, AVG(%s), AVG(%s),
	CAST(COALESCE(SUM(COALESCE(p.applications_count, 0)), 0) AS BIGINT), COUNT(*)`,
		grp, asFloat("p.views_count"), asFloat("p.applications_count")) +
		fromPostings + q.where() + "\nGROUP BY 1 ORDER BY 1"

	var out []types.RawPerformance
	err = r.each(ctx, "performance", sqlText, q.args, func(rows Rows) error {
		var row types.RawPerformance
		if err := rows.Scan(&row.Group, &row.AvgViews, &row.AvgApplications, &row.TotalApplications, &row.Postings); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// CountBy counts postings per category value, largest first.
func (r *Reader) CountBy(ctx context.Context, s types.Scope, group types.CategoryField) ([]types.CategoryCount, error) {
	grp, err := groupExpr(group)
	if err != nil {
		return nil, err
	}
	q := newQuery(r.d, s)
	sqlText := fmt.Sprintf("SELECT %s, COUNT(*)", grp) + fromPostings + q.where() + "\nGROUP BY 1 ORDER BY 2 DESC, 1 ASC"

	var out []types.CategoryCount
	err = r.each(ctx, "category counts", sqlText, q.args, func(rows Rows) error {
		var row types.CategoryCount
		if err := rows.Scan(&row.Category, &row.Count); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// CorrelationPoints returns views and applications of every posting where
// both are known, ordered by job id. Bounds are applied by the caller.
func (r *Reader) CorrelationPoints(ctx context.Context, s types.Scope) ([]types.CorrelationPoint, error) {
	q := newQuery(r.d, s)
	q.cond("p.views_count IS NOT NULL")
	q.cond("p.applications_count IS NOT NULL")
	sqlText := "SELECT p.views_count, p.applications_count" + fromPostings + q.where() + "\nORDER BY p.job_id"

	var out []types.CorrelationPoint
	err := r.each(ctx, "correlation points", sqlText, q.args, func(rows Rows) error {
		var pt types.CorrelationPoint
		if err := rows.Scan(&pt.Views, &pt.Applications); err != nil {
			return err
		}
		out = append(out, pt)
		return nil
	})
	return out, err
}

// MonthlyBuckets aggregates dated postings per year-month, oldest first.
func (r *Reader) MonthlyBuckets(ctx context.Context, s types.Scope) ([]types.MonthlyBucket, error) {
	q := newQuery(r.d, s)
	q.cond("p.posted_date IS NOT NULL")
	sqlText := fmt.Sprintf("SELECT %s, COUNT(*), AVG(%s), AVG(%s)",
		r.d.monthExpr, asFloat("p.views_count"), asFloat("p.applications_count")) +
		fromPostings + q.where() + "\nGROUP BY 1 ORDER BY 1"

	var out []types.MonthlyBucket
	err := r.each(ctx, "monthly buckets", sqlText, q.args, func(rows Rows) error {
		var b types.MonthlyBucket
		if err := rows.Scan(&b.Month, &b.Postings, &b.AvgViews, &b.AvgApplications); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// RecentPostings returns up to limit postings, newest first with undated
// postings last, ties broken by job id.
func (r *Reader) RecentPostings(ctx context.Context, s types.Scope, limit int) ([]types.RecentPosting, error) {
	q := newQuery(r.d, s)
	where := q.where()
	sqlText := `SELECT p.job_id, p.job_url, p.posted_time, p.posted_date, p.views_count, p.applications_count,
	p.sector, j.contract_type, j.experience_level, j.salary_rating, j.company_id, c.company_name, c.location` +
		fromPostings + where +
		"\nORDER BY CASE WHEN p.posted_date IS NULL THEN 1 ELSE 0 END, p.posted_date DESC, p.job_id ASC" +
		"\nLIMIT " + q.arg(limit)

	var out []types.RecentPosting
	err := r.each(ctx, "recent postings", sqlText, q.args, func(rows Rows) error {
		var (
			rp     types.RecentPosting
			posted = r.d.timeDest()
		)
		if err := rows.Scan(&rp.JobID, &rp.JobURL, &rp.PostedTime, posted, &rp.ViewsCount, &rp.ApplicationsCount,
			&rp.Sector, &rp.ContractType, &rp.ExperienceLevel, &rp.SalaryRating, &rp.CompanyID,
			&rp.CompanyName, &rp.Location); err != nil {
			return err
		}
		at, err := r.d.readTime(posted)
		if err != nil {
			return err
		}
		rp.PostedDate = at
		out = append(out, rp)
		return nil
	})
	return out, err
}

// ApplicationRate returns the mean of applications per 100 views over
// postings with views, or nil when there are none.
func (r *Reader) ApplicationRate(ctx context.Context, s types.Scope) (*float64, error) {
	q := newQuery(r.d, s)
	q.cond("p.views_count > 0")
	q.cond("p.applications_count IS NOT NULL")
	sqlText := fmt.Sprintf("SELECT AVG(%s * 100.0 / p.views_count)", asFloat("p.applications_count")) + fromPostings + q.where()

	var rate *float64
	err := r.each(ctx, "application rate", sqlText, q.args, func(rows Rows) error {
		return rows.Scan(&rate)
	})
	return rate, err
}

// DistinctValues lists the non-empty values of a category across the whole load.
func (r *Reader) DistinctValues(ctx context.Context, field types.CategoryField) ([]string, error) {
	var sqlText string
	switch field {
	case types.GroupSector:
		sqlText = "SELECT DISTINCT sector FROM job_postings WHERE sector <> '' ORDER BY 1"
	case types.GroupExperience:
		sqlText = "SELECT DISTINCT experience_level FROM jobs WHERE experience_level <> '' ORDER BY 1"
	case types.GroupContractType:
		sqlText = "SELECT DISTINCT contract_type FROM jobs WHERE contract_type <> '' ORDER BY 1"
	case types.GroupState:
		sqlText = "SELECT DISTINCT state FROM companies WHERE state IS NOT NULL AND state <> '' ORDER BY 1"
	default:
		return nil, fmt.Errorf("unknown category field %q", field)
	}

	var out []string
	err := r.each(ctx, "distinct "+string(field), sqlText, nil, func(rows Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// SalaryRatingBounds returns the smallest and largest stored salary rating.
func (r *Reader) SalaryRatingBounds(ctx context.Context) (lo, hi *float64, err error) {
	err = r.each(ctx, "salary rating bounds", "SELECT MIN(salary_rating), MAX(salary_rating) FROM jobs", nil,
		func(rows Rows) error {
			return rows.Scan(&lo, &hi)
		})
	return lo, hi, err
}

// DataQuality counts rows degraded by normalization under s. Fractions are
// left to the caller.
func (r *Reader) DataQuality(ctx context.Context, s types.Scope) (types.DataQuality, error) {
	var dq types.DataQuality
	q := newQuery(r.d, s)
	sqlText := `SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN j.company_id IS NULL THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN p.posted_date IS NULL THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN p.applications_count IS NULL THEN 1 ELSE 0 END), 0)` + fromPostings + q.where()

	err := r.each(ctx, "data quality", sqlText, q.args, func(rows Rows) error {
		return rows.Scan(&dq.TotalJobs, &dq.UnlinkedJobs, &dq.UndatedPostings, &dq.MissingApplications)
	})
	dq.TotalPostings = dq.TotalJobs
	return dq, err
}

// ReadBatch returns the persisted records ordered by key. A positive limit
// caps each table.
func (r *Reader) ReadBatch(ctx context.Context, limit int) (*types.Batch, error) {
	var batch *types.Batch
	err := r.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		batch, err = r.readBatch(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *Reader) readBatch(ctx context.Context, limit int) (*types.Batch, error) {
	suffix := func(q *query) string {
		if limit <= 0 {
			return ""
		}
		return " LIMIT " + q.arg(limit)
	}
	batch := &types.Batch{}

	cq := &query{d: r.d}
	err := r.each(ctx, "companies", "SELECT company_id, company_name, company_name_normalized, company_url, location, sector "+
		"FROM companies ORDER BY company_id"+suffix(cq), cq.args, func(rows Rows) error {
		var c types.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.NameNormalized, &c.URL, &c.Location, &c.Sector); err != nil {
			return err
		}
		batch.Companies = append(batch.Companies, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	jq := &query{d: r.d}
	err = r.each(ctx, "jobs", "SELECT job_id, company_id, contract_type, experience_level, salary_rating "+
		"FROM jobs ORDER BY job_id"+suffix(jq), jq.args, func(rows Rows) error {
		var j types.Job
		if err := rows.Scan(&j.ID, &j.CompanyID, &j.ContractType, &j.ExperienceLevel, &j.SalaryRating); err != nil {
			return err
		}
		batch.Jobs = append(batch.Jobs, j)
		return nil
	})
	if err != nil {
		return nil, err
	}

	pq := &query{d: r.d}
	err = r.each(ctx, "job postings", "SELECT job_id, job_url, apply_url, apply_type, posted_time, posted_date, "+
		"views_count, applications_raw, applications_count, sector FROM job_postings ORDER BY job_id"+suffix(pq),
		pq.args, func(rows Rows) error {
			var (
				p      types.JobPosting
				posted = r.d.timeDest()
			)
			if err := rows.Scan(&p.JobID, &p.JobURL, &p.ApplyURL, &p.ApplyType, &p.PostedTime, posted,
				&p.ViewsCount, &p.ApplicationsRaw, &p.ApplicationsCount, &p.Sector); err != nil {
				return err
			}
			at, err := r.d.readTime(posted)
			if err != nil {
				return err
			}
			p.PostedDate = at
			batch.Postings = append(batch.Postings, p)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// TableCounts returns the row count of every table, for diagnostics.
func (r *Reader) TableCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 4)
	err := r.Snapshot(ctx, func(ctx context.Context) error {
		for _, table := range []string{"companies", "jobs", "job_postings", "load_runs"} {
			var n int64
			err := r.each(ctx, table+" count", "SELECT COUNT(*) FROM "+table, nil, func(rows Rows) error {
				return rows.Scan(&n)
			})
			if err != nil {
				return err
			}
			out[table] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

