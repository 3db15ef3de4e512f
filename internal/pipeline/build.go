package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/job-insights/internal/identity"
	"github.com/jonathan/job-insights/internal/ingestion"
	"github.com/jonathan/job-insights/internal/parsing"
	"github.com/jonathan/job-insights/internal/types"
)

// Sources holds the raw rows of one load. Jobs is nil when no jobs file was given.
type Sources struct {
	Companies []ingestion.RawCompany
	Postings  []ingestion.RawPosting
	Jobs      []ingestion.RawJob
}

// BuildOptions controls normalization.
type BuildOptions struct {
	LoadTime   time.Time
	Policy     parsing.MissingPolicy
	Categories *parsing.CategorySet
}

// Warnings counts row-level normalization warnings by kind.
type Warnings map[string]int

func (w Warnings) add(kind string) {
	w[kind]++
}

// Build normalizes raw rows into a batch. It performs no I/O. Only duplicate
// keys are fatal; every other row-level problem becomes a warning and a
// null or fallback value.
func Build(src Sources, opts BuildOptions) (*types.Batch, Warnings, error) {
	if opts.Categories == nil {
		return nil, nil, fmt.Errorf("build: category rules are required")
	}
	warnings := Warnings{}
	batch := &types.Batch{}

	companies, err := buildCompanies(src.Companies, warnings)
	if err != nil {
		return nil, nil, err
	}
	batch.Companies = companies

	byID := make(map[int64]*types.Company, len(companies))
	for i := range batch.Companies {
		byID[batch.Companies[i].ID] = &batch.Companies[i]
	}
	resolver := identity.NewResolver(identity.NewIndex(batch.Companies))

	overrides, err := indexJobRows(src.Jobs, warnings)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[int64]int, len(src.Postings))
	for _, raw := range src.Postings {
		id, ok := parseID(raw.JobID)
		if !ok {
			warnings.add(types.WarnInvalidJobID)
			continue
		}
		if line, dup := seen[id]; dup {
			return nil, nil, &DuplicateKeyError{File: ingestion.FilePostings, Key: ingestion.ColJobID, ID: id, Lines: []int{line, raw.Line}}
		}
		seen[id] = raw.Line

		override, hasOverride := overrides[id]
		job, posting := buildJob(id, raw, override, hasOverride, resolver, byID, opts, warnings)
		batch.Jobs = append(batch.Jobs, job)
		batch.Postings = append(batch.Postings, posting)
	}

	for id := range overrides {
		if _, ok := seen[id]; !ok {
			warnings.add(types.WarnOrphanJobRow)
		}
	}

	return batch, warnings, nil
}

func buildCompanies(rows []ingestion.RawCompany, warnings Warnings) ([]types.Company, error) {
	out := make([]types.Company, 0, len(rows))
	seen := make(map[int64]int, len(rows))
	for _, raw := range rows {
		id, ok := parseID(raw.ID)
		if !ok {
			warnings.add(types.WarnInvalidCompanyID)
			continue
		}
		if line, dup := seen[id]; dup {
			return nil, &DuplicateKeyError{File: ingestion.FileCompanies, Key: ingestion.ColCompanyID, ID: id, Lines: []int{line, raw.Line}}
		}
		seen[id] = raw.Line

		out = append(out, types.Company{
			ID:             id,
			Name:           raw.Name,
			NameNormalized: identity.NormalizeCompanyKey(raw.Name),
			URL:            optional(raw.URL),
			Location:       optional(raw.Location),
			Sector:         optional(raw.Sector),
		})
	}
	return out, nil
}

func indexJobRows(rows []ingestion.RawJob, warnings Warnings) (map[int64]ingestion.RawJob, error) {
	out := make(map[int64]ingestion.RawJob, len(rows))
	for _, raw := range rows {
		id, ok := parseID(raw.JobID)
		if !ok {
			warnings.add(types.WarnInvalidJobID)
			continue
		}
		if prev, dup := out[id]; dup {
			return nil, &DuplicateKeyError{File: ingestion.FileJobs, Key: ingestion.ColJobID, ID: id, Lines: []int{prev.Line, raw.Line}}
		}
		out[id] = raw
	}
	return out, nil
}

func buildJob(
	id int64,
	raw ingestion.RawPosting,
	override ingestion.RawJob,
	hasOverride bool,
	resolver *identity.Resolver,
	companies map[int64]*types.Company,
	opts BuildOptions,
	warnings Warnings,
) (types.Job, types.JobPosting) {
	contractRaw, experienceRaw, ratingRaw := raw.ContractType, raw.ExperienceLevel, raw.SalaryRating
	if hasOverride {
		contractRaw = prefer(override.ContractType, contractRaw)
		experienceRaw = prefer(override.ExperienceLevel, experienceRaw)
		ratingRaw = prefer(override.SalaryRating, ratingRaw)
	}

	days := parsing.ParsePostedAge(raw.PostedTime)
	if days == nil {
		warnings.add(types.WarnUnparsedPostedTime)
	}
	if parsing.ParseApplicationsCount(raw.ApplicationsCount, parsing.MissingAsNull) == nil {
		warnings.add(types.WarnUnparsedApps)
	}
	views := parsing.ParseViewsCount(raw.ViewsCount)
	if views == nil && raw.ViewsCount != "" {
		warnings.add(types.WarnUnparsedViews)
	}
	rating := parsing.ParseSalaryRating(ratingRaw)
	if rating == nil && ratingRaw != "" {
		warnings.add(types.WarnUnparsedRating)
	}

	companyID := resolver.Resolve(raw.JobURL)
	companySector := ""
	if companyID == nil {
		warnings.add(types.WarnUnlinkedCompany)
	} else if c := companies[*companyID]; c != nil && c.Sector != nil {
		companySector = *c.Sector
	}

	fields := map[string]string{
		parsing.SourceJobURL:          raw.JobURL,
		parsing.SourceApplyType:       raw.ApplyType,
		parsing.SourceContractType:    contractRaw,
		parsing.SourceExperienceLevel: experienceRaw,
		parsing.SourceCompanySector:   companySector,
	}
	sector := categorize(opts.Categories.Sector, fields, types.WarnFallbackSector, warnings)
	experience := categorize(opts.Categories.ExperienceLevel, fields, types.WarnFallbackExperience, warnings)
	contract := categorize(opts.Categories.ContractType, fields, types.WarnFallbackContract, warnings)

	job := types.Job{
		ID:              id,
		CompanyID:       companyID,
		ContractType:    contract,
		ExperienceLevel: experience,
		SalaryRating:    rating,
	}
	posting := types.JobPosting{
		JobID:             id,
		JobURL:            raw.JobURL,
		ApplyURL:          optional(raw.ApplyURL),
		ApplyType:         optional(raw.ApplyType),
		PostedTime:        raw.PostedTime,
		PostedDate:        parsing.PostedDate(opts.LoadTime, days),
		ViewsCount:        views,
		ApplicationsRaw:   raw.ApplicationsCount,
		ApplicationsCount: parsing.ParseApplicationsCount(raw.ApplicationsCount, opts.Policy),
		Sector:            sector,
	}
	return job, posting
}

func categorize(m *parsing.CategoryMatcher, fields map[string]string, warning string, warnings Warnings) string {
	category, matched := m.Match(fields)
	if !matched {
		warnings.add(warning)
	}
	return category
}

// parseID accepts non-negative integers, including spreadsheet-style "12.0".
func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, id >= 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func prefer(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
