// Package types provides type definitions for the normalized job-market model shared by the
// loader, the stores and the query service.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"time"
)

// Company is a canonical company record from the company directory.
type Company struct {
	ID             int64   `json:"company_id"`
	Name           string  `json:"company_name"`
	NameNormalized string  `json:"company_name_normalized"`
	URL            *string `json:"company_url,omitempty"`
	Location       *string `json:"location,omitempty"`
	Sector         *string `json:"sector,omitempty"`
}

// State returns the region part of a "city, region" location, or "" when the
// location has no comma.
func (c Company) State() string {
	if c.Location == nil {
		return ""
	}
	return StateFromLocation(*c.Location)
}

// StateFromLocation extracts the second comma-separated part of a location.
func StateFromLocation(location string) string {
	parts := strings.Split(location, ",")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Job is derived from exactly one job posting.
// CompanyID is nil when identity resolution failed.
type Job struct {
	ID              int64    `json:"job_id"`
	CompanyID       *int64   `json:"company_id,omitempty"`
	ContractType    string   `json:"contract_type"`
	ExperienceLevel string   `json:"experience_level"`
	SalaryRating    *float64 `json:"salary_rating,omitempty"`
}

// JobPosting holds the posting-level fields of a job, keyed by the job's ID.
type JobPosting struct {
	JobID             int64      `json:"job_id"`
	JobURL            string     `json:"job_url"`
	ApplyURL          *string    `json:"apply_url,omitempty"`
	ApplyType         *string    `json:"apply_type,omitempty"`
	PostedTime        string     `json:"posted_time"`
	PostedDate        *time.Time `json:"posted_date,omitempty"`
	ViewsCount        *int64     `json:"views_count,omitempty"`
	ApplicationsRaw   string     `json:"applications_raw"`
	ApplicationsCount *int64     `json:"applications_count,omitempty"`
	Sector            string     `json:"sector"`
}

// Batch is one load's worth of normalized records. It is persisted as a unit.
type Batch struct {
	Companies []Company    `json:"companies"`
	Jobs      []Job        `json:"jobs"`
	Postings  []JobPosting `json:"job_postings"`
}

// Empty reports whether the batch contains no records at all.
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Companies) == 0 && len(b.Jobs) == 0 && len(b.Postings) == 0)
}
