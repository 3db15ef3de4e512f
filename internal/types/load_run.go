package types

import (
	"time"

	"github.com/google/uuid"
)

// Warning kinds recorded while normalizing rows. None of them abort a load.
const (
	WarnInvalidCompanyID   = "invalid_company_id"
	WarnInvalidJobID       = "invalid_job_id"
	WarnUnparsedPostedTime = "unparsed_posted_time"
	WarnUnparsedApps       = "unparsed_applications_count"
	WarnUnparsedViews      = "unparsed_views_count"
	WarnUnparsedRating     = "unparsed_salary_rating"
	WarnUnlinkedCompany    = "unlinked_company"
	WarnFallbackSector     = "fallback_sector"
	WarnFallbackExperience = "fallback_experience_level"
	WarnFallbackContract   = "fallback_contract_type"
	WarnOrphanJobRow       = "orphan_job_row"
)

// LoadRun describes one successful load. The latest run identifies the
// generation of data currently visible to readers.
type LoadRun struct {
	ID            uuid.UUID      `json:"id"`
	LoadedAt      time.Time      `json:"loaded_at"`
	CompaniesPath string         `json:"companies_path"`
	PostingsPath  string         `json:"postings_path"`
	JobsPath      string         `json:"jobs_path,omitempty"`
	Companies     int            `json:"companies"`
	Jobs          int            `json:"jobs"`
	Postings      int            `json:"postings"`
	Warnings      map[string]int `json:"warnings"`
}

// TotalWarnings sums all warning counters.
func (r LoadRun) TotalWarnings() int {
	total := 0
	for _, n := range r.Warnings {
		total += n
	}
	return total
}
