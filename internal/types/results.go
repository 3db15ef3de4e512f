package types

import "time"

// Counts holds entity totals under a filter.
type Counts struct {
	Jobs      int64 `json:"jobs"`
	Companies int64 `json:"companies"`
	Postings  int64 `json:"postings"`
}

// GroupAverage is the mean of a numeric field within one group.
// Group is "" for an ungrouped average. Count is the number of non-null values.
type GroupAverage struct {
	Group string  `json:"group"`
	Mean  float64 `json:"mean"`
	Count int64   `json:"count"`
}

// RawPerformance is a store-level per-group aggregate before rounding.
type RawPerformance struct {
	Group             string
	AvgViews          *float64
	AvgApplications   *float64
	TotalApplications int64
	Postings          int64
}

// GroupPerformance compares views and applications across a category.
type GroupPerformance struct {
	Group             string `json:"group"`
	AvgViews          int64  `json:"avg_views"`
	AvgApplications   int64  `json:"avg_applications"`
	TotalApplications int64  `json:"total_applications"`
	Postings          int64  `json:"postings"`
}

// CategoryCount is a store-level count for one category value.
type CategoryCount struct {
	Category string
	Count    int64
}

// DistributionRow is one category's share of the filtered total.
type DistributionRow struct {
	Category   string  `json:"category"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DimensionDistribution tags a distribution with the dimension it was computed over.
type DimensionDistribution struct {
	Dimension CategoryField     `json:"dimension"`
	Rows      []DistributionRow `json:"rows"`
}

// CorrelationPoint is one posting's views and applications.
type CorrelationPoint struct {
	Views        int64 `json:"views"`
	Applications int64 `json:"applications"`
}

// CorrelationBounds are inclusive ranges; points outside are excluded, never capped.
type CorrelationBounds struct {
	MinViews        int64 `json:"min_views" validate:"gte=0"`
	MaxViews        int64 `json:"max_views" validate:"gtefield=MinViews"`
	MinApplications int64 `json:"min_applications" validate:"gte=0"`
	MaxApplications int64 `json:"max_applications" validate:"gtefield=MinApplications"`
}

// DefaultCorrelationBounds caps views at 1000 and applications at 200.
func DefaultCorrelationBounds() CorrelationBounds {
	return CorrelationBounds{MinViews: 0, MaxViews: 1000, MinApplications: 0, MaxApplications: 200}
}

// Contains reports whether p lies within the bounds.
func (b CorrelationBounds) Contains(p CorrelationPoint) bool {
	return p.Views >= b.MinViews && p.Views <= b.MaxViews &&
		p.Applications >= b.MinApplications && p.Applications <= b.MaxApplications
}

// MonthlyBucket is a store-level month aggregate over dated postings.
type MonthlyBucket struct {
	Month           string
	Postings        int64
	AvgViews        *float64
	AvgApplications *float64
}

// MonthlyTrend is one year-month of posting activity.
type MonthlyTrend struct {
	Month           string `json:"month"`
	Postings        int64  `json:"postings"`
	AvgViews        int64  `json:"avg_views"`
	AvgApplications int64  `json:"avg_applications"`
}

// RecentPosting is a posting joined with its job and (when linked) company.
type RecentPosting struct {
	JobID             int64      `json:"job_id"`
	JobURL            string     `json:"job_url"`
	PostedTime        string     `json:"posted_time"`
	PostedDate        *time.Time `json:"posted_date,omitempty"`
	ViewsCount        *int64     `json:"views_count,omitempty"`
	ApplicationsCount *int64     `json:"applications_count,omitempty"`
	Sector            string     `json:"sector"`
	ContractType      string     `json:"contract_type"`
	ExperienceLevel   string     `json:"experience_level"`
	SalaryRating      *float64   `json:"salary_rating,omitempty"`
	CompanyID         *int64     `json:"company_id,omitempty"`
	CompanyName       *string    `json:"company_name,omitempty"`
	Location          *string    `json:"location,omitempty"`
}

// RatingRange is the observed salary-rating span.
type RatingRange struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Defaulted bool    `json:"defaulted"`
}

// DataQuality summarizes how much of the last load was degraded by heuristics.
type DataQuality struct {
	TotalJobs                   int64   `json:"total_jobs"`
	UnlinkedJobs                int64   `json:"unlinked_jobs"`
	UnlinkedFraction            float64 `json:"unlinked_fraction"`
	TotalPostings               int64   `json:"total_postings"`
	UndatedPostings             int64   `json:"undated_postings"`
	UndatedFraction             float64 `json:"undated_fraction"`
	MissingApplications         int64   `json:"missing_applications"`
	MissingApplicationsFraction float64 `json:"missing_applications_fraction"`
}
