package types

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Filter narrows every query-service aggregate. Zero values mean "no constraint".
type Filter struct {
	Sector           string   `json:"sector,omitempty" validate:"omitempty,max=100"`
	ExperienceLevel  string   `json:"experience_level,omitempty" validate:"omitempty,max=100"`
	State            string   `json:"state,omitempty" validate:"omitempty,max=100"`
	MinSalaryRating  *float64 `json:"min_salary_rating,omitempty" validate:"omitempty,gte=0,lte=100"`
	MaxSalaryRating  *float64 `json:"max_salary_rating,omitempty" validate:"omitempty,gte=0,lte=100"`
	PostedWithinDays int      `json:"posted_within_days,omitempty" validate:"gte=0,lte=3650"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks field ranges and that the salary range is not inverted.
func (f Filter) Validate() error {
	if err := Validator().Struct(f); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	if f.MinSalaryRating != nil && f.MaxSalaryRating != nil && *f.MinSalaryRating > *f.MaxSalaryRating {
		return fmt.Errorf("invalid filter: min_salary_rating %.2f exceeds max_salary_rating %.2f",
			*f.MinSalaryRating, *f.MaxSalaryRating)
	}
	return nil
}

// IsZero reports whether the filter applies no constraint.
func (f Filter) IsZero() bool {
	return f.Sector == "" && f.ExperienceLevel == "" && f.State == "" &&
		f.MinSalaryRating == nil && f.MaxSalaryRating == nil && f.PostedWithinDays == 0
}

// Scope is a filter resolved against the load it is evaluated on.
// PostedSince is nil when the filter has no posting window.
type Scope struct {
	Filter
	PostedSince *time.Time
}

// Scope anchors the posting window at loadedAt.
func (f Filter) Scope(loadedAt time.Time) Scope {
	s := Scope{Filter: f}
	if f.PostedWithinDays > 0 {
		since := loadedAt.UTC().Add(-time.Duration(f.PostedWithinDays) * 24 * time.Hour)
		s.PostedSince = &since
	}
	return s
}

// NumericField names a numeric column that can be averaged.
type NumericField string

// Averageable numeric fields.
const (
	FieldViews        NumericField = "views_count"
	FieldApplications NumericField = "applications_count"
	FieldSalary       NumericField = "salary_rating"
)

// Valid reports whether f is a known numeric field.
func (f NumericField) Valid() bool {
	switch f {
	case FieldViews, FieldApplications, FieldSalary:
		return true
	}
	return false
}

// CategoryField names a categorical column usable for grouping and distributions.
type CategoryField string

// Category fields. GroupNone is accepted only where grouping is optional.
const (
	GroupNone         CategoryField = ""
	GroupContractType CategoryField = "contract_type"
	GroupExperience   CategoryField = "experience_level"
	GroupSector       CategoryField = "sector"
	GroupState        CategoryField = "state"
)

// ValidGroup reports whether g can be used to group averages or distributions.
func (g CategoryField) ValidGroup() bool {
	switch g {
	case GroupContractType, GroupExperience, GroupSector, GroupState:
		return true
	}
	return false
}
