package parsing

import (
	"fmt"
	"strings"
)

// CategoryRule maps any of its keywords to one canonical category.
type CategoryRule struct {
	Category string
	Keywords []string
}

// CategoryMatcher assigns a closed-set category from raw text fields using
// ordered keyword rules. It is immutable after construction.
type CategoryMatcher struct {
	fields   []string
	rules    []CategoryRule
	fallback string
}

// NewCategoryMatcher builds a matcher. Fields are inspected in order; within a
// field, rules are tried in order and the first keyword hit wins.
func NewCategoryMatcher(fields []string, rules []CategoryRule, fallback string) (*CategoryMatcher, error) {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		return nil, &ValidationError{Field: "fallback", Message: "fallback category is required"}
	}
	if len(fields) == 0 {
		return nil, &ValidationError{Field: "fields", Message: "at least one source field is required"}
	}

	m := &CategoryMatcher{
		fields:   append([]string(nil), fields...),
		fallback: fallback,
	}
	for i, r := range rules {
		category := strings.TrimSpace(r.Category)
		if category == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("rules[%d].category", i), Message: "category is required"}
		}
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("rules[%d].keywords", i), Message: "at least one keyword is required"}
		}
		m.rules = append(m.rules, CategoryRule{Category: category, Keywords: keywords})
	}
	return m, nil
}

// Match returns the category for the given raw field values and whether a
// rule matched. Without a match the fallback category is returned.
func (m *CategoryMatcher) Match(values map[string]string) (string, bool) {
	for _, field := range m.fields {
		text := strings.ToLower(values[field])
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, r := range m.rules {
			for _, k := range r.Keywords {
				if strings.Contains(text, k) {
					return r.Category, true
				}
			}
		}
	}
	return m.fallback, false
}

// Fallback returns the catch-all category.
func (m *CategoryMatcher) Fallback() string {
	return m.fallback
}

// Categories lists every category the matcher can produce, fallback last.
func (m *CategoryMatcher) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range m.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	if !seen[m.fallback] {
		out = append(out, m.fallback)
	}
	return out
}

// Fields returns the source fields the matcher inspects, in order.
func (m *CategoryMatcher) Fields() []string {
	return append([]string(nil), m.fields...)
}

// Raw source fields a category table may inspect.
const (
	SourceJobURL          = "job_url"
	SourceApplyType       = "apply_type"
	SourceContractType    = "contract_type"
	SourceExperienceLevel = "experience_level"
	SourceCompanySector   = "company_sector"
)

// CategorySet bundles the matchers applied to every posting during a load.
type CategorySet struct {
	Sector          *CategoryMatcher
	ExperienceLevel *CategoryMatcher
	ContractType    *CategoryMatcher
}
