package parsing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MissingPolicy decides what an unparseable count becomes.
type MissingPolicy string

const (
	// MissingAsNull keeps unparseable counts as nil so averages skip them.
	MissingAsNull MissingPolicy = "null"
	// MissingAsZero turns unparseable counts into 0 for contexts that need a total.
	MissingAsZero MissingPolicy = "zero"
)

// ParseMissingPolicy validates a policy name. The empty string means MissingAsNull.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissingAsNull:
		return MissingAsNull, nil
	case MissingAsZero:
		return MissingAsZero, nil
	}
	return "", &ValidationError{Field: "applications_policy", Message: fmt.Sprintf("unknown policy %q", s)}
}

const overPrefix = "over "

// ParseApplicationsCount normalizes an application count such as "7",
// "50 applicants" or "Over 200 applicants". "Over N" becomes N.
func ParseApplicationsCount(raw string, policy MissingPolicy) *int64 {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, overPrefix) {
		s = strings.TrimSpace(s[len(overPrefix):])
	}

	if n, ok := leadingCount(s); ok {
		return &n
	}
	if policy == MissingAsZero {
		zero := int64(0)
		return &zero
	}
	return nil
}

// ParseViewsCount normalizes a view count. Unparseable or negative input is nil.
func ParseViewsCount(raw string) *int64 {
	if n, ok := leadingCount(strings.TrimSpace(raw)); ok {
		return &n
	}
	return nil
}

// ParseSalaryRating accepts any finite non-negative number. Values outside the
// conventional 1-5 scale are kept.
func ParseSalaryRating(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	return &v
}

// leadingCount parses the first whitespace-delimited token as a non-negative
// integer. Thousands separators and a zero fraction ("12.0") are accepted.
func leadingCount(s string) (int64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	token := strings.ReplaceAll(fields[0], ",", "")
	token = strings.TrimSuffix(token, "+")

	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}
