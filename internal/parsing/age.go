// Package parsing converts raw, free-text source fields into typed values.
// Every parser is total: unparseable input yields nil (or a fallback), never an error.
package parsing

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ageUnits is checked in priority order; the first unit found in the string wins.
var ageUnits = []struct {
	name string
	days float64
}{
	{"month", 30},
	{"week", 7},
	{"day", 1},
	{"hour", 1.0 / 24},
}

// maxAgeDays is the largest age a time.Duration can hold, about 292 years.
var maxAgeDays = float64(math.MaxInt64) / float64(24*time.Hour)

// ParsePostedAge converts "<n> <unit>(s) ago" into a number of days.
// Returns nil for empty input, unknown units, a non-numeric leading token,
// or an age too large to place on a calendar.
func ParsePostedAge(raw string) *float64 {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}

	fields := strings.Fields(s)
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return nil
	}

	for _, unit := range ageUnits {
		if strings.Contains(s, unit.name) {
			days := n * unit.days
			if days >= maxAgeDays {
				return nil
			}
			return &days
		}
	}
	return nil
}

// PostedDate anchors a day count to the load time. The result is an
// approximation: loading the same data later yields a later date.
func PostedDate(loadTime time.Time, days *float64) *time.Time {
	if days == nil || *days < 0 || *days >= maxAgeDays {
		return nil
	}
	offset := time.Duration(*days * float64(24*time.Hour))
	d := loadTime.UTC().Add(-offset)
	return &d
}
