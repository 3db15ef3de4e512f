package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseApplicationsCount(t *testing.T) {
	tests := []struct {
		input    string
		expected *int64
	}{
		{"50 applicants", i64(50)},
		{"Over 200 applicants", i64(200)},
		{"over 200 applicants", i64(200)},
		{"OVER 200", i64(200)},
		{"7", i64(7)},
		{"0", i64(0)},
		{"1,234 applicants", i64(1234)},
		{"12.0", i64(12)},
		{"200+ applicants", i64(200)},
		{"  25 people clicked apply ", i64(25)},
		{"n/a", nil},
		{"", nil},
		{"Over", nil},
		{"over many", nil},
		{"-5", nil},
		{"3.7", nil},
		{"Be among the first 25 applicants", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseApplicationsCount(tt.input, MissingAsNull)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestParseApplicationsCount_ZeroPolicy(t *testing.T) {
	for _, input := range []string{"n/a", "", "Over", "-5"} {
		t.Run(input, func(t *testing.T) {
			got := ParseApplicationsCount(input, MissingAsZero)
			require.NotNil(t, got)
			assert.Equal(t, int64(0), *got)
		})
	}

	got := ParseApplicationsCount("Over 200 applicants", MissingAsZero)
	require.NotNil(t, got)
	assert.Equal(t, int64(200), *got)
}

func TestParseMissingPolicy(t *testing.T) {
	p, err := ParseMissingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MissingAsNull, p)

	p, err = ParseMissingPolicy(" ZERO ")
	require.NoError(t, err)
	assert.Equal(t, MissingAsZero, p)

	_, err = ParseMissingPolicy("drop")
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "applications_policy", vErr.Field)
}

func TestParseViewsCount(t *testing.T) {
	assert.Equal(t, int64(310), *ParseViewsCount("310"))
	assert.Equal(t, int64(310), *ParseViewsCount("310.0"))
	assert.Equal(t, int64(4500), *ParseViewsCount("4,500 views"))
	assert.Nil(t, ParseViewsCount(""))
	assert.Nil(t, ParseViewsCount("-3"))
	assert.Nil(t, ParseViewsCount("lots"))
}

func TestParseSalaryRating(t *testing.T) {
	assert.Equal(t, 4.2, *ParseSalaryRating("4.2"))
	assert.Equal(t, 7.5, *ParseSalaryRating(" 7.5 "), "out-of-scale ratings are kept")
	assert.Equal(t, 0.0, *ParseSalaryRating("0"))
	assert.Nil(t, ParseSalaryRating(""))
	assert.Nil(t, ParseSalaryRating("-1"))
	assert.Nil(t, ParseSalaryRating("NaN"))
	assert.Nil(t, ParseSalaryRating("Inf"))
	assert.Nil(t, ParseSalaryRating("good"))
}

func i64(v int64) *int64 { return &v }
