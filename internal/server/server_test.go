package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-insights/internal/db/sqlite"
	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/types"
)

var loadedAt = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// setupTestServer returns a server over a store holding two linked postings
// and one unlinked, undated posting.
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	store := openStore(t)

	batch := &types.Batch{
		Companies: []types.Company{
			{ID: 1, Name: "Acme Corp", NameNormalized: "acme corp", Location: ptr("Austin, TX")},
		},
		Jobs: []types.Job{
			{ID: 10, CompanyID: ptr(int64(1)), ContractType: "Full-time", ExperienceLevel: "Senior", SalaryRating: ptr(4.5)},
			{ID: 11, CompanyID: ptr(int64(1)), ContractType: "Contract", ExperienceLevel: "Junior", SalaryRating: ptr(2.0)},
			{ID: 12, ContractType: "Other", ExperienceLevel: "Junior"},
		},
		Postings: []types.JobPosting{
			{JobID: 10, JobURL: "https://x/10", PostedTime: "3 days ago", PostedDate: ptr(loadedAt.Add(-72 * time.Hour)),
				ViewsCount: ptr(int64(100)), ApplicationsRaw: "10", ApplicationsCount: ptr(int64(10)), Sector: "AI"},
			{JobID: 11, JobURL: "https://x/11", PostedTime: "2 months ago", PostedDate: ptr(loadedAt.AddDate(0, -2, 0)),
				ViewsCount: ptr(int64(5000)), ApplicationsRaw: "40", ApplicationsCount: ptr(int64(40)), Sector: "Finance"},
			{JobID: 12, JobURL: "https://x/12", PostedTime: "recently", ApplicationsRaw: "n/a", Sector: "AI"},
		},
	}
	run := types.LoadRun{ID: uuid.New(), LoadedAt: loadedAt, Companies: 1, Jobs: 3, Postings: 3,
		Warnings: map[string]int{types.WarnUnparsedPostedTime: 1}}
	require.NoError(t, store.ReplaceAll(context.Background(), batch, run))

	return New(query.NewService(store), Config{Port: 0})
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandleHealth(t *testing.T) {
	s := New(query.NewService(openStore(t)), Config{})
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestNoDataIsNotFound(t *testing.T) {
	s := New(query.NewService(openStore(t)), Config{})
	for _, path := range []string{"/api/v1/load", "/api/v1/counts", "/api/v1/sectors"} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, decode[map[string]string](t, rec)["error"], "no data")
	}
}

func TestHandleLoad(t *testing.T) {
	rec := get(t, setupTestServer(t), "/api/v1/load")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[types.LoadRun](t, rec)
	assert.Equal(t, 3, run.Postings)
	assert.Equal(t, 1, run.Warnings[types.WarnUnparsedPostedTime])
}

func TestHandleCounts(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name  string
		query string
		want  types.Counts
	}{
		{name: "all", query: "", want: types.Counts{Jobs: 3, Companies: 1, Postings: 3}},
		{name: "sector", query: "?sector=AI", want: types.Counts{Jobs: 2, Companies: 1, Postings: 2}},
		{name: "state", query: "?state=TX", want: types.Counts{Jobs: 2, Companies: 1, Postings: 2}},
		{name: "posted window", query: "?posted_within_days=7", want: types.Counts{Jobs: 1, Companies: 1, Postings: 1}},
		{name: "salary floor", query: "?min_salary_rating=4", want: types.Counts{Jobs: 1, Companies: 1, Postings: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, "/api/v1/counts"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decode[types.Counts](t, rec))
		})
	}
}

func TestBadRequests(t *testing.T) {
	s := setupTestServer(t)

	paths := []string{
		"/api/v1/counts?posted_within_days=soon",
		"/api/v1/counts?min_salary_rating=high",
		"/api/v1/counts?min_salary_rating=4&max_salary_rating=2",
		"/api/v1/averages?field=title",
		"/api/v1/averages?field=views_count&group_by=company",
		"/api/v1/distribution/title",
		"/api/v1/recent-postings?limit=-1",
		"/api/v1/correlation?min_views=10&max_views=5",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := get(t, s, path)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestHandleAverages(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/v1/averages?field=salary_rating")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]types.GroupAverage](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 3.25, rows[0].Mean)
	assert.Equal(t, int64(2), rows[0].Count)

	rec = get(t, s, "/api/v1/averages?field=views_count&group_by=sector")
	require.Equal(t, http.StatusOK, rec.Code)
	rows = decode[[]types.GroupAverage](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, "AI", rows[0].Group)
	assert.Equal(t, 100.0, rows[0].Mean)
}

func TestHandleDistribution(t *testing.T) {
	rec := get(t, setupTestServer(t), "/api/v1/distribution/sector")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]types.DistributionRow](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, "AI", rows[0].Category)
	assert.Equal(t, int64(2), rows[0].Count)

	sum := 0.0
	for _, r := range rows {
		sum += r.Percentage
	}
	assert.InDelta(t, 100, sum, 0.01)
}

func TestHandleMarketDistribution(t *testing.T) {
	rec := get(t, setupTestServer(t), "/api/v1/market-distribution")
	require.Equal(t, http.StatusOK, rec.Code)
	dims := decode[[]types.DimensionDistribution](t, rec)
	require.Len(t, dims, 2)
	assert.Equal(t, types.GroupSector, dims[0].Dimension)
	assert.Equal(t, types.GroupExperience, dims[1].Dimension)
}

func TestHandleCorrelation(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/v1/correlation")
	require.Equal(t, http.StatusOK, rec.Code)
	points := decode[[]types.CorrelationPoint](t, rec)
	require.Len(t, points, 1, "5000 views is outside the default bounds and is dropped")
	assert.Equal(t, types.CorrelationPoint{Views: 100, Applications: 10}, points[0])

	rec = get(t, s, "/api/v1/correlation?max_views=10000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.CorrelationPoint](t, rec), 2)

	rec = get(t, s, "/api/v1/correlation?min_views=0&max_views=0&min_applications=0&max_applications=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]types.CorrelationPoint](t, rec), "explicit zero bounds are honored, not replaced by defaults")
}

func TestHandleMonthlyTrends(t *testing.T) {
	rec := get(t, setupTestServer(t), "/api/v1/monthly-trends")
	require.Equal(t, http.StatusOK, rec.Code)
	trends := decode[[]types.MonthlyTrend](t, rec)
	require.Len(t, trends, 2)
	assert.Equal(t, "2024-01", trends[0].Month)
	assert.Equal(t, "2024-03", trends[1].Month)
}

func TestHandleRecentPostings(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/v1/recent-postings?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]types.RecentPosting](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0].JobID)
	require.NotNil(t, rows[0].CompanyName)
	assert.Equal(t, "Acme Corp", *rows[0].CompanyName)

	rec = get(t, s, "/api/v1/recent-postings")
	require.Equal(t, http.StatusOK, rec.Code)
	rows = decode[[]types.RecentPosting](t, rec)
	require.Len(t, rows, 3)
	assert.Nil(t, rows[2].PostedDate)
}

func TestHandleApplicationRate(t *testing.T) {
	rec := get(t, setupTestServer(t), "/api/v1/application-rate")
	require.Equal(t, http.StatusOK, rec.Code)
	// mean of 10/100 and 40/5000, per 100 views
	assert.Equal(t, 5.4, decode[map[string]float64](t, rec)["applications_per_100_views"])
}

func TestFilterOptionLists(t *testing.T) {
	s := setupTestServer(t)

	rec := get(t, s, "/api/v1/sectors")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AI", "Finance"}, decode[[]string](t, rec))

	rec = get(t, s, "/api/v1/experience-levels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Junior", "Senior"}, decode[[]string](t, rec))

	rec = get(t, s, "/api/v1/states")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[[]string](t, rec), "TX")

	rec = get(t, s, "/api/v1/salary-rating-range")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.RatingRange{Min: 2, Max: 4.5}, decode[types.RatingRange](t, rec))
}

func TestHandleDataQuality(t *testing.T) {
	rec := get(t, setupTestServer(t), "/api/v1/data-quality")
	require.Equal(t, http.StatusOK, rec.Code)
	dq := decode[types.DataQuality](t, rec)
	assert.Equal(t, int64(3), dq.TotalJobs)
	assert.Equal(t, int64(1), dq.UnlinkedJobs)
	assert.Equal(t, int64(1), dq.UndatedPostings)
	assert.Equal(t, int64(1), dq.MissingApplications)
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/counts", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteMethodsRejected(t *testing.T) {
	s := setupTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/counts", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	store := openStore(t)
	s := New(query.NewService(store), Config{RateLimitPerSecond: 0.001, RateLimitBurst: 2})
	t.Cleanup(s.rateLimiter.Stop)

	for i := 0; i < 2; i++ {
		rec := get(t, s, "/api/v1/sectors")
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, fmt.Sprint(1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := get(t, s, "/api/v1/sectors")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, rec)["error"])

	// health checks stay unlimited
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &ErrValidation{Field: "limit", Message: "bad"}, want: http.StatusBadRequest},
		{name: "invalid argument", err: fmt.Errorf("wrap: %w", query.ErrInvalidArgument), want: http.StatusBadRequest},
		{name: "no data", err: query.ErrNoData, want: http.StatusNotFound},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "limit", Message: "must be a non-negative integer"}
	assert.Equal(t, "validation error: limit - must be a non-negative integer", err.Error())
}
