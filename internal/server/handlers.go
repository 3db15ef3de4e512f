package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/job-insights/internal/types"
)

// parseQueryInt parses a non-negative integer query parameter. An absent
// parameter yields defaultValue; a malformed one is a validation error.
func parseQueryInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := strings.TrimSpace(r.URL.Query().Get(key))
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		return 0, &ErrValidation{Field: key, Message: "must be a non-negative integer"}
	}
	return val, nil
}

// parseQueryInt64 is parseQueryInt for int64 values.
func parseQueryInt64(r *http.Request, key string, defaultValue int64) (int64, error) {
	valStr := strings.TrimSpace(r.URL.Query().Get(key))
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil || val < 0 {
		return 0, &ErrValidation{Field: key, Message: "must be a non-negative integer"}
	}
	return val, nil
}

// parseQueryFloat parses an optional float query parameter.
func parseQueryFloat(r *http.Request, key string) (*float64, error) {
	valStr := strings.TrimSpace(r.URL.Query().Get(key))
	if valStr == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return nil, &ErrValidation{Field: key, Message: "must be a number"}
	}
	return &val, nil
}

// parseFilter reads the shared filter parameters. Range checks are left to
// the query service.
func parseFilter(r *http.Request) (types.Filter, error) {
	q := r.URL.Query()
	f := types.Filter{
		Sector:          strings.TrimSpace(q.Get("sector")),
		ExperienceLevel: strings.TrimSpace(q.Get("experience_level")),
		State:           strings.TrimSpace(q.Get("state")),
	}

	var err error
	if f.MinSalaryRating, err = parseQueryFloat(r, "min_salary_rating"); err != nil {
		return types.Filter{}, err
	}
	if f.MaxSalaryRating, err = parseQueryFloat(r, "max_salary_rating"); err != nil {
		return types.Filter{}, err
	}
	if f.PostedWithinDays, err = parseQueryInt(r, "posted_within_days", 0); err != nil {
		return types.Filter{}, err
	}
	return f, nil
}

// filtered parses the filter and writes a 400 when it is malformed.
func (s *Server) filtered(w http.ResponseWriter, r *http.Request) (types.Filter, bool) {
	f, err := parseFilter(r)
	if err != nil {
		s.serviceError(w, r, err)
		return types.Filter{}, false
	}
	return f, true
}

// respond writes v or maps err.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, v)
}

// handleLoad returns the load run currently visible to readers.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.CurrentLoad(r.Context())
	s.respond(w, r, run, err)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	counts, err := s.svc.Counts(r.Context(), f)
	s.respond(w, r, counts, err)
}

// handleAverages serves ?field=<numeric field>[&group_by=<category>].
func (s *Server) handleAverages(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	field := types.NumericField(r.URL.Query().Get("field"))
	groupBy := types.CategoryField(r.URL.Query().Get("group_by"))
	rows, err := s.svc.Averages(r.Context(), f, field, groupBy)
	s.respond(w, r, rows, err)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	groupBy := types.CategoryField(r.URL.Query().Get("group_by"))
	if groupBy == types.GroupNone {
		groupBy = types.GroupSector
	}
	rows, err := s.svc.Performance(r.Context(), f, groupBy)
	s.respond(w, r, rows, err)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	category := types.CategoryField(r.PathValue("category"))
	rows, err := s.svc.Distribution(r.Context(), f, category)
	s.respond(w, r, rows, err)
}

func (s *Server) handleMarketDistribution(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	rows, err := s.svc.MarketDistribution(r.Context(), f)
	s.respond(w, r, rows, err)
}

// handleCorrelation serves views/applications points. Bounds not given fall
// back to the defaults individually.
func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}

	def := types.DefaultCorrelationBounds()
	var bounds types.CorrelationBounds
	params := []struct {
		key string
		dst *int64
		def int64
	}{
		{"min_views", &bounds.MinViews, def.MinViews},
		{"max_views", &bounds.MaxViews, def.MaxViews},
		{"min_applications", &bounds.MinApplications, def.MinApplications},
		{"max_applications", &bounds.MaxApplications, def.MaxApplications},
	}
	for _, p := range params {
		v, err := parseQueryInt64(r, p.key, p.def)
		if err != nil {
			s.serviceError(w, r, err)
			return
		}
		*p.dst = v
	}

	points, err := s.svc.Correlation(r.Context(), f, &bounds)
	s.respond(w, r, points, err)
}

func (s *Server) handleMonthlyTrends(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	rows, err := s.svc.MonthlyTrends(r.Context(), f)
	s.respond(w, r, rows, err)
}

func (s *Server) handleRecentPostings(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	limit, err := parseQueryInt(r, "limit", 0)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	rows, err := s.svc.RecentPostings(r.Context(), f, limit)
	s.respond(w, r, rows, err)
}

func (s *Server) handleApplicationRate(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	rate, err := s.svc.ApplicationRate(r.Context(), f)
	s.respond(w, r, map[string]float64{"applications_per_100_views": rate}, err)
}

func (s *Server) handleDataQuality(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filtered(w, r)
	if !ok {
		return
	}
	dq, err := s.svc.DataQuality(r.Context(), f)
	s.respond(w, r, dq, err)
}

func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	values, err := s.svc.Sectors(r.Context())
	s.respond(w, r, values, err)
}

func (s *Server) handleExperienceLevels(w http.ResponseWriter, r *http.Request) {
	values, err := s.svc.ExperienceLevels(r.Context())
	s.respond(w, r, values, err)
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	values, err := s.svc.States(r.Context())
	s.respond(w, r, values, err)
}

func (s *Server) handleSalaryRatingRange(w http.ResponseWriter, r *http.Request) {
	rng, err := s.svc.SalaryRatingRange(r.Context())
	s.respond(w, r, rng, err)
}
