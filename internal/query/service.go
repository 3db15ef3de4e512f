// Package query is the read API over the persisted job-market model. Every
// operation is evaluated against the latest load and never mutates state.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/job-insights/internal/cache"
	"github.com/jonathan/job-insights/internal/logging"
	"github.com/jonathan/job-insights/internal/metrics"
	"github.com/jonathan/job-insights/internal/types"
)

// ErrNoData is returned by every operation before the first successful load.
var ErrNoData = errors.New("no data loaded")

// ErrInvalidArgument wraps rejected filters, fields and limits.
var ErrInvalidArgument = errors.New("invalid argument")

// Recent-postings limits.
const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// DefaultRatingRange is reported when no usable salary ratings exist.
var DefaultRatingRange = types.RatingRange{Min: 1, Max: 5, Defaulted: true}

// Store is the persisted state the service reads.
type Store interface {
	CurrentLoad(ctx context.Context) (*types.LoadRun, error)
	Counts(ctx context.Context, s types.Scope) (types.Counts, error)
	Averages(ctx context.Context, s types.Scope, field types.NumericField, group types.CategoryField) ([]types.GroupAverage, error)
	Performance(ctx context.Context, s types.Scope, group types.CategoryField) ([]types.RawPerformance, error)
	CountBy(ctx context.Context, s types.Scope, group types.CategoryField) ([]types.CategoryCount, error)
	CorrelationPoints(ctx context.Context, s types.Scope) ([]types.CorrelationPoint, error)
	MonthlyBuckets(ctx context.Context, s types.Scope) ([]types.MonthlyBucket, error)
	RecentPostings(ctx context.Context, s types.Scope, limit int) ([]types.RecentPosting, error)
	ApplicationRate(ctx context.Context, s types.Scope) (*float64, error)
	DistinctValues(ctx context.Context, field types.CategoryField) ([]string, error)
	SalaryRatingBounds(ctx context.Context) (lo, hi *float64, err error)
	DataQuality(ctx context.Context, s types.Scope) (types.DataQuality, error)
	// Snapshot runs fn so that every read made with the context it is
	// given sees one committed load.
	Snapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the query operations over a Store.
type Service struct {
	store  Store
	cache  cache.Cache
	cached bool
	log    *logrus.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache stores results in c, keyed by load id.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			_, noop := c.(cache.Noop)
			s.cached = !noop
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService returns a service reading from store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, cache: cache.Noop{}, log: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentLoad returns the load every other operation is evaluated against.
func (s *Service) CurrentLoad(ctx context.Context) (*types.LoadRun, error) {
	run, err := s.store.CurrentLoad(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current load: %w", err)
	}
	if run == nil {
		return nil, ErrNoData
	}
	return run, nil
}

// withCache resolves the current load, then serves op from the cache or
// computes and stores it. The load lookup and compute share one snapshot, so
// a concurrent reload cannot pair one load's key or anchor with another
// load's rows.
func withCache[T any](ctx context.Context, s *Service, op string, args []any, compute func(ctx context.Context, run *types.LoadRun) (T, error)) (T, error) {
	var out T
	err := s.store.Snapshot(ctx, func(ctx context.Context) error {
		run, err := s.CurrentLoad(ctx)
		if err != nil {
			return err
		}

		key := cache.Key(run.ID.String(), op, args...)
		if s.cached {
			hit, err := s.cache.Get(ctx, key, &out)
			if err != nil {
				s.log.WithError(err).WithField("key", key).Warn("cache read failed")
			} else if hit {
				metrics.CacheLookup(true)
				return nil
			}
			metrics.CacheLookup(false)
		}

		computed, err := compute(ctx, run)
		if err != nil {
			return err
		}
		out = computed
		if s.cached {
			if err := s.cache.Set(ctx, key, out); err != nil {
				s.log.WithError(err).WithField("key", key).Warn("cache write failed")
			}
		}
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func checkFilter(f types.Filter) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// filterKey is the canonical cache-key form of f.
func filterKey(f types.Filter) string {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%+v", f)
	}
	return string(data)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundInt(v *float64) int64 {
	if v == nil {
		return 0
	}
	return int64(math.Round(*v))
}

func fraction(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Counts returns jobs, companies and postings matching f.
func (s *Service) Counts(ctx context.Context, f types.Filter) (types.Counts, error) {
	if err := checkFilter(f); err != nil {
		return types.Counts{}, err
	}
	return withCache(ctx, s, "counts", []any{filterKey(f)}, func(ctx context.Context, run *types.LoadRun) (types.Counts, error) {
		return s.store.Counts(ctx, f.Scope(run.LoadedAt))
	})
}

// Averages returns the mean of field, optionally grouped, rounded to two
// decimals. Null values are excluded. Groups are sorted by name; an
// ungrouped call returns one row with an empty group.
func (s *Service) Averages(ctx context.Context, f types.Filter, field types.NumericField, groupBy types.CategoryField) ([]types.GroupAverage, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	if !field.Valid() {
		return nil, invalid("unknown numeric field %q", field)
	}
	if groupBy != types.GroupNone && !groupBy.ValidGroup() {
		return nil, invalid("unknown group field %q", groupBy)
	}

	return withCache(ctx, s, "averages", []any{field, groupBy, filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.GroupAverage, error) {
		rows, err := s.store.Averages(ctx, f.Scope(run.LoadedAt), field, groupBy)
		if err != nil {
			return nil, err
		}
		out := make([]types.GroupAverage, 0, len(rows))
		for _, r := range rows {
			r.Mean = round2(r.Mean)
			out = append(out, r)
		}
		if groupBy == types.GroupNone && len(out) == 0 {
			out = append(out, types.GroupAverage{})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Group < out[j].Group })
		return out, nil
	})
}

// Performance compares average views and applications per group, rounded to
// whole numbers and sorted by their sum ascending.
func (s *Service) Performance(ctx context.Context, f types.Filter, groupBy types.CategoryField) ([]types.GroupPerformance, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	if !groupBy.ValidGroup() {
		return nil, invalid("unknown group field %q", groupBy)
	}

	return withCache(ctx, s, "performance", []any{groupBy, filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.GroupPerformance, error) {
		rows, err := s.store.Performance(ctx, f.Scope(run.LoadedAt), groupBy)
		if err != nil {
			return nil, err
		}
		out := make([]types.GroupPerformance, 0, len(rows))
		for _, r := range rows {
			out = append(out, types.GroupPerformance{
				Group:             r.Group,
				AvgViews:          roundInt(r.AvgViews),
				AvgApplications:   roundInt(r.AvgApplications),
				TotalApplications: r.TotalApplications,
				Postings:          r.Postings,
			})
		}
		sort.SliceStable(out, func(i, j int) bool {
			si, sj := out[i].AvgViews+out[i].AvgApplications, out[j].AvgViews+out[j].AvgApplications
			if si != sj {
				return si < sj
			}
			return out[i].Group < out[j].Group
		})
		return out, nil
	})
}

// Distribution returns each category value's count and share of the
// filtered total, largest first. Percentages are unrounded and sum to 100;
// an empty filtered set yields no rows.
func (s *Service) Distribution(ctx context.Context, f types.Filter, category types.CategoryField) ([]types.DistributionRow, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	if !category.ValidGroup() {
		return nil, invalid("unknown category field %q", category)
	}

	return withCache(ctx, s, "distribution", []any{category, filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.DistributionRow, error) {
		return s.distribution(ctx, f.Scope(run.LoadedAt), category)
	})
}

func (s *Service) distribution(ctx context.Context, scope types.Scope, category types.CategoryField) ([]types.DistributionRow, error) {
	counts, err := s.store.CountBy(ctx, scope, category)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	out := make([]types.DistributionRow, 0, len(counts))
	if total == 0 {
		return out, nil
	}
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		out = append(out, types.DistributionRow{
			Category:   c.Category,
			Count:      c.Count,
			Percentage: float64(c.Count) * 100 / float64(total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// MarketDistribution returns the sector and experience-level distributions
// for the same filter.
func (s *Service) MarketDistribution(ctx context.Context, f types.Filter) ([]types.DimensionDistribution, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	return withCache(ctx, s, "market_distribution", []any{filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.DimensionDistribution, error) {
		scope := f.Scope(run.LoadedAt)
		var out []types.DimensionDistribution
		for _, dim := range []types.CategoryField{types.GroupSector, types.GroupExperience} {
			rows, err := s.distribution(ctx, scope, dim)
			if err != nil {
				return nil, err
			}
			out = append(out, types.DimensionDistribution{Dimension: dim, Rows: rows})
		}
		return out, nil
	})
}

// Correlation returns (views, applications) points inside bounds. Points
// outside the bounds are dropped, never moved onto the boundary. Nil bounds
// select DefaultCorrelationBounds; explicit bounds are used as given, zeros
// included.
func (s *Service) Correlation(ctx context.Context, f types.Filter, bounds *types.CorrelationBounds) ([]types.CorrelationPoint, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	b := types.DefaultCorrelationBounds()
	if bounds != nil {
		b = *bounds
	}
	if err := types.Validator().Struct(b); err != nil {
		return nil, invalid("correlation bounds: %v", err)
	}

	boundsKey := fmt.Sprintf("%d-%d-%d-%d", b.MinViews, b.MaxViews, b.MinApplications, b.MaxApplications)
	return withCache(ctx, s, "correlation", []any{boundsKey, filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.CorrelationPoint, error) {
		points, err := s.store.CorrelationPoints(ctx, f.Scope(run.LoadedAt))
		if err != nil {
			return nil, err
		}
		out := make([]types.CorrelationPoint, 0, len(points))
		for _, p := range points {
			if b.Contains(p) {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

// MonthlyTrends aggregates dated postings per year-month, oldest first.
// Postings without a posted date are left out.
func (s *Service) MonthlyTrends(ctx context.Context, f types.Filter) ([]types.MonthlyTrend, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	return withCache(ctx, s, "monthly_trends", []any{filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.MonthlyTrend, error) {
		buckets, err := s.store.MonthlyBuckets(ctx, f.Scope(run.LoadedAt))
		if err != nil {
			return nil, err
		}
		out := make([]types.MonthlyTrend, 0, len(buckets))
		for _, b := range buckets {
			out = append(out, types.MonthlyTrend{
				Month:           b.Month,
				Postings:        b.Postings,
				AvgViews:        roundInt(b.AvgViews),
				AvgApplications: roundInt(b.AvgApplications),
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Month < out[j].Month })
		return out, nil
	})
}

// RecentPostings returns the n most recently posted postings with their job
// and company. n of 0 means DefaultRecentLimit; larger than MaxRecentLimit
// is capped.
func (s *Service) RecentPostings(ctx context.Context, f types.Filter, n int) ([]types.RecentPosting, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	switch {
	case n < 0:
		return nil, invalid("limit must not be negative, got %d", n)
	case n == 0:
		n = DefaultRecentLimit
	case n > MaxRecentLimit:
		n = MaxRecentLimit
	}

	return withCache(ctx, s, "recent_postings", []any{n, filterKey(f)}, func(ctx context.Context, run *types.LoadRun) ([]types.RecentPosting, error) {
		rows, err := s.store.RecentPostings(ctx, f.Scope(run.LoadedAt), n)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []types.RecentPosting{}
		}
		return rows, nil
	})
}

// ApplicationRate returns the mean applications per 100 views over postings
// with at least one view, rounded to two decimals. It is 0 when no posting
// qualifies.
func (s *Service) ApplicationRate(ctx context.Context, f types.Filter) (float64, error) {
	if err := checkFilter(f); err != nil {
		return 0, err
	}
	return withCache(ctx, s, "application_rate", []any{filterKey(f)}, func(ctx context.Context, run *types.LoadRun) (float64, error) {
		rate, err := s.store.ApplicationRate(ctx, f.Scope(run.LoadedAt))
		if err != nil || rate == nil {
			return 0, err
		}
		return round2(*rate), nil
	})
}

// Sectors lists the sectors present in the current load.
func (s *Service) Sectors(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, types.GroupSector)
}

// ExperienceLevels lists the experience levels present in the current load.
func (s *Service) ExperienceLevels(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, types.GroupExperience)
}

// States lists the company regions present in the current load.
func (s *Service) States(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, types.GroupState)
}

func (s *Service) distinct(ctx context.Context, field types.CategoryField) ([]string, error) {
	return withCache(ctx, s, "distinct", []any{field}, func(ctx context.Context, _ *types.LoadRun) ([]string, error) {
		values, err := s.store.DistinctValues(ctx, field)
		if err != nil {
			return nil, err
		}
		if values == nil {
			values = []string{}
		}
		sort.Strings(values)
		return values, nil
	})
}

// SalaryRatingRange returns the observed salary-rating span, or
// DefaultRatingRange when there are no ratings or they do not span a range.
func (s *Service) SalaryRatingRange(ctx context.Context) (types.RatingRange, error) {
	return withCache(ctx, s, "salary_rating_range", nil, func(ctx context.Context, _ *types.LoadRun) (types.RatingRange, error) {
		lo, hi, err := s.store.SalaryRatingBounds(ctx)
		if err != nil {
			return types.RatingRange{}, err
		}
		if lo == nil || hi == nil || *lo >= *hi {
			return DefaultRatingRange, nil
		}
		return types.RatingRange{Min: *lo, Max: *hi}, nil
	})
}

// DataQuality reports how many filtered rows were degraded by normalization.
func (s *Service) DataQuality(ctx context.Context, f types.Filter) (types.DataQuality, error) {
	if err := checkFilter(f); err != nil {
		return types.DataQuality{}, err
	}
	return withCache(ctx, s, "data_quality", []any{filterKey(f)}, func(ctx context.Context, run *types.LoadRun) (types.DataQuality, error) {
		dq, err := s.store.DataQuality(ctx, f.Scope(run.LoadedAt))
		if err != nil {
			return types.DataQuality{}, err
		}
		dq.UnlinkedFraction = fraction(dq.UnlinkedJobs, dq.TotalJobs)
		dq.UndatedFraction = fraction(dq.UndatedPostings, dq.TotalPostings)
		dq.MissingApplicationsFraction = fraction(dq.MissingApplications, dq.TotalPostings)
		return dq, nil
	})
}
