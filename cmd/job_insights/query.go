package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/types"
)

type queryOptions struct {
	filter          types.Filter
	minSalary       float64
	maxSalary       float64
	limit           int
	field           string
	groupBy         string
	minViews        int64
	maxViews        int64
	minApplications int64
	maxApplications int64
}

// queryOp runs one service operation and returns its JSON-encodable result.
type queryOp func(ctx context.Context, svc *query.Service, opts *queryOptions) (any, error)

var queryOps = map[string]queryOp{
	"load": func(ctx context.Context, svc *query.Service, _ *queryOptions) (any, error) {
		return svc.CurrentLoad(ctx)
	},
	"counts": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.Counts(ctx, o.filter)
	},
	"averages": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.Averages(ctx, o.filter, types.NumericField(o.field), types.CategoryField(o.groupBy))
	},
	"performance": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		group := types.CategoryField(o.groupBy)
		if group == types.GroupNone {
			group = types.GroupSector
		}
		return svc.Performance(ctx, o.filter, group)
	},
	"distribution": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		group := types.CategoryField(o.groupBy)
		if group == types.GroupNone {
			group = types.GroupSector
		}
		return svc.Distribution(ctx, o.filter, group)
	},
	"market-distribution": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.MarketDistribution(ctx, o.filter)
	},
	"correlation": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.Correlation(ctx, o.filter, &types.CorrelationBounds{
			MinViews:        o.minViews,
			MaxViews:        o.maxViews,
			MinApplications: o.minApplications,
			MaxApplications: o.maxApplications,
		})
	},
	"monthly-trends": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.MonthlyTrends(ctx, o.filter)
	},
	"recent-postings": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.RecentPostings(ctx, o.filter, o.limit)
	},
	"application-rate": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		rate, err := svc.ApplicationRate(ctx, o.filter)
		return map[string]float64{"applications_per_100_views": rate}, err
	},
	"data-quality": func(ctx context.Context, svc *query.Service, o *queryOptions) (any, error) {
		return svc.DataQuality(ctx, o.filter)
	},
	"sectors": func(ctx context.Context, svc *query.Service, _ *queryOptions) (any, error) {
		return svc.Sectors(ctx)
	},
	"experience-levels": func(ctx context.Context, svc *query.Service, _ *queryOptions) (any, error) {
		return svc.ExperienceLevels(ctx)
	},
	"states": func(ctx context.Context, svc *query.Service, _ *queryOptions) (any, error) {
		return svc.States(ctx)
	},
	"salary-rating-range": func(ctx context.Context, svc *query.Service, _ *queryOptions) (any, error) {
		return svc.SalaryRatingRange(ctx)
	},
}

func queryOpNames() []string {
	names := make([]string, 0, len(queryOps))
	for name := range queryOps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newQueryCmd(global *globalOptions) *cobra.Command {
	opts := &queryOptions{}
	def := types.DefaultCorrelationBounds()
	cmd := &cobra.Command{
		Use:       "query <op>",
		Short:     "Run one query operation and print JSON",
		Long:      "Runs one aggregate over the current load and prints the result as JSON.\n\nOperations: " + strings.Join(queryOpNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: queryOpNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := queryOps[args[0]]
			if !ok {
				return fmt.Errorf("unknown operation %q (want one of %s)", args[0], strings.Join(queryOpNames(), ", "))
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			flags := cmd.Flags()
			if flags.Changed("min-salary-rating") {
				opts.filter.MinSalaryRating = &opts.minSalary
			}
			if flags.Changed("max-salary-rating") {
				opts.filter.MaxSalaryRating = &opts.maxSalary
			}

			cfg, err := resolveConfig(cmd, global, nil)
			if err != nil {
				return err
			}
			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			stack, err := openQueryStack(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer stack.Close()

			result, err := op(ctx, stack.svc, opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.filter.Sector, "sector", "", "Only postings in this sector")
	flags.StringVar(&opts.filter.ExperienceLevel, "experience-level", "", "Only jobs at this experience level")
	flags.StringVar(&opts.filter.State, "state", "", "Only jobs whose company is in this state")
	flags.Float64Var(&opts.minSalary, "min-salary-rating", 0, "Minimum salary rating")
	flags.Float64Var(&opts.maxSalary, "max-salary-rating", 0, "Maximum salary rating")
	flags.IntVar(&opts.filter.PostedWithinDays, "posted-within-days", 0, "Only postings dated within this many days of the load")
	flags.IntVar(&opts.limit, "limit", query.DefaultRecentLimit, "Rows for recent-postings")
	flags.StringVar(&opts.field, "field", string(types.FieldViews), "Numeric field for averages")
	flags.StringVar(&opts.groupBy, "group-by", "", "Category for averages, performance and distribution")
	flags.Int64Var(&opts.minViews, "min-views", def.MinViews, "Correlation lower views bound")
	flags.Int64Var(&opts.maxViews, "max-views", def.MaxViews, "Correlation upper views bound")
	flags.Int64Var(&opts.minApplications, "min-applications", def.MinApplications, "Correlation lower applications bound")
	flags.Int64Var(&opts.maxApplications, "max-applications", def.MaxApplications, "Correlation upper applications bound")

	return cmd
}
