package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-insights/internal/observability"
	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/types"
)

func newCheckCmd(global *globalOptions) *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print stored row counts, the current load and sample rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
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

			out := cmd.OutOrStdout()
			printer := observability.NewPrinter(out)

			counts, err := stack.store.TableCounts(ctx)
			if err != nil {
				return err
			}
			printer.PrintTableCounts(counts)

			run, err := stack.svc.CurrentLoad(ctx)
			if errors.Is(err, query.ErrNoData) {
				_, _ = fmt.Fprintln(out, "No load has completed yet.")
				return nil
			}
			if err != nil {
				return err
			}
			printer.PrintLoadRun(run, false)
			printer.PrintWarnings(run.Warnings)

			dq, err := stack.svc.DataQuality(ctx, types.Filter{})
			if err != nil {
				return err
			}
			printer.PrintDataQuality(dq)

			if sample > 0 {
				batch, err := stack.store.ReadBatch(ctx, sample)
				if err != nil {
					return err
				}
				printer.PrintSample(batch)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&sample, "sample", 5, "Number of rows per table to show (0 to skip)")
	return cmd
}
