package main

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-insights/internal/config"
	"github.com/jonathan/job-insights/internal/ingestion"
	"github.com/jonathan/job-insights/internal/observability"
	"github.com/jonathan/job-insights/internal/pipeline"
	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/storage"
	"github.com/jonathan/job-insights/internal/types"
)

type loadOptions struct {
	companies  string
	postings   string
	jobs       string
	rules      string
	lockPath   string
	delimiter  string
	maxRows    int
	appsPolicy string
	dryRun     bool
	noLock     bool
}

func newLoadCmd(global *globalOptions) *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Normalize the source files and replace the stored data",
		Long: `Reads the company and job posting files, normalizes every record, links jobs to
companies and replaces the stored tables in one transaction. A failed load leaves
the previous data untouched.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.companies, "companies", "c", "", "Path to the company directory file")
	cmd.Flags().StringVarP(&opts.postings, "postings", "p", "", "Path to the job posting file")
	cmd.Flags().StringVarP(&opts.jobs, "jobs", "j", "", "Path to the optional job attribute file")
	cmd.Flags().StringVar(&opts.rules, "rules", "", "Path to a category rules YAML file (defaults to the embedded rules)")
	cmd.Flags().StringVar(&opts.lockPath, "lock", "", "Path to the load lock file")
	cmd.Flags().BoolVar(&opts.noLock, "no-lock", false, "Skip the process-level load lock")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", "", "Field delimiter (default \",\")")
	cmd.Flags().IntVar(&opts.maxRows, "max-rows", 0, "Maximum data rows per file")
	cmd.Flags().StringVar(&opts.appsPolicy, "applications-policy", "", "Unparseable applications count: null or zero")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Normalize and validate without writing")

	return cmd
}

func runLoad(cmd *cobra.Command, global *globalOptions, opts *loadOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := resolveConfig(cmd, global, func(c *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("companies") {
			c.CompaniesPath = opts.companies
		}
		if flags.Changed("postings") {
			c.PostingsPath = opts.postings
		}
		if flags.Changed("jobs") {
			c.JobsPath = opts.jobs
		}
		if flags.Changed("rules") {
			c.RulesPath = opts.rules
		}
		if flags.Changed("lock") {
			c.LockPath = opts.lockPath
		}
		if flags.Changed("delimiter") {
			c.Delimiter = opts.delimiter
		}
		if flags.Changed("max-rows") {
			c.MaxRows = opts.maxRows
		}
		if flags.Changed("applications-policy") {
			c.ApplicationsPolicy = opts.appsPolicy
		}
	})
	if err != nil {
		return err
	}

	// Validate required fields after merging
	if cfg.CompaniesPath == "" || cfg.PostingsPath == "" {
		return fmt.Errorf("both --companies and --postings must be provided (via flags or config file)")
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return err
	}
	categories, err := rules.CategorySet()
	if err != nil {
		return fmt.Errorf("failed to compile category rules: %w", err)
	}

	delimiter, _ := utf8.DecodeRuneInString(cfg.Delimiter)
	lockPath := cfg.LockPath
	if opts.noLock {
		lockPath = ""
	}

	var store storage.Store
	if !opts.dryRun {
		store, err = storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()
	}

	out := cmd.OutOrStdout()
	runOpts := pipeline.RunOptions{
		CompaniesPath: cfg.CompaniesPath,
		PostingsPath:  cfg.PostingsPath,
		JobsPath:      cfg.JobsPath,
		LockPath:      lockPath,
		Ingest:        ingestion.Options{Delimiter: delimiter, MaxRows: cfg.MaxRows},
		Policy:        cfg.MissingPolicy(),
		Categories:    categories,
		DryRun:        opts.dryRun,
		Logger:        log,
		Out:           out,
	}

	var writer pipeline.Writer
	if store != nil {
		writer = store
	}
	result, err := pipeline.Run(ctx, writer, runOpts)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(out)
	printer.PrintSources(result.Sources)
	printer.PrintLoadRun(&result.Run, result.DryRun)
	printer.PrintWarnings(result.Run.Warnings)

	if store != nil {
		dq, err := query.NewService(store, query.WithLogger(log)).DataQuality(ctx, types.Filter{})
		if err != nil {
			return fmt.Errorf("failed to read data quality: %w", err)
		}
		printer.PrintDataQuality(dq)
	}
	return nil
}
