// Package main provides the job_insights command: load job-listing exports
// into a store and query the aggregates over the CLI or HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	databaseURL string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "job_insights",
		Short:         "Job listing ETL and analytics",
		Long:          "job_insights normalizes company and job posting exports into a relational store and serves aggregate views over it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Config file flag (processed first)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Store URL: postgres://..., sqlite://path or file:path (defaults to DATABASE_URL env var)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (text or json)")

	root.AddCommand(
		newLoadCmd(opts),
		newServeCmd(opts),
		newCheckCmd(opts),
		newQueryCmd(opts),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
