package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-insights/internal/config"
	"github.com/jonathan/job-insights/internal/metrics"
	"github.com/jonathan/job-insights/internal/server"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		Long:  `Start an HTTP server that exposes the aggregate views of the last load as JSON under /api/v1/, plus /health and /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := resolveConfig(cmd, global, func(c *config.Config) {
				if cmd.Flags().Changed("port") {
					c.Port = port
				}
			})
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

			metrics.Register()
			srv := server.New(stack.svc, server.Config{
				Port:               cfg.Port,
				RateLimitPerSecond: cfg.RateLimitPerSecond,
				RateLimitBurst:     cfg.RateLimitBurst,
				Logger:             log,
			})
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "Port to listen on")
	return cmd
}
