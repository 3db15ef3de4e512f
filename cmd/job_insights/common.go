package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-insights/internal/cache"
	"github.com/jonathan/job-insights/internal/config"
	"github.com/jonathan/job-insights/internal/logging"
	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/storage"
)

// resolveConfig merges the config file, the environment and defaults, then
// applies the persistent flags that were set explicitly.
func resolveConfig(cmd *cobra.Command, opts *globalOptions, apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Resolve(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("database-url") {
		cfg.DatabaseURL = opts.databaseURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if apply != nil {
		apply(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*logrus.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
}

// queryStack is an open store with the query service built on it.
type queryStack struct {
	store storage.Store
	svc   *query.Service
	cache cache.Cache
}

// Close releases the cache connection and the store.
func (q *queryStack) Close() {
	if q.cache != nil {
		_ = q.cache.Close()
	}
	_ = q.store.Close()
}

// openQueryStack opens the configured store and, when redis_url is set, a
// result cache in front of it. An unreachable cache is logged and skipped.
func openQueryStack(ctx context.Context, cfg config.Config, log *logrus.Logger) (*queryStack, error) {
	log.WithFields(logrus.Fields{"backend": storage.Backend(cfg.DatabaseURL)}).Debug("opening store")
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	stack := &queryStack{store: store}
	svcOpts := []query.Option{query.WithLogger(log)}
	if cfg.RedisURL != "" {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, ttl)
		if err != nil {
			log.WithError(err).Warn("result cache unavailable, querying the store directly")
		} else {
			stack.cache = redisCache
			svcOpts = append(svcOpts, query.WithCache(redisCache))
		}
	}
	stack.svc = query.NewService(store, svcOpts...)
	return stack, nil
}
