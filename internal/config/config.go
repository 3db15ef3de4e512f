// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/job-insights/internal/parsing"
	"github.com/jonathan/job-insights/internal/schemas"
	"github.com/jonathan/job-insights/internal/types"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Store
	DatabaseURL string `json:"database_url,omitempty" validate:"omitempty,startswith=postgres://|startswith=postgresql://|startswith=sqlite://|startswith=file:"`

	// Sources
	CompaniesPath string `json:"companies_path,omitempty"` // Company directory file
	PostingsPath  string `json:"postings_path,omitempty"`  // Job posting file
	JobsPath      string `json:"jobs_path,omitempty"`      // Optional job attribute file
	RulesPath     string `json:"rules_path,omitempty"`     // Category rule file; embedded defaults when empty
	LockPath      string `json:"lock_path,omitempty"`      // Load lock file

	// Limits
	MaxRows   int    `json:"max_rows,omitempty" validate:"gte=0"`
	Delimiter string `json:"delimiter,omitempty" validate:"omitempty,len=1"`

	// Normalization
	ApplicationsPolicy string `json:"applications_policy,omitempty"` // "null" or "zero"

	// Cache
	RedisURL        string `json:"redis_url,omitempty" validate:"omitempty,startswith=redis://|startswith=rediss://"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds,omitempty" validate:"gte=0"`

	// Logging
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=text json"`

	// HTTP
	Port               int     `json:"port,omitempty" validate:"gte=0,lte=65535"`
	RateLimitPerSecond float64 `json:"rate_limit_per_second,omitempty" validate:"gte=0"`
	RateLimitBurst     int     `json:"rate_limit_burst,omitempty" validate:"gte=0"`
}

// Default values.
const (
	DefaultDatabaseURL        = "sqlite://job_insights.db"
	DefaultMaxRows            = 200000
	DefaultDelimiter          = ","
	DefaultCacheTTLSeconds    = 300
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultPort               = 8080
	DefaultRateLimitPerSecond = 20
	DefaultRateLimitBurst     = 40
)

// Defaults returns the configuration used when neither the file, the
// environment nor flags set a value.
func Defaults() Config {
	return Config{
		DatabaseURL:        DefaultDatabaseURL,
		LockPath:           filepath.Join(os.TempDir(), "job_insights.lock"),
		MaxRows:            DefaultMaxRows,
		Delimiter:          DefaultDelimiter,
		ApplicationsPolicy: string(parsing.MissingAsNull),
		CacheTTLSeconds:    DefaultCacheTTLSeconds,
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		Port:               DefaultPort,
		RateLimitPerSecond: DefaultRateLimitPerSecond,
		RateLimitBurst:     DefaultRateLimitBurst,
	}
}

// LoadConfig loads configuration from a JSON file.
// The file is checked against the config JSON Schema before it is decoded.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}
	if err := schemas.ValidateConfig(data); err != nil {
		return nil, fmt.Errorf("config file %s does not match schema: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from the environment. Empty variables are ignored.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &c.DatabaseURL},
		{"REDIS_URL", &c.RedisURL},
		{"JOB_INSIGHTS_RULES", &c.RulesPath},
		{"LOG_LEVEL", &c.LogLevel},
		{"LOG_FORMAT", &c.LogFormat},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := types.Validator().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if _, err := parsing.ParseMissingPolicy(c.ApplicationsPolicy); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.RulesPath != "" {
		if _, err := os.Stat(c.RulesPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: rules file not found: %s", c.RulesPath)
		}
	}

	if c.CompaniesPath != "" && c.CompaniesPath == c.PostingsPath {
		return fmt.Errorf("config error: 'companies_path' and 'postings_path' must differ")
	}

	return nil
}

// MissingPolicy returns the parsed applications policy.
func (c *Config) MissingPolicy() parsing.MissingPolicy {
	p, err := parsing.ParseMissingPolicy(c.ApplicationsPolicy)
	if err != nil {
		return parsing.MissingAsNull
	}
	return p
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	strs := []struct {
		dst *string
		def string
	}{
		{&result.DatabaseURL, defaults.DatabaseURL},
		{&result.CompaniesPath, defaults.CompaniesPath},
		{&result.PostingsPath, defaults.PostingsPath},
		{&result.JobsPath, defaults.JobsPath},
		{&result.RulesPath, defaults.RulesPath},
		{&result.LockPath, defaults.LockPath},
		{&result.Delimiter, defaults.Delimiter},
		{&result.ApplicationsPolicy, defaults.ApplicationsPolicy},
		{&result.RedisURL, defaults.RedisURL},
		{&result.LogLevel, defaults.LogLevel},
		{&result.LogFormat, defaults.LogFormat},
	}
	for _, s := range strs {
		if *s.dst == "" {
			*s.dst = s.def
		}
	}

	// Numeric fields: use default if zero
	if result.MaxRows == 0 {
		result.MaxRows = defaults.MaxRows
	}
	if result.CacheTTLSeconds == 0 {
		result.CacheTTLSeconds = defaults.CacheTTLSeconds
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.RateLimitPerSecond == 0 {
		result.RateLimitPerSecond = defaults.RateLimitPerSecond
	}
	if result.RateLimitBurst == 0 {
		result.RateLimitBurst = defaults.RateLimitBurst
	}

	return result
}

// Resolve loads the optional config file, applies environment overrides and
// fills defaults. Flags are applied by the caller afterwards.
func Resolve(path string) (Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	merged := cfg.MergeWithDefaults(Defaults())
	return merged, nil
}
