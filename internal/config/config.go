// Package config loads and validates the run configuration for one
// export or import: source/target connections, pool and resilience
// tuning, the rate-controller preset, and logging — layered from a
// YAML profile file plus environment variables, the way the teacher's
// internal/config.Config is loaded.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
	"github.com/lucernlabs/recordflow/internal/pool"
	"github.com/lucernlabs/recordflow/internal/ratecontrol"
	"github.com/lucernlabs/recordflow/pkg/logger"
)

// Config is the top-level run configuration.
type Config struct {
	Profile    string           `mapstructure:"profile"`
	Source     ConnectionConfig `mapstructure:"source"`
	Target     ConnectionConfig `mapstructure:"target"`
	Pool       PoolConfig       `mapstructure:"pool"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Bulk       BulkConfig       `mapstructure:"bulk"`
	Log        LogConfig        `mapstructure:"log"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	TokenCache string           `mapstructure:"token_cache_dir"`
}

// ConnectionConfig names one organization endpoint. AuthKind selects
// which connsource.Source implementation to build; CredentialRef is
// opaque to this package — it is handed to the out-of-core auth
// collaborator (device-code, managed identity, client-secret) per
// spec §1 Out of scope.
type ConnectionConfig struct {
	Name          string `mapstructure:"name"`
	AuthKind      string `mapstructure:"auth_kind"`
	ConnectionURL string `mapstructure:"connection_url"`
	CredentialRef string `mapstructure:"credential_ref"`
	MaxPoolSize   int    `mapstructure:"max_pool_size"`
}

// PoolConfig maps directly onto pool.Config.
type PoolConfig struct {
	MaxIdleTime        time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime        time.Duration `mapstructure:"max_lifetime"`
	ValidationInterval time.Duration `mapstructure:"validation_interval"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	Strategy           string        `mapstructure:"strategy"`
}

// ToPoolConfig converts to pool.Config, resolving the Strategy name.
func (p PoolConfig) ToPoolConfig() pool.Config {
	return pool.Config{
		MaxIdleTime:        p.MaxIdleTime,
		MaxLifetime:        p.MaxLifetime,
		ValidationInterval: p.ValidationInterval,
		Strategy:           strategyFromName(p.Strategy),
		AcquireTimeout:     p.AcquireTimeout,
	}
}

func strategyFromName(name string) pool.Strategy {
	switch strings.ToLower(name) {
	case "least_connections":
		return pool.LeastConnections
	case "throttle_aware":
		return pool.ThrottleAware
	default:
		return pool.RoundRobin
	}
}

// RateLimitConfig selects a ratecontrol preset and overrides.
type RateLimitConfig struct {
	Preset                         string        `mapstructure:"preset"`
	DecreaseFactor                 float64       `mapstructure:"decrease_factor"`
	ConsecutiveSuccessesToIncrease int           `mapstructure:"consecutive_successes_to_increase"`
	MinIncreaseInterval            time.Duration `mapstructure:"min_increase_interval"`
	MaxRetryAfterTolerance         time.Duration `mapstructure:"max_retry_after_tolerance"`
}

// ToControllerOptions converts to ratecontrol.Options.
func (r RateLimitConfig) ToControllerOptions() ratecontrol.Options {
	opts := ratecontrol.DefaultOptions()
	switch strings.ToLower(r.Preset) {
	case "conservative":
		opts.Preset = ratecontrol.Conservative
	case "aggressive":
		opts.Preset = ratecontrol.Aggressive
	case "balanced", "":
		opts.Preset = ratecontrol.Balanced
	}
	if r.DecreaseFactor > 0 {
		opts.DecreaseFactor = r.DecreaseFactor
	}
	if r.ConsecutiveSuccessesToIncrease > 0 {
		opts.ConsecutiveSuccessesToIncrease = r.ConsecutiveSuccessesToIncrease
	}
	if r.MinIncreaseInterval > 0 {
		opts.MinIncreaseInterval = r.MinIncreaseInterval
	}
	if r.MaxRetryAfterTolerance > 0 {
		opts.MaxRetryAfterTolerance = r.MaxRetryAfterTolerance
	}
	return opts
}

// BulkConfig tunes the executor's default write options.
type BulkConfig struct {
	BatchSize          int    `mapstructure:"batch_size"`
	ContinueOnError    bool   `mapstructure:"continue_on_error"`
	BypassCustomLogic  string `mapstructure:"bypass_custom_logic"`
	SuppressDuplicates bool   `mapstructure:"suppress_duplicate_detection"`
	Tag                string `mapstructure:"tag"`
	MaxParallelBatches int    `mapstructure:"max_parallel_batches"`
	SkipMissingColumns bool   `mapstructure:"skip_missing_columns"`
	MaxParallelEntities int   `mapstructure:"max_parallel_entities"`
}

// ToBatchOptions converts to bulkclient.BatchOptions, resolving the
// BypassCustomLogic string ("none"|"sync"|"async"|"all") to the
// bit-flag BypassMode, per §6/§9's "bypass-options variant".
func (b BulkConfig) ToBatchOptions() bulkclient.BatchOptions {
	var bypass bulkclient.BypassMode
	switch strings.ToLower(b.BypassCustomLogic) {
	case "sync":
		bypass = bulkclient.BypassSync
	case "async":
		bypass = bulkclient.BypassAsync
	case "all":
		bypass = bulkclient.BypassAll
	default:
		bypass = bulkclient.BypassNone
	}
	return bulkclient.BatchOptions{
		Bypass:                     bypass,
		SuppressDuplicateDetection: b.SuppressDuplicates,
		Tag:                        b.Tag,
	}
}

// LogConfig mirrors pkg/logger.Config's mapstructure shape.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerConfig converts to pkg/logger.Config.
func (l LogConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		Output:     l.Output,
		Filename:   l.Filename,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
		Compress:   l.Compress,
	}
}

// ArchiveConfig points at the on-disk schema archive (§6).
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from configPath (if non-empty) layered
// under defaults and environment-variable overrides, the way the
// teacher's LoadConfig does, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetDefault("profile", "balanced")

	v.AutomaticEnv()
	v.SetEnvPrefix("RECORDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	preset, err := loadProfilePreset(strings.ToLower(v.GetString("profile")))
	if err != nil {
		return nil, err
	}
	setDefaults(v, preset)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults seeds viper's lowest-priority layer with the active
// profile's recommended pool/rate-limit/bulk tuning, plus the
// connection and logging defaults every profile shares. Anything the
// config file or a RECORDFLOW_* environment variable sets explicitly
// still overrides these.
func setDefaults(v *viper.Viper, preset profilePreset) {
	v.SetDefault("source.auth_kind", "connection_string")
	v.SetDefault("source.max_pool_size", 8)
	v.SetDefault("target.auth_kind", "connection_string")
	v.SetDefault("target.max_pool_size", 8)

	v.SetDefault("pool.max_idle_time", preset.Pool.MaxIdleTime)
	v.SetDefault("pool.max_lifetime", preset.Pool.MaxLifetime)
	v.SetDefault("pool.validation_interval", preset.Pool.ValidationInterval)
	v.SetDefault("pool.acquire_timeout", "30s")
	v.SetDefault("pool.strategy", preset.Pool.Strategy)

	v.SetDefault("rate_limit.preset", preset.RateLimit.Preset)
	v.SetDefault("rate_limit.decrease_factor", preset.RateLimit.DecreaseFactor)
	v.SetDefault("rate_limit.consecutive_successes_to_increase", preset.RateLimit.ConsecutiveSuccessesToIncrease)
	v.SetDefault("rate_limit.min_increase_interval", "2s")
	v.SetDefault("rate_limit.max_retry_after_tolerance", "60s")

	v.SetDefault("bulk.batch_size", preset.Bulk.BatchSize)
	v.SetDefault("bulk.continue_on_error", true)
	v.SetDefault("bulk.bypass_custom_logic", "none")
	v.SetDefault("bulk.suppress_duplicate_detection", false)
	v.SetDefault("bulk.tag", "recordflow")
	v.SetDefault("bulk.max_parallel_entities", 4)
	v.SetDefault("bulk.max_parallel_batches", preset.Bulk.MaxParallelBatches)
	v.SetDefault("bulk.skip_missing_columns", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

// Validate enforces the Configuration-kind invariants called out in
// spec §7/§8: batch size within the server's bulk limit, both
// connections named, a positive pool ceiling.
func (c *Config) Validate() error {
	if c.Source.Name == "" {
		return fmt.Errorf("config: source.name is required")
	}
	if c.Target.Name == "" {
		return fmt.Errorf("config: target.name is required")
	}
	if c.Source.Name == c.Target.Name {
		return fmt.Errorf("config: source and target must have distinct names")
	}
	if c.Bulk.BatchSize <= 0 || c.Bulk.BatchSize > 1000 {
		return fmt.Errorf("config: bulk.batch_size must be in (0, 1000], got %d", c.Bulk.BatchSize)
	}
	if c.Archive.Path == "" {
		return fmt.Errorf("config: archive.path is required")
	}
	if c.Source.MaxPoolSize <= 0 {
		return fmt.Errorf("config: source.max_pool_size must be positive")
	}
	if c.Target.MaxPoolSize <= 0 {
		return fmt.Errorf("config: target.max_pool_size must be positive")
	}
	return nil
}
