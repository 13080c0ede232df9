// Package appconfig loads engine-wide defaults (retry, circuit breaker,
// cache, concurrency, Redis) through viper, modeled on station's
// internal/config/config.go: a single Config struct populated from
// environment variables under a fixed prefix, with defaults set before load.
package appconfig

import (
	"time"

	"github.com/spf13/viper"

	"flowcore/internal/types"
)

const envPrefix = "FLOWCORE"

// Config holds the defaults the orchestrator falls back to when a Task or
// Step doesn't override them.
type Config struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
	MaxDepth       int `mapstructure:"max_depth"`

	RetryMaxAttempts  int           `mapstructure:"retry_max_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMultiplier   float64       `mapstructure:"retry_multiplier"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	RetryJitter       float64       `mapstructure:"retry_jitter"`

	CircuitFailureThreshold  int           `mapstructure:"circuit_failure_threshold"`
	CircuitOpenDuration      time.Duration `mapstructure:"circuit_open_duration"`
	CircuitSuccessThreshold  int           `mapstructure:"circuit_success_threshold"`
	CircuitHalfOpenMaxProbes int           `mapstructure:"circuit_half_open_max_probes"`
	CircuitWindow            time.Duration `mapstructure:"circuit_window"`

	CacheBackend string        `mapstructure:"cache_backend"` // "memory" or "redis"
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheMaxSize int           `mapstructure:"cache_max_size"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// Load builds a Config from defaults overridden by FLOWCORE_* environment
// variables, mirroring station's viper.New()+SetEnvPrefix()+AutomaticEnv()
// pattern.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("max_concurrency", 8)
	v.SetDefault("max_depth", 5)

	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_initial_delay", 100*time.Millisecond)
	v.SetDefault("retry_multiplier", 2.0)
	v.SetDefault("retry_max_delay", 30*time.Second)
	v.SetDefault("retry_jitter", 0.0)

	v.SetDefault("circuit_failure_threshold", 5)
	v.SetDefault("circuit_open_duration", 30*time.Second)
	v.SetDefault("circuit_success_threshold", 2)
	v.SetDefault("circuit_half_open_max_probes", 1)
	v.SetDefault("circuit_window", 60*time.Second)

	v.SetDefault("cache_backend", "memory")
	v.SetDefault("cache_ttl", 60*time.Second)
	v.SetDefault("cache_max_size", 1000)

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("http_timeout", 30*time.Second)

	cfg := &Config{
		MaxConcurrency:           v.GetInt("max_concurrency"),
		MaxDepth:                 v.GetInt("max_depth"),
		RetryMaxAttempts:         v.GetInt("retry_max_attempts"),
		RetryInitialDelay:        v.GetDuration("retry_initial_delay"),
		RetryMultiplier:          v.GetFloat64("retry_multiplier"),
		RetryMaxDelay:            v.GetDuration("retry_max_delay"),
		RetryJitter:              v.GetFloat64("retry_jitter"),
		CircuitFailureThreshold:  v.GetInt("circuit_failure_threshold"),
		CircuitOpenDuration:      v.GetDuration("circuit_open_duration"),
		CircuitSuccessThreshold:  v.GetInt("circuit_success_threshold"),
		CircuitHalfOpenMaxProbes: v.GetInt("circuit_half_open_max_probes"),
		CircuitWindow:            v.GetDuration("circuit_window"),
		CacheBackend:             v.GetString("cache_backend"),
		CacheTTL:                 v.GetDuration("cache_ttl"),
		CacheMaxSize:             v.GetInt("cache_max_size"),
		RedisAddr:                v.GetString("redis_addr"),
		RedisPassword:            v.GetString("redis_password"),
		RedisDB:                  v.GetInt("redis_db"),
		HTTPTimeout:              v.GetDuration("http_timeout"),
	}
	return cfg, nil
}

// DefaultRetryPolicy builds a types.RetryPolicy from the config defaults.
func (c *Config) DefaultRetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		Multiplier:   c.RetryMultiplier,
		MaxDelay:     c.RetryMaxDelay,
		Jitter:       c.RetryJitter,
	}
}

// DefaultCircuitSpec builds a types.CircuitSpec from the config defaults for
// a given breaker key.
func (c *Config) DefaultCircuitSpec(key string) types.CircuitSpec {
	return types.CircuitSpec{
		Enabled:           true,
		Key:               key,
		FailureThreshold:  c.CircuitFailureThreshold,
		OpenDuration:      c.CircuitOpenDuration,
		SuccessThreshold:  c.CircuitSuccessThreshold,
		HalfOpenMaxProbes: c.CircuitHalfOpenMaxProbes,
		Window:            c.CircuitWindow,
	}
}
