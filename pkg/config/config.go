// Package config resolves the process-wide cache configuration. It is
// read once at startup from the environment and treated as read-only
// afterwards; no component mutates it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/voiceops/multicache/pkg/cachekey"
)

// CacheConfig holds every tunable of the cache engine.
type CacheConfig struct {
	// L1 tier.
	L1Capacity   int           `env:"CACHE_L1_SIZE" envDefault:"500"`
	L1DefaultTTL time.Duration `env:"CACHE_L1_TTL" envDefault:"5m"`

	// L2 tier.
	RedisEndpoints   []string      `env:"REDIS_ENDPOINTS" envSeparator:"," envDefault:"localhost:7001,localhost:7002,localhost:7003"`
	RedisFallback    string        `env:"REDIS_FALLBACK" envDefault:"localhost:7001"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	L2DefaultTTL     time.Duration `env:"CACHE_L2_TTL" envDefault:"1h"`
	OpTimeout        time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"5s"`
	MaxRetries       int           `env:"CACHE_MAX_RETRIES" envDefault:"2"`
	RetryDelay       time.Duration `env:"CACHE_RETRY_DELAY" envDefault:"100ms"`

	// Per-namespace TTLs. Business data is stable, knowledge-base
	// answers even more so.
	BusinessLookupTTL time.Duration `env:"CACHE_BUSINESS_TTL" envDefault:"30m"`
	KnowledgeBaseTTL  time.Duration `env:"CACHE_KNOWLEDGE_TTL" envDefault:"1h"`

	// Serialization.
	CompressionThreshold int `env:"CACHE_COMPRESSION_THRESHOLD" envDefault:"1024"`

	// Circuit breaker.
	BreakerThreshold int           `env:"CACHE_CB_THRESHOLD" envDefault:"5"`
	BreakerWindow    time.Duration `env:"CACHE_CB_WINDOW" envDefault:"1m"`
	BreakerCooldown  time.Duration `env:"CACHE_CB_TIMEOUT" envDefault:"30s"`

	// Warming.
	WarmingEnabled  bool `env:"CACHE_WARMING" envDefault:"true"`
	WarmConcurrency int  `env:"CACHE_WARM_CONCURRENCY" envDefault:"4"`
}

// FromEnv builds a validated configuration from environment variables.
func FromEnv() (*CacheConfig, error) {
	var cfg CacheConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse cache config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no environment overrides
// are present. Useful for tests and examples.
func Default() *CacheConfig {
	return &CacheConfig{
		L1Capacity:           500,
		L1DefaultTTL:         5 * time.Minute,
		RedisEndpoints:       []string{"localhost:7001", "localhost:7002", "localhost:7003"},
		RedisFallback:        "localhost:7001",
		L2DefaultTTL:         time.Hour,
		OpTimeout:            5 * time.Second,
		MaxRetries:           2,
		RetryDelay:           100 * time.Millisecond,
		BusinessLookupTTL:    30 * time.Minute,
		KnowledgeBaseTTL:     time.Hour,
		CompressionThreshold: 1024,
		BreakerThreshold:     5,
		BreakerWindow:        time.Minute,
		BreakerCooldown:      30 * time.Second,
		WarmingEnabled:       true,
		WarmConcurrency:      4,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *CacheConfig) Validate() error {
	if c.L1Capacity <= 0 {
		return fmt.Errorf("l1 capacity must be positive (got %d)", c.L1Capacity)
	}
	if len(c.RedisEndpoints) == 0 {
		return fmt.Errorf("at least one redis endpoint is required")
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive (got %v)", c.OpTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative (got %d)", c.MaxRetries)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker threshold must be positive (got %d)", c.BreakerThreshold)
	}
	if c.WarmConcurrency <= 0 {
		return fmt.Errorf("warm concurrency must be positive (got %d)", c.WarmConcurrency)
	}
	return nil
}

// TTLFor returns the configured TTL for a namespace, falling back to the
// L2 default for namespaces without a dedicated setting.
func (c *CacheConfig) TTLFor(namespace string) time.Duration {
	switch namespace {
	case cachekey.NamespaceBusiness:
		return c.BusinessLookupTTL
	case cachekey.NamespaceKnowledge:
		return c.KnowledgeBaseTTL
	default:
		return c.L2DefaultTTL
	}
}
