package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (standalone) + Redis (pro).
// Only the rule set is cached; transaction history reads always hit the
// repository so velocity stays strictly read-after-write.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetRuleSet retrieves a cached rule list. Returns nil, nil on miss.
	GetRuleSet(ctx context.Context, key string) ([]*Rule, error)

	// SetRuleSet caches a rule list for scoring calls.
	SetRuleSet(ctx context.Context, key string, rules []*Rule, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RuleSetActiveKey caches the priority-ordered active rule list. It is
// invalidated on every rule mutation so the next scoring call reloads.
const RuleSetActiveKey = "rules:active"

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// RuleSetTTL bounds staleness for nodes that did not observe an
	// invalidation (multi-node deployments).
	RuleSetTTL time.Duration
}
