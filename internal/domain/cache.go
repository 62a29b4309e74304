package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetBaseline retrieves a cached entity amount baseline.
	GetBaseline(ctx context.Context, tenantID string, key string) (*AmountBaseline, error)

	// SetBaseline caches an entity amount baseline for the scorer.
	SetBaseline(ctx context.Context, tenantID string, key string, b *AmountBaseline, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for duplicate-document-number detection windows.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AmountBaseline is the cached statistical baseline used by the
// amount-anomaly scorer, keyed by entity and document type.
type AmountBaseline struct {
	Count  int64   `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
