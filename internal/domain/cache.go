package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache caches normalized asset prices for cross-process consumers.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price *big.Int, ts time.Time) error
	// GetPrice returns ErrNotFound when the asset has no cached price.
	GetPrice(ctx context.Context, asset string) (*big.Int, time.Time, error)
}

// SignalBus is a publish/subscribe channel for engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads that is closed when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed single-flight locks so only one replica
// runs a scan pass at a time.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when
	// another holder owns the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter provides distributed rate limiting for the admin API.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a sliding
	// window of limit requests per window. Allowed requests are counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter writes immutable objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
