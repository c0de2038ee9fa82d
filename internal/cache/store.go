package cache

import (
	"context"
	"time"
)

// Store is a shared counter store. IncrementWithTTL must be atomic: concurrent callers
// observe distinct counts, and the expiry is applied only when the key is created.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
