// Package cache provides the optional key/value side-channel used to memoise
// computed statistics. Callers must treat every error as a miss.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache stores serialized values under canonical query keys.
type Cache interface {
	// Get returns ErrMiss when key is absent. Any other error means the
	// cache is unavailable.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
