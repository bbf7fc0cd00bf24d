// Package cache wraps the engine's cache collaborator. The cache is a
// pure accelerator: every value stored here can be recomputed from the
// durable store, so implementations swallow infrastructure errors and
// report them as misses instead of failing the operation.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores a value with an expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string)
	// Keys lists the live keys under a prefix. Failures surface as an
	// empty list.
	Keys(ctx context.Context, prefix string) []string
}
