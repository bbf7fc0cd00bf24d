// Package runtime tracks live engine instances. Each instance refreshes
// a TTL key under a shared prefix; counting the keys still alive gives
// the active instance count without a registry service.
package runtime

import (
	"context"
	"fmt"
	"os"
	"time"

	"ipatlas/internal/cache"
)

const (
	instanceKeyPrefix = "ipatlas:instance:"

	HeartbeatInterval = 15 * time.Second
	HeartbeatTTL      = 30 * time.Second
)

// Registry is one instance's view of the heartbeat keyspace.
type Registry struct {
	cache cache.Cache
	key   string
}

func NewRegistry(c cache.Cache) *Registry {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
	return &Registry{cache: c, key: instanceKeyPrefix + id}
}

func (r *Registry) beat(ctx context.Context, ttl time.Duration) {
	r.cache.Set(ctx, r.key, "alive", ttl)
}

func (r *Registry) run(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drop our key promptly so counts do not wait out the TTL.
			r.cache.Delete(context.Background(), r.key)
			return
		case <-ticker.C:
			r.beat(ctx, ttl)
		}
	}
}

// Launch writes the first heartbeat synchronously, then keeps it
// refreshed in the background until the parent context or the returned
// cancel stops it.
func (r *Registry) Launch(parent context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	r.beat(ctx, HeartbeatTTL)
	go r.run(ctx, HeartbeatInterval, HeartbeatTTL)
	return cancel
}

// ActiveInstances counts the heartbeat keys that have not expired.
func (r *Registry) ActiveInstances(ctx context.Context) int {
	return len(r.cache.Keys(ctx, instanceKeyPrefix))
}
