package cache

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Redis backs the Cache interface with a shared redis client. Failures
// are logged and surfaced as misses; the durable store stays
// authoritative.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn("cache get failed, treating as miss", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := r.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		log.Warn("cache set failed", "key", key, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		log.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

func (r *Redis) Keys(ctx context.Context, prefix string) []string {
	keys, err := r.client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		log.Warn("cache key scan failed", "prefix", prefix, "error", err)
		return nil
	}
	return keys
}
