package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "k", "v", time.Minute)
	if got, ok := c.Get(ctx, "k"); !ok || got != "v" {
		t.Fatalf("Get = (%q, %v), want (v, true)", got, ok)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("missing key should not be found")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "k", "v", -time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expired entry should read as a miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be evicted on read", c.Len())
	}
}

func TestMemoryKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "job:a", "1", time.Minute)
	c.Set(ctx, "job:b", "2", time.Minute)
	c.Set(ctx, "job:stale", "3", -time.Second)
	c.Set(ctx, "other", "4", time.Minute)

	keys := c.Keys(ctx, "job:")
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want the two live job entries", keys)
	}
	for _, key := range keys {
		if key != "job:a" && key != "job:b" {
			t.Errorf("unexpected key %q", key)
		}
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "a", "1", time.Minute)
	c.Set(ctx, "b", "2", time.Minute)
	c.Delete(ctx, "a", "b")

	if c.Len() != 0 {
		t.Errorf("Len() = %d after deleting both keys, want 0", c.Len())
	}
}
