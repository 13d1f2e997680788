package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	c, err := NewRedisCacheWithConfig(cfg)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheGetMissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	value, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value, got %q", value)
	}
}

func TestRedisCacheSetWithTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := c.Get(ctx, "k"); got != "v" {
		t.Fatalf("unexpected value: %q", got)
	}
	if !mr.Exists("k") || mr.TTL("k") != time.Minute {
		t.Fatalf("expected key with ttl, got ttl %v", mr.TTL("k"))
	}

	mr.FastForward(2 * time.Minute)
	if got, _ := c.Get(ctx, "k"); got != "" {
		t.Fatalf("expected expiry, got %q", got)
	}
}

func TestRedisCacheIncrWindow(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, ttl, err := c.IncrWindow(ctx, "counter", 30*time.Second)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("expected %d, got %d", i, n)
		}
		if ttl <= 0 || ttl > 30*time.Second {
			t.Fatalf("unexpected ttl %v", ttl)
		}
	}

	mr.FastForward(10 * time.Second)
	_, ttl, err := c.IncrWindow(ctx, "counter", 30*time.Second)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if ttl > 20*time.Second {
		t.Fatalf("later hits must not extend the window, ttl %v", ttl)
	}

	mr.FastForward(21 * time.Second)
	n, _, err := c.IncrWindow(ctx, "counter", 30*time.Second)
	if err != nil || n != 1 {
		t.Fatalf("expected a fresh window, got %d err %v", n, err)
	}

	if err := c.Del(ctx, "counter"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if mr.Exists("counter") {
		t.Fatalf("counter should be deleted")
	}
	if _, _, err := c.IncrWindow(ctx, "counter", 0); err == nil {
		t.Fatalf("expected error for empty window")
	}
}

func TestNewRedisCacheWithConfigValidation(t *testing.T) {
	if _, err := NewRedisCacheWithConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := NewRedisCacheWithConfig(DefaultRedisConfig()); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 20; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("zero ttl should stay zero")
	}
}
