package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"dsajudge/internal/common/cache"
	"dsajudge/internal/common/mq"
	appErr "dsajudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

func newRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	c, err := cache.NewRedisCacheWithConfig(cfg)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestDraftRoundTrip(t *testing.T) {
	c, mr := newRedis(t)
	repo := NewDraftRepository(c, time.Hour, 0)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "alice", "two-sum"); !appErr.Is(err, appErr.DraftNotFound) {
		t.Fatalf("expected DraftNotFound, got %v", err)
	}
	saved, err := repo.Save(ctx, "alice", "two-sum", "function twoSum() {}")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Get(ctx, "alice", "two-sum")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != saved.Code || got.Owner != "alice" || got.ProblemID != "two-sum" {
		t.Fatalf("unexpected draft %#v", got)
	}

	key := DraftKey("alice", "two-sum")
	if key != "sandbox:draft:alice:two-sum" {
		t.Fatalf("unexpected key %q", key)
	}
	ttl := mr.TTL(key)
	if ttl <= 0 || ttl > time.Hour || ttl < 54*time.Minute {
		t.Fatalf("ttl outside jitter range: %v", ttl)
	}

	if _, err := repo.Get(ctx, "bob", "two-sum"); !appErr.Is(err, appErr.DraftNotFound) {
		t.Fatalf("drafts must be scoped by owner, got %v", err)
	}

	if err := repo.Delete(ctx, "alice", "two-sum"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "alice", "two-sum"); !appErr.Is(err, appErr.DraftNotFound) {
		t.Fatalf("expected DraftNotFound after delete, got %v", err)
	}
}

func TestDraftExpires(t *testing.T) {
	c, mr := newRedis(t)
	repo := NewDraftRepository(c, time.Minute, 0)
	ctx := context.Background()
	if _, err := repo.Save(ctx, "alice", "p", "x"); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.Get(ctx, "alice", "p"); !appErr.Is(err, appErr.DraftNotFound) {
		t.Fatalf("expected expired draft, got %v", err)
	}
}

func TestDraftValidation(t *testing.T) {
	c, _ := newRedis(t)
	repo := NewDraftRepository(c, 0, 8)
	ctx := context.Background()

	if _, err := repo.Save(ctx, "alice", "p", strings.Repeat("x", 9)); !appErr.Is(err, appErr.DraftTooLarge) {
		t.Fatalf("expected DraftTooLarge, got %v", err)
	}
	if _, err := repo.Save(ctx, "", "p", "x"); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if _, err := repo.Save(ctx, "a:b", "p", "x"); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for ':' in owner, got %v", err)
	}
}

func TestRunQuota(t *testing.T) {
	c, mr := newRedis(t)
	quota := NewRunQuota(c, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := quota.Allow(ctx, "alice"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	err := quota.Allow(ctx, "alice")
	if !appErr.Is(err, appErr.TooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if secs, ok := appErr.GetError(err).Details[appErr.DetailRetryAfterSeconds].(int64); !ok || secs < 1 || secs > 60 {
		t.Fatalf("unexpected retry hint: %v", appErr.GetError(err).Details)
	}
	if err := quota.Allow(ctx, "bob"); err != nil {
		t.Fatalf("quota must be per owner: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := quota.Allow(ctx, "alice"); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}

	var disabled *RunQuota
	if err := disabled.Allow(ctx, "alice"); err != nil {
		t.Fatalf("nil quota must allow: %v", err)
	}
}

func TestPublishRunFinished(t *testing.T) {
	queue := mq.NewMemoryQueue(4)
	defer queue.Close()
	got := make(chan *mq.Message, 1)
	ctx := context.Background()
	if err := queue.Subscribe(ctx, "sandbox.run.events", func(_ context.Context, m *mq.Message) error {
		got <- m
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := queue.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	pub := NewMQRunEventPublisher(queue, "sandbox.run.events")
	if err := pub.PublishRunFinished(ctx, RunEvent{UID: "r1", ProblemID: "add", Total: 2, Passed: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case m := <-got:
		var event RunEvent
		if err := json.Unmarshal(m.Body, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m.ID != "r1" || event.Passed != 1 || event.CreatedAt == 0 {
			t.Fatalf("unexpected event %#v (id %q)", event, m.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	if err := pub.PublishRunFinished(ctx, RunEvent{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}
