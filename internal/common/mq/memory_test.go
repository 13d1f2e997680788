package mq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestMemoryQueueDeliversCopies(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	var mu sync.Mutex
	var got []*Message
	handler := func(ctx context.Context, m *Message) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	}
	if err := q.Subscribe(context.Background(), "runs", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := q.Subscribe(context.Background(), "runs", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	msg := NewMessage([]byte("payload"))
	msg.ID = "uid-1"
	if err := q.Publish(context.Background(), "runs", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg.Body[0] = 'X'

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] == got[1] {
		t.Fatalf("subscriptions must not share a message")
	}
	for _, m := range got {
		if string(m.Body) != "payload" || m.ID != "uid-1" {
			t.Fatalf("unexpected message: %+v", m)
		}
	}
}

func TestMemoryQueueRetriesThenDeadLetters(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	var attempts atomic.Int32
	failing := func(ctx context.Context, m *Message) error {
		attempts.Add(1)
		return errors.New("fail")
	}
	var dead atomic.Int32
	opts := &SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "dlq"}
	if err := q.SubscribeWithOptions(context.Background(), "runs", failing, opts); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := q.Subscribe(context.Background(), "dlq", func(ctx context.Context, m *Message) error {
		dead.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("subscribe dlq: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := q.Publish(context.Background(), "runs", &Message{ID: "x", Body: []byte("{}")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return dead.Load() == 1 })
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestMemoryQueueDropsExpired(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	var handled atomic.Int32
	if err := q.Subscribe(context.Background(), "runs", func(ctx context.Context, m *Message) error {
		handled.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	stale := &Message{ID: "old", Timestamp: time.Now().Add(-time.Minute), Expiration: time.Second}
	fresh := &Message{ID: "new", Timestamp: time.Now(), Expiration: time.Minute}
	_ = q.Publish(context.Background(), "runs", stale)
	_ = q.Publish(context.Background(), "runs", fresh)

	waitFor(t, func() bool { return handled.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if handled.Load() != 1 {
		t.Fatalf("expired message was handled")
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Publish(context.Background(), "t", NewMessage(nil)); err == nil {
		t.Fatalf("expected publish on closed queue to fail")
	}
	if err := q.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping on closed queue to fail")
	}
}

func TestTokenLimiter(t *testing.T) {
	l := NewTokenLimiter(2)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if l.Available() != 0 {
		t.Fatalf("expected no free tokens")
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := l.Acquire(cctx); err == nil {
		t.Fatalf("expected acquire to fail when exhausted")
	}

	l.Release()
	l.Release()
	l.Release()
	if l.Available() != 2 {
		t.Fatalf("release must not exceed capacity, got %d", l.Available())
	}
}
