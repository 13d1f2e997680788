package mq

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process MessageQueue. Every subscription on a topic
// receives its own copy of each published message.
type MemoryQueue struct {
	bufferSize int

	mu      sync.Mutex
	subs    map[string][]*memorySubscription
	started bool
	closed  bool
}

type memorySubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	ch     chan *Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMemoryQueue creates an in-memory queue whose subscriptions buffer up to bufferSize messages.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &MemoryQueue{
		bufferSize: bufferSize,
		subs:       make(map[string][]*memorySubscription),
	}
}

// Publish copies message to every subscription of topic.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if err := validatePublish(topic, message); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errClosed()
	}
	subs := append([]*memorySubscription(nil), q.subs[topic]...)
	q.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- message.Clone():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe subscribes to a topic with default options.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	return q.SubscribeWithOptions(ctx, topic, handler, nil)
}

// SubscribeWithOptions subscribes to a topic with custom options.
func (q *MemoryQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if err := validateSubscribe(topic, handler); err != nil {
		return err
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()

	sub := &memorySubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
		ch:      make(chan *Message, q.bufferSize),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errClosed()
	}
	q.subs[topic] = append(q.subs[topic], sub)
	if q.started {
		q.startSubscription(sub)
	}
	return nil
}

// Start begins dispatching buffered and future messages.
func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errClosed()
	}
	if q.started {
		return nil
	}
	for _, subs := range q.subs {
		for _, sub := range subs {
			q.startSubscription(sub)
		}
	}
	q.started = true
	return nil
}

// Stop stops dispatching and waits for in-flight handlers.
func (q *MemoryQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, subs := range q.subs {
		for _, sub := range subs {
			if sub.cancel != nil {
				sub.cancel()
			}
		}
	}
	for _, subs := range q.subs {
		for _, sub := range subs {
			sub.wg.Wait()
			sub.cancel = nil
		}
	}
	q.started = false
	return nil
}

// Ping always succeeds while the queue is open.
func (q *MemoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errClosed()
	}
	return nil
}

// Close stops consumers and rejects further use.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	return q.Stop()
}

func (q *MemoryQueue) startSubscription(sub *memorySubscription) {
	if sub.baseCtx == nil {
		sub.baseCtx = context.Background()
	}
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)
	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for {
				var m *Message
				select {
				case <-sub.ctx.Done():
					return
				case m = <-sub.ch:
				}
				if sub.opts.Limiter != nil {
					if err := sub.opts.Limiter.Acquire(sub.ctx); err != nil {
						return
					}
				}
				deliver(sub.ctx, sub.opts, sub.handler, m, q)
				if sub.opts.Limiter != nil {
					sub.opts.Limiter.Release()
				}
			}
		}()
	}
}
