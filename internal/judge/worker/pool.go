package worker

import (
	"context"
	"encoding/json"
	"sync"

	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
)

// Transport carries requests to workers and replies back.
type Transport interface {
	Send(ctx context.Context, req model.RunRequest) error
	// Replies delivers every reply exactly once; it is closed when the transport shuts down.
	Replies() <-chan model.RunReply
}

// Pool runs a fixed number of workers in-process behind a bounded request channel.
type Pool struct {
	worker   *Worker
	size     int
	requests chan model.RunRequest
	replies  chan model.RunReply

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

var _ Transport = (*Pool)(nil)

// NewPool creates a pool of size workers with room for queueSize waiting requests.
func NewPool(w *Worker, size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		worker:   w,
		size:     size,
		requests: make(chan model.RunRequest, queueSize),
		replies:  make(chan model.RunReply, queueSize+size),
	}
}

// Start launches the workers. They stop when ctx is done or the pool is closed.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-p.requests:
			if !ok {
				return
			}
			reply := p.worker.Handle(ctx, req)
			select {
			case p.replies <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Send enqueues a copy of req, waiting for room until ctx is done.
func (p *Pool) Send(ctx context.Context, req model.RunRequest) error {
	clone, err := cloneRequest(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "encode run request failed")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return appErr.New(appErr.WorkerUnavailable).WithMessage("worker pool is closed")
	}
	select {
	case p.requests <- clone:
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.WorkerUnavailable, "worker pool is full")
	}
}

// Replies returns the channel all workers publish to.
func (p *Pool) Replies() <-chan model.RunReply {
	return p.replies
}

// Close stops accepting requests, drains the queue and closes Replies.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.requests)
	started := p.started
	p.mu.Unlock()

	if started {
		p.wg.Wait()
	}
	close(p.replies)
}

// cloneRequest copies req through its wire form so no memory is shared with the caller.
func cloneRequest(req model.RunRequest) (model.RunRequest, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return model.RunRequest{}, err
	}
	var out model.RunRequest
	if err := json.Unmarshal(data, &out); err != nil {
		return model.RunRequest{}, err
	}
	return out, nil
}
