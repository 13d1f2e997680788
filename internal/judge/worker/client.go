package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/contextkey"
	"dsajudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client submits runs over a Transport and waits for the matching reply.
type Client struct {
	transport Transport

	mu      sync.Mutex
	waiters map[string]chan model.RunReply

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client and starts routing replies from transport.
func NewClient(transport Transport) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	c := &Client{
		transport: transport,
		waiters:   make(map[string]chan model.RunReply),
		done:      make(chan struct{}),
	}
	go c.dispatch()
	return c, nil
}

// Submit sends req and blocks until its reply arrives or ctx is done.
// A uid is assigned when req has none.
func (c *Client) Submit(ctx context.Context, req model.RunRequest) (model.RunReply, error) {
	if req.UID == "" {
		req.UID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, contextkey.RunID, req.UID)

	wait := make(chan model.RunReply, 1)
	c.mu.Lock()
	if _, exists := c.waiters[req.UID]; exists {
		c.mu.Unlock()
		return model.RunReply{}, appErr.New(appErr.InvalidParams).WithMessagef("run %s is already in flight", req.UID)
	}
	c.waiters[req.UID] = wait
	c.mu.Unlock()
	defer c.forget(req.UID)

	if err := c.transport.Send(ctx, req); err != nil {
		if appErr.GetCode(err) == appErr.InternalServerError {
			err = appErr.Wrap(err, appErr.WorkerUnavailable)
		}
		return model.RunReply{}, err
	}

	select {
	case reply := <-wait:
		return reply, nil
	case <-ctx.Done():
		logger.Warn(ctx, "run reply did not arrive in time", zap.Error(ctx.Err()))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.RunReply{}, appErr.Wrapf(ctx.Err(), appErr.Timeout, "run %s timed out", req.UID)
		}
		return model.RunReply{}, ctx.Err()
	case <-c.done:
		return model.RunReply{}, appErr.New(appErr.WorkerUnavailable).WithMessage("worker client is closed")
	}
}

// Close stops waiting for replies; pending submissions fail.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) forget(uid string) {
	c.mu.Lock()
	delete(c.waiters, uid)
	c.mu.Unlock()
}

func (c *Client) dispatch() {
	replies := c.transport.Replies()
	for {
		select {
		case <-c.done:
			return
		case reply, ok := <-replies:
			if !ok {
				c.Close()
				return
			}
			c.mu.Lock()
			wait, found := c.waiters[reply.UID]
			delete(c.waiters, reply.UID)
			c.mu.Unlock()
			if !found {
				logger.Warn(context.Background(), "drop reply for unknown run", zap.String("run_id", reply.UID))
				continue
			}
			wait <- reply
		}
	}
}
