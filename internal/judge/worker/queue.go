package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dsajudge/internal/common/mq"
	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/contextkey"
	"dsajudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const headerTraceID = "x-trace-id"

// QueueConfig names the topics of the request/reply exchange.
type QueueConfig struct {
	RequestTopic string `yaml:"requestTopic"`
	ReplyTopic   string `yaml:"replyTopic"`
	// ConsumerGroup is the worker group reading RequestTopic.
	ConsumerGroup string `yaml:"consumerGroup"`
	// ReplyGroup is the group reading ReplyTopic; each service instance needs its
	// own so that every instance sees every reply. Empty means a random group.
	ReplyGroup      string        `yaml:"replyGroup"`
	Concurrency     int           `yaml:"concurrency"`
	MaxRetries      int           `yaml:"maxRetries"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
	MessageTTL      time.Duration `yaml:"messageTTL"`
	// Limiter bounds requests handled at once across subscriptions.
	Limiter mq.FetchLimiter `yaml:"-"`
}

func (c QueueConfig) validate() error {
	if c.RequestTopic == "" {
		return appErr.ValidationError("requestTopic", "required")
	}
	if c.ReplyTopic == "" {
		return appErr.ValidationError("replyTopic", "required")
	}
	return nil
}

// QueueConsumer serves run requests from the message queue.
type QueueConsumer struct {
	worker *Worker
	queue  mq.MessageQueue
	cfg    QueueConfig
}

// NewQueueConsumer subscribes worker to cfg.RequestTopic. Call queue.Start to begin consuming.
func NewQueueConsumer(ctx context.Context, w *Worker, queue mq.MessageQueue, cfg QueueConfig) (*QueueConsumer, error) {
	if w == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &QueueConsumer{worker: w, queue: queue, cfg: cfg}
	opts := &mq.SubscribeOptions{
		ConsumerGroup:   cfg.ConsumerGroup,
		Concurrency:     cfg.Concurrency,
		MaxRetries:      cfg.MaxRetries,
		DeadLetterTopic: cfg.DeadLetterTopic,
		MessageTTL:      cfg.MessageTTL,
		Limiter:         cfg.Limiter,
	}
	if err := queue.SubscribeWithOptions(ctx, cfg.RequestTopic, c.HandleMessage, opts); err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueError, "subscribe %s failed", cfg.RequestTopic)
	}
	return c, nil
}

// HandleMessage decodes one request, runs it and publishes the reply.
// Malformed payloads are dropped; only publish failures are retried.
func (c *QueueConsumer) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return nil
	}
	if traceID, ok := msg.GetHeader(headerTraceID); ok {
		ctx = context.WithValue(ctx, contextkey.TraceID, traceID)
	}
	var req model.RunRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		logger.Warn(ctx, "drop malformed run request", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if req.UID == "" {
		req.UID = msg.ID
	}
	if req.UID == "" {
		logger.Warn(ctx, "drop run request without uid")
		return nil
	}

	reply := c.worker.Handle(ctx, req)
	out, err := encode(ctx, reply.UID, reply)
	if err != nil {
		logger.Error(ctx, "encode run reply failed", zap.String("run_id", reply.UID), zap.Error(err))
		return nil
	}
	if err := c.queue.Publish(ctx, c.cfg.ReplyTopic, out); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish run reply failed")
	}
	return nil
}

// QueueTransport sends requests over the message queue and collects replies.
type QueueTransport struct {
	queue   mq.MessageQueue
	cfg     QueueConfig
	replies chan model.RunReply
	done    <-chan struct{}
}

var _ Transport = (*QueueTransport)(nil)

// NewQueueTransport subscribes to cfg.ReplyTopic. Replies stop flowing once ctx is done.
func NewQueueTransport(ctx context.Context, queue mq.MessageQueue, cfg QueueConfig) (*QueueTransport, error) {
	if queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ReplyGroup == "" {
		cfg.ReplyGroup = "dsajudge-replies-" + uuid.NewString()
	}
	t := &QueueTransport{
		queue:   queue,
		cfg:     cfg,
		replies: make(chan model.RunReply, 64),
		done:    ctx.Done(),
	}
	opts := &mq.SubscribeOptions{ConsumerGroup: cfg.ReplyGroup, MaxRetries: 1}
	if err := queue.SubscribeWithOptions(ctx, cfg.ReplyTopic, t.handleReply, opts); err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueError, "subscribe %s failed", cfg.ReplyTopic)
	}
	return t, nil
}

// Send publishes req; the message id is the run uid.
func (t *QueueTransport) Send(ctx context.Context, req model.RunRequest) error {
	if req.UID == "" {
		return appErr.ValidationError("uid", "required")
	}
	msg, err := encode(ctx, req.UID, req)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "encode run request failed")
	}
	if err := t.queue.Publish(ctx, t.cfg.RequestTopic, msg); err != nil {
		return appErr.Wrapf(err, appErr.WorkerUnavailable, "publish run request failed")
	}
	return nil
}

// Replies returns decoded replies in arrival order.
func (t *QueueTransport) Replies() <-chan model.RunReply {
	return t.replies
}

func (t *QueueTransport) handleReply(ctx context.Context, msg *mq.Message) error {
	var reply model.RunReply
	if err := json.Unmarshal(msg.Body, &reply); err != nil {
		logger.Warn(ctx, "drop malformed run reply", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	select {
	case t.replies <- reply:
		return nil
	case <-t.done:
		return errors.New("reply transport stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encode(ctx context.Context, id string, v any) (*mq.Message, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := mq.NewMessage(body)
	msg.ID = id
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		msg.SetHeader(headerTraceID, traceID)
	}
	return msg, nil
}
