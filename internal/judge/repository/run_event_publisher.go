package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dsajudge/internal/common/mq"
	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
)

// RunEvent summarizes a finished run for asynchronous consumers.
type RunEvent struct {
	UID       string         `json:"uid"`
	ProblemID string         `json:"problemId"`
	Owner     string         `json:"owner"`
	Language  model.Language `json:"language"`
	Total     int            `json:"total"`
	Passed    int            `json:"passed"`
	CreatedAt int64          `json:"createdAt"`
}

// RunEventPublisher publishes run events.
type RunEventPublisher interface {
	PublishRunFinished(ctx context.Context, event RunEvent) error
}

// MQRunEventPublisher publishes run events to a message queue.
type MQRunEventPublisher struct {
	queue mq.Producer
	topic string
}

// NewMQRunEventPublisher creates a new MQ run event publisher.
func NewMQRunEventPublisher(queue mq.Producer, topic string) *MQRunEventPublisher {
	return &MQRunEventPublisher{queue: queue, topic: topic}
}

// PublishRunFinished publishes a run-finished event keyed by the run uid.
func (p *MQRunEventPublisher) PublishRunFinished(ctx context.Context, event RunEvent) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("run event publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("run event topic is required")
	}
	if event.UID == "" {
		return appErr.ValidationError("uid", "required")
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.UID
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish run event failed")
	}
	return nil
}
