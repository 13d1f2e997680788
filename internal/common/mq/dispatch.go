package mq

import (
	"context"
	"time"

	"dsajudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// deliver runs handler for m honoring expiration, retries and the dead letter topic.
// It returns once the message is settled, i.e. it may be committed or acked.
func deliver(ctx context.Context, opts SubscribeOptions, handler HandlerFunc, m *Message, deadLetter Producer) {
	if m.MaxRetries == 0 {
		m.MaxRetries = opts.MaxRetries
	}
	if m.Expiration == 0 && opts.MessageTTL > 0 {
		m.Expiration = opts.MessageTTL
	}
	if m.Expired(time.Now()) {
		logger.Debug(ctx, "drop expired message", zap.String("message_id", m.ID))
		return
	}

	for {
		err := handler(ctx, m)
		if err == nil {
			return
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries {
			logger.Warn(ctx, "message retries exhausted",
				zap.String("message_id", m.ID),
				zap.Int("retries", m.MaxRetries),
				zap.Error(err),
			)
			if opts.DeadLetterTopic != "" && deadLetter != nil {
				if err := deadLetter.Publish(ctx, opts.DeadLetterTopic, m); err != nil {
					logger.Error(ctx, "publish dead letter failed", zap.String("message_id", m.ID), zap.Error(err))
				}
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(opts.RetryDelay):
		}
	}
}
