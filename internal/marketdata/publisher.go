package marketdata

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/repositories"
	"github.com/abdoElHodaky/handlex/internal/metrics"
)

const (
	partialBatchDelay = 10 * time.Millisecond
	emptyBatchDelay   = 100 * time.Millisecond
	maxBackoff        = time.Second
	emptyBeforeMax    = 10
	errorBackoff      = time.Second
)

// EventSource drains one claimed batch of outbox events. Implemented by
// db.Store; the claim uses skip-locked semantics so several publisher
// workers share the queue without contention.
type EventSource interface {
	PublishOutbox(ctx context.Context, publish repositories.PublishFunc, limit int) (int, error)
}

// Publisher ships committed outbox events onto the bus. Delivery is
// at-least-once: a crash between publish and the status flip re-delivers
// the batch on the next run.
type Publisher struct {
	source    EventSource
	bus       message.Publisher
	batchSize int
	logger    *zap.Logger
}

// NewPublisher creates a publisher worker
func NewPublisher(source EventSource, bus message.Publisher, batchSize int, logger *zap.Logger) *Publisher {
	return &Publisher{
		source:    source,
		bus:       bus,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run loops until the context ends, pacing adaptively: full batches are
// drained back to back, idle periods back off progressively.
func (p *Publisher) Run(ctx context.Context) {
	consecutiveEmpty := 0

	for {
		if ctx.Err() != nil {
			return
		}

		published, err := p.PublishOnce(ctx)
		if err != nil {
			p.logger.Error("Outbox publish batch failed", zap.Error(err))
			if !sleep(ctx, errorBackoff) {
				return
			}
			continue
		}

		if published > 0 {
			consecutiveEmpty = 0
		} else {
			consecutiveEmpty++
		}
		if !sleep(ctx, NextDelay(published, p.batchSize, consecutiveEmpty)) {
			return
		}
	}
}

// PublishOnce drains a single batch and returns the published count
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	published, err := p.source.PublishOutbox(ctx, func(topic string, payload []byte) error {
		return p.bus.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
	}, p.batchSize)
	if err != nil {
		return 0, err
	}
	if published > 0 {
		metrics.OutboxPublished.Add(float64(published))
	}
	return published, nil
}

// NextDelay computes the adaptive pause after a batch. Full batches skip
// the pause entirely to drain under load.
func NextDelay(published, batchSize, consecutiveEmpty int) time.Duration {
	switch {
	case published >= batchSize:
		return 0
	case published > 0:
		return partialBatchDelay
	case consecutiveEmpty < emptyBeforeMax:
		return emptyBatchDelay
	default:
		return maxBackoff
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
