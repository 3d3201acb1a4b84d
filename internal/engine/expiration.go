package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/metrics"
)

// ExpiredSource finds live orders whose time-in-force has elapsed
type ExpiredSource interface {
	ExpiredOrders(ctx context.Context, limit int) ([]*models.Order, error)
}

// Canceller routes a cancellation; satisfied by the Router
type Canceller interface {
	Cancel(ctx context.Context, orderID uuid.UUID, symbol string, reason models.CancelReason) error
}

// ExpirationDaemon enforces time-in-force. It polls for orders past
// expires_at and issues EXPIRED cancellations through the router, so the
// processors stay free of wall-clock reasoning. Per-order failures are
// logged and skipped; the loop never aborts.
type ExpirationDaemon struct {
	source    ExpiredSource
	canceller Canceller
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewExpirationDaemon creates a daemon with the given poll interval
func NewExpirationDaemon(source ExpiredSource, canceller Canceller, interval time.Duration, batchSize int, logger *zap.Logger) *ExpirationDaemon {
	return &ExpirationDaemon{
		source:    source,
		canceller: canceller,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run loops until the context ends
func (d *ExpirationDaemon) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep runs one expiration pass
func (d *ExpirationDaemon) Sweep(ctx context.Context) {
	expired, err := d.source.ExpiredOrders(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to query expired orders", zap.Error(err))
		return
	}

	for _, order := range expired {
		if err := d.canceller.Cancel(ctx, order.OrderID, order.Symbol, models.CancelReasonExpired); err != nil {
			d.logger.Warn("Failed to expire order",
				zap.String("order_id", order.OrderID.String()),
				zap.String("symbol", order.Symbol),
				zap.Error(err))
			continue
		}
		metrics.OrdersExpired.Inc()
	}
}
