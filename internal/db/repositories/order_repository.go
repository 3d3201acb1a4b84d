package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// CreateOrderParams carries a validated order request into the repository
type CreateOrderParams struct {
	TraderID   uuid.UUID
	Symbol     string
	Side       models.Side
	Type       models.OrderType
	Quantity   int64
	LimitPrice *int64
	TifSeconds int64
}

// OrderRepository handles database operations for orders. Every method
// takes the handle it runs on: write methods must be given the caller's
// transaction and never commit.
type OrderRepository struct {
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(logger *zap.Logger) *OrderRepository {
	return &OrderRepository{logger: logger}
}

// NextSequence atomically increments and returns the per-symbol sequence
// counter. The upsert handles the race on a symbol's first order.
func (r *OrderRepository) NextSequence(ctx context.Context, tx *gorm.DB, symbol string) (int64, error) {
	var sequence int64
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO sequence_counters (symbol, last_sequence)
		VALUES (?, 1)
		ON CONFLICT (symbol)
		DO UPDATE SET last_sequence = sequence_counters.last_sequence + 1
		RETURNING last_sequence`, symbol).Scan(&sequence).Error
	if err != nil {
		r.logger.Error("Failed to advance sequence", zap.String("symbol", symbol), zap.Error(err))
		return 0, errors.Wrap(err, errors.ErrDatabaseError, "failed to advance sequence counter")
	}
	return sequence, nil
}

// Create inserts a PENDING order with its sequence number assigned
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, params CreateOrderParams, expiresAt time.Time) (*models.Order, error) {
	sequence, err := r.NextSequence(ctx, tx, params.Symbol)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		TraderID:   params.TraderID,
		Symbol:     params.Symbol,
		Side:       params.Side,
		Type:       params.Type,
		Quantity:   params.Quantity,
		LimitPrice: params.LimitPrice,
		Status:     models.OrderStatusPending,
		Sequence:   sequence,
		TifSeconds: params.TifSeconds,
		ExpiresAt:  expiresAt,
	}
	if err := tx.WithContext(ctx).Create(order).Error; err != nil {
		r.logger.Error("Failed to create order",
			zap.String("symbol", params.Symbol),
			zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to insert order")
	}
	return order, nil
}

// Get loads an order, erroring when it does not exist
func (r *OrderRepository) Get(ctx context.Context, h *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := r.GetOrNone(ctx, h, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.Newf(errors.ErrOrderNotFound, "order %s not found", orderID)
	}
	return order, nil
}

// GetOrNone loads an order, returning nil when it does not exist
func (r *OrderRepository) GetOrNone(ctx context.Context, h *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := h.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query order")
	}
	return &order, nil
}

// AddFill increments filled_quantity under a row lock, validates against
// overfill and recomputes status.
func (r *OrderRepository) AddFill(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, quantity int64) (*models.Order, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrOrderNotFound, "order %s not found", orderID)
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to lock order for fill")
	}

	newFilled := order.FilledQuantity + quantity
	if newFilled > order.Quantity {
		return nil, errors.Newf(errors.ErrOverfill,
			"fill %d exceeds order quantity %d", newFilled, order.Quantity)
	}

	order.FilledQuantity = newFilled
	switch {
	case newFilled >= order.Quantity:
		order.Status = models.OrderStatusFilled
	case newFilled > 0:
		order.Status = models.OrderStatusPartial
	}

	err = tx.WithContext(ctx).Model(&models.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"filled_quantity": order.FilledQuantity,
			"status":          order.Status,
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to update fill")
	}
	return &order, nil
}

// Unfilled returns PENDING/PARTIAL orders for a symbol in ascending
// sequence order, the input for book rebuilds.
func (r *OrderRepository) Unfilled(ctx context.Context, h *gorm.DB, symbol string) ([]*models.Order, error) {
	var orders []*models.Order
	err := h.WithContext(ctx).
		Where("symbol = ? AND status IN ?", symbol, liveStatuses()).
		Order("sequence ASC").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query unfilled orders")
	}
	return orders, nil
}

// TraderUnfilled returns a trader's live orders, newest first
func (r *OrderRepository) TraderUnfilled(ctx context.Context, h *gorm.DB, traderID uuid.UUID) ([]*models.Order, error) {
	var orders []*models.Order
	err := h.WithContext(ctx).
		Where("trader_id = ? AND status IN ?", traderID, liveStatuses()).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query trader orders")
	}
	return orders, nil
}

// Expired returns live orders past their time-in-force
func (r *OrderRepository) Expired(ctx context.Context, h *gorm.DB, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := h.WithContext(ctx).
		Where("expires_at <= ? AND status IN ?", time.Now().UTC(), liveStatuses()).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query expired orders")
	}
	return orders, nil
}

// Cancel transitions a live order to its cancelled state. USER maps to
// CANCELLED, every other reason to EXPIRED.
func (r *OrderRepository) Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason models.CancelReason) (*models.Order, error) {
	order, err := r.Get(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, errors.Newf(errors.ErrOrderNotCancellable,
			"cannot cancel order %s with status %s", orderID, order.Status)
	}

	status := models.OrderStatusExpired
	if reason == models.CancelReasonUser {
		status = models.OrderStatusCancelled
	}
	order.Status = status
	order.CancelReason = &reason

	err = tx.WithContext(ctx).Model(&models.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":        status,
			"cancel_reason": reason,
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to cancel order")
	}
	return order, nil
}

func liveStatuses() []models.OrderStatus {
	return []models.OrderStatus{models.OrderStatusPending, models.OrderStatusPartial}
}
