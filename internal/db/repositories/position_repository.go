package repositories

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// PositionRepository handles database operations for positions
type PositionRepository struct {
	logger *zap.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(logger *zap.Logger) *PositionRepository {
	return &PositionRepository{logger: logger}
}

// UpdateForBuy folds a fill into the position. Average cost is the
// weighted average over the accumulated position, floored to whole cents.
// Creates the position on a trader's first buy. Does not commit.
func (r *PositionRepository) UpdateForBuy(ctx context.Context, tx *gorm.DB, traderID uuid.UUID, symbol string, quantity, price int64) error {
	position, err := r.lock(ctx, tx, traderID, symbol)
	if err != nil {
		return err
	}

	if position == nil {
		position = &models.Position{
			TraderID: traderID,
			Symbol:   symbol,
			Quantity: quantity,
			AvgCost:  price,
		}
		if err := tx.WithContext(ctx).Create(position).Error; err != nil {
			return errors.Wrap(err, errors.ErrDatabaseError, "failed to create position")
		}
		return nil
	}

	newQty := position.Quantity + quantity
	newAvg := (position.Quantity*position.AvgCost + quantity*price) / newQty

	err = tx.WithContext(ctx).Model(&models.Position{}).
		Where("trader_id = ? AND symbol = ?", traderID, symbol).
		Updates(map[string]interface{}{"quantity": newQty, "avg_cost": newAvg}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseError, "failed to update position")
	}
	return nil
}

// UpdateForSell decrements the position, leaving avg_cost unchanged.
// Errors when the sell would take the position negative. Does not commit.
func (r *PositionRepository) UpdateForSell(ctx context.Context, tx *gorm.DB, traderID uuid.UUID, symbol string, quantity int64) error {
	position, err := r.lock(ctx, tx, traderID, symbol)
	if err != nil {
		return err
	}

	var held int64
	if position != nil {
		held = position.Quantity
	}
	if held < quantity {
		return errors.Newf(errors.ErrInsufficientShares,
			"insufficient shares of %s: have %d, need %d", symbol, held, quantity)
	}

	err = tx.WithContext(ctx).Model(&models.Position{}).
		Where("trader_id = ? AND symbol = ?", traderID, symbol).
		Update("quantity", held-quantity).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseError, "failed to update position")
	}
	return nil
}

func (r *PositionRepository) lock(ctx context.Context, tx *gorm.DB, traderID uuid.UUID, symbol string) (*models.Position, error) {
	var position models.Position
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("trader_id = ? AND symbol = ?", traderID, symbol).
		First(&position).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to lock position")
	}
	return &position, nil
}

// GetOrNone loads a position, returning nil when the trader holds nothing
func (r *PositionRepository) GetOrNone(ctx context.Context, h *gorm.DB, traderID uuid.UUID, symbol string) (*models.Position, error) {
	var position models.Position
	err := h.WithContext(ctx).
		Where("trader_id = ? AND symbol = ?", traderID, symbol).
		First(&position).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query position")
	}
	return &position, nil
}

// AllNonZero returns a trader's open positions
func (r *PositionRepository) AllNonZero(ctx context.Context, h *gorm.DB, traderID uuid.UUID) ([]*models.Position, error) {
	var positions []*models.Position
	err := h.WithContext(ctx).
		Where("trader_id = ? AND quantity > 0", traderID).
		Find(&positions).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query positions")
	}
	return positions, nil
}

// AnyCirculating reports whether any trader besides the given one holds
// shares of the symbol. Used by treasury seeding.
func (r *PositionRepository) AnyCirculating(ctx context.Context, h *gorm.DB, symbol string, excludeTrader uuid.UUID) (bool, error) {
	var count int64
	err := h.WithContext(ctx).Model(&models.Position{}).
		Where("symbol = ? AND quantity > 0 AND trader_id <> ?", symbol, excludeTrader).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, errors.ErrDatabaseError, "failed to query circulating shares")
	}
	return count > 0, nil
}
