package repositories

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// TraderRepository handles database operations for trader accounts
type TraderRepository struct {
	logger *zap.Logger
}

// NewTraderRepository creates a new trader repository
func NewTraderRepository(logger *zap.Logger) *TraderRepository {
	return &TraderRepository{logger: logger}
}

// Create inserts a new active trader. Does not commit. The partial
// unique index rejects a second admin.
func (r *TraderRepository) Create(ctx context.Context, tx *gorm.DB, isAdmin bool) (*models.TraderAccount, error) {
	trader := &models.TraderAccount{
		IsActive: true,
		IsAdmin:  isAdmin,
	}
	if err := tx.WithContext(ctx).Create(trader).Error; err != nil {
		r.logger.Error("Failed to create trader", zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to insert trader")
	}
	return trader, nil
}

// GetOrNone loads a trader, returning nil when it does not exist
func (r *TraderRepository) GetOrNone(ctx context.Context, h *gorm.DB, traderID uuid.UUID) (*models.TraderAccount, error) {
	var trader models.TraderAccount
	err := h.WithContext(ctx).Where("trader_id = ?", traderID).First(&trader).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query trader")
	}
	return &trader, nil
}

// Admin returns the single admin trader, or nil when none exists
func (r *TraderRepository) Admin(ctx context.Context, h *gorm.DB) (*models.TraderAccount, error) {
	var trader models.TraderAccount
	err := h.WithContext(ctx).Where("is_admin").First(&trader).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query admin trader")
	}
	return &trader, nil
}

// AllActive lists active traders, newest first
func (r *TraderRepository) AllActive(ctx context.Context, h *gorm.DB) ([]*models.TraderAccount, error) {
	var traders []*models.TraderAccount
	err := h.WithContext(ctx).
		Where("is_active").
		Order("created_at DESC").
		Find(&traders).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to list traders")
	}
	return traders, nil
}
