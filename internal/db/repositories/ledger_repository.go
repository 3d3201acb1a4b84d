package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// LedgerRepository handles the append-only double-entry ledger
type LedgerRepository struct {
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{logger: logger}
}

// PostTradeEntries writes the four entries for one trade. Balances are
// Σdebits − Σcredits per (trader, account): the buyer's cash is credited
// (paid out) and shares debited (received); the seller mirrors them. The
// shares account rows carry share counts, not cents. Does not commit.
func (r *LedgerRepository) PostTradeEntries(ctx context.Context, tx *gorm.DB, trade *models.Trade) error {
	notional := trade.Price * trade.Quantity
	sharesAccount := models.SharesAccount(trade.Symbol)

	entries := []models.LedgerEntry{
		{
			TradeID:     &trade.TradeID,
			TraderID:    trade.BuyerID,
			Account:     models.AccountCash,
			Credit:      notional,
			Description: fmt.Sprintf("Buy %d %s @ $%.2f", trade.Quantity, trade.Symbol, float64(trade.Price)/100),
		},
		{
			TradeID:     &trade.TradeID,
			TraderID:    trade.SellerID,
			Account:     models.AccountCash,
			Debit:       notional,
			Description: fmt.Sprintf("Sell %d %s @ $%.2f", trade.Quantity, trade.Symbol, float64(trade.Price)/100),
		},
		{
			TradeID:     &trade.TradeID,
			TraderID:    trade.BuyerID,
			Account:     sharesAccount,
			Debit:       trade.Quantity,
			Description: fmt.Sprintf("Receive %d shares", trade.Quantity),
		},
		{
			TradeID:     &trade.TradeID,
			TraderID:    trade.SellerID,
			Account:     sharesAccount,
			Credit:      trade.Quantity,
			Description: fmt.Sprintf("Deliver %d shares", trade.Quantity),
		},
	}

	if err := tx.WithContext(ctx).Create(&entries).Error; err != nil {
		r.logger.Error("Failed to post trade entries",
			zap.String("trade_id", trade.TradeID.String()),
			zap.Error(err))
		return errors.Wrap(err, errors.ErrDatabaseError, "failed to post ledger entries")
	}
	return nil
}

// CashBalance returns a trader's cash in cents, derived from the ledger
func (r *LedgerRepository) CashBalance(ctx context.Context, h *gorm.DB, traderID uuid.UUID) (int64, error) {
	return r.balance(ctx, h, traderID, models.AccountCash)
}

// ShareBalance returns a trader's share count for a symbol, derived from
// the ledger
func (r *LedgerRepository) ShareBalance(ctx context.Context, h *gorm.DB, traderID uuid.UUID, symbol string) (int64, error) {
	return r.balance(ctx, h, traderID, models.SharesAccount(symbol))
}

func (r *LedgerRepository) balance(ctx context.Context, h *gorm.DB, traderID uuid.UUID, account string) (int64, error) {
	var balance int64
	err := h.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(debit), 0) - COALESCE(SUM(credit), 0)").
		Where("trader_id = ? AND account = ?", traderID, account).
		Scan(&balance).Error
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrDatabaseError, "failed to compute balance")
	}
	return balance, nil
}

// InitializeCash writes the funding debit for a new trader. Does not
// commit.
func (r *LedgerRepository) InitializeCash(ctx context.Context, tx *gorm.DB, traderID uuid.UUID, amount int64) error {
	entry := models.LedgerEntry{
		TraderID:    traderID,
		Account:     models.AccountCash,
		Debit:       amount,
		Description: fmt.Sprintf("Initial deposit: $%.2f", float64(amount)/100),
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, errors.ErrDatabaseError, "failed to initialize cash")
	}
	return nil
}

// AdjustShares writes an issuance (positive delta) or retirement
// (negative delta) entry against a trader's shares account. Used by
// treasury seeding. Does not commit.
func (r *LedgerRepository) AdjustShares(ctx context.Context, tx *gorm.DB, traderID uuid.UUID, symbol string, delta int64, description string) error {
	if delta == 0 {
		return nil
	}
	entry := models.LedgerEntry{
		TraderID:    traderID,
		Account:     models.SharesAccount(symbol),
		Description: description,
	}
	if delta > 0 {
		entry.Debit = delta
	} else {
		entry.Credit = -delta
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, errors.ErrDatabaseError, "failed to adjust shares")
	}
	return nil
}
