package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// Candle is one OHLC bucket of trade history
type Candle struct {
	Bucket time.Time `json:"timestamp"`
	Open   int64     `json:"open"`
	High   int64     `json:"high"`
	Low    int64     `json:"low"`
	Close  int64     `json:"close"`
	Volume int64     `json:"volume"`
}

// TradeRepository handles database operations for trades
type TradeRepository struct {
	logger *zap.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(logger *zap.Logger) *TradeRepository {
	return &TradeRepository{logger: logger}
}

// Record inserts a trade row. Does not commit.
func (r *TradeRepository) Record(ctx context.Context, tx *gorm.DB, data engine.TradeData) (*models.Trade, error) {
	executedAt := data.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}
	trade := &models.Trade{
		BuyOrderID:   data.BuyOrderID,
		SellOrderID:  data.SellOrderID,
		Symbol:       data.Symbol,
		Price:        data.Price,
		Quantity:     data.Quantity,
		BuyerID:      data.BuyerID,
		SellerID:     data.SellerID,
		TakerOrderID: data.TakerOrderID,
		MakerOrderID: data.MakerOrderID,
		ExecutedAt:   executedAt,
	}
	if err := tx.WithContext(ctx).Create(trade).Error; err != nil {
		r.logger.Error("Failed to record trade",
			zap.String("symbol", data.Symbol),
			zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to insert trade")
	}
	return trade, nil
}

// Recent returns the latest trades for a symbol, newest first
func (r *TradeRepository) Recent(ctx context.Context, h *gorm.DB, symbol string, limit int) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := h.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("executed_at DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query recent trades")
	}
	return trades, nil
}

// ByTrader returns a trader's trades on either side, newest first
func (r *TradeRepository) ByTrader(ctx context.Context, h *gorm.DB, traderID uuid.UUID, limit int) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := h.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", traderID, traderID).
		Order("executed_at DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to query trader trades")
	}
	return trades, nil
}

// Candles aggregates trades into OHLC buckets truncated by the given
// Postgres date_trunc unit ("hour", "day", "week"). Open and close are
// the first and last trade prices by executed_at within each bucket.
func (r *TradeRepository) Candles(ctx context.Context, h *gorm.DB, symbol, trunc string, since time.Time) ([]Candle, error) {
	var candles []Candle
	err := h.WithContext(ctx).Raw(`
		SELECT date_trunc(?, executed_at)                        AS bucket,
		       (array_agg(price ORDER BY executed_at ASC))[1]    AS open,
		       MAX(price)                                        AS high,
		       MIN(price)                                        AS low,
		       (array_agg(price ORDER BY executed_at DESC))[1]   AS close,
		       SUM(quantity)                                     AS volume
		FROM trades
		WHERE symbol = ? AND executed_at >= ?
		GROUP BY 1
		ORDER BY 1 ASC`, trunc, symbol, since).Scan(&candles).Error
	if err != nil {
		r.logger.Error("Failed to aggregate candles",
			zap.String("symbol", symbol),
			zap.String("trunc", trunc),
			zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrDatabaseError, "failed to aggregate candles")
	}
	return candles, nil
}
