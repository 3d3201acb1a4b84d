package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/db/repositories"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// Store bundles the repositories behind the engine's Storage contract.
// The store owns the root handle; each InTransaction call hands the
// repositories one shared transaction, which is how the processor gets
// cross-entity atomicity.
type Store struct {
	db        *gorm.DB
	Orders    *repositories.OrderRepository
	Trades    *repositories.TradeRepository
	Positions *repositories.PositionRepository
	Ledger    *repositories.LedgerRepository
	Traders   *repositories.TraderRepository
	Outbox    *repositories.OutboxRepository
	logger    *zap.Logger
}

// NewStore creates the store and its repositories
func NewStore(gdb *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:        gdb,
		Orders:    repositories.NewOrderRepository(logger),
		Trades:    repositories.NewTradeRepository(logger),
		Positions: repositories.NewPositionRepository(logger),
		Ledger:    repositories.NewLedgerRepository(logger),
		Traders:   repositories.NewTraderRepository(logger),
		Outbox:    repositories.NewOutboxRepository(logger),
		logger:    logger,
	}
}

// DB exposes the root handle for standalone reads and caller-managed
// transactions.
func (s *Store) DB() *gorm.DB { return s.db }

// InTransaction implements engine.Storage
func (s *Store) InTransaction(ctx context.Context, fn func(tx engine.StorageTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&storeTx{store: s, tx: tx})
	})
	if err != nil && errors.GetCode(err) == "" {
		return errors.Wrap(err, errors.ErrDatabaseError, "transaction failed")
	}
	return err
}

// UnfilledOrders implements engine.Storage
func (s *Store) UnfilledOrders(ctx context.Context, symbol string) ([]*models.Order, error) {
	return s.Orders.Unfilled(ctx, s.db, symbol)
}

// ExpiredOrders implements engine.ExpiredSource
func (s *Store) ExpiredOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	return s.Orders.Expired(ctx, s.db, limit)
}

// RecentTrades implements marketdata.TradeSource
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]*models.Trade, error) {
	return s.Trades.Recent(ctx, s.db, symbol, limit)
}

// Candles implements marketdata.TradeSource
func (s *Store) Candles(ctx context.Context, symbol, trunc string, since time.Time) ([]repositories.Candle, error) {
	return s.Trades.Candles(ctx, s.db, symbol, trunc, since)
}

// PublishOutbox drains one outbox batch. Autonomous: commits on its own.
func (s *Store) PublishOutbox(ctx context.Context, publish repositories.PublishFunc, limit int) (int, error) {
	return s.Outbox.PublishBatch(ctx, s.db, publish, limit)
}

// storeTx adapts the repositories to engine.StorageTx for one transaction
type storeTx struct {
	store *Store
	tx    *gorm.DB
}

func (t *storeTx) Order(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return t.store.Orders.Get(ctx, t.tx, orderID)
}

func (t *storeTx) RecordTrade(ctx context.Context, data engine.TradeData) (*models.Trade, error) {
	return t.store.Trades.Record(ctx, t.tx, data)
}

func (t *storeTx) PostTradeEntries(ctx context.Context, trade *models.Trade) error {
	return t.store.Ledger.PostTradeEntries(ctx, t.tx, trade)
}

func (t *storeTx) ApplyBuy(ctx context.Context, traderID uuid.UUID, symbol string, quantity, price int64) error {
	return t.store.Positions.UpdateForBuy(ctx, t.tx, traderID, symbol, quantity, price)
}

func (t *storeTx) ApplySell(ctx context.Context, traderID uuid.UUID, symbol string, quantity int64) error {
	return t.store.Positions.UpdateForSell(ctx, t.tx, traderID, symbol, quantity)
}

func (t *storeTx) AddFill(ctx context.Context, orderID uuid.UUID, quantity int64) (*models.Order, error) {
	return t.store.Orders.AddFill(ctx, t.tx, orderID, quantity)
}

func (t *storeTx) Cancel(ctx context.Context, orderID uuid.UUID, reason models.CancelReason) (*models.Order, error) {
	return t.store.Orders.Cancel(ctx, t.tx, orderID, reason)
}

func (t *storeTx) QueueTradeEvent(ctx context.Context, data engine.TradeData, book engine.BookState) error {
	return t.store.Outbox.QueueTradeEvent(ctx, t.tx, data, book)
}
