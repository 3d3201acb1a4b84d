package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/abdoElHodaky/handlex/internal/db/models"
)

// Storage is the durable store as the engine sees it. The concrete
// implementation lives in internal/db; tests substitute an in-memory one.
type Storage interface {
	// InTransaction runs fn inside a single transaction. Every write made
	// through the StorageTx commits or rolls back as one unit.
	InTransaction(ctx context.Context, fn func(tx StorageTx) error) error

	// UnfilledOrders returns PENDING and PARTIAL orders for a symbol in
	// ascending sequence order, for book rebuilds.
	UnfilledOrders(ctx context.Context, symbol string) ([]*models.Order, error)
}

// StorageTx is the set of non-committing writes available inside one
// processor transaction. None of these methods commit; the transaction
// boundary belongs to InTransaction.
type StorageTx interface {
	// Order loads the authoritative order row
	Order(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

	// RecordTrade inserts the trade row
	RecordTrade(ctx context.Context, data TradeData) (*models.Trade, error)

	// PostTradeEntries writes the four double-entry rows for a trade
	PostTradeEntries(ctx context.Context, trade *models.Trade) error

	// ApplyBuy folds a fill into the buyer's position (weighted avg cost)
	ApplyBuy(ctx context.Context, traderID uuid.UUID, symbol string, quantity, price int64) error

	// ApplySell decrements the seller's position, erroring on negative
	ApplySell(ctx context.Context, traderID uuid.UUID, symbol string, quantity int64) error

	// AddFill increments filled_quantity under a row lock and recomputes
	// status. Errors on overfill.
	AddFill(ctx context.Context, orderID uuid.UUID, quantity int64) (*models.Order, error)

	// Cancel transitions a live order to CANCELLED (reason USER) or
	// EXPIRED (any other reason). Errors if the order is terminal.
	Cancel(ctx context.Context, orderID uuid.UUID, reason models.CancelReason) (*models.Order, error)

	// QueueTradeEvent writes the outbox TRADE row for a fill
	QueueTradeEvent(ctx context.Context, data TradeData, book BookState) error
}
