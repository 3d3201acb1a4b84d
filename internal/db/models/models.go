package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Side represents the side of an order
type Side string

// Order sides
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents the type of an order
type OrderType string

// Order types
const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeIOC    OrderType = "IOC"
)

// OrderStatus represents the status of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// Terminal reports whether the status is final. Terminal orders never
// transition again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// CancelReason records why an order left the book
type CancelReason string

// Cancel reasons
const (
	CancelReasonUser              CancelReason = "USER"
	CancelReasonExpired           CancelReason = "EXPIRED"
	CancelReasonIOCUnfilled       CancelReason = "IOC_UNFILLED"
	CancelReasonInsufficientFunds CancelReason = "INSUFFICIENT_FUNDS"
)

// EventType represents the type of a market data event
type EventType string

// Event types
const (
	EventTypeTrade EventType = "TRADE"
	EventTypeQuote EventType = "QUOTE"
	EventTypeDepth EventType = "DEPTH"
)

// Ledger account names. Cash amounts are cents; the shares account holds
// share counts in the same numeric columns.
const (
	AccountCash        = "CASH"
	accountSharePrefix = "SHARES:"
)

// SharesAccount returns the per-symbol shares account name
func SharesAccount(symbol string) string {
	return accountSharePrefix + symbol
}

// TraderAccount represents a trading identity. At most one row may carry
// is_admin=true (partial unique index, see migration).
type TraderAccount struct {
	TraderID  uuid.UUID `gorm:"primaryKey;type:uuid" json:"trader_id"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the GORM default
func (TraderAccount) TableName() string { return "traders" }

// BeforeCreate is a GORM hook that runs before creating a new trader
func (t *TraderAccount) BeforeCreate(tx *gorm.DB) error {
	if t.TraderID == uuid.Nil {
		t.TraderID = uuid.New()
	}
	return nil
}

// Order represents an order in the exchange. Prices are cents, quantities
// share counts. Sequence is the per-symbol price-time tiebreaker assigned
// at insert.
type Order struct {
	OrderID        uuid.UUID     `gorm:"primaryKey;type:uuid" json:"order_id"`
	TraderID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"trader_id"`
	Symbol         string        `gorm:"type:varchar(64);not null;index:idx_orders_symbol_status_side,priority:1" json:"symbol"`
	Side           Side          `gorm:"type:varchar(4);not null;index:idx_orders_symbol_status_side,priority:3" json:"side"`
	Type           OrderType     `gorm:"column:order_type;type:varchar(8);not null" json:"order_type"`
	Quantity       int64         `gorm:"not null" json:"quantity"`
	LimitPrice     *int64        `json:"limit_price"`
	FilledQuantity int64         `gorm:"not null;default:0" json:"filled_quantity"`
	Status         OrderStatus   `gorm:"type:varchar(16);not null;index:idx_orders_symbol_status_side,priority:2;index:idx_orders_expires_status,priority:2" json:"status"`
	CancelReason   *CancelReason `gorm:"type:varchar(32)" json:"cancel_reason"`
	Sequence       int64         `gorm:"not null" json:"sequence"`
	TifSeconds     int64         `gorm:"not null" json:"tif_seconds"`
	ExpiresAt      time.Time     `gorm:"not null;index:idx_orders_expires_status,priority:1" json:"expires_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new order
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderID == uuid.Nil {
		o.OrderID = uuid.New()
	}
	return nil
}

// Remaining returns the unfilled quantity
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Trade represents an executed match between two orders. Price is the
// maker's resting price in cents.
type Trade struct {
	TradeID      uuid.UUID `gorm:"primaryKey;type:uuid" json:"trade_id"`
	BuyOrderID   uuid.UUID `gorm:"type:uuid;not null" json:"buy_order_id"`
	SellOrderID  uuid.UUID `gorm:"type:uuid;not null" json:"sell_order_id"`
	Symbol       string    `gorm:"type:varchar(64);not null;index:idx_trades_symbol_executed,priority:1" json:"symbol"`
	Price        int64     `gorm:"not null" json:"price"`
	Quantity     int64     `gorm:"not null" json:"quantity"`
	BuyerID      uuid.UUID `gorm:"type:uuid;not null;index" json:"buyer_id"`
	SellerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"seller_id"`
	TakerOrderID uuid.UUID `gorm:"type:uuid;not null" json:"taker_order_id"`
	MakerOrderID uuid.UUID `gorm:"type:uuid;not null" json:"maker_order_id"`
	ExecutedAt   time.Time `gorm:"not null;index:idx_trades_symbol_executed,priority:2" json:"executed_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new trade
func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.TradeID == uuid.Nil {
		t.TradeID = uuid.New()
	}
	return nil
}

// Position represents a trader's holding in one symbol. Quantity never
// goes negative; avg_cost is integer cents recomputed on buys only.
type Position struct {
	TraderID  uuid.UUID `gorm:"primaryKey;type:uuid" json:"trader_id"`
	Symbol    string    `gorm:"primaryKey;type:varchar(64)" json:"symbol"`
	Quantity  int64     `gorm:"not null;default:0" json:"quantity"`
	AvgCost   int64     `gorm:"not null;default:0" json:"avg_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is an append-only double-entry row. Exactly one of Debit or
// Credit is positive. Balances are sums over entries per (trader, account).
type LedgerEntry struct {
	EntryID     int64      `gorm:"primaryKey;autoIncrement" json:"entry_id"`
	TradeID     *uuid.UUID `gorm:"type:uuid" json:"trade_id"`
	TraderID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_ledger_trader_account,priority:1" json:"trader_id"`
	Account     string     `gorm:"type:varchar(80);not null;index:idx_ledger_trader_account,priority:2" json:"account"`
	Debit       int64      `gorm:"not null;default:0" json:"debit"`
	Credit      int64      `gorm:"not null;default:0" json:"credit"`
	Description string     `gorm:"type:text" json:"description"`
	CreatedAt   time.Time  `gorm:"index:idx_ledger_trader_account,priority:3" json:"created_at"`
}

// SequenceCounter holds the last issued per-symbol sequence. Incremented
// via an atomic upsert-returning statement.
type SequenceCounter struct {
	Symbol       string `gorm:"primaryKey;type:varchar(64)" json:"symbol"`
	LastSequence int64  `gorm:"not null" json:"last_sequence"`
}

// OutboxEvent is a market data event written in the same transaction as
// the state it describes. Published flips false to true exactly once.
type OutboxEvent struct {
	EventID   uuid.UUID `gorm:"primaryKey;type:uuid" json:"event_id"`
	EventType EventType `gorm:"type:varchar(16);not null" json:"event_type"`
	Symbol    string    `gorm:"type:varchar(64);not null" json:"symbol"`
	Payload   string    `gorm:"type:jsonb;not null" json:"payload"`
	Published bool      `gorm:"not null;default:false" json:"published"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the GORM default
func (OutboxEvent) TableName() string { return "outbox" }

// BeforeCreate is a GORM hook that runs before creating a new event
func (e *OutboxEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
