package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/metrics"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

const (
	maxAttempts  = 3
	retryBackoff = 100 * time.Millisecond
)

type messageKind int

const (
	msgNewOrder messageKind = iota
	msgCancel
)

type orderMessage struct {
	kind    messageKind
	orderID uuid.UUID
	reason  models.CancelReason
}

// Processor is the single writer for one symbol. It owns the in-memory
// book and applies inbox messages strictly in arrival order, one atomic
// transaction per message.
type Processor struct {
	symbol  string
	matcher *Matcher
	inbox   chan orderMessage
	storage Storage
	logger  *zap.Logger

	// mu guards the book: held for writing across each message, for
	// reading by snapshot callers.
	mu sync.RWMutex
}

// NewProcessor creates a processor with a bounded inbox
func NewProcessor(symbol string, storage Storage, inboxSize int, logger *zap.Logger) *Processor {
	return &Processor{
		symbol:  symbol,
		matcher: NewMatcher(symbol),
		inbox:   make(chan orderMessage, inboxSize),
		storage: storage,
		logger:  logger.With(zap.String("symbol", symbol)),
	}
}

// Submit enqueues a new order message. Blocks when the inbox is full
// (back-pressure) unless the context ends first.
func (p *Processor) Submit(ctx context.Context, orderID uuid.UUID) error {
	return p.enqueue(ctx, orderMessage{kind: msgNewOrder, orderID: orderID})
}

// Cancel enqueues a cancellation message
func (p *Processor) Cancel(ctx context.Context, orderID uuid.UUID, reason models.CancelReason) error {
	return p.enqueue(ctx, orderMessage{kind: msgCancel, orderID: orderID, reason: reason})
}

func (p *Processor) enqueue(ctx context.Context, msg orderMessage) error {
	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting messages. Run drains what is already queued and
// returns. Only the router calls this.
func (p *Processor) close() {
	close(p.inbox)
}

// Run consumes the inbox until it is closed. Errors never stop the loop:
// validation failures are logged and skipped, transient storage failures
// retried with bounded backoff.
func (p *Processor) Run(ctx context.Context) {
	for msg := range p.inbox {
		p.handle(ctx, msg)
	}
}

func (p *Processor) handle(ctx context.Context, msg orderMessage) {
	metrics.OrdersProcessed.WithLabelValues(p.symbol).Inc()

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.ProcessorRetries.WithLabelValues(p.symbol).Inc()
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}
		if msg.kind == msgCancel {
			err = p.processCancel(ctx, msg.orderID, msg.reason)
		} else {
			err = p.processNewOrder(ctx, msg.orderID)
		}
		if err == nil || !errors.IsRetryable(err) {
			break
		}
		p.logger.Warn("Retrying order message after transient failure",
			zap.String("order_id", msg.orderID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if err != nil {
		p.logger.Error("Failed to process order message",
			zap.String("order_id", msg.orderID.String()),
			zap.Error(err))
	}
}

// processNewOrder matches the order and settles every fill inside one
// transaction: trade row, four ledger entries, both positions, both
// orders' fills, and one outbox event per trade.
func (p *Processor) processNewOrder(ctx context.Context, orderID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.storage.InTransaction(ctx, func(tx StorageTx) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			p.logger.Warn("Ignoring message for terminal order",
				zap.String("order_id", orderID.String()),
				zap.String("status", string(order.Status)))
			return nil
		}

		trades, remaining := p.matcher.Match(order)

		for _, data := range trades {
			trade, err := tx.RecordTrade(ctx, data)
			if err != nil {
				return err
			}
			if err := tx.PostTradeEntries(ctx, trade); err != nil {
				return err
			}
			if err := tx.ApplyBuy(ctx, data.BuyerID, p.symbol, data.Quantity, data.Price); err != nil {
				return err
			}
			if err := tx.ApplySell(ctx, data.SellerID, p.symbol, data.Quantity); err != nil {
				return err
			}
			if _, err := tx.AddFill(ctx, data.BuyOrderID, data.Quantity); err != nil {
				return err
			}
			if _, err := tx.AddFill(ctx, data.SellOrderID, data.Quantity); err != nil {
				return err
			}

			price := data.Price
			p.matcher.Book.LastPrice = &price
			if err := tx.QueueTradeEvent(ctx, data, p.matcher.Book.State()); err != nil {
				return err
			}
			metrics.TradesExecuted.WithLabelValues(p.symbol).Inc()
		}

		order.FilledQuantity = order.Quantity - remaining

		switch {
		case order.Type == models.OrderTypeLimit && remaining > 0:
			p.matcher.AddToBook(order)
		case order.Type == models.OrderTypeIOC && remaining > 0:
			if _, err := tx.Cancel(ctx, orderID, models.CancelReasonIOCUnfilled); err != nil {
				return err
			}
		}
		// MARKET residue is discarded: no resting market orders.
		return nil
	})

	if err != nil {
		if code := errors.GetCode(err); code == errors.ErrOrderNotFound {
			p.logger.Warn("Dropping message for unknown order",
				zap.String("order_id", orderID.String()))
			return nil
		}
		// The matcher may have consumed makers before the rollback.
		// Restore the book from durable state before the next message.
		if rbErr := p.rebuildLocked(ctx); rbErr != nil {
			p.logger.Error("Book rebuild after rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return nil
}

// processCancel flips the durable status and removes the order from the
// book. Terminal orders are a recoverable local failure.
func (p *Processor) processCancel(ctx context.Context, orderID uuid.UUID, reason models.CancelReason) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.storage.InTransaction(ctx, func(tx StorageTx) error {
		order, err := tx.Cancel(ctx, orderID, reason)
		if err != nil {
			return err
		}
		p.matcher.CancelInBook(order)
		return nil
	})
	if err != nil {
		switch errors.GetCode(err) {
		case errors.ErrOrderNotFound, errors.ErrOrderNotCancellable:
			p.logger.Warn("Cannot cancel order",
				zap.String("order_id", orderID.String()),
				zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// Rebuild reconstructs the book from durable PENDING/PARTIAL orders in
// ascending sequence order. Two rebuilds from the same durable state
// produce identical books.
func (p *Processor) Rebuild(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuildLocked(ctx)
}

func (p *Processor) rebuildLocked(ctx context.Context) error {
	orders, err := p.storage.UnfilledOrders(ctx, p.symbol)
	if err != nil {
		return err
	}

	last := p.matcher.Book.LastPrice
	p.matcher = NewMatcher(p.symbol)
	p.matcher.Book.LastPrice = last

	for _, order := range orders {
		p.matcher.AddToBook(order)
	}
	p.logger.Info("Rebuilt order book", zap.Int("resting_orders", len(orders)))
	return nil
}

// BookState returns the current top of book
func (p *Processor) BookState() BookState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.matcher.Book.State()
}

// BookSnapshot returns the aggregated depth snapshot
func (p *Processor) BookSnapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.matcher.Book.DepthSnapshot()
}

// LastPrice returns the cached last trade price, if any
func (p *Processor) LastPrice() *int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.matcher.Book.LastPrice
}
