package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// memStore is an in-memory Storage used by the engine tests. It applies
// the same validation rules as the GORM repositories and restores a
// snapshot on transaction failure so rollback behavior can be exercised.
type memStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	trades    []*models.Trade
	positions map[string]*models.Position
	ledger    []models.LedgerEntry
	events    []memEvent
	sequences map[string]int64

	failOn func(op string) error
}

type memEvent struct {
	data TradeData
	book BookState
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[uuid.UUID]*models.Order),
		positions: make(map[string]*models.Position),
		sequences: make(map[string]int64),
	}
}

func posKey(traderID uuid.UUID, symbol string) string {
	return traderID.String() + "|" + symbol
}

// addOrder inserts a durable order the way the trading service would
func (s *memStore) addOrder(traderID uuid.UUID, symbol string, side models.Side, typ models.OrderType, quantity int64, limitPrice *int64) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[symbol]++
	order := &models.Order{
		OrderID:    uuid.New(),
		TraderID:   traderID,
		Symbol:     symbol,
		Side:       side,
		Type:       typ,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		Status:     models.OrderStatusPending,
		Sequence:   s.sequences[symbol],
		TifSeconds: 3600,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
		CreatedAt:  time.Now().UTC(),
	}
	s.orders[order.OrderID] = order
	return order
}

func (s *memStore) fundCash(traderID uuid.UUID, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, models.LedgerEntry{
		TraderID: traderID,
		Account:  models.AccountCash,
		Debit:    amount,
	})
}

func (s *memStore) grantShares(traderID uuid.UUID, symbol string, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[posKey(traderID, symbol)] = &models.Position{
		TraderID: traderID,
		Symbol:   symbol,
		Quantity: quantity,
	}
	s.ledger = append(s.ledger, models.LedgerEntry{
		TraderID: traderID,
		Account:  models.SharesAccount(symbol),
		Debit:    quantity,
	})
}

func (s *memStore) cashBalance(traderID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var balance int64
	for _, entry := range s.ledger {
		if entry.TraderID == traderID && entry.Account == models.AccountCash {
			balance += entry.Debit - entry.Credit
		}
	}
	return balance
}

func (s *memStore) position(traderID uuid.UUID, symbol string) *models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[posKey(traderID, symbol)]
}

func (s *memStore) order(orderID uuid.UUID) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID]
}

// snapshot deep-copies the mutable state for rollback
func (s *memStore) snapshot() *memStore {
	clone := newMemStore()
	for id, order := range s.orders {
		copied := *order
		clone.orders[id] = &copied
	}
	for key, pos := range s.positions {
		copied := *pos
		clone.positions[key] = &copied
	}
	clone.trades = append([]*models.Trade(nil), s.trades...)
	clone.ledger = append([]models.LedgerEntry(nil), s.ledger...)
	clone.events = append([]memEvent(nil), s.events...)
	for symbol, seq := range s.sequences {
		clone.sequences[symbol] = seq
	}
	return clone
}

func (s *memStore) restore(snap *memStore) {
	s.orders = snap.orders
	s.positions = snap.positions
	s.trades = snap.trades
	s.ledger = snap.ledger
	s.events = snap.events
	s.sequences = snap.sequences
}

// InTransaction implements Storage with snapshot-rollback semantics
func (s *memStore) InTransaction(ctx context.Context, fn func(tx StorageTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// UnfilledOrders implements Storage
func (s *memStore) UnfilledOrders(ctx context.Context, symbol string) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unfilled []*models.Order
	for _, order := range s.orders {
		if order.Symbol == symbol && !order.Status.Terminal() {
			unfilled = append(unfilled, order)
		}
	}
	sort.Slice(unfilled, func(i, j int) bool {
		return unfilled[i].Sequence < unfilled[j].Sequence
	})
	return unfilled, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) fail(op string) error {
	if t.store.failOn == nil {
		return nil
	}
	return t.store.failOn(op)
}

func (t *memTx) Order(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if err := t.fail("order"); err != nil {
		return nil, err
	}
	order, ok := t.store.orders[orderID]
	if !ok {
		return nil, errors.Newf(errors.ErrOrderNotFound, "order %s not found", orderID)
	}
	copied := *order
	return &copied, nil
}

func (t *memTx) RecordTrade(ctx context.Context, data TradeData) (*models.Trade, error) {
	if err := t.fail("record_trade"); err != nil {
		return nil, err
	}
	trade := &models.Trade{
		TradeID:      uuid.New(),
		BuyOrderID:   data.BuyOrderID,
		SellOrderID:  data.SellOrderID,
		Symbol:       data.Symbol,
		Price:        data.Price,
		Quantity:     data.Quantity,
		BuyerID:      data.BuyerID,
		SellerID:     data.SellerID,
		TakerOrderID: data.TakerOrderID,
		MakerOrderID: data.MakerOrderID,
		ExecutedAt:   data.ExecutedAt,
	}
	t.store.trades = append(t.store.trades, trade)
	return trade, nil
}

func (t *memTx) PostTradeEntries(ctx context.Context, trade *models.Trade) error {
	if err := t.fail("post_entries"); err != nil {
		return err
	}
	notional := trade.Price * trade.Quantity
	shares := models.SharesAccount(trade.Symbol)
	t.store.ledger = append(t.store.ledger,
		models.LedgerEntry{TradeID: &trade.TradeID, TraderID: trade.BuyerID, Account: models.AccountCash, Credit: notional},
		models.LedgerEntry{TradeID: &trade.TradeID, TraderID: trade.SellerID, Account: models.AccountCash, Debit: notional},
		models.LedgerEntry{TradeID: &trade.TradeID, TraderID: trade.BuyerID, Account: shares, Debit: trade.Quantity},
		models.LedgerEntry{TradeID: &trade.TradeID, TraderID: trade.SellerID, Account: shares, Credit: trade.Quantity},
	)
	return nil
}

func (t *memTx) ApplyBuy(ctx context.Context, traderID uuid.UUID, symbol string, quantity, price int64) error {
	if err := t.fail("apply_buy"); err != nil {
		return err
	}
	key := posKey(traderID, symbol)
	position, ok := t.store.positions[key]
	if !ok {
		t.store.positions[key] = &models.Position{
			TraderID: traderID,
			Symbol:   symbol,
			Quantity: quantity,
			AvgCost:  price,
		}
		return nil
	}
	newQty := position.Quantity + quantity
	position.AvgCost = (position.Quantity*position.AvgCost + quantity*price) / newQty
	position.Quantity = newQty
	return nil
}

func (t *memTx) ApplySell(ctx context.Context, traderID uuid.UUID, symbol string, quantity int64) error {
	if err := t.fail("apply_sell"); err != nil {
		return err
	}
	position := t.store.positions[posKey(traderID, symbol)]
	var held int64
	if position != nil {
		held = position.Quantity
	}
	if held < quantity {
		return errors.Newf(errors.ErrInsufficientShares, "have %d, need %d", held, quantity)
	}
	position.Quantity -= quantity
	return nil
}

func (t *memTx) AddFill(ctx context.Context, orderID uuid.UUID, quantity int64) (*models.Order, error) {
	if err := t.fail("add_fill"); err != nil {
		return nil, err
	}
	order, ok := t.store.orders[orderID]
	if !ok {
		return nil, errors.Newf(errors.ErrOrderNotFound, "order %s not found", orderID)
	}
	newFilled := order.FilledQuantity + quantity
	if newFilled > order.Quantity {
		return nil, errors.Newf(errors.ErrOverfill, "fill %d exceeds quantity %d", newFilled, order.Quantity)
	}
	order.FilledQuantity = newFilled
	switch {
	case newFilled >= order.Quantity:
		order.Status = models.OrderStatusFilled
	case newFilled > 0:
		order.Status = models.OrderStatusPartial
	}
	copied := *order
	return &copied, nil
}

func (t *memTx) Cancel(ctx context.Context, orderID uuid.UUID, reason models.CancelReason) (*models.Order, error) {
	if err := t.fail("cancel"); err != nil {
		return nil, err
	}
	order, ok := t.store.orders[orderID]
	if !ok {
		return nil, errors.Newf(errors.ErrOrderNotFound, "order %s not found", orderID)
	}
	if order.Status.Terminal() {
		return nil, errors.Newf(errors.ErrOrderNotCancellable,
			"cannot cancel order with status %s", order.Status)
	}
	if reason == models.CancelReasonUser {
		order.Status = models.OrderStatusCancelled
	} else {
		order.Status = models.OrderStatusExpired
	}
	order.CancelReason = &reason
	copied := *order
	return &copied, nil
}

func (t *memTx) QueueTradeEvent(ctx context.Context, data TradeData, book BookState) error {
	if err := t.fail("queue_event"); err != nil {
		return err
	}
	t.store.events = append(t.store.events, memEvent{data: data, book: book})
	return nil
}

var errInjected = errors.New(errors.ErrDatabaseError, "injected failure")
