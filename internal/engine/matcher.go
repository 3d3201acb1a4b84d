package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/abdoElHodaky/handlex/internal/db/models"
)

// TradeData describes a single fill produced by the matcher. It is the
// input to trade recording, settlement and the outbox event.
type TradeData struct {
	BuyOrderID   uuid.UUID
	SellOrderID  uuid.UUID
	Symbol       string
	Price        int64
	Quantity     int64
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	TakerOrderID uuid.UUID
	MakerOrderID uuid.UUID
	ExecutedAt   time.Time
}

// Matcher applies incoming orders to one symbol's book with price-time
// priority. It mutates only the in-memory book; durable writes are the
// caller's job.
type Matcher struct {
	Symbol string
	Book   *OrderBook
}

// NewMatcher creates a matcher with an empty book
func NewMatcher(symbol string) *Matcher {
	return &Matcher{Symbol: symbol, Book: NewOrderBook(symbol)}
}

// Match executes an order against the book and returns the fills plus the
// unmatched remainder. LIMIT walks crossable levels only; MARKET sweeps
// until the opposite side is empty; IOC sweeps like MARKET, honoring a
// limit when one is supplied. The caller decides what the remainder means
// (rest, discard, or expire).
func (m *Matcher) Match(order *models.Order) ([]TradeData, int64) {
	switch order.Type {
	case models.OrderTypeLimit:
		return m.sweep(order, order.LimitPrice)
	case models.OrderTypeIOC:
		return m.sweep(order, order.LimitPrice)
	default:
		return m.sweep(order, nil)
	}
}

// sweep consumes opposite-side levels best-first. A nil limit matches at
// any price.
func (m *Matcher) sweep(order *models.Order, limit *int64) ([]TradeData, int64) {
	var trades []TradeData
	remaining := order.Remaining()

	for remaining > 0 {
		price, level, ok := m.bestOpposite(order.Side)
		if !ok {
			break
		}
		if limit != nil && !crosses(order.Side, price, *limit) {
			break
		}
		var levelTrades []TradeData
		levelTrades, remaining = m.matchAtLevel(order, price, level, remaining)
		trades = append(trades, levelTrades...)
	}
	return trades, remaining
}

func (m *Matcher) bestOpposite(side models.Side) (int64, []*BookEntry, bool) {
	if side == models.SideBuy {
		return m.Book.BestAsk()
	}
	return m.Book.BestBid()
}

func crosses(side models.Side, bookPrice, limit int64) bool {
	if side == models.SideBuy {
		return bookPrice <= limit
	}
	return bookPrice >= limit
}

// matchAtLevel fills against the FIFO queue at one price. Makers that
// reach zero are removed; the level is dropped when its queue empties.
func (m *Matcher) matchAtLevel(taker *models.Order, price int64, level []*BookEntry, remaining int64) ([]TradeData, int64) {
	opposite := oppositeSide(taker.Side)
	var trades []TradeData
	kept := make([]*BookEntry, 0, len(level))

	for i, maker := range level {
		if remaining <= 0 {
			kept = append(kept, level[i:]...)
			break
		}
		fill := remaining
		if maker.Remaining < fill {
			fill = maker.Remaining
		}
		trades = append(trades, m.newTrade(taker, maker, fill, price))
		remaining -= fill
		maker.Remaining -= fill
		if maker.Remaining > 0 {
			kept = append(kept, maker)
		}
	}

	m.Book.setLevel(opposite, price, kept)
	return trades, remaining
}

func oppositeSide(side models.Side) models.Side {
	if side == models.SideBuy {
		return models.SideSell
	}
	return models.SideBuy
}

// newTrade builds the fill record. Price is always the maker's resting
// price; buyer and seller follow from the taker's side.
func (m *Matcher) newTrade(taker *models.Order, maker *BookEntry, quantity, price int64) TradeData {
	trade := TradeData{
		Symbol:       m.Symbol,
		Price:        price,
		Quantity:     quantity,
		TakerOrderID: taker.OrderID,
		MakerOrderID: maker.OrderID,
		ExecutedAt:   time.Now().UTC(),
	}
	if taker.Side == models.SideBuy {
		trade.BuyOrderID = taker.OrderID
		trade.SellOrderID = maker.OrderID
		trade.BuyerID = taker.TraderID
		trade.SellerID = maker.TraderID
	} else {
		trade.BuyOrderID = maker.OrderID
		trade.SellOrderID = taker.OrderID
		trade.BuyerID = maker.TraderID
		trade.SellerID = taker.TraderID
	}
	return trade
}

// AddToBook rests the unfilled portion of a limit order. Market and IOC
// orders never rest.
func (m *Matcher) AddToBook(order *models.Order) {
	if order.Type != models.OrderTypeLimit || order.LimitPrice == nil {
		return
	}
	if order.Remaining() <= 0 {
		return
	}
	m.Book.Add(order.Side, *order.LimitPrice, &BookEntry{
		OrderID:   order.OrderID,
		TraderID:  order.TraderID,
		Quantity:  order.Quantity,
		Remaining: order.Remaining(),
		Price:     *order.LimitPrice,
		Sequence:  order.Sequence,
		CreatedAt: order.CreatedAt,
	})
}

// CancelInBook removes a resting order. Returns false for orders that
// never rest or are no longer present.
func (m *Matcher) CancelInBook(order *models.Order) bool {
	if order.Type != models.OrderTypeLimit || order.LimitPrice == nil {
		return false
	}
	return m.Book.Remove(order.Side, *order.LimitPrice, order.OrderID)
}
