package engine

import (
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/google/uuid"

	"github.com/abdoElHodaky/handlex/internal/db/models"
)

// BookEntry is a single resting order in the book
type BookEntry struct {
	OrderID   uuid.UUID
	TraderID  uuid.UUID
	Quantity  int64
	Remaining int64
	Price     int64
	Sequence  int64
	CreatedAt time.Time
}

// BookState is the top of book used in market data payloads
type BookState struct {
	BestBid *int64 `json:"best_bid"`
	BestAsk *int64 `json:"best_ask"`
	BidSize *int64 `json:"bid_size"`
	AskSize *int64 `json:"ask_size"`
}

// PriceLevel is one aggregated level of a depth snapshot
type PriceLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Snapshot is the aggregated depth of one book. Bids are sorted high to
// low, asks low to high.
type Snapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	LastPrice *int64       `json:"last_price"`
	Timestamp time.Time    `json:"timestamp"`
}

// OrderBook is the in-memory book for a single symbol. Price levels are
// red-black trees keyed by price in cents; each level holds a FIFO queue
// of entries so maker age is preserved. The book is owned by its symbol
// processor and must only be mutated from that processor's loop.
type OrderBook struct {
	Symbol    string
	LastPrice *int64

	bids *redblacktree.Tree // price -> []*BookEntry, highest first
	asks *redblacktree.Tree // price -> []*BookEntry, lowest first
}

// NewOrderBook creates an empty book for a symbol
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids: redblacktree.NewWith(func(a, b interface{}) int {
			return utils.Int64Comparator(b, a)
		}),
		asks: redblacktree.NewWith(utils.Int64Comparator),
	}
}

func (b *OrderBook) sideTree(side models.Side) *redblacktree.Tree {
	if side == models.SideBuy {
		return b.bids
	}
	return b.asks
}

// Add appends an entry to the FIFO queue at its price level
func (b *OrderBook) Add(side models.Side, price int64, entry *BookEntry) {
	tree := b.sideTree(side)
	if level, found := tree.Get(price); found {
		tree.Put(price, append(level.([]*BookEntry), entry))
		return
	}
	tree.Put(price, []*BookEntry{entry})
}

// Remove deletes the entry with the given order ID from a price level.
// Empty levels are dropped. Returns false if the order is not in the book.
func (b *OrderBook) Remove(side models.Side, price int64, orderID uuid.UUID) bool {
	tree := b.sideTree(side)
	raw, found := tree.Get(price)
	if !found {
		return false
	}
	level := raw.([]*BookEntry)
	for i, entry := range level {
		if entry.OrderID != orderID {
			continue
		}
		level = append(level[:i], level[i+1:]...)
		if len(level) == 0 {
			tree.Remove(price)
		} else {
			tree.Put(price, level)
		}
		return true
	}
	return false
}

// BestBid returns the highest bid level
func (b *OrderBook) BestBid() (int64, []*BookEntry, bool) {
	return best(b.bids)
}

// BestAsk returns the lowest ask level
func (b *OrderBook) BestAsk() (int64, []*BookEntry, bool) {
	return best(b.asks)
}

func best(tree *redblacktree.Tree) (int64, []*BookEntry, bool) {
	node := tree.Left()
	if node == nil {
		return 0, nil, false
	}
	return node.Key.(int64), node.Value.([]*BookEntry), true
}

// setLevel replaces the queue at a price, dropping the level when empty
func (b *OrderBook) setLevel(side models.Side, price int64, level []*BookEntry) {
	tree := b.sideTree(side)
	if len(level) == 0 {
		tree.Remove(price)
		return
	}
	tree.Put(price, level)
}

// State returns the current top of book
func (b *OrderBook) State() BookState {
	var state BookState
	if price, level, ok := b.BestBid(); ok {
		size := levelSize(level)
		state.BestBid, state.BidSize = &price, &size
	}
	if price, level, ok := b.BestAsk(); ok {
		size := levelSize(level)
		state.BestAsk, state.AskSize = &price, &size
	}
	return state
}

// DepthSnapshot aggregates remaining quantity per price on both sides
func (b *OrderBook) DepthSnapshot() Snapshot {
	snap := Snapshot{
		Symbol:    b.Symbol,
		LastPrice: b.LastPrice,
		Timestamp: time.Now().UTC(),
	}
	for it := b.bids.Iterator(); it.Next(); {
		snap.Bids = append(snap.Bids, PriceLevel{
			Price:    it.Key().(int64),
			Quantity: levelSize(it.Value().([]*BookEntry)),
		})
	}
	for it := b.asks.Iterator(); it.Next(); {
		snap.Asks = append(snap.Asks, PriceLevel{
			Price:    it.Key().(int64),
			Quantity: levelSize(it.Value().([]*BookEntry)),
		})
	}
	return snap
}

func levelSize(level []*BookEntry) int64 {
	var total int64
	for _, entry := range level {
		total += entry.Remaining
	}
	return total
}
