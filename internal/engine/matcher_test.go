package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/handlex/internal/db/models"
)

func limitOrder(trader uuid.UUID, side models.Side, quantity, price int64, sequence int64) *models.Order {
	return &models.Order{
		OrderID:    uuid.New(),
		TraderID:   trader,
		Symbol:     "@alice",
		Side:       side,
		Type:       models.OrderTypeLimit,
		Quantity:   quantity,
		LimitPrice: &price,
		Status:     models.OrderStatusPending,
		Sequence:   sequence,
	}
}

func marketOrder(trader uuid.UUID, side models.Side, quantity int64) *models.Order {
	return &models.Order{
		OrderID:  uuid.New(),
		TraderID: trader,
		Symbol:   "@alice",
		Side:     side,
		Type:     models.OrderTypeMarket,
		Quantity: quantity,
		Status:   models.OrderStatusPending,
	}
}

func TestMatcher_LimitBuyBelowAskRests(t *testing.T) {
	m := NewMatcher("@alice")
	seller := uuid.New()

	ask := limitOrder(seller, models.SideSell, 5, 100, 1)
	m.AddToBook(ask)

	buy := limitOrder(uuid.New(), models.SideBuy, 5, 90, 2)
	trades, remaining := m.Match(buy)
	assert.Empty(t, trades)
	assert.Equal(t, int64(5), remaining)

	m.AddToBook(buy)
	price, _, ok := m.Book.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(90), price)
}

func TestMatcher_TradesAtMakerPrice(t *testing.T) {
	m := NewMatcher("@alice")
	seller := uuid.New()
	buyer := uuid.New()

	m.AddToBook(limitOrder(seller, models.SideSell, 10, 100, 1))

	buy := limitOrder(buyer, models.SideBuy, 4, 120, 2)
	trades, remaining := m.Match(buy)

	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Price)
	assert.Equal(t, int64(4), trades[0].Quantity)
	assert.Equal(t, buyer, trades[0].BuyerID)
	assert.Equal(t, seller, trades[0].SellerID)
	assert.Equal(t, buy.OrderID, trades[0].TakerOrderID)
	assert.Equal(t, int64(0), remaining)

	// Maker keeps its residue at the same level
	price, level, ok := m.Book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(100), price)
	require.Len(t, level, 1)
	assert.Equal(t, int64(6), level[0].Remaining)
}

func TestMatcher_PriceTimePriority(t *testing.T) {
	m := NewMatcher("@alice")

	older := limitOrder(uuid.New(), models.SideSell, 5, 100, 1)
	newer := limitOrder(uuid.New(), models.SideSell, 5, 100, 2)
	cheaper := limitOrder(uuid.New(), models.SideSell, 5, 95, 3)
	m.AddToBook(older)
	m.AddToBook(newer)
	m.AddToBook(cheaper)

	buy := limitOrder(uuid.New(), models.SideBuy, 8, 100, 4)
	trades, remaining := m.Match(buy)

	require.Len(t, trades, 2)
	// Better price first, then the older maker at the shared level
	assert.Equal(t, cheaper.OrderID, trades[0].MakerOrderID)
	assert.Equal(t, int64(95), trades[0].Price)
	assert.Equal(t, int64(5), trades[0].Quantity)
	assert.Equal(t, older.OrderID, trades[1].MakerOrderID)
	assert.Equal(t, int64(100), trades[1].Price)
	assert.Equal(t, int64(3), trades[1].Quantity)
	assert.Equal(t, int64(0), remaining)
}

func TestMatcher_MarketSweepsAndLeavesResidue(t *testing.T) {
	m := NewMatcher("@alice")
	m.AddToBook(limitOrder(uuid.New(), models.SideSell, 6, 100, 1))

	trades, remaining := m.Match(marketOrder(uuid.New(), models.SideBuy, 7))
	require.Len(t, trades, 1)
	assert.Equal(t, int64(6), trades[0].Quantity)
	assert.Equal(t, int64(1), remaining)

	_, _, ok := m.Book.BestAsk()
	assert.False(t, ok, "ask side should be swept clean")
}

func TestMatcher_MarketBuyEmptyBook(t *testing.T) {
	m := NewMatcher("@alice")
	trades, remaining := m.Match(marketOrder(uuid.New(), models.SideBuy, 5))
	assert.Empty(t, trades)
	assert.Equal(t, int64(5), remaining)
}

func TestMatcher_IOCHonorsLimit(t *testing.T) {
	m := NewMatcher("@alice")
	m.AddToBook(limitOrder(uuid.New(), models.SideSell, 5, 50, 1))

	limit := int64(45)
	ioc := &models.Order{
		OrderID:    uuid.New(),
		TraderID:   uuid.New(),
		Symbol:     "@alice",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		Quantity:   10,
		LimitPrice: &limit,
		Status:     models.OrderStatusPending,
	}
	trades, remaining := m.Match(ioc)
	assert.Empty(t, trades)
	assert.Equal(t, int64(10), remaining)

	// Book untouched
	price, level, ok := m.Book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(50), price)
	assert.Equal(t, int64(5), level[0].Remaining)
}

func TestMatcher_CancelInBook(t *testing.T) {
	m := NewMatcher("@alice")
	resting := limitOrder(uuid.New(), models.SideSell, 5, 100, 1)
	m.AddToBook(resting)

	assert.True(t, m.CancelInBook(resting))
	assert.False(t, m.CancelInBook(resting))

	market := marketOrder(uuid.New(), models.SideBuy, 1)
	assert.False(t, m.CancelInBook(market), "market orders never rest")
}

func TestMatcher_PartialFillLeavesTakerResidue(t *testing.T) {
	m := NewMatcher("@alice")
	m.AddToBook(limitOrder(uuid.New(), models.SideSell, 5, 50, 1))
	m.AddToBook(limitOrder(uuid.New(), models.SideSell, 5, 60, 2))

	buy := limitOrder(uuid.New(), models.SideBuy, 8, 55, 3)
	trades, remaining := m.Match(buy)

	require.Len(t, trades, 1)
	assert.Equal(t, int64(50), trades[0].Price)
	assert.Equal(t, int64(5), trades[0].Quantity)
	assert.Equal(t, int64(3), remaining)
}
