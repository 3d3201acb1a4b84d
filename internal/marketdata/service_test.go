package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/db/repositories"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

type fakeBooks struct {
	state engine.BookState
	last  *int64
}

func (f *fakeBooks) Book(symbol string) (engine.Snapshot, error) {
	return engine.Snapshot{Symbol: symbol}, nil
}

func (f *fakeBooks) BookState(symbol string) (engine.BookState, error) {
	return f.state, nil
}

func (f *fakeBooks) LastPrice(symbol string) (*int64, error) {
	return f.last, nil
}

func (f *fakeBooks) Symbols() []string { return []string{"@alice"} }

type fakeTrades struct {
	candles  []repositories.Candle
	trades   []*models.Trade
	gotLimit int
	gotTrunc string
}

func (f *fakeTrades) RecentTrades(ctx context.Context, symbol string, limit int) ([]*models.Trade, error) {
	f.gotLimit = limit
	return f.trades, nil
}

func (f *fakeTrades) Candles(ctx context.Context, symbol, trunc string, since time.Time) ([]repositories.Candle, error) {
	f.gotTrunc = trunc
	return f.candles, nil
}

func i64(v int64) *int64 { return &v }

func TestService_PriceIncludesSpread(t *testing.T) {
	books := &fakeBooks{
		state: engine.BookState{
			BestBid: i64(95), BidSize: i64(3),
			BestAsk: i64(105), AskSize: i64(7),
		},
		last: i64(100),
	}
	svc := NewService(books, &fakeTrades{}, zap.NewNop())

	price, err := svc.Price("@alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), *price.LastPrice)
	assert.Equal(t, int64(95), *price.BestBid)
	assert.Equal(t, int64(105), *price.BestAsk)
	assert.Equal(t, int64(10), *price.Spread)
}

func TestService_PriceEmptyBook(t *testing.T) {
	svc := NewService(&fakeBooks{}, &fakeTrades{}, zap.NewNop())

	price, err := svc.Price("@alice")
	require.NoError(t, err)
	assert.Nil(t, price.LastPrice)
	assert.Nil(t, price.Spread)
}

func TestService_RecentTradesCapped(t *testing.T) {
	trades := &fakeTrades{}
	svc := NewService(&fakeBooks{}, trades, zap.NewNop())

	_, err := svc.RecentTrades(context.Background(), "@alice", 10_000)
	require.NoError(t, err)
	assert.Equal(t, 500, trades.gotLimit)

	_, err = svc.RecentTrades(context.Background(), "@alice", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, trades.gotLimit)
}

func TestService_OHLCUnknownRange(t *testing.T) {
	svc := NewService(&fakeBooks{}, &fakeTrades{}, zap.NewNop())
	_, err := svc.OHLC(context.Background(), "@alice", "2h")
	require.Error(t, err)
	assert.True(t, errors.IsClientError(err))
}

func TestService_OHLCWeekRangeCoalesces(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	trades := &fakeTrades{}
	for i := 0; i < 12; i++ {
		trades.candles = append(trades.candles, repositories.Candle{
			Bucket: base.Add(time.Duration(i) * time.Hour),
			Open:   int64(100 + i),
			High:   int64(110 + i),
			Low:    int64(90 + i),
			Close:  int64(105 + i),
			Volume: 10,
		})
	}
	svc := NewService(&fakeBooks{}, trades, zap.NewNop())

	candles, err := svc.OHLC(context.Background(), "@alice", "1w")
	require.NoError(t, err)
	assert.Equal(t, "hour", trades.gotTrunc)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, base, first.Bucket)
	assert.Equal(t, int64(100), first.Open)
	assert.Equal(t, int64(115), first.High)
	assert.Equal(t, int64(90), first.Low)
	assert.Equal(t, int64(110), first.Close)
	assert.Equal(t, int64(60), first.Volume)

	second := candles[1]
	assert.Equal(t, base.Add(6*time.Hour), second.Bucket)
	assert.Equal(t, int64(106), second.Open)
	assert.Equal(t, int64(121), second.High)
	assert.Equal(t, int64(96), second.Low)
	assert.Equal(t, int64(116), second.Close)
}

func TestCoalesceCandles_UnevenTail(t *testing.T) {
	candles := []repositories.Candle{
		{Open: 1, High: 5, Low: 1, Close: 2, Volume: 1},
		{Open: 2, High: 9, Low: 0, Close: 3, Volume: 2},
		{Open: 3, High: 4, Low: 3, Close: 4, Volume: 3},
	}
	merged := CoalesceCandles(candles, 2)
	require.Len(t, merged, 2)
	assert.Equal(t, int64(9), merged[0].High)
	assert.Equal(t, int64(0), merged[0].Low)
	assert.Equal(t, int64(3), merged[0].Close)
	assert.Equal(t, int64(3), merged[0].Volume)
	assert.Equal(t, int64(4), merged[1].Close)

	assert.Equal(t, candles, CoalesceCandles(candles, 1))
}
