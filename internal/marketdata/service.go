package marketdata

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/db/repositories"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

const maxRecentTrades = 500

// BookSource exposes the in-memory books; satisfied by the engine router
type BookSource interface {
	Book(symbol string) (engine.Snapshot, error)
	BookState(symbol string) (engine.BookState, error)
	LastPrice(symbol string) (*int64, error)
	Symbols() []string
}

// TradeSource exposes committed trade history; satisfied by db.Store
type TradeSource interface {
	RecentTrades(ctx context.Context, symbol string, limit int) ([]*models.Trade, error)
	Candles(ctx context.Context, symbol, trunc string, since time.Time) ([]repositories.Candle, error)
}

// PriceInfo is the current market view of one symbol
type PriceInfo struct {
	Symbol    string    `json:"symbol"`
	LastPrice *int64    `json:"last_price"`
	BestBid   *int64    `json:"best_bid"`
	BestAsk   *int64    `json:"best_ask"`
	BidSize   *int64    `json:"bid_size"`
	AskSize   *int64    `json:"ask_size"`
	Spread    *int64    `json:"spread"`
	Timestamp time.Time `json:"timestamp"`
}

// ohlcRange maps an API range onto a truncation unit, a window and the
// number of hourly buckets coalesced per candle.
type ohlcRange struct {
	trunc    string
	window   time.Duration
	coalesce int
}

// Supported chart ranges. "1w" uses six-hour candles built from hourly
// truncation; coalescing groups blocks of six starting at the oldest
// hourly bucket in the window.
var ohlcRanges = map[string]ohlcRange{
	"1d": {trunc: "hour", window: 24 * time.Hour},
	"1w": {trunc: "hour", window: 7 * 24 * time.Hour, coalesce: 6},
	"1m": {trunc: "day", window: 30 * 24 * time.Hour},
	"6m": {trunc: "day", window: 180 * 24 * time.Hour},
	"1y": {trunc: "week", window: 365 * 24 * time.Hour},
}

// Service answers read-only market data queries from committed state and
// the processors' books. Readers never mutate books.
type Service struct {
	books  BookSource
	trades TradeSource
	logger *zap.Logger
}

// NewService creates a market data service
func NewService(books BookSource, trades TradeSource, logger *zap.Logger) *Service {
	return &Service{books: books, trades: trades, logger: logger}
}

// Price returns last trade price plus top of book for a symbol
func (s *Service) Price(symbol string) (PriceInfo, error) {
	state, err := s.books.BookState(symbol)
	if err != nil {
		return PriceInfo{}, err
	}
	last, err := s.books.LastPrice(symbol)
	if err != nil {
		return PriceInfo{}, err
	}

	info := PriceInfo{
		Symbol:    symbol,
		LastPrice: last,
		BestBid:   state.BestBid,
		BestAsk:   state.BestAsk,
		BidSize:   state.BidSize,
		AskSize:   state.AskSize,
		Timestamp: time.Now().UTC(),
	}
	if state.BestBid != nil && state.BestAsk != nil {
		spread := *state.BestAsk - *state.BestBid
		info.Spread = &spread
	}
	return info, nil
}

// Prices returns the market view for every configured symbol
func (s *Service) Prices() []PriceInfo {
	symbols := s.books.Symbols()
	prices := make([]PriceInfo, 0, len(symbols))
	for _, symbol := range symbols {
		info, err := s.Price(symbol)
		if err != nil {
			info = PriceInfo{Symbol: symbol, Timestamp: time.Now().UTC()}
		}
		prices = append(prices, info)
	}
	return prices
}

// Book returns the aggregated depth snapshot for a symbol
func (s *Service) Book(symbol string) (engine.Snapshot, error) {
	return s.books.Book(symbol)
}

// RecentTrades returns up to limit latest trades, capped at 500
func (s *Service) RecentTrades(ctx context.Context, symbol string, limit int) ([]*models.Trade, error) {
	if limit <= 0 || limit > maxRecentTrades {
		limit = maxRecentTrades
	}
	return s.trades.RecentTrades(ctx, symbol, limit)
}

// OHLC returns candles for one of the chart ranges {1d,1w,1m,6m,1y}.
// The aggregation is a pure function of the trade table over the window.
func (s *Service) OHLC(ctx context.Context, symbol, rng string) ([]repositories.Candle, error) {
	bucketing, ok := ohlcRanges[rng]
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidOrder, "unsupported ohlc range %q", rng)
	}

	since := time.Now().UTC().Add(-bucketing.window)
	candles, err := s.trades.Candles(ctx, symbol, bucketing.trunc, since)
	if err != nil {
		return nil, err
	}
	if bucketing.coalesce > 1 {
		candles = CoalesceCandles(candles, bucketing.coalesce)
	}
	return candles, nil
}

// CoalesceCandles merges consecutive candles in blocks of n, oldest
// first. Each merged candle keeps the block's first open and timestamp,
// last close, price extremes and summed volume.
func CoalesceCandles(candles []repositories.Candle, n int) []repositories.Candle {
	if n <= 1 || len(candles) == 0 {
		return candles
	}
	merged := make([]repositories.Candle, 0, (len(candles)+n-1)/n)
	for i := 0; i < len(candles); i += n {
		end := i + n
		if end > len(candles) {
			end = len(candles)
		}
		block := candles[i:end]
		candle := block[0]
		for _, c := range block[1:] {
			if c.High > candle.High {
				candle.High = c.High
			}
			if c.Low < candle.Low {
				candle.Low = c.Low
			}
			candle.Close = c.Close
			candle.Volume += c.Volume
		}
		merged = append(merged, candle)
	}
	return merged
}
