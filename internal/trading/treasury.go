package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/handlex/internal/db"
	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/db/repositories"
)

// Treasury seeding defaults. The ladder posts liquidity around par:
// fractions of the float at relative price levels, bids below 1.0 and
// asks above.
const (
	treasuryQuantity = 10000
	parPriceCents    = 5000
	longTifSeconds   = 365 * 24 * 60 * 60
)

type ladderLevel struct {
	mult float64
	frac float64
}

var defaultLadder = []ladderLevel{
	{0.80, 0.05},
	{0.90, 0.10},
	{0.95, 0.15},
	{0.98, 0.20},
	{1.02, 0.20},
	{1.05, 0.15},
	{1.10, 0.10},
	{1.20, 0.05},
}

// Seeder provisions the treasury account: the single admin trader that
// issues initial shares per symbol and posts the opening bid/ask ladder.
type Seeder struct {
	store   *db.Store
	service *Service
	router  OrderRouter
	logger  *zap.Logger
}

// NewSeeder creates a treasury seeder
func NewSeeder(store *db.Store, service *Service, router OrderRouter, logger *zap.Logger) *Seeder {
	return &Seeder{store: store, service: service, router: router, logger: logger}
}

// Seed runs the full treasury provisioning for every symbol. Symbols
// whose shares already circulate outside the treasury are left alone.
func (s *Seeder) Seed(ctx context.Context, symbols []string) error {
	treasury, err := s.ensureTreasuryTrader(ctx)
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		circulating, err := s.store.Positions.AnyCirculating(ctx, s.store.DB(), symbol, treasury.TraderID)
		if err != nil {
			return err
		}
		if circulating {
			s.logger.Info("Skipping seeded symbol, shares already circulating",
				zap.String("symbol", symbol))
			continue
		}
		if err := s.ensureTreasuryShares(ctx, treasury.TraderID, symbol); err != nil {
			return err
		}
		if err := s.postAskLadder(ctx, treasury.TraderID, symbol); err != nil {
			return err
		}
		if err := s.postBidLadder(ctx, treasury.TraderID, symbol); err != nil {
			return err
		}
	}

	s.logger.Info("Treasury seeded",
		zap.String("treasury_id", treasury.TraderID.String()),
		zap.Int("symbols", len(symbols)))
	return nil
}

// ensureTreasuryTrader returns the single admin trader, creating it if
// needed. The partial unique index on is_admin backs the singleton.
func (s *Seeder) ensureTreasuryTrader(ctx context.Context) (*models.TraderAccount, error) {
	existing, err := s.store.Traders.Admin(ctx, s.store.DB())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var treasury *models.TraderAccount
	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trader, err := s.store.Traders.Create(ctx, tx, true)
		if err != nil {
			return err
		}
		treasury = trader
		return nil
	})
	if err != nil {
		return nil, err
	}
	return treasury, nil
}

// ensureTreasuryShares mints the float to the treasury, keeping the
// position and the ledger shares account in step.
func (s *Seeder) ensureTreasuryShares(ctx context.Context, treasuryID uuid.UUID, symbol string) error {
	return s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.store.Positions.GetOrNone(ctx, tx, treasuryID, symbol)
		if err != nil {
			return err
		}
		var currentQty int64
		if current != nil {
			currentQty = current.Quantity
		}
		delta := int64(treasuryQuantity) - currentQty

		if current == nil {
			position := &models.Position{
				TraderID: treasuryID,
				Symbol:   symbol,
				Quantity: treasuryQuantity,
				AvgCost:  0,
			}
			if err := tx.Create(position).Error; err != nil {
				return err
			}
		} else if delta != 0 {
			err := tx.Model(&models.Position{}).
				Where("trader_id = ? AND symbol = ?", treasuryID, symbol).
				Update("quantity", int64(treasuryQuantity)).Error
			if err != nil {
				return err
			}
		}

		description := fmt.Sprintf("Initial issuance: %+d %s shares to treasury", delta, symbol)
		return s.store.Ledger.AdjustShares(ctx, tx, treasuryID, symbol, delta, description)
	})
}

// postAskLadder creates the long-dated sell levels above par and submits
// them to the live engine so they appear in the book immediately.
func (s *Seeder) postAskLadder(ctx context.Context, treasuryID uuid.UUID, symbol string) error {
	expiresAt := time.Now().UTC().Add(longTifSeconds * time.Second)

	existing, err := s.store.Orders.TraderUnfilled(ctx, s.store.DB(), treasuryID)
	if err != nil {
		return err
	}
	posted := make(map[int64]bool)
	for _, order := range existing {
		if order.Symbol == symbol && order.Side == models.SideSell && order.LimitPrice != nil {
			posted[*order.LimitPrice] = true
		}
	}

	for _, level := range defaultLadder {
		if level.mult <= 1.0 {
			continue
		}
		price := int64(math.Round(parPriceCents * level.mult))
		if posted[price] {
			continue
		}
		qty := int64(float64(treasuryQuantity) * level.frac)
		if qty < 1 {
			qty = 1
		}

		var orderID uuid.UUID
		err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order, err := s.store.Orders.Create(ctx, tx, repositories.CreateOrderParams{
				TraderID:   treasuryID,
				Symbol:     symbol,
				Side:       models.SideSell,
				Type:       models.OrderTypeLimit,
				Quantity:   qty,
				LimitPrice: &price,
				TifSeconds: longTifSeconds,
			}, expiresAt)
			if err != nil {
				return err
			}
			orderID = order.OrderID
			return nil
		})
		if err != nil {
			return err
		}
		if err := s.router.Submit(ctx, orderID, symbol); err != nil {
			s.logger.Warn("Seeded ask not submitted to live engine, will appear after rebuild",
				zap.String("symbol", symbol),
				zap.Int64("price", price),
				zap.Error(err))
		}
	}
	return nil
}

// postBidLadder places the admin buy levels below par through the normal
// admin order path.
func (s *Seeder) postBidLadder(ctx context.Context, treasuryID uuid.UUID, symbol string) error {
	existing, err := s.store.Orders.TraderUnfilled(ctx, s.store.DB(), treasuryID)
	if err != nil {
		return err
	}
	posted := make(map[int64]bool)
	for _, order := range existing {
		if order.Symbol == symbol && order.Side == models.SideBuy && order.LimitPrice != nil {
			posted[*order.LimitPrice] = true
		}
	}

	for _, level := range defaultLadder {
		if level.mult >= 1.0 {
			continue
		}
		price := int64(math.Round(parPriceCents * level.mult))
		if posted[price] {
			continue
		}
		qty := int64(float64(treasuryQuantity) * level.frac)
		if qty < 1 {
			qty = 1
		}

		_, err := s.service.PlaceAdminOrder(ctx, OrderRequest{
			TraderID:   treasuryID,
			Symbol:     symbol,
			Side:       models.SideBuy,
			Type:       models.OrderTypeLimit,
			Quantity:   qty,
			LimitPrice: &price,
			TifSeconds: longTifSeconds,
		})
		if err != nil {
			s.logger.Warn("Failed to post seeded bid",
				zap.String("symbol", symbol),
				zap.Int64("price", price),
				zap.Error(err))
			continue
		}
	}
	return nil
}
