package trading

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/handlex/internal/db"
	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/db/repositories"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// OrderRouter is the engine surface the trading service needs
type OrderRouter interface {
	Submit(ctx context.Context, orderID uuid.UUID, symbol string) error
	Cancel(ctx context.Context, orderID uuid.UUID, symbol string, reason models.CancelReason) error
	Symbols() []string
}

// OrderRequest is a validated order submission
type OrderRequest struct {
	TraderID   uuid.UUID        `json:"trader_id" validate:"required"`
	Symbol     string           `json:"symbol" validate:"required"`
	Side       models.Side      `json:"side" validate:"required,oneof=BUY SELL"`
	Type       models.OrderType `json:"order_type" validate:"required,oneof=MARKET LIMIT IOC"`
	Quantity   int64            `json:"quantity" validate:"required,gt=0"`
	LimitPrice *int64           `json:"limit_price" validate:"omitempty,gt=0"`
	TifSeconds int64            `json:"tif_seconds" validate:"required,gt=0"`
}

// PositionInfo is one holding inside a portfolio view
type PositionInfo struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	AvgCost  int64  `json:"avg_cost"`
}

// Portfolio combines ledger cash with open positions
type Portfolio struct {
	TraderID    uuid.UUID      `json:"trader_id"`
	CashBalance int64          `json:"cash_balance"`
	Positions   []PositionInfo `json:"positions"`
}

// Service is the order entry surface of the exchange. Orders are written
// durably (with their sequence) and committed before they are enqueued on
// the symbol processor.
type Service struct {
	store    *db.Store
	router   OrderRouter
	validate *validator.Validate
	symbols  map[string]struct{}
	logger   *zap.Logger
}

// NewService creates a trading service
func NewService(store *db.Store, router OrderRouter, logger *zap.Logger) *Service {
	symbols := make(map[string]struct{})
	for _, symbol := range router.Symbols() {
		symbols[symbol] = struct{}{}
	}
	return &Service{
		store:    store,
		router:   router,
		validate: validator.New(),
		symbols:  symbols,
		logger:   logger,
	}
}

// ValidateRequest applies the structural rules every order must satisfy
func (s *Service) ValidateRequest(req OrderRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return errors.Wrap(err, errors.ErrInvalidOrder, "invalid order request")
	}
	if req.Type == models.OrderTypeLimit && req.LimitPrice == nil {
		return errors.New(errors.ErrInvalidPrice, "limit price required for LIMIT orders")
	}
	if _, ok := s.symbols[req.Symbol]; !ok {
		return errors.Newf(errors.ErrSymbolNotFound, "unknown symbol %s", req.Symbol)
	}
	return nil
}

// PlaceBuyOrder validates funds for limit buys, records the order and
// enqueues it on the symbol processor.
func (s *Service) PlaceBuyOrder(ctx context.Context, req OrderRequest) (uuid.UUID, error) {
	req.Side = models.SideBuy
	if err := s.ValidateRequest(req); err != nil {
		return uuid.Nil, err
	}
	if err := s.checkTraderActive(ctx, req.TraderID); err != nil {
		return uuid.Nil, err
	}
	if req.Type == models.OrderTypeLimit {
		if err := s.checkBuyingPower(ctx, req); err != nil {
			return uuid.Nil, err
		}
	}
	return s.submit(ctx, req)
}

// PlaceSellOrder validates the position covers the sale, records the
// order and enqueues it.
func (s *Service) PlaceSellOrder(ctx context.Context, req OrderRequest) (uuid.UUID, error) {
	req.Side = models.SideSell
	if err := s.ValidateRequest(req); err != nil {
		return uuid.Nil, err
	}
	if err := s.checkTraderActive(ctx, req.TraderID); err != nil {
		return uuid.Nil, err
	}
	if err := s.checkSellableShares(ctx, req); err != nil {
		return uuid.Nil, err
	}
	return s.submit(ctx, req)
}

// PlaceAdminOrder places an order for the admin account. Buys skip the
// cash check (the treasury has unlimited buying power); sells still
// require the shares.
func (s *Service) PlaceAdminOrder(ctx context.Context, req OrderRequest) (uuid.UUID, error) {
	if err := s.ValidateRequest(req); err != nil {
		return uuid.Nil, err
	}
	trader, err := s.store.Traders.GetOrNone(ctx, s.store.DB(), req.TraderID)
	if err != nil {
		return uuid.Nil, err
	}
	if trader == nil || !trader.IsAdmin {
		return uuid.Nil, errors.Newf(errors.ErrOwnershipMismatch, "trader %s is not the admin", req.TraderID)
	}
	if req.Side == models.SideSell {
		if err := s.checkSellableShares(ctx, req); err != nil {
			return uuid.Nil, err
		}
	}
	return s.submit(ctx, req)
}

// CancelOrder requests cancellation of a live order. Returns false when
// the order is already terminal; errors on unknown orders and ownership
// mismatches.
func (s *Service) CancelOrder(ctx context.Context, traderID, orderID uuid.UUID) (bool, error) {
	order, err := s.store.Orders.GetOrNone(ctx, s.store.DB(), orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, errors.Newf(errors.ErrOrderNotFound, "order %s not found", orderID)
	}
	if order.TraderID != traderID {
		return false, errors.Newf(errors.ErrOwnershipMismatch,
			"order %s not owned by trader %s", orderID, traderID)
	}
	if order.Status.Terminal() {
		return false, nil
	}

	if err := s.router.Cancel(ctx, orderID, order.Symbol, models.CancelReasonUser); err != nil {
		return false, err
	}
	return true, nil
}

// OrderStatus returns the durable view of an order
func (s *Service) OrderStatus(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.store.Orders.Get(ctx, s.store.DB(), orderID)
}

// OpenOrders lists a trader's live orders
func (s *Service) OpenOrders(ctx context.Context, traderID uuid.UUID) ([]*models.Order, error) {
	return s.store.Orders.TraderUnfilled(ctx, s.store.DB(), traderID)
}

// Portfolio returns ledger cash plus open positions
func (s *Service) Portfolio(ctx context.Context, traderID uuid.UUID) (Portfolio, error) {
	cash, err := s.store.Ledger.CashBalance(ctx, s.store.DB(), traderID)
	if err != nil {
		return Portfolio{}, err
	}
	positions, err := s.store.Positions.AllNonZero(ctx, s.store.DB(), traderID)
	if err != nil {
		return Portfolio{}, err
	}

	portfolio := Portfolio{TraderID: traderID, CashBalance: cash}
	for _, pos := range positions {
		portfolio.Positions = append(portfolio.Positions, PositionInfo{
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity,
			AvgCost:  pos.AvgCost,
		})
	}
	return portfolio, nil
}

// CreateTrader provisions a funded trader account in one transaction
func (s *Service) CreateTrader(ctx context.Context, initialCash int64) (uuid.UUID, error) {
	var traderID uuid.UUID
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trader, err := s.store.Traders.Create(ctx, tx, false)
		if err != nil {
			return err
		}
		if err := s.store.Ledger.InitializeCash(ctx, tx, trader.TraderID, initialCash); err != nil {
			return err
		}
		traderID = trader.TraderID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("Created trader",
		zap.String("trader_id", traderID.String()),
		zap.Int64("initial_cash", initialCash))
	return traderID, nil
}

func (s *Service) checkTraderActive(ctx context.Context, traderID uuid.UUID) error {
	trader, err := s.store.Traders.GetOrNone(ctx, s.store.DB(), traderID)
	if err != nil {
		return err
	}
	if trader == nil {
		return errors.Newf(errors.ErrTraderNotFound, "trader %s not found", traderID)
	}
	if !trader.IsActive {
		return errors.Newf(errors.ErrTraderInactive, "trader %s is inactive", traderID)
	}
	return nil
}

func (s *Service) checkBuyingPower(ctx context.Context, req OrderRequest) error {
	cash, err := s.store.Ledger.CashBalance(ctx, s.store.DB(), req.TraderID)
	if err != nil {
		return err
	}
	required := req.Quantity * *req.LimitPrice
	if cash < required {
		return errors.Newf(errors.ErrInsufficientFunds,
			"insufficient cash: have %d, need %d", cash, required)
	}
	return nil
}

func (s *Service) checkSellableShares(ctx context.Context, req OrderRequest) error {
	position, err := s.store.Positions.GetOrNone(ctx, s.store.DB(), req.TraderID, req.Symbol)
	if err != nil {
		return err
	}
	var held int64
	if position != nil {
		held = position.Quantity
	}
	if held < req.Quantity {
		return errors.Newf(errors.ErrInsufficientShares,
			"insufficient shares of %s: have %d, need %d", req.Symbol, held, req.Quantity)
	}
	return nil
}

// submit writes the order durably (assigning its sequence), commits, and
// enqueues it on the symbol processor.
func (s *Service) submit(ctx context.Context, req OrderRequest) (uuid.UUID, error) {
	expiresAt := time.Now().UTC().Add(time.Duration(req.TifSeconds) * time.Second)
	params := repositories.CreateOrderParams{
		TraderID:   req.TraderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		TifSeconds: req.TifSeconds,
	}

	var orderID uuid.UUID
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.store.Orders.Create(ctx, tx, params, expiresAt)
		if err != nil {
			return err
		}
		orderID = order.OrderID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.router.Submit(ctx, orderID, req.Symbol); err != nil {
		return uuid.Nil, err
	}
	return orderID, nil
}
