package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/marketdata"
	"github.com/abdoElHodaky/handlex/internal/trading"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

type handlers struct {
	trading *trading.Service
	market  *marketdata.Service
	seeder  *trading.Seeder
	symbols []string
	logger  *zap.Logger
}

func (h *handlers) placeBuyOrder(c *gin.Context) {
	var req trading.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orderID, err := h.trading.PlaceBuyOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": orderID})
}

func (h *handlers) placeSellOrder(c *gin.Context) {
	var req trading.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orderID, err := h.trading.PlaceSellOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": orderID})
}

func (h *handlers) getOrder(c *gin.Context) {
	orderID, ok := parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	order, err := h.trading.OrderStatus(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) cancelOrder(c *gin.Context) {
	orderID, ok := parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	traderID, ok := parseUUID(c, c.Query("trader_id"))
	if !ok {
		return
	}
	cancelled, err := h.trading.CancelOrder(c.Request.Context(), traderID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (h *handlers) getPortfolio(c *gin.Context) {
	traderID, ok := parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	portfolio, err := h.trading.Portfolio(c.Request.Context(), traderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

func (h *handlers) getOpenOrders(c *gin.Context) {
	traderID, ok := parseUUID(c, c.Param("id"))
	if !ok {
		return
	}
	orders, err := h.trading.OpenOrders(c.Request.Context(), traderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handlers) getAllPrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prices": h.market.Prices()})
}

func (h *handlers) getPrice(c *gin.Context) {
	price, err := h.market.Price(c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, price)
}

func (h *handlers) getBook(c *gin.Context) {
	book, err := h.market.Book(c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *handlers) getRecentTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	trades, err := h.market.RecentTrades(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (h *handlers) getOHLC(c *gin.Context) {
	candles, err := h.market.OHLC(c.Request.Context(), c.Param("symbol"), c.DefaultQuery("range", "1d"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

type createTraderRequest struct {
	InitialCash int64 `json:"initial_cash" binding:"required,gt=0"`
}

func (h *handlers) createTrader(c *gin.Context) {
	var req createTraderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	traderID, err := h.trading.CreateTrader(c.Request.Context(), req.InitialCash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trader_id": traderID})
}

func (h *handlers) placeAdminOrder(c *gin.Context) {
	var req trading.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orderID, err := h.trading.PlaceAdminOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": orderID})
}

func (h *handlers) seedTreasury(c *gin.Context) {
	if err := h.seeder.Seed(c.Request.Context(), h.symbols); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seeded": true})
}

func parseUUID(c *gin.Context, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id: " + raw})
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.IsClientError(err) {
		status = http.StatusBadRequest
		if errors.Is(err, errors.ErrOrderNotFound) || errors.Is(err, errors.ErrTraderNotFound) || errors.Is(err, errors.ErrSymbolNotFound) {
			status = http.StatusNotFound
		}
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
