package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/config"
	"github.com/abdoElHodaky/handlex/internal/marketdata"
	"github.com/abdoElHodaky/handlex/internal/trading"
)

// Server is the HTTP surface: the read APIs plus the admin commands.
// Everything else (agents, social ingestion) talks to the services
// directly.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer wires the routes and creates the HTTP server
func NewServer(cfg *config.Config, tradingSvc *trading.Service, marketSvc *marketdata.Service, seeder *trading.Seeder, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	h := &handlers{
		trading: tradingSvc,
		market:  marketSvc,
		seeder:  seeder,
		symbols: cfg.Exchange.Symbols,
		logger:  logger,
	}

	apiGroup := router.Group("/api")
	{
		orders := apiGroup.Group("/orders")
		{
			orders.POST("/buy", h.placeBuyOrder)
			orders.POST("/sell", h.placeSellOrder)
			orders.GET("/:id", h.getOrder)
			orders.DELETE("/:id", h.cancelOrder)
		}

		traders := apiGroup.Group("/traders")
		{
			traders.GET("/:id/portfolio", h.getPortfolio)
			traders.GET("/:id/orders", h.getOpenOrders)
		}

		market := apiGroup.Group("/market")
		{
			market.GET("/prices", h.getAllPrices)
			market.GET("/:symbol/price", h.getPrice)
			market.GET("/:symbol/book", h.getBook)
			market.GET("/:symbol/trades", h.getRecentTrades)
			market.GET("/:symbol/ohlc", h.getOHLC)
		}

		admin := apiGroup.Group("/admin")
		{
			admin.POST("/traders", h.createTrader)
			admin.POST("/orders", h.placeAdminOrder)
			admin.POST("/seed", h.seedTreasury)
		}
	}

	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		logger: logger,
	}
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
