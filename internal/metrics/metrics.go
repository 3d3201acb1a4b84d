package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Exchange counters. Labelled by symbol where the cardinality is bounded
// by the configured symbol list.
var (
	OrdersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handlex_orders_processed_total",
		Help: "Orders handled by symbol processors",
	}, []string{"symbol"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handlex_trades_executed_total",
		Help: "Trades produced by matching",
	}, []string{"symbol"})

	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handlex_orders_expired_total",
		Help: "Orders cancelled by the expiration daemon",
	})

	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handlex_outbox_published_total",
		Help: "Outbox events published to the event bus",
	})

	ProcessorRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handlex_processor_retries_total",
		Help: "Message retries after transient storage failures",
	}, []string{"symbol"})
)

// Server exposes the prometheus registry over HTTP
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server on the given port
func NewServer(port int, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv:    &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
		logger: logger,
	}
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
