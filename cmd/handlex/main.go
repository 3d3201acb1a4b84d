package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/api"
	"github.com/abdoElHodaky/handlex/internal/config"
	"github.com/abdoElHodaky/handlex/internal/db"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/internal/marketdata"
	"github.com/abdoElHodaky/handlex/internal/metrics"
	"github.com/abdoElHodaky/handlex/internal/trading"
)

func main() {
	app := fx.New(
		fx.Provide(
			loadConfig,
			config.InitLogger,
			db.Open,
			db.NewStore,
			newRouter,
			newExpirationDaemon,
			marketdata.NewBus,
			newPublisher,
			newMarketService,
			newTradingService,
			newSeeder,
			api.NewServer,
			newMetricsServer,
		),
		fx.Invoke(run),
	)
	app.Run()
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig("")
}

func newRouter(cfg *config.Config, store *db.Store, logger *zap.Logger) *engine.Router {
	return engine.NewRouter(store, cfg.Exchange.Symbols, cfg.Exchange.InboxCapacity, logger)
}

func newExpirationDaemon(cfg *config.Config, store *db.Store, router *engine.Router, logger *zap.Logger) *engine.ExpirationDaemon {
	interval := time.Duration(cfg.Expiration.IntervalMillis) * time.Millisecond
	return engine.NewExpirationDaemon(store, router, interval, cfg.Expiration.BatchSize, logger)
}

func newPublisher(cfg *config.Config, store *db.Store, bus *marketdata.Bus, logger *zap.Logger) *marketdata.Publisher {
	return marketdata.NewPublisher(store, bus, cfg.Publisher.BatchSize, logger)
}

func newMarketService(router *engine.Router, store *db.Store, logger *zap.Logger) *marketdata.Service {
	return marketdata.NewService(router, store, logger)
}

func newTradingService(store *db.Store, router *engine.Router, logger *zap.Logger) *trading.Service {
	return trading.NewService(store, router, logger)
}

func newSeeder(store *db.Store, service *trading.Service, router *engine.Router, logger *zap.Logger) *trading.Seeder {
	return trading.NewSeeder(store, service, router, logger)
}

func newMetricsServer(cfg *config.Config, logger *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.Monitoring.PrometheusPort, logger)
}

// run ties the workers to the fx lifecycle. Startup order: rebuild books
// before accepting traffic, then launch the background workers, then the
// HTTP surface. Shutdown reverses it: stop intake, drain the processors,
// and stop the publisher and expiration daemon last.
func run(
	lc fx.Lifecycle,
	cfg *config.Config,
	router *engine.Router,
	daemon *engine.ExpirationDaemon,
	publisher *marketdata.Publisher,
	bus *marketdata.Bus,
	server *api.Server,
	metricsServer *metrics.Server,
	logger *zap.Logger,
) {
	var cancelWorkers context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			workerCtx, cancel := context.WithCancel(context.Background())
			cancelWorkers = cancel

			if err := router.Start(workerCtx); err != nil {
				cancel()
				return err
			}
			for i := 0; i < cfg.Publisher.Workers; i++ {
				go publisher.Run(workerCtx)
			}
			go daemon.Run(workerCtx)

			metricsServer.Start()
			server.Start()
			logger.Info("Exchange started", zap.Strings("symbols", cfg.Exchange.Symbols))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Stop(ctx); err != nil {
				logger.Warn("HTTP shutdown error", zap.Error(err))
			}
			router.Shutdown()
			if cancelWorkers != nil {
				cancelWorkers()
			}
			if err := bus.Close(); err != nil {
				logger.Warn("Bus close error", zap.Error(err))
			}
			if err := metricsServer.Stop(ctx); err != nil {
				logger.Warn("Metrics shutdown error", zap.Error(err))
			}
			logger.Info("Exchange stopped")
			return nil
		},
	})
}
