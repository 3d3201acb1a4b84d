// Command seed-treasury provisions the treasury account: the single
// admin trader, the initial share float per symbol and the opening
// bid/ask ladder around par. Safe to re-run; symbols whose shares are
// already circulating are skipped.
package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/config"
	"github.com/abdoElHodaky/handlex/internal/db"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/internal/trading"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := config.InitLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	gdb, err := db.Open(cfg, logger)
	if err != nil {
		logger.Fatal("Database open failed", zap.Error(err))
	}
	store := db.NewStore(gdb, logger)

	// Orders are created directly in durable storage. A separately
	// running exchange picks them up on its next startup rebuild; the
	// submit attempts below only succeed against an in-process router.
	router := engine.NewRouter(store, cfg.Exchange.Symbols, cfg.Exchange.InboxCapacity, logger)
	service := trading.NewService(store, router, logger)
	seeder := trading.NewSeeder(store, service, router, logger)

	if err := seeder.Seed(context.Background(), cfg.Exchange.Symbols); err != nil {
		logger.Fatal("Treasury seeding failed", zap.Error(err))
	}
}
