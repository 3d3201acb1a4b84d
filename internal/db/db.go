package db

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/abdoElHodaky/handlex/internal/config"
	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// Open connects to Postgres and runs migrations
func Open(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigurationError, "failed to connect to database")
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	logger.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("name", cfg.Database.Name))
	return gdb, nil
}

// Migrate creates the schema and the constraints AutoMigrate cannot
// express: check constraints and the single-admin partial unique index.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.TraderAccount{},
		&models.Order{},
		&models.Trade{},
		&models.Position{},
		&models.LedgerEntry{},
		&models.SequenceCounter{},
		&models.OutboxEvent{},
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseError, "auto-migration failed")
	}

	statements := []string{
		`ALTER TABLE orders ADD CONSTRAINT chk_orders_quantity CHECK (quantity > 0)`,
		`ALTER TABLE orders ADD CONSTRAINT chk_orders_filled CHECK (filled_quantity >= 0 AND filled_quantity <= quantity)`,
		`ALTER TABLE orders ADD CONSTRAINT chk_orders_limit_price CHECK (limit_price IS NULL OR limit_price > 0)`,
		`ALTER TABLE orders ADD CONSTRAINT chk_orders_tif CHECK (tif_seconds > 0)`,
		`ALTER TABLE trades ADD CONSTRAINT chk_trades_price CHECK (price > 0)`,
		`ALTER TABLE trades ADD CONSTRAINT chk_trades_quantity CHECK (quantity > 0)`,
		`ALTER TABLE positions ADD CONSTRAINT chk_positions_quantity CHECK (quantity >= 0)`,
		`ALTER TABLE ledger_entries ADD CONSTRAINT chk_ledger_one_sided CHECK ((debit > 0 AND credit = 0) OR (credit > 0 AND debit = 0))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_traders_single_admin ON traders (is_admin) WHERE is_admin`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox (created_at) WHERE NOT published`,
	}
	for _, stmt := range statements {
		if err := gdb.Exec(stmt).Error; err != nil {
			// Re-running migrations trips "already exists" on the ALTERs;
			// that is not a failure.
			if isDuplicateObject(err) {
				continue
			}
			return errors.Wrapf(err, errors.ErrDatabaseError, "migration statement failed: %s", stmt)
		}
	}
	return nil
}

func isDuplicateObject(err error) bool {
	// Postgres error 42710 (duplicate_object) / 42P07 (duplicate_table)
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "42710") ||
		strings.Contains(msg, "42P07")
}
