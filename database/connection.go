// Package database provides connection management for the whale tracking
// pipeline's Postgres store.
//
// Key concepts:
//   - GORM over Postgres, the same stack the teacher repo used for its
//     hypertable-backed trade store.
//   - trades/events are append-only and carry the composite indexes
//     listed in the specification's persisted-state layout; Migrate adds
//     the partial unique index GORM's struct tags cannot express
//     (tx_hash uniqueness only where non-null).
//   - All data models live in database/models to avoid circular imports
//     between connection setup and the per-entity repositories.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/whaletrack/core/database/models"
)

// Database holds the GORM connection and provides access to the
// underlying DB instance for repository construction.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM handle for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect opens a Postgres connection via the given DSN (DATABASE_URL).
func Connect(dsn string) (*Database, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Database{db: db}, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema migrations: GORM AutoMigrate for every model,
// followed by the raw-SQL constraints AutoMigrate cannot express
// (partial unique index on trades, supporting indexes named in the
// specification's persisted-state layout).
func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_whale_txhash ON trades(whale_id, tx_hash) WHERE tx_hash IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_trades_whale_ts ON trades(whale_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_chain_ts ON trades(chain, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_metrics_daily_whale_date ON wallet_metrics_daily(whale_id, date)`,
	}
	for _, stmt := range stmts {
		if err := d.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}
