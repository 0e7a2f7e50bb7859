// Package holdings implements the Holding current-snapshot store.
// Refreshed wholesale per whale: the PERP collector replaces the full
// row set for a whale rather than diffing individual assets; the UTXO
// and EVM collectors do not write holdings.
package holdings

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for holdings.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// Replace wholesale-replaces the holding rows for a whale inside one
// transaction: delete then bulk insert, so readers never observe a
// partial snapshot.
func (r *Repository) Replace(whaleID string, rows []models.Holding) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("whale_id = ?", whaleID).Delete(&models.Holding{}).Error; err != nil {
			return fmt.Errorf("holdings.Replace delete: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("holdings.Replace insert: %w", err)
		}
		return nil
	})
}

// ForWhale returns the current holdings of a whale.
func (r *Repository) ForWhale(whaleID string) ([]models.Holding, error) {
	var rows []models.Holding
	if err := r.db.Where("whale_id = ?", whaleID).Order("value_usd DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("holdings.ForWhale: %w", err)
	}
	return rows, nil
}
