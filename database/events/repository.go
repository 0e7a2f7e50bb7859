// Package events implements the Event store: threshold-gated insert and
// recency-ordered reads feeding both the recent-events API and the live
// broadcaster.
package events

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for events.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// Insert persists a new event row.
func (r *Repository) Insert(e *models.Event) error {
	if err := r.db.Create(e).Error; err != nil {
		return fmt.Errorf("events.Insert: %w", err)
	}
	return nil
}

// Recent returns the most recent events across all whales.
func (r *Repository) Recent(limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []models.Event
	if err := r.db.Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("events.Recent: %w", err)
	}
	return rows, nil
}
