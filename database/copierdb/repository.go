// Package copierdb implements the BacktestRun and CopierSession stores
// backing the copier simulator's backtest and live-shadow session endpoints.
package copierdb

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for copier runs and sessions.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// SaveRun persists a backtest run's configuration and result summary.
func (r *Repository) SaveRun(run *models.BacktestRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("copierdb.SaveRun: %w", err)
	}
	return nil
}

// GetRun fetches a backtest run by id.
func (r *Repository) GetRun(id string) (*models.BacktestRun, error) {
	var run models.BacktestRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.New(apperr.KindNotFound, "copierdb.GetRun", "backtest run not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("copierdb.GetRun: %w", err)
	}
	return &run, nil
}

// CreateSession starts a new live copier session.
func (r *Repository) CreateSession(s *models.CopierSession) error {
	if err := r.db.Create(s).Error; err != nil {
		return fmt.Errorf("copierdb.CreateSession: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (r *Repository) GetSession(id string) (*models.CopierSession, error) {
	var s models.CopierSession
	err := r.db.Where("id = ?", id).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.New(apperr.KindNotFound, "copierdb.GetSession", "session not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("copierdb.GetSession: %w", err)
	}
	return &s, nil
}

// ListActive returns active sessions for a whale (resumes UI state across reconnects).
func (r *Repository) ListActive(whaleID string) ([]models.CopierSession, error) {
	var rows []models.CopierSession
	err := r.db.Where("whale_id = ? AND active = ?", whaleID, true).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("copierdb.ListActive: %w", err)
	}
	return rows, nil
}

// UpdateProgress advances processed count/last-seen cursor for a session.
func (r *Repository) UpdateProgress(id string, processed int64, lastSeenAt time.Time, lastSeenID int64) error {
	err := r.db.Model(&models.CopierSession{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_count":    processed,
		"last_seen_trade_at": lastSeenAt,
		"last_seen_trade_id": lastSeenID,
	}).Error
	if err != nil {
		return fmt.Errorf("copierdb.UpdateProgress: %w", err)
	}
	return nil
}

// AppendNotification replaces the session's notification ring buffer
// with the given JSON array; the caller passes the whole ring each time.
func (r *Repository) AppendNotification(id string, notifications string) error {
	err := r.db.Model(&models.CopierSession{}).Where("id = ?", id).Update("notifications", notifications).Error
	if err != nil {
		return fmt.Errorf("copierdb.AppendNotification: %w", err)
	}
	return nil
}

// Stop marks a session inactive, on explicit stop, whale deletion, or
// irrecoverable error (errs non-empty records the failure).
func (r *Repository) Stop(id string, errs string) error {
	updates := map[string]interface{}{"active": false}
	if errs != "" {
		payload, _ := json.Marshal([]string{errs})
		updates["errors"] = string(payload)
	}
	err := r.db.Model(&models.CopierSession{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("copierdb.Stop: %w", err)
	}
	return nil
}
