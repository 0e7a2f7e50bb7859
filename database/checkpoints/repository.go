// Package checkpoints implements the IngestionCheckpoint and
// BackfillStatus stores. Checkpoint advances are expected to be composed
// into the same transaction as the trade batch that produced them by
// the caller (see collectors), so this repository exposes a
// transaction-scoped advance alongside the plain read/write paths.
package checkpoints

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for checkpoints and backfill status.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// Get loads the checkpoint for (whale, source), or a zero-value
// checkpoint if ingestion has never run for this pair.
func (r *Repository) Get(whaleID string, source models.Chain) (models.IngestionCheckpoint, error) {
	var cp models.IngestionCheckpoint
	err := r.db.Where("whale_id = ? AND source = ?", whaleID, source).First(&cp).Error
	if err == gorm.ErrRecordNotFound {
		return models.IngestionCheckpoint{WhaleID: whaleID, Source: source}, nil
	}
	if err != nil {
		return models.IngestionCheckpoint{}, fmt.Errorf("checkpoints.Get: %w", err)
	}
	return cp, nil
}

// Advance writes the new checkpoint value within tx, enforcing the
// strictly-monotonic invariant: a checkpoint never moves backward.
func Advance(tx *gorm.DB, cp models.IngestionCheckpoint) error {
	existing := models.IngestionCheckpoint{WhaleID: cp.WhaleID, Source: cp.Source}
	tx.Where("whale_id = ? AND source = ?", cp.WhaleID, cp.Source).First(&existing)
	if !cp.LastTimestamp.IsZero() && cp.LastTimestamp.Before(existing.LastTimestamp) {
		return fmt.Errorf("checkpoints.Advance: refusing to move checkpoint backward for whale %s/%s", cp.WhaleID, cp.Source)
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "whale_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_timestamp", "last_block_height",
			"last_position_snap_at", "continuation_token"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("checkpoints.Advance: %w", err)
	}
	return nil
}

// GetBackfillStatus returns the whale's backfill status, defaulting to idle.
func (r *Repository) GetBackfillStatus(whaleID string) (models.BackfillStatus, error) {
	var st models.BackfillStatus
	err := r.db.Where("whale_id = ?", whaleID).First(&st).Error
	if err == gorm.ErrRecordNotFound {
		return models.BackfillStatus{WhaleID: whaleID, State: models.BackfillIdle}, nil
	}
	if err != nil {
		return models.BackfillStatus{}, fmt.Errorf("checkpoints.GetBackfillStatus: %w", err)
	}
	return st, nil
}

// TryStart atomically transitions idle/done/error -> running, returning
// ok=false without changes if a run is already in progress (Conflict,
// not an error — callers return the current status).
func (r *Repository) TryStart(whaleID string) (ok bool, current models.BackfillStatus, err error) {
	err = r.db.Transaction(func(tx *gorm.DB) error {
		var st models.BackfillStatus
		found := tx.Where("whale_id = ?", whaleID).First(&st).Error == nil
		if found && st.State == models.BackfillRunning {
			current = st
			ok = false
			return nil
		}
		st = models.BackfillStatus{WhaleID: whaleID, State: models.BackfillRunning, Progress: 0}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "whale_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "progress", "message"}),
		}).Create(&st).Error; err != nil {
			return fmt.Errorf("checkpoints.TryStart: %w", err)
		}
		current = st
		ok = true
		return nil
	})
	return ok, current, err
}

// SetProgress updates progress (and optionally message) for a running backfill.
func (r *Repository) SetProgress(whaleID string, progress int, message string) error {
	err := r.db.Model(&models.BackfillStatus{}).Where("whale_id = ?", whaleID).
		Updates(map[string]interface{}{"progress": progress, "message": message}).Error
	if err != nil {
		return fmt.Errorf("checkpoints.SetProgress: %w", err)
	}
	return nil
}

// Finish transitions running -> done|error with a terminal message.
func (r *Repository) Finish(whaleID string, state models.BackfillState, message string) error {
	progress := 0
	if state == models.BackfillDone {
		progress = 100
	}
	err := r.db.Model(&models.BackfillStatus{}).Where("whale_id = ?", whaleID).
		Updates(map[string]interface{}{"state": state, "progress": progress, "message": message}).Error
	if err != nil {
		return fmt.Errorf("checkpoints.Finish: %w", err)
	}
	return nil
}
