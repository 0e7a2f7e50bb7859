// Package trades implements the append-only Trade store: upsert on
// (whale, tx_hash), cursor-paginated reads, and batch writes composed
// into a single transaction per collector batch — grounded on the
// teacher's trades/repository.go (batch saves via CreateInBatches,
// duplicate-key detection by string matching the driver error).
package trades

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/cursor"
	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for trades.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new trades repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertTrade inserts the trade, or does nothing if (whale, tx_hash)
// already exists (apperr.ConflictSkipped — not an error).
func (r *Repository) UpsertTrade(t *models.Trade) (inserted bool, err error) {
	if t.WhaleID == "" {
		return false, apperr.New(apperr.KindInvariant, "trades.UpsertTrade", "whale id required", nil)
	}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "whale_id"}, {Name: "tx_hash"}},
		DoNothing: true,
	}).Create(t)
	if res.Error != nil {
		if strings.Contains(res.Error.Error(), "duplicate key") {
			return false, nil
		}
		return false, fmt.Errorf("trades.UpsertTrade: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// BatchUpsert writes a batch of already-sorted (oldest -> newest)
// trades in one transaction, deduping within the batch and against the
// store by (whale, tx_hash). Returns the rows actually inserted.
func (r *Repository) BatchUpsert(batch []*models.Trade) ([]*models.Trade, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(batch))
	deduped := make([]*models.Trade, 0, len(batch))
	for _, t := range batch {
		if t.TxHash != nil {
			key := t.WhaleID + "|" + *t.TxHash
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		deduped = append(deduped, t)
	}

	var inserted []*models.Trade
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range deduped {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "whale_id"}, {Name: "tx_hash"}},
				DoNothing: true,
			}).Create(t)
			if res.Error != nil {
				return fmt.Errorf("trades.BatchUpsert: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				inserted = append(inserted, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// QueryFilters narrows QueryTrades.
type QueryFilters struct {
	Source    models.TradeSource
	Direction models.TradeDirection
	Chain     models.Chain
	Since     *time.Time
	Until     *time.Time
}

// QueryTrades returns a cursor-paginated page ordered (timestamp DESC,
// id DESC), plus the next opaque cursor ("" when exhausted) and the
// total matching count.
func (r *Repository) QueryTrades(whaleID string, f QueryFilters, after string, limit int) ([]models.Trade, string, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	base := r.db.Model(&models.Trade{}).Where("whale_id = ?", whaleID)
	if f.Source != "" {
		base = base.Where("source = ?", f.Source)
	}
	if f.Direction != "" {
		base = base.Where("direction = ?", f.Direction)
	}
	if f.Chain != "" {
		base = base.Where("chain = ?", f.Chain)
	}
	if f.Since != nil {
		base = base.Where("timestamp >= ?", *f.Since)
	}
	if f.Until != nil {
		base = base.Where("timestamp <= ?", *f.Until)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, "", 0, fmt.Errorf("trades.QueryTrades count: %w", err)
	}

	query := base.Order("timestamp DESC, id DESC").Limit(limit + 1)
	if after != "" {
		c, err := cursor.Decode(after)
		if err != nil {
			return nil, "", 0, apperr.New(apperr.KindInvariant, "trades.QueryTrades", "bad cursor", err)
		}
		query = query.Where("(timestamp, id) < (?, ?)", c.Timestamp, c.ID)
	}

	var rows []models.Trade
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", 0, fmt.Errorf("trades.QueryTrades: %w", err)
	}

	next := ""
	if len(rows) > limit {
		last := rows[limit-1]
		next = cursor.Encode(last.Timestamp, last.ID)
		rows = rows[:limit]
	}
	return rows, next, total, nil
}

// All returns every trade for a whale ordered oldest -> newest, the
// shape the metrics engine's cost-basis walk and the copier backtest need.
func (r *Repository) All(whaleID string) ([]models.Trade, error) {
	var rows []models.Trade
	err := r.db.Where("whale_id = ?", whaleID).Order("timestamp ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("trades.All: %w", err)
	}
	return rows, nil
}

// Since returns trades for a whale strictly after the given timestamp/id,
// ordered oldest -> newest. Used by live copier sessions polling for new fills.
func (r *Repository) Since(whaleID string, after time.Time, afterID int64) ([]models.Trade, error) {
	var rows []models.Trade
	err := r.db.Where("whale_id = ? AND (timestamp, id) > (?, ?)", whaleID, after, afterID).
		Order("timestamp ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("trades.Since: %w", err)
	}
	return rows, nil
}

// FirstTradeDate returns the UTC date of the whale's earliest trade.
func (r *Repository) FirstTradeDate(whaleID string) (time.Time, bool, error) {
	var t models.Trade
	err := r.db.Where("whale_id = ?", whaleID).Order("timestamp ASC, id ASC").First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("trades.FirstTradeDate: %w", err)
	}
	return t.Timestamp.UTC().Truncate(24 * time.Hour), true, nil
}

// DeleteAllForWhale removes every trade for a whale. The perp
// reset_hyperliquid operation does not call it: the backfill wipe
// deletes trades inside its own transaction.
func (r *Repository) DeleteAllForWhale(whaleID string) error {
	if err := r.db.Where("whale_id = ?", whaleID).Delete(&models.Trade{}).Error; err != nil {
		return fmt.Errorf("trades.DeleteAllForWhale: %w", err)
	}
	return nil
}
