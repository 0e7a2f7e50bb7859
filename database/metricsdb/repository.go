// Package metricsdb implements the WalletMetricsDaily / CurrentWalletMetrics
// store used by the metrics engine's incremental-update and full-rebuild
// entry points. Full rebuild deletes and replaces the whole range;
// incremental update only appends rows for dates at or after the latest
// existing row, per the specification's incremental-vs-full-rebuild design note.
package metricsdb

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for wallet metrics.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// ReplaceRange deletes any existing WalletMetricsDaily rows for the
// whale from `from` onward and inserts the freshly computed rows,
// then mirrors the latest row into CurrentWalletMetrics — all in one
// transaction, the shape a full rebuild needs.
func (r *Repository) ReplaceRange(whaleID string, from time.Time, rows []models.WalletMetricsDaily) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("whale_id = ? AND date >= ?", whaleID, from).
			Delete(&models.WalletMetricsDaily{}).Error; err != nil {
			return fmt.Errorf("metricsdb.ReplaceRange delete: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "whale_id"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns([]string{"portfolio_value_usd", "roi_percent", "realized_pnl_usd", "unrealized_pnl_usd", "volume_1d_usd", "trade_count_1d", "win_rate_percent"}),
			}).CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("metricsdb.ReplaceRange insert: %w", err)
			}
		}
		return upsertCurrent(tx, whaleID, rows)
	})
}

// AppendIncremental inserts/updates only the given rows (dates >= the
// latest existing date for this whale), the incremental-update path.
func (r *Repository) AppendIncremental(whaleID string, rows []models.WalletMetricsDaily) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "whale_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"portfolio_value_usd", "roi_percent", "realized_pnl_usd", "unrealized_pnl_usd", "volume_1d_usd", "trade_count_1d", "win_rate_percent"}),
		}).CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("metricsdb.AppendIncremental insert: %w", err)
		}
		return upsertCurrent(tx, whaleID, rows)
	})
}

func upsertCurrent(tx *gorm.DB, whaleID string, rows []models.WalletMetricsDaily) error {
	if len(rows) == 0 {
		return nil
	}
	latest := rows[0]
	for _, row := range rows[1:] {
		if row.Date.After(latest.Date) {
			latest = row
		}
	}
	current := models.CurrentWalletMetrics{
		WhaleID:           whaleID,
		Date:              latest.Date,
		PortfolioValueUSD: latest.PortfolioValueUSD,
		ROIPercent:        latest.ROIPercent,
		RealizedPnLUSD:    latest.RealizedPnLUSD,
		UnrealizedPnLUSD:  latest.UnrealizedPnLUSD,
		Volume1dUSD:       latest.Volume1dUSD,
		TradeCount1d:      latest.TradeCount1d,
		WinRatePercent:    latest.WinRatePercent,
	}
	var existing models.CurrentWalletMetrics
	found := tx.Where("whale_id = ?", whaleID).First(&existing).Error == nil
	if found && existing.Date.After(latest.Date) {
		return nil // a later date is already current; never regress it
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "whale_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"date", "portfolio_value_usd", "roi_percent",
			"realized_pnl_usd", "unrealized_pnl_usd", "volume_1d_usd", "trade_count_1d", "win_rate_percent"}),
	}).Create(&current).Error
	if err != nil {
		return fmt.Errorf("metricsdb upsertCurrent: %w", err)
	}
	return nil
}

// LatestDate returns the latest date with a WalletMetricsDaily row for
// the whale, used to decide the incremental-update starting point.
func (r *Repository) LatestDate(whaleID string) (time.Time, bool, error) {
	var row models.WalletMetricsDaily
	err := r.db.Where("whale_id = ?", whaleID).Order("date DESC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metricsdb.LatestDate: %w", err)
	}
	return row.Date, true, nil
}

// TotalVolume24h sums the most recently computed 1d volume across
// every whale, for the dashboard summary.
func (r *Repository) TotalVolume24h() (float64, error) {
	var total float64
	err := r.db.Model(&models.CurrentWalletMetrics{}).
		Select("COALESCE(SUM(volume_1d_usd), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("metricsdb.TotalVolume24h: %w", err)
	}
	return total, nil
}

// ROIHistory returns the ROI series for the last `days` days.
func (r *Repository) ROIHistory(whaleID string, days int) ([]models.WalletMetricsDaily, error) {
	var rows []models.WalletMetricsDaily
	since := time.Now().UTC().AddDate(0, 0, -days)
	err := r.db.Where("whale_id = ? AND date >= ?", whaleID, since).Order("date ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("metricsdb.ROIHistory: %w", err)
	}
	return rows, nil
}

// Current returns the latest snapshot, or nil if never computed.
func (r *Repository) Current(whaleID string) (*models.CurrentWalletMetrics, error) {
	var row models.CurrentWalletMetrics
	err := r.db.Where("whale_id = ?", whaleID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metricsdb.Current: %w", err)
	}
	return &row, nil
}
