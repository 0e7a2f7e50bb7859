// Package whales implements the Whale entity repository: creation,
// lookup by (chain, address), filtered/sorted listing joined against
// current metrics, labeling, and cascading deletion — grounded on the
// teacher's repository-per-entity pattern (dynamic query.Where(...)
// building, fmt.Errorf("Op: %w", err) wrapping).
package whales

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/models"
)

// Repository handles database operations for whales.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new whales repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new whale. Returns apperr.Conflict if (chain, address) already exists.
func (r *Repository) Create(w *models.Whale) error {
	if err := r.db.Create(w).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return apperr.New(apperr.KindConflict, "whales.Create", "whale already tracked", err)
		}
		return fmt.Errorf("whales.Create: %w", err)
	}
	return nil
}

// Get fetches a whale by opaque id.
func (r *Repository) Get(id string) (*models.Whale, error) {
	var w models.Whale
	err := r.db.Where("id = ?", id).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.New(apperr.KindNotFound, "whales.Get", "whale not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("whales.Get: %w", err)
	}
	return &w, nil
}

// GetByChainAddress fetches a whale by its natural key.
func (r *Repository) GetByChainAddress(chain models.Chain, address string) (*models.Whale, error) {
	var w models.Whale
	err := r.db.Where("chain = ? AND address = ?", chain, address).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.New(apperr.KindNotFound, "whales.GetByChainAddress", "whale not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("whales.GetByChainAddress: %w", err)
	}
	return &w, nil
}

// ListFilters narrows the result of List.
type ListFilters struct {
	Chain          models.Chain
	Type           models.WhaleType
	MinROIPercent  *float64
	ActivityWindow time.Duration
	Search         string
	SortBy         string // "roi" | "last_active" | "first_seen"
	SortDir        string // "asc" | "desc"
	Limit          int
	Offset         int
}

// WhaleSummary is the denormalized row used by whale-listing endpoints,
// joining the whale with its latest computed metrics.
type WhaleSummary struct {
	models.Whale
	ROIPercent        float64 `json:"roi_percent"`
	PortfolioValueUSD float64 `json:"portfolio_value_usd"`
	Volume1dUSD       float64 `json:"volume_1d_usd"`
}

// List returns whales matching the given filters joined with their
// current metrics, plus the total matching count (ignoring Limit/Offset).
func (r *Repository) List(f ListFilters) ([]WhaleSummary, int64, error) {
	query := r.db.Table("whales").
		Select("whales.*, COALESCE(current_wallet_metrics.roi_percent, 0) as roi_percent, "+
			"COALESCE(current_wallet_metrics.portfolio_value_usd, 0) as portfolio_value_usd, "+
			"COALESCE(current_wallet_metrics.volume_1d_usd, 0) as volume_1d_usd").
		Joins("LEFT JOIN current_wallet_metrics ON current_wallet_metrics.whale_id = whales.id")

	if f.Chain != "" {
		query = query.Where("whales.chain = ?", f.Chain)
	}
	if f.Type != "" {
		query = query.Where("whales.classification = ?", f.Type)
	}
	if f.MinROIPercent != nil {
		query = query.Where("COALESCE(current_wallet_metrics.roi_percent, 0) >= ?", *f.MinROIPercent)
	}
	if f.ActivityWindow > 0 {
		query = query.Where("whales.last_active_at >= ?", time.Now().Add(-f.ActivityWindow))
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query = query.Where("whales.address ILIKE ? OR whales.labels ILIKE ?", like, like)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("whales.List count: %w", err)
	}

	dir := "DESC"
	if strings.EqualFold(f.SortDir, "asc") {
		dir = "ASC"
	}
	switch f.SortBy {
	case "last_active":
		query = query.Order("whales.last_active_at " + dir)
	case "first_seen":
		query = query.Order("whales.first_seen_at " + dir)
	default:
		query = query.Order("roi_percent " + dir)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query = query.Limit(limit).Offset(f.Offset)

	var rows []WhaleSummary
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("whales.List: %w", err)
	}
	return rows, total, nil
}

// Top returns the whales with the highest ROI.
func (r *Repository) Top(limit int) ([]WhaleSummary, error) {
	rows, _, err := r.List(ListFilters{SortBy: "roi", SortDir: "desc", Limit: limit})
	return rows, err
}

// Patch applies a partial update (labels and/or classification).
func (r *Repository) Patch(id string, labels *string, classification *models.WhaleType) error {
	updates := map[string]interface{}{}
	if labels != nil {
		updates["labels"] = *labels
	}
	if classification != nil {
		updates["classification"] = *classification
	}
	if len(updates) == 0 {
		return nil
	}
	res := r.db.Model(&models.Whale{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("whales.Patch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "whales.Patch", "whale not found", nil)
	}
	return nil
}

// Delete cascades: deletes the whale and every owned row across trades,
// events, holdings, metrics, checkpoint, backfill status, and sessions,
// inside a single transaction so a crash never leaves orphaned rows.
func (r *Repository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		tables := []string{"trades", "events", "holdings", "wallet_metrics_daily",
			"current_wallet_metrics", "ingestion_checkpoints", "backfill_status", "copier_sessions"}
		for _, t := range tables {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE whale_id = ?", t), id).Error; err != nil {
				return fmt.Errorf("whales.Delete(%s): %w", t, err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Whale{})
		if res.Error != nil {
			return fmt.Errorf("whales.Delete: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindNotFound, "whales.Delete", "whale not found", nil)
		}
		return nil
	})
}

// TouchLastActive advances last_active_at, called by collectors after
// ingesting any new record for the whale.
func (r *Repository) TouchLastActive(id string, at time.Time) error {
	res := r.db.Model(&models.Whale{}).Where("id = ? AND last_active_at < ?", id, at).
		Update("last_active_at", at)
	if res.Error != nil {
		return fmt.Errorf("whales.TouchLastActive: %w", res.Error)
	}
	return nil
}

// Stats summarizes the whale population for the dashboard.
type Stats struct {
	TotalTrackedWhales int64
	ActiveWhales24h    int64
	PerpWhales         int64
}

// Stats counts the whale population by total, recently active, and perp chain.
func (r *Repository) Stats() (Stats, error) {
	var s Stats
	if err := r.db.Model(&models.Whale{}).Count(&s.TotalTrackedWhales).Error; err != nil {
		return Stats{}, fmt.Errorf("whales.Stats total: %w", err)
	}
	since := time.Now().Add(-24 * time.Hour)
	if err := r.db.Model(&models.Whale{}).Where("last_active_at >= ?", since).Count(&s.ActiveWhales24h).Error; err != nil {
		return Stats{}, fmt.Errorf("whales.Stats active: %w", err)
	}
	if err := r.db.Model(&models.Whale{}).Where("chain = ?", models.ChainPerp).Count(&s.PerpWhales).Error; err != nil {
		return Stats{}, fmt.Errorf("whales.Stats perp: %w", err)
	}
	return s, nil
}
