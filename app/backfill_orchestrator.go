package app

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/collectors"
	"github.com/whaletrack/core/database/checkpoints"
	"github.com/whaletrack/core/database/events"
	"github.com/whaletrack/core/database/holdings"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/database/whales"
)

// backfillEstimate is the assumed wall-clock duration of a full
// backfill, used for the time-based progress ramp when the source
// can't report an expected item count (none of EVM/UTXO/PERP do).
const backfillEstimate = 2 * time.Minute

// BackfillOrchestrator drives start_backfill/start_reset/get_status,
// replaying a whale's full history through the same collector Source
// code path the tick loop uses, unbounded by recency. Grounded on the
// teacher's ticker-goroutine shape (Start/Stop with a done channel),
// adapted here into a one-shot-per-request job instead of a recurring loop.
type BackfillOrchestrator struct {
	db          *gorm.DB
	sources     map[models.Chain]collectors.Source
	whalesRepo  *whales.Repository
	checkpoints *checkpoints.Repository
	tradesRepo  *trades.Repository
	holdingsRepo *holdings.Repository
	eventsRepo  *events.Repository
	metrics     *MetricsEngine
	broadcaster collectors.Broadcaster
	thresholds  map[models.EventType]float64

	mu      sync.Mutex
	running map[string]context.CancelFunc // whale id -> cancel for the in-flight job
}

func NewBackfillOrchestrator(db *gorm.DB, sources map[models.Chain]collectors.Source, whalesRepo *whales.Repository,
	checkpointsRepo *checkpoints.Repository, tradesRepo *trades.Repository, holdingsRepo *holdings.Repository,
	eventsRepo *events.Repository, metrics *MetricsEngine, broadcaster collectors.Broadcaster,
	thresholds map[models.EventType]float64) *BackfillOrchestrator {
	return &BackfillOrchestrator{
		db: db, sources: sources, whalesRepo: whalesRepo, checkpoints: checkpointsRepo,
		tradesRepo: tradesRepo, holdingsRepo: holdingsRepo, eventsRepo: eventsRepo,
		metrics: metrics, broadcaster: broadcaster, thresholds: thresholds,
		running: make(map[string]context.CancelFunc),
	}
}

// StartBackfill begins an async backfill job for whale. A second call
// while one is running is a no-op that returns the current status.
func (o *BackfillOrchestrator) StartBackfill(whaleID string) (models.BackfillStatus, error) {
	whale, err := o.whalesRepo.Get(whaleID)
	if err != nil {
		return models.BackfillStatus{}, err
	}

	ok, current, err := o.checkpoints.TryStart(whaleID)
	if err != nil {
		return models.BackfillStatus{}, err
	}
	if !ok {
		return current, nil // already running: no-op, return current status
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[whaleID] = cancel
	o.mu.Unlock()

	go o.run(ctx, *whale)
	return current, nil
}

// StartReset wipes trades/events/holdings/metrics/checkpoint for whale
// then starts a fresh backfill — perp-only per the specification, since
// EVM/UTXO ingestion is append-only by block height/txid and never
// needs a destructive reset.
func (o *BackfillOrchestrator) StartReset(whaleID string) (models.BackfillStatus, error) {
	whale, err := o.whalesRepo.Get(whaleID)
	if err != nil {
		return models.BackfillStatus{}, err
	}
	if whale.Chain != models.ChainPerp {
		return models.BackfillStatus{}, apperr.New(apperr.KindInvariant, "backfill.StartReset", "reset is perp-only", nil)
	}

	if err := o.wipe(whaleID); err != nil {
		return models.BackfillStatus{}, err
	}
	return o.StartBackfill(whaleID)
}

func (o *BackfillOrchestrator) wipe(whaleID string) error {
	return o.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("whale_id = ?", whaleID).Delete(&models.Trade{}).Error; err != nil {
			return err
		}
		if err := tx.Where("whale_id = ?", whaleID).Delete(&models.Event{}).Error; err != nil {
			return err
		}
		if err := tx.Where("whale_id = ?", whaleID).Delete(&models.Holding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("whale_id = ?", whaleID).Delete(&models.WalletMetricsDaily{}).Error; err != nil {
			return err
		}
		if err := tx.Where("whale_id = ?", whaleID).Delete(&models.CurrentWalletMetrics{}).Error; err != nil {
			return err
		}
		return tx.Where("whale_id = ? AND source = ?", whaleID, models.ChainPerp).
			Delete(&models.IngestionCheckpoint{}).Error
	})
}

// GetStatus returns the whale's current backfill status.
func (o *BackfillOrchestrator) GetStatus(whaleID string) (models.BackfillStatus, error) {
	return o.checkpoints.GetBackfillStatus(whaleID)
}

func (o *BackfillOrchestrator) run(ctx context.Context, whale models.Whale) {
	defer func() {
		o.mu.Lock()
		delete(o.running, whale.ID)
		o.mu.Unlock()
	}()

	source, ok := o.sources[whale.Chain]
	if !ok {
		_ = o.checkpoints.Finish(whale.ID, models.BackfillError, "no collector registered for chain "+string(whale.Chain))
		return
	}

	start := time.Now()
	progressDone := make(chan struct{})
	go o.rampProgress(ctx, whale.ID, start, progressDone)

	cp := models.IngestionCheckpoint{WhaleID: whale.ID, Source: whale.Chain}
	totalInserted := 0
	for {
		select {
		case <-ctx.Done():
			close(progressDone)
			_ = o.checkpoints.Finish(whale.ID, models.BackfillError, "cancelled")
			return
		default:
		}

		batch, err := source.FetchSince(ctx, whale, cp)
		if err != nil {
			if apperr.Is(err, apperr.KindRateLimited) || apperr.Is(err, apperr.KindUpstreamUnavailable) {
				log.Printf("backfill %s: %v, retrying in 5s", whale.ID, err)
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Second):
					continue
				}
			}
			close(progressDone)
			_ = o.checkpoints.Finish(whale.ID, models.BackfillError, err.Error())
			return
		}

		inserted, err := collectors.ApplyBatch(o.db, o.whalesRepo, o.broadcaster, o.thresholds, whale, whale.Chain, batch)
		if err != nil {
			close(progressDone)
			_ = o.checkpoints.Finish(whale.ID, models.BackfillError, err.Error())
			return
		}
		totalInserted += len(inserted)

		if len(inserted) == 0 {
			break // source is exhausted: no new records since the checkpoint we just queried with
		}
		cp = batch.Checkpoint
		if cp.WhaleID == "" {
			cp.WhaleID = whale.ID
			cp.Source = whale.Chain
		}
	}

	close(progressDone)
	if err := o.metrics.FullRebuild(ctx, whale.ID); err != nil {
		log.Printf("backfill %s: metrics rebuild failed: %v", whale.ID, err)
	}
	_ = o.checkpoints.Finish(whale.ID, models.BackfillDone, "")
	log.Printf("backfill %s: done, %d trades ingested", whale.ID, totalInserted)
}

// rampProgress advances progress on a time-based heuristic toward 90%
// since none of the collector sources can report an expected item
// count; run() jumps to 100 explicitly on completion via Finish.
func (o *BackfillOrchestrator) rampProgress(ctx context.Context, whaleID string, start time.Time, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			pct := int(float64(elapsed) / float64(backfillEstimate) * 90)
			if pct > 90 {
				pct = 90
			}
			_ = o.checkpoints.SetProgress(whaleID, pct, "")
		}
	}
}
