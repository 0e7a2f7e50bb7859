// Package collectors implements the shared contract of section 4.2:
// on every tick, load each tracked whale's checkpoint, fetch source
// records strictly newer than it, normalize, sort oldest -> newest,
// dedupe, commit trades + checkpoint advance as one transaction, then
// broadcast qualifying events and trigger an incremental metrics update.
//
// The three source-specific collectors (evm, utxo, perp) each implement
// Source; Runner supplies the tick-driven loop, grounded on the
// teacher's ticker-driven background tracker pattern
// (app.BaselineCalculator/app.PerformanceRefresher: Start()/Stop() with
// a done channel and time.Ticker).
package collectors

import (
	"context"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/checkpoints"
	"github.com/whaletrack/core/database/events"
	"github.com/whaletrack/core/database/holdings"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/database/whales"
)

// NormalizedBatch is what a Source produces for one whale on one tick.
type NormalizedBatch struct {
	Trades     []models.Trade
	Events     []models.Event
	Holdings   []models.Holding // non-nil means "replace the whale's holdings with this set"
	Checkpoint models.IngestionCheckpoint
}

// Source is the contract each of EVM/UTXO/PERP implements.
type Source interface {
	Chain() models.Chain
	// FetchSince fetches records strictly newer than checkpoint for whale,
	// normalizes them into canonical Trades/Events (unsorted), and
	// returns the checkpoint value to advance to. Must return
	// apperr.UpstreamUnavailable on transport failure so the tick
	// continues and retries next time rather than aborting the batch.
	FetchSince(ctx context.Context, whale models.Whale, checkpoint models.IngestionCheckpoint) (NormalizedBatch, error)
}

// Broadcaster is the subset of the live broadcaster a collector needs.
type Broadcaster interface {
	Broadcast(event models.Event)
}

// Runner drives one Source's tick loop across every whale on its chain.
type Runner struct {
	db           *gorm.DB
	source       Source
	whalesRepo   *whales.Repository
	checkpoints  *checkpoints.Repository
	broadcaster  Broadcaster
	thresholds   map[models.EventType]float64
	onTradesChanged func(whaleID string)
	tickInterval time.Duration
	timeout      time.Duration

	done chan struct{}
}

// NewRunner constructs a Runner for source, ticking every interval.
func NewRunner(db *gorm.DB, source Source, whalesRepo *whales.Repository, checkpointsRepo *checkpoints.Repository,
	broadcaster Broadcaster, thresholds map[models.EventType]float64, onTradesChanged func(whaleID string), interval time.Duration) *Runner {
	return &Runner{
		db:              db,
		source:          source,
		whalesRepo:      whalesRepo,
		checkpoints:     checkpointsRepo,
		broadcaster:     broadcaster,
		thresholds:      thresholds,
		onTradesChanged: onTradesChanged,
		tickInterval:    interval,
		timeout:         30 * time.Second,
		done:            make(chan struct{}),
	}
}

// Start begins the tick loop; blocks until Stop is called.
func (r *Runner) Start() {
	log.Printf("🔗 %s collector started", r.source.Chain())
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	r.tick()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.done:
			log.Printf("🔗 %s collector stopped", r.source.Chain())
			return
		}
	}
}

// Stop signals the loop to exit; a tick in progress returns before its
// next whale.
func (r *Runner) Stop() {
	close(r.done)
}

func (r *Runner) tick() {
	chain := r.source.Chain()
	rows, _, err := r.whalesRepo.List(whales.ListFilters{Chain: chain, Limit: 10000})
	if err != nil {
		log.Printf("⚠️  %s collector: list whales: %v", chain, err)
		return
	}

	for _, w := range rows {
		select {
		case <-r.done:
			return // cooperative cancellation between records
		default:
		}
		r.processWhale(w.Whale)
	}
}

func (r *Runner) processWhale(whale models.Whale) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cp, err := r.checkpoints.Get(whale.ID, r.source.Chain())
	if err != nil {
		log.Printf("⚠️  %s collector: checkpoint load for %s: %v", r.source.Chain(), whale.ID, err)
		return
	}

	batch, err := r.source.FetchSince(ctx, whale, cp)
	if err != nil {
		if apperr.Is(err, apperr.KindRateLimited) || apperr.Is(err, apperr.KindUpstreamUnavailable) {
			log.Printf("⚠️  %s collector: %v (retry next tick)", r.source.Chain(), err)
			return
		}
		log.Printf("⚠️  %s collector: fetch for %s: %v", r.source.Chain(), whale.ID, err)
		return
	}

	inserted, err := ApplyBatch(r.db, r.whalesRepo, r.broadcaster, r.thresholds, whale, r.source.Chain(), batch)
	if err != nil {
		log.Printf("⚠️  %s collector: commit batch for %s: %v", r.source.Chain(), whale.ID, err)
		return
	}

	if r.onTradesChanged != nil && len(inserted) > 0 {
		r.onTradesChanged(whale.ID)
	}
}

// ApplyBatch commits one NormalizedBatch for a whale: sorts trades
// oldest->newest, upserts them with the holdings replacement and
// checkpoint advance in a single transaction, then (after commit)
// touches the whale's last-active timestamp and broadcasts qualifying
// events. Shared by the tick-driven Runner and the backfill
// orchestrator, which both need the same all-or-nothing commit shape.
func ApplyBatch(db *gorm.DB, whalesRepo *whales.Repository, broadcaster Broadcaster, thresholds map[models.EventType]float64,
	whale models.Whale, chain models.Chain, batch NormalizedBatch) ([]models.Trade, error) {
	if len(batch.Trades) == 0 && batch.Holdings == nil {
		return nil, nil
	}

	sort.Slice(batch.Trades, func(i, j int) bool {
		return batch.Trades[i].Timestamp.Before(batch.Trades[j].Timestamp)
	})

	var inserted []models.Trade
	err := db.Transaction(func(tx *gorm.DB) error {
		ins, err := trades.NewRepository(tx).BatchUpsert(toPointers(batch.Trades))
		if err != nil {
			return err
		}
		for _, t := range ins {
			inserted = append(inserted, *t)
		}

		if batch.Holdings != nil {
			if err := holdings.NewRepository(tx).Replace(whale.ID, batch.Holdings); err != nil {
				return err
			}
		}

		if !batch.Checkpoint.LastTimestamp.IsZero() || batch.Checkpoint.LastBlockHeight != nil {
			batch.Checkpoint.WhaleID = whale.ID
			batch.Checkpoint.Source = chain
			if err := checkpoints.Advance(tx, batch.Checkpoint); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(inserted) == 0 && batch.Holdings == nil {
		return nil, nil
	}

	_ = whalesRepo.TouchLastActive(whale.ID, time.Now().UTC())

	insertedTxHashes := make(map[string]bool, len(inserted))
	for _, t := range inserted {
		if t.TxHash != nil {
			insertedTxHashes[*t.TxHash] = true
		}
	}

	for _, e := range batch.Events {
		if e.TxHash != nil && !insertedTxHashes[*e.TxHash] {
			continue // trade already persisted on a prior tick, don't re-deliver its event
		}
		threshold := thresholds[e.Type]
		if e.ValueUSD < threshold {
			continue // broadcasting is threshold-gated
		}
		if err := events.NewRepository(db).Insert(&e); err != nil {
			log.Printf("⚠️  %s collector: insert event: %v", chain, err)
			continue
		}
		if broadcaster != nil {
			broadcaster.Broadcast(e)
		}
	}

	return inserted, nil
}

func toPointers(rows []models.Trade) []*models.Trade {
	out := make([]*models.Trade, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}
