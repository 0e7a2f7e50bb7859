package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/whaletrack/core/database/holdings"
	"github.com/whaletrack/core/database/metricsdb"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/priceoracle"
)

// MetricsEngine owns the two entry points of the analytics pipeline:
// incremental update after a collector batch, and full rebuild for the
// scheduler/backfill. Both walk a whale's trades oldest->newest
// maintaining per-asset FIFO cost-basis lots and a cash ledger,
// grounded on the teacher's PerformanceRefresher ticker shape for the
// scheduled path and its own arithmetic for the cost-basis walk, since
// the teacher never priced positions itself.
type MetricsEngine struct {
	trades   *trades.Repository
	metrics  *metricsdb.Repository
	holdings *holdings.Repository
	prices   *priceoracle.Oracle

	mu      sync.Mutex
	pending map[string]bool // whale id -> incremental update running; concurrent requests for it are dropped
}

func NewMetricsEngine(t *trades.Repository, m *metricsdb.Repository, h *holdings.Repository, p *priceoracle.Oracle) *MetricsEngine {
	return &MetricsEngine{trades: t, metrics: m, holdings: h, prices: p, pending: make(map[string]bool)}
}

// lot is one FIFO cost-basis tranche for an asset.
type lot struct {
	amount   float64
	costUSD  float64 // total cost in USD for this tranche
}

// costBasisBook tracks open FIFO lots per asset and realized PnL.
type costBasisBook struct {
	lots map[string][]lot
}

func newCostBasisBook() *costBasisBook {
	return &costBasisBook{lots: make(map[string][]lot)}
}

// apply consumes or adds a lot for a trade's base asset, returning
// realized PnL in USD if this trade closed existing lots (zero otherwise).
func (b *costBasisBook) apply(asset string, signedAmount, valueUSD float64) float64 {
	queue := b.lots[asset]
	if signedAmount >= 0 {
		if valueUSD == 0 {
			b.lots[asset] = queue
			return 0
		}
		queue = append(queue, lot{amount: signedAmount, costUSD: valueUSD})
		b.lots[asset] = queue
		return 0
	}

	toClose := -signedAmount
	avgCost := 0.0
	if len(queue) > 0 {
		var totalAmt, totalCost float64
		for _, l := range queue {
			totalAmt += l.amount
			totalCost += l.costUSD
		}
		if totalAmt > 0 {
			avgCost = totalCost / totalAmt
		}
	}

	var realized float64
	remaining := toClose
	i := 0
	for i < len(queue) && remaining > 0 {
		l := &queue[i]
		unitCost := 0.0
		if l.amount > 0 {
			unitCost = l.costUSD / l.amount
		}
		take := l.amount
		if take > remaining {
			take = remaining
		}
		proceeds := take * unitCost // fallback when no explicit sale price known per-lot
		if avgCost > 0 && valueUSD != 0 {
			proceeds = take * (valueUSD / toClose)
		}
		realized += proceeds - take*unitCost
		l.amount -= take
		l.costUSD -= take * unitCost
		remaining -= take
		if l.amount <= 1e-12 {
			i++
		}
	}
	if i > 0 {
		queue = queue[i:]
	}
	b.lots[asset] = queue
	return realized
}

func (b *costBasisBook) unrealizedUSD(prices map[string]float64) float64 {
	var total float64
	for asset, queue := range b.lots {
		price, ok := prices[asset]
		if !ok {
			continue
		}
		for _, l := range queue {
			total += l.amount*price - l.costUSD
		}
	}
	return total
}

// FullRebuild recomputes the whole WalletMetricsDaily series for whale
// from its complete trade history, replacing any existing rows for the
// whale's entire span in one transaction.
func (e *MetricsEngine) FullRebuild(ctx context.Context, whaleID string) error {
	first, ok, err := e.trades.FirstTradeDate(whaleID)
	if err != nil {
		return err
	}
	if !ok {
		return nil // no trades yet: nothing to rebuild
	}
	rows, err := e.computeDaily(ctx, whaleID, first)
	if err != nil {
		return err
	}
	return e.metrics.ReplaceRange(whaleID, first, rows)
}

// IncrementalUpdate recomputes only the tail of the series, starting
// from the latest already-rebuilt date (or the whale's first trade if
// none exists yet), invoked after a collector batch changes a whale's trades.
func (e *MetricsEngine) IncrementalUpdate(ctx context.Context, whaleID string) error {
	if !e.claim(whaleID) {
		return nil // an update for this whale is already in flight; this request is dropped and no second run is queued
	}
	defer e.release(whaleID)

	from, ok, err := e.metrics.LatestDate(whaleID)
	if !ok {
		from, ok, err = e.trades.FirstTradeDate(whaleID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	} else if err != nil {
		return err
	}

	rows, err := e.computeDaily(ctx, whaleID, from)
	if err != nil {
		return err
	}
	return e.metrics.AppendIncremental(whaleID, rows)
}

// RebuildIfEmpty is called by ROI/portfolio history endpoints so a
// freshly ingested whale never yields a blank chart.
func (e *MetricsEngine) RebuildIfEmpty(ctx context.Context, whaleID string) error {
	if _, ok, err := e.metrics.LatestDate(whaleID); err != nil {
		return err
	} else if ok {
		return nil
	}
	return e.FullRebuild(ctx, whaleID)
}

func (e *MetricsEngine) claim(whaleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending[whaleID] {
		return false
	}
	e.pending[whaleID] = true
	return true
}

func (e *MetricsEngine) release(whaleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, whaleID)
}

// computeDaily walks the whale's full trade history, maintaining FIFO
// cost-basis lots per asset, and emits one WalletMetricsDaily row per
// calendar day from `from` through today. Perp lots are valued like any
// other lot, at the oracle's historical price for the end of each day;
// no exchange mark price is used. Win-rate counts any closed position (a trade reducing the held amount, perp or
// spot/onchain) by its realized PnL from the FIFO book.
func (e *MetricsEngine) computeDaily(ctx context.Context, whaleID string, from time.Time) ([]models.WalletMetricsDaily, error) {
	all, err := e.trades.All(whaleID)
	if err != nil {
		return nil, err
	}

	book := newCostBasisBook()
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from = from.UTC().Truncate(24 * time.Hour)

	byDay := make(map[time.Time][]models.Trade)
	for _, t := range all {
		day := t.Timestamp.UTC().Truncate(24 * time.Hour)
		byDay[day] = append(byDay[day], t)
	}

	// trades dated before `from` still feed the book and the cumulative
	// totals; rows are only emitted from `from` onward
	start := from
	for day := range byDay {
		if day.Before(start) {
			start = day
		}
	}
	var days []time.Time
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var rows []models.WalletMetricsDaily
	var cumRealized, cumDeposited, cumWithdrawn float64
	var closedWins, closedTotal int64

	assetSet := map[string]bool{}
	for _, t := range all {
		assetSet[t.BaseAsset] = true
	}

	for _, day := range days {
		dayTrades := byDay[day]
		var volume float64
		for _, t := range dayTrades {
			value := 0.0
			if t.ValueUSD != nil {
				value = *t.ValueUSD
			}
			volume += abs(value)

			if t.Source == models.SourcePerp {
				realized := book.apply(t.BaseAsset, t.BaseAmount, value)
				if t.RealizedPnLUSD != nil {
					realized = *t.RealizedPnLUSD
				}
				if t.BaseAmount < 0 {
					closedTotal++
					cumRealized += realized
					if realized > 0 {
						closedWins++
					}
				}
				continue
			}

			realized := book.apply(t.BaseAsset, t.BaseAmount, value)
			if t.BaseAmount < 0 {
				closedTotal++
				cumRealized += realized
				if realized > 0 {
					closedWins++
				}
			}
			switch t.Direction {
			case models.DirDeposit:
				cumDeposited += value
			case models.DirWithdraw:
				cumWithdrawn += value
			}
		}
		if day.Before(from) {
			continue
		}

		prices := e.snapshotPrices(ctx, assetSet, day)
		unrealized := book.unrealizedUSD(prices)
		portfolioValue := cumRealized + unrealized + cumDeposited

		roi := 0.0
		if cumDeposited > 0 {
			roi = (portfolioValue + cumWithdrawn - cumDeposited) / cumDeposited * 100
		}
		winRate := 0.0
		if closedTotal > 0 {
			winRate = float64(closedWins) / float64(closedTotal) * 100
		}

		rows = append(rows, models.WalletMetricsDaily{
			WhaleID:           whaleID,
			Date:              day,
			PortfolioValueUSD: portfolioValue,
			ROIPercent:        roi,
			RealizedPnLUSD:    cumRealized,
			UnrealizedPnLUSD:  unrealized,
			Volume1dUSD:       volume,
			TradeCount1d:      int64(len(dayTrades)),
			WinRatePercent:    winRate,
		})
	}
	return rows, nil
}

func (e *MetricsEngine) snapshotPrices(ctx context.Context, assets map[string]bool, day time.Time) map[string]float64 {
	out := make(map[string]float64, len(assets))
	at := day.Add(23*time.Hour + 59*time.Minute)
	for asset := range assets {
		if v, ok := e.prices.Historical(ctx, asset, at); ok {
			out[asset] = v
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
