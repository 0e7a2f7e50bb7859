package app

import (
	"context"
	"log"
	"time"

	"github.com/whaletrack/core/config"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/database/whales"
	"github.com/whaletrack/core/priceoracle"
)

// Scheduler runs the three periodic jobs of the classifier/scheduler
// component, each on its own ticker-driven goroutine, grounded on the
// teacher's PerformanceRefresher/BaselineCalculator Start()/Stop()
// shape. Jobs are single-instance: this process never runs two copies
// of the same job concurrently, since each ticker loop is the only
// caller of its own job body.
type Scheduler struct {
	cfg      config.SchedulerConfig
	whales   *whales.Repository
	trades   *trades.Repository
	metrics  *MetricsEngine
	prices   *priceoracle.Oracle
	assets   []string // tracked assets for the price refresher

	done chan struct{}
}

func NewScheduler(cfg config.SchedulerConfig, w *whales.Repository, t *trades.Repository, m *MetricsEngine,
	p *priceoracle.Oracle, trackedAssets []string) *Scheduler {
	return &Scheduler{cfg: cfg, whales: w, trades: t, metrics: m, prices: p, assets: trackedAssets, done: make(chan struct{})}
}

// Start runs the classifier (daily), metrics aggregator (daily), and
// price refresher (5 min) loops until Stop is called.
func (s *Scheduler) Start() {
	go s.loop("classifier", 24*time.Hour, s.runClassifier)
	go s.loop("metrics-aggregator", 24*time.Hour, s.runMetricsAggregator)
	go s.loop("price-refresher", 5*time.Minute, s.runPriceRefresher)
}

func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) loop(name string, interval time.Duration, job func(ctx context.Context)) {
	log.Printf("scheduler: %s started", name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runJob(name, job)
	for {
		select {
		case <-ticker.C:
			s.runJob(name, job)
		case <-s.done:
			log.Printf("scheduler: %s stopped", name)
			return
		}
	}
}

// runJob recovers so a failing job logs and exits without crashing the
// process, per the specification's single-instance job failure policy.
func (s *Scheduler) runJob(name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: %s panicked: %v", name, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	job(ctx)
}

// runClassifier computes 30d trade frequency and volume/portfolio ratio
// per whale (average trade size and holding period are not computed),
// applying:
//   frequency >= F_hi && volume/portfolio >= V_hi -> holder_trader
//   frequency >= F_hi                              -> trader
//   otherwise                                       -> holder
func (s *Scheduler) runClassifier(ctx context.Context) {
	rows, _, err := s.whales.List(whales.ListFilters{Limit: 10000})
	if err != nil {
		log.Printf("scheduler: classifier: list whales: %v", err)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	for _, w := range rows {
		recent, err := s.trades.Since(w.ID, since, 0)
		if err != nil {
			log.Printf("scheduler: classifier: trades for %s: %v", w.ID, err)
			continue
		}
		if len(recent) == 0 {
			continue
		}

		var volume float64
		for _, t := range recent {
			if t.ValueUSD != nil {
				volume += abs(*t.ValueUSD)
			}
		}
		frequency := float64(len(recent)) / 30.0
		ratio := 0.0
		if w.PortfolioValueUSD > 0 {
			ratio = volume / w.PortfolioValueUSD
		}

		classification := models.WhaleTypeHolder
		switch {
		case frequency >= s.cfg.ClassifierFreqHigh && ratio >= s.cfg.ClassifierVolumeHigh:
			classification = models.WhaleTypeHolderTrader
		case frequency >= s.cfg.ClassifierFreqHigh:
			classification = models.WhaleTypeTrader
		}

		if classification == w.Classification {
			continue
		}
		if err := s.whales.Patch(w.ID, nil, &classification); err != nil {
			log.Printf("scheduler: classifier: patch %s: %v", w.ID, err)
		}
	}
}

func (s *Scheduler) runMetricsAggregator(ctx context.Context) {
	rows, _, err := s.whales.List(whales.ListFilters{Limit: 10000})
	if err != nil {
		log.Printf("scheduler: metrics-aggregator: list whales: %v", err)
		return
	}
	for _, w := range rows {
		if err := s.metrics.FullRebuild(ctx, w.ID); err != nil {
			log.Printf("scheduler: metrics-aggregator: rebuild %s: %v", w.ID, err)
		}
	}
}

func (s *Scheduler) runPriceRefresher(ctx context.Context) {
	for _, asset := range s.assets {
		if _, err := s.prices.Spot(ctx, asset); err != nil {
			log.Printf("scheduler: price-refresher: %s: %v", asset, err)
		}
	}
}
