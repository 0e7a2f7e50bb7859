// Package app wires every component of the whale tracking pipeline
// together and owns its process lifecycle, grounded directly on the
// teacher's App struct (config held at construction, dependencies
// populated during Start, a buffered interrupt channel driving
// gracefulShutdown with a bounded timeout).
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/whaletrack/core/api"
	"github.com/whaletrack/core/broadcaster"
	"github.com/whaletrack/core/cache"
	"github.com/whaletrack/core/catalog"
	"github.com/whaletrack/core/collectors"
	"github.com/whaletrack/core/collectors/evm"
	"github.com/whaletrack/core/collectors/perp"
	"github.com/whaletrack/core/collectors/utxo"
	"github.com/whaletrack/core/config"
	"github.com/whaletrack/core/database"
	"github.com/whaletrack/core/database/checkpoints"
	"github.com/whaletrack/core/database/copierdb"
	"github.com/whaletrack/core/database/events"
	"github.com/whaletrack/core/database/holdings"
	"github.com/whaletrack/core/database/metricsdb"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/database/whales"
	"github.com/whaletrack/core/priceoracle"
)

// trackedAssets lists the assets the price refresher keeps warm; the
// ingestion paths also fetch on demand for assets outside this set.
var trackedAssets = []string{"bitcoin", "ethereum", "usd-coin", "tether"}

// App owns every long-lived dependency and background goroutine of the pipeline.
type App struct {
	config *config.Config

	db      *database.Database
	redis   *cache.RedisClient
	catalog *catalog.Catalog
	prices  *priceoracle.Oracle

	whalesRepo  *whales.Repository
	tradesRepo  *trades.Repository
	eventsRepo  *events.Repository
	holdingsRepo *holdings.Repository
	metricsRepo *metricsdb.Repository
	checkpointsRepo *checkpoints.Repository
	copierRepo  *copierdb.Repository

	broker   *broadcaster.Broker
	metrics  *MetricsEngine
	backfill *BackfillOrchestrator
	scheduler *Scheduler
	copier   *CopierSimulator
	liveCopier *LiveCopier

	runners []*collectors.Runner
	sources map[models.Chain]collectors.Source

	httpServer *http.Server

	wg sync.WaitGroup
}

// New constructs an App from configuration; all dependencies are
// initialized by Start, following the teacher's New/Start split.
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start connects every dependency, launches background goroutines, and
// blocks until an interrupt signal triggers graceful shutdown.
func (a *App) Start() error {
	log.Println("connecting to database...")
	db, err := database.Connect(a.config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("connecting to redis...")
	a.redis = cache.NewRedisClient(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword)
	if a.redis == nil {
		log.Println("redis connection failed, caching disabled")
	}

	cat, err := catalog.Load(a.config.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog load failed: %w", err)
	}
	a.catalog = cat
	a.prices = priceoracle.New(db.DB(), a.redis, a.config.PriceAPIBaseURL)

	a.whalesRepo = whales.NewRepository(db.DB())
	a.tradesRepo = trades.NewRepository(db.DB())
	a.eventsRepo = events.NewRepository(db.DB())
	a.holdingsRepo = holdings.NewRepository(db.DB())
	a.metricsRepo = metricsdb.NewRepository(db.DB())
	a.checkpointsRepo = checkpoints.NewRepository(db.DB())
	a.copierRepo = copierdb.NewRepository(db.DB())

	a.broker = broadcaster.NewBroker(32)
	go a.broker.Run()

	a.metrics = NewMetricsEngine(a.tradesRepo, a.metricsRepo, a.holdingsRepo, a.prices)
	a.copier = NewCopierSimulator(a.whalesRepo, a.tradesRepo, a.prices, a.copierRepo)
	a.liveCopier = NewLiveCopier(a.copier, a.copierRepo)

	a.sources = map[models.Chain]collectors.Source{
		models.ChainEVM:  evm.New(a.config.EVMRPCHTTPURL, a.catalog, a.prices),
		models.ChainUTXO: utxo.New(a.config.UTXOAPIBaseURL, a.catalog, a.prices),
		models.ChainPerp: perp.New(a.config.PerpInfoURL),
	}
	a.backfill = NewBackfillOrchestrator(db.DB(), a.sources, a.whalesRepo, a.checkpointsRepo, a.tradesRepo,
		a.holdingsRepo, a.eventsRepo, a.metrics, a.broker, a.config.EventThresholdUSD)

	onTradesChanged := func(whaleID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := a.metrics.IncrementalUpdate(ctx, whaleID); err != nil {
			log.Printf("metrics incremental update for %s: %v", whaleID, err)
		}
	}

	if a.config.EnableIngestors {
		for chain, source := range a.sources {
			interval := 30 * time.Second
			if chain == models.ChainPerp {
				interval = 10 * time.Second
			}
			runner := collectors.NewRunner(db.DB(), source, a.whalesRepo, a.checkpointsRepo, a.broker,
				a.config.EventThresholdUSD, onTradesChanged, interval)
			a.runners = append(a.runners, runner)
			go runner.Start()
		}
	}

	if a.config.EnableScheduler {
		a.scheduler = NewScheduler(a.config.Scheduler, a.whalesRepo, a.tradesRepo, a.metrics, a.prices, trackedAssets)
		a.scheduler.Start()
	}

	apiServer := api.NewServer(api.Deps{
		Whales:      a.whalesRepo,
		Trades:      a.tradesRepo,
		Events:      a.eventsRepo,
		Holdings:    a.holdingsRepo,
		Metrics:     a.metricsRepo,
		MetricsEngine: a.metrics,
		Backfill:    a.backfill,
		Copier:      a.copier,
		LiveCopier:  a.liveCopier,
		Broker:      a.broker,
		Prices:      a.prices,
	})
	a.httpServer = &http.Server{
		Addr:    a.config.HTTPAddr,
		Handler: apiServer.Handler(),
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("http server listening on %s", a.config.HTTPAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	return a.gracefulShutdown()
}

func (a *App) gracefulShutdown() error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Println("shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for _, r := range a.runners {
			r.Stop()
		}
		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		if a.httpServer != nil {
			_ = a.httpServer.Shutdown(shutdownCtx)
		}
		a.wg.Wait()
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("error closing database: %v", err)
			}
		}
		if a.redis != nil {
			_ = a.redis.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Println("graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
