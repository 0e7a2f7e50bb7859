// Package priceoracle provides spot and historical USD pricing for
// assets tracked by the collectors and the metrics/copier engines.
//
// Grounded on the teacher's general HTTP-client idiom (a thin client
// over a configurable base URL) and on realtime.Broker's pattern of
// guarding shared mutable state with a single RWMutex; the persisted
// price_history table plus a write-through Redis cache are this
// package's own addition, since the teacher never priced anything —
// it consumed prices Stockbit's feed already attached to each trade.
package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/cache"
	"github.com/whaletrack/core/database/models"
)

const defaultTTL = 5 * time.Minute

type spotEntry struct {
	usd       float64
	expiresAt time.Time
}

// cachedSpotDTO is the JSON-serializable form written to Redis; spotEntry
// itself keeps unexported fields since it never round-trips through JSON
// directly.
type cachedSpotDTO struct {
	USD       float64   `json:"usd"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Oracle answers spot/historical/series price queries and persists
// every observed price so backtests stay reproducible.
type Oracle struct {
	db      *gorm.DB
	redis   *cache.RedisClient
	http    *http.Client
	baseURL string

	mu   sync.RWMutex
	spot map[string]spotEntry
	ttl  time.Duration
}

// New constructs an Oracle backed by db for persistence, redis (may be
// nil) for a distributed write-through cache, and baseURL for the
// upstream HTTP price feed.
func New(db *gorm.DB, redis *cache.RedisClient, baseURL string) *Oracle {
	return &Oracle{
		db:      db,
		redis:   redis,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		spot:    make(map[string]spotEntry),
		ttl:     defaultTTL,
	}
}

type upstreamSpotResponse struct {
	USD float64 `json:"usd"`
}

// Spot returns the cached or freshly-fetched USD spot price for asset.
// Returns apperr.UpstreamUnavailable on transport failure — callers
// (collectors) must continue the batch and retry next tick rather than abort.
func (o *Oracle) Spot(ctx context.Context, asset string) (float64, error) {
	if v, ok := o.cachedSpot(asset); ok {
		return v, nil
	}
	if o.redis != nil {
		var cached cachedSpotDTO
		if err := o.redis.Get(ctx, "price:spot:"+asset, &cached); err == nil && time.Now().Before(cached.ExpiresAt) {
			o.setCachedSpot(asset, cached.USD)
			return cached.USD, nil
		}
	}

	v, err := o.fetchUpstream(ctx, asset)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamUnavailable, "priceoracle.Spot", err)
	}

	o.setCachedSpot(asset, v)
	if o.redis != nil {
		_ = o.redis.Set(ctx, "price:spot:"+asset, cachedSpotDTO{USD: v, ExpiresAt: time.Now().Add(o.ttl)}, o.ttl)
	}
	o.persist(asset, time.Now().UTC(), v)
	return v, nil
}

// SpotMany resolves spot prices for several assets; assets whose price
// is unavailable are simply absent from the returned map (callers must
// treat a missing key as "unknown", never fabricate a zero price).
func (o *Oracle) SpotMany(ctx context.Context, assets []string) map[string]float64 {
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		if v, err := o.Spot(ctx, a); err == nil {
			out[a] = v
		}
	}
	return out
}

// Historical returns the USD price of asset at ts, linearly
// interpolating between the nearest surrounding persisted points when
// an exact match is absent.
func (o *Oracle) Historical(ctx context.Context, asset string, ts time.Time) (float64, bool) {
	var before, after models.PricePoint
	hasBefore := o.db.Where("asset = ? AND timestamp <= ?", asset, ts).
		Order("timestamp DESC").First(&before).Error == nil
	hasAfter := o.db.Where("asset = ? AND timestamp >= ?", asset, ts).
		Order("timestamp ASC").First(&after).Error == nil

	switch {
	case hasBefore && hasAfter:
		if before.Timestamp.Equal(after.Timestamp) {
			return before.USD, true
		}
		span := after.Timestamp.Sub(before.Timestamp).Seconds()
		frac := ts.Sub(before.Timestamp).Seconds() / span
		return before.USD + (after.USD-before.USD)*frac, true
	case hasBefore:
		return before.USD, true
	case hasAfter:
		return after.USD, true
	default:
		return 0, false
	}
}

// Series returns ordered (timestamp, usd) points for asset in [from, to].
// Resolution is advisory: callers resample client-side; persisted
// points are stored at whatever cadence collectors/refreshers observed them.
func (o *Oracle) Series(asset string, from, to time.Time) ([]models.PricePoint, error) {
	var rows []models.PricePoint
	err := o.db.Where("asset = ? AND timestamp BETWEEN ? AND ?", asset, from, to).
		Order("timestamp ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("priceoracle.Series: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

func (o *Oracle) cachedSpot(asset string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.spot[asset]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, false
	}
	return e.usd, true
}

func (o *Oracle) setCachedSpot(asset string, usd float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spot[asset] = spotEntry{usd: usd, expiresAt: time.Now().Add(o.ttl)}
}

func (o *Oracle) fetchUpstream(ctx context.Context, asset string) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.baseURL, asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, apperr.New(apperr.KindRateLimited, "priceoracle.fetchUpstream", "rate limited", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("priceoracle: upstream status %d", resp.StatusCode)
	}
	var body map[string]upstreamSpotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, apperr.New(apperr.KindDecodeError, "priceoracle.fetchUpstream", "decode failed", err)
	}
	entry, ok := body[asset]
	if !ok {
		return 0, fmt.Errorf("priceoracle: asset %s not in upstream response", asset)
	}
	return entry.USD, nil
}

// persist is best-effort: a failure to record a price point must never
// fail the caller's spot lookup.
func (o *Oracle) persist(asset string, ts time.Time, usd float64) {
	point := models.PricePoint{Asset: asset, Timestamp: ts, USD: usd}
	o.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&point)
}
