// Package perp implements the PERP source collector: periodic polling
// of a clearinghouse-style REST endpoint for a wallet's ledger (fills,
// deposits, withdrawals) and current positions.
//
// No perp-exchange SDK in the retrieval pack was usable verbatim, so
// this collector is a plain net/http.Client poller following the
// teacher's general HTTP-client idiom (a JSON GET against a configured
// base URL, bearer auth optional), the same shape as the price oracle's
// upstream fetch.
package perp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/collectors"
	"github.com/whaletrack/core/database/models"
)

// ledgerEntry is one fill/deposit/withdrawal row from the clearinghouse ledger.
type ledgerEntry struct {
	Timestamp   int64   `json:"timestamp"`
	Type        string  `json:"type"` // "fill" | "deposit" | "withdrawal"
	Asset       string  `json:"asset"`
	Side        string  `json:"side"` // "long" | "short" | "close_long" | "close_short"
	Size        float64 `json:"size"` // unsigned magnitude as reported by the venue
	Price       float64 `json:"price"`
	ValueUSD    float64 `json:"value_usd"`
	RealizedPnL float64 `json:"realized_pnl_usd"`
	TxID        string  `json:"tx_id"`
}

// position is one open-position row from the clearinghouse state.
type position struct {
	Asset         string  `json:"asset"`
	Size          float64 `json:"size"` // signed: negative is short
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	NotionalUSD   float64 `json:"notional_usd"`
}

type ledgerResponse struct {
	Entries []ledgerEntry `json:"entries"`
}

type clearinghouseResponse struct {
	Positions []position `json:"positions"`
}

// Collector is the PERP Source implementation.
type Collector struct {
	baseURL string
	http    *http.Client
}

// New constructs a Collector against a clearinghouse/ledger base URL.
func New(baseURL string) *Collector {
	return &Collector{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Collector) Chain() models.Chain { return models.ChainPerp }

// FetchSince fetches ledger entries newer than checkpoint's last fill
// time, and the current position snapshot (always fetched in full —
// positions are authoritative state, not a delta).
func (c *Collector) FetchSince(ctx context.Context, whale models.Whale, checkpoint models.IngestionCheckpoint) (collectors.NormalizedBatch, error) {
	ledger, err := c.fetchLedger(ctx, whale.Address, checkpoint.LastTimestamp)
	if err != nil {
		return collectors.NormalizedBatch{}, err
	}
	positions, err := c.fetchPositions(ctx, whale.Address)
	if err != nil {
		return collectors.NormalizedBatch{}, err
	}

	batch := collectors.NormalizedBatch{}
	newest := checkpoint.LastTimestamp
	for _, e := range ledger.Entries {
		ts := time.Unix(e.Timestamp, 0).UTC()
		if !ts.After(checkpoint.LastTimestamp) {
			continue
		}
		trade, event := normalizeFill(whale, e, ts)
		batch.Trades = append(batch.Trades, trade)
		if event != nil {
			batch.Events = append(batch.Events, *event)
		}
		if ts.After(newest) {
			newest = ts
		}
	}

	now := time.Now().UTC()
	batch.Holdings = normalizePositions(whale, positions.Positions)
	batch.Checkpoint = models.IngestionCheckpoint{LastTimestamp: newest, LastPositionSnapAt: &now}
	return batch, nil
}

func (c *Collector) fetchLedger(ctx context.Context, address string, since time.Time) (ledgerResponse, error) {
	url := fmt.Sprintf("%s/ledger?address=%s&since=%d", c.baseURL, address, since.Unix())
	var out ledgerResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return ledgerResponse{}, err
	}
	return out, nil
}

func (c *Collector) fetchPositions(ctx context.Context, address string) (clearinghouseResponse, error) {
	url := fmt.Sprintf("%s/clearinghouse?address=%s", c.baseURL, address)
	var out clearinghouseResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return clearinghouseResponse{}, err
	}
	return out, nil
}

func (c *Collector) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "perp.getJSON", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return apperr.New(apperr.KindRateLimited, "perp.getJSON", "rate limited", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.KindUpstreamUnavailable, "perp.getJSON", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.New(apperr.KindDecodeError, "perp.getJSON", "decode failed", err)
	}
	return nil
}

// normalizeFill converts one ledger entry into a signed Trade. Close
// operations always carry a negative size, regardless of how the venue
// reported the magnitude — the ledger is authoritative for historical
// PnL, never for open position state.
func normalizeFill(whale models.Whale, e ledgerEntry, ts time.Time) (models.Trade, *models.Event) {
	direction := directionFor(e)
	size := e.Size
	if direction == models.DirCloseLong || direction == models.DirCloseShort || direction == models.DirWithdraw {
		size = -size
	}

	var txID *string
	if e.TxID != "" {
		t := e.TxID
		txID = &t
	}
	var valueUSD *float64
	if e.ValueUSD != 0 {
		v := e.ValueUSD
		if v < 0 {
			v = -v
		}
		valueUSD = &v
	}
	var realizedPnL *float64
	if e.Type == "fill" && (direction == models.DirCloseLong || direction == models.DirCloseShort) {
		p := e.RealizedPnL
		realizedPnL = &p
	}

	trade := models.Trade{
		WhaleID:        whale.ID,
		Timestamp:      ts,
		Chain:          models.ChainPerp,
		Source:         models.SourcePerp,
		Platform:       "perp",
		Direction:      direction,
		BaseAsset:      e.Asset,
		BaseAmount:     size,
		ValueUSD:       valueUSD,
		RealizedPnLUSD: realizedPnL,
		OpenPrice:      priceOrNil(e, direction, true),
		ClosePrice:     priceOrNil(e, direction, false),
		TxHash:         txID,
	}

	var event *models.Event
	if valueUSD != nil && *valueUSD > 0 {
		event = &models.Event{
			WhaleID:   whale.ID,
			Timestamp: ts,
			Type:      models.EventPerpTrade,
			Summary:   fmt.Sprintf("%s %s %.4f %s @ %.2f", whale.Address, direction, size, e.Asset, e.Price),
			ValueUSD:  *valueUSD,
			TxHash:    txID,
		}
	}
	return trade, event
}

func directionFor(e ledgerEntry) models.TradeDirection {
	switch e.Type {
	case "deposit":
		return models.DirDeposit
	case "withdrawal":
		return models.DirWithdraw
	}
	switch e.Side {
	case "long":
		return models.DirLong
	case "short":
		return models.DirShort
	case "close_long":
		return models.DirCloseLong
	case "close_short":
		return models.DirCloseShort
	default:
		return models.DirLong
	}
}

func priceOrNil(e ledgerEntry, dir models.TradeDirection, wantOpen bool) *float64 {
	isClose := dir == models.DirCloseLong || dir == models.DirCloseShort
	if wantOpen == !isClose {
		p := e.Price
		return &p
	}
	return nil
}

// normalizePositions converts clearinghouse position rows into Holding
// snapshots. Positions are the authoritative open-position source —
// the metrics engine never derives them from the fill ledger.
func normalizePositions(whale models.Whale, positions []position) []models.Holding {
	var total float64
	for _, p := range positions {
		total += abs(p.NotionalUSD)
	}
	out := make([]models.Holding, 0, len(positions))
	for _, p := range positions {
		pct := 0.0
		if total > 0 {
			pct = abs(p.NotionalUSD) / total * 100
		}
		out = append(out, models.Holding{
			WhaleID:      whale.ID,
			Asset:        p.Asset,
			Chain:        models.ChainPerp,
			Amount:       p.Size,
			ValueUSD:     p.NotionalUSD,
			PortfolioPct: pct,
		})
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
