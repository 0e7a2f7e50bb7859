// Package utxo implements the UTXO source collector: paginated address
// history against an Esplora-compatible REST backend, classifying each
// transaction by whether the tracked address appears in its inputs or
// outputs, detecting exchange flow via the address catalog.
//
// Grounded on Klingon-tech-klingdex's internal/backend.EsploraBackend /
// MempoolBackend (a thin JSON-over-HTTP client keyed by a base URL,
// paginating "last seen txid" the way Esplora's /address/:addr/txs/chain
// endpoint does) and using btcutil/chainhash for address and txid handling.
package utxo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/catalog"
	"github.com/whaletrack/core/collectors"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/priceoracle"
)

// esploraVin/Vout mirror the subset of Esplora's tx JSON shape this
// collector needs: which addresses are debited/credited and by how much.
type esploraVin struct {
	Prevout struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value                int64  `json:"value"`
	} `json:"prevout"`
}

type esploraVout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value                int64  `json:"value"`
}

type esploraTx struct {
	TxID string        `json:"txid"`
	Vin  []esploraVin  `json:"vin"`
	Vout []esploraVout `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

// Collector is the UTXO Source implementation.
type Collector struct {
	baseURL string
	http    *http.Client
	catalog *catalog.Catalog
	prices  *priceoracle.Oracle
}

// New constructs a Collector against an Esplora-compatible base URL.
func New(baseURL string, cat *catalog.Catalog, prices *priceoracle.Oracle) *Collector {
	return &Collector{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}, catalog: cat, prices: prices}
}

func (c *Collector) Chain() models.Chain { return models.ChainUTXO }

// FetchSince paginates address history beyond the last processed
// txid/timestamp, stopping once it reaches already-seen transactions.
func (c *Collector) FetchSince(ctx context.Context, whale models.Whale, checkpoint models.IngestionCheckpoint) (collectors.NormalizedBatch, error) {
	lastSeen := checkpoint.ContinuationToken
	batch := collectors.NormalizedBatch{}
	newestTxID := lastSeen
	newestTime := checkpoint.LastTimestamp
	advanced := false

	page := ""
	for {
		txs, err := c.fetchPage(ctx, whale.Address, page)
		if err != nil {
			return collectors.NormalizedBatch{}, err
		}
		if len(txs) == 0 {
			break
		}

		exhausted := false
		for _, tx := range txs {
			if lastSeen != "" && tx.TxID == lastSeen {
				exhausted = true
				break
			}
			trade, event, ok := c.normalize(ctx, whale, tx)
			if !ok {
				continue
			}
			batch.Trades = append(batch.Trades, trade)
			if event != nil {
				batch.Events = append(batch.Events, *event)
			}
			if !advanced { // history is newest-first: the first new tx becomes the checkpoint
				newestTxID = tx.TxID
				newestTime = trade.Timestamp
				advanced = true
			}
		}
		if exhausted || len(txs) < 25 {
			break
		}
		page = txs[len(txs)-1].TxID
	}

	batch.Checkpoint = models.IngestionCheckpoint{ContinuationToken: newestTxID, LastTimestamp: newestTime}
	return batch, nil
}

func (c *Collector) fetchPage(ctx context.Context, address, afterTxID string) ([]esploraTx, error) {
	url := fmt.Sprintf("%s/address/%s/txs/chain", c.baseURL, address)
	if afterTxID != "" {
		url += "/" + afterTxID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "utxo.fetchPage", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.New(apperr.KindRateLimited, "utxo.fetchPage", "rate limited", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindUpstreamUnavailable, "utxo.fetchPage", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	var txs []esploraTx
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, apperr.New(apperr.KindDecodeError, "utxo.fetchPage", "decode failed", err)
	}
	return txs, nil
}

func (c *Collector) normalize(ctx context.Context, whale models.Whale, tx esploraTx) (models.Trade, *models.Event, bool) {
	if _, err := chainhash.NewHashFromStr(tx.TxID); err != nil {
		return models.Trade{}, nil, false // DecodeError: skip the bad record, never poison the batch
	}

	var inSats, outSats int64
	counterparty := ""
	for _, vin := range tx.Vin {
		if vin.Prevout.ScriptPubKeyAddress == whale.Address {
			inSats += vin.Prevout.Value
		}
	}
	for _, vout := range tx.Vout {
		if vout.ScriptPubKeyAddress == whale.Address {
			outSats += vout.Value
		} else if counterparty == "" {
			counterparty = vout.ScriptPubKeyAddress
		}
	}

	netSats := outSats - inSats
	direction := models.DirDeposit
	if netSats < 0 {
		direction = models.DirWithdraw
	}

	source := models.SourceOnchain
	if entry, found := c.catalog.Lookup(counterparty); found && entry.Kind == catalog.KindExchangeDeposit {
		source = models.SourceExchangeFlow
	}

	btc := float64(netSats) / 1e8
	ts := time.Unix(tx.Status.BlockTime, 0).UTC()
	if tx.Status.BlockTime == 0 {
		ts = time.Now().UTC()
	}

	var valueUSD *float64
	if c.prices != nil {
		if usd, err := c.prices.Spot(ctx, "bitcoin"); err == nil {
			v := usd * btc
			if v < 0 {
				v = -v
			}
			valueUSD = &v
		}
	}

	txID := tx.TxID
	trade := models.Trade{
		WhaleID:        whale.ID,
		Timestamp:      ts,
		Chain:          models.ChainUTXO,
		Source:         source,
		Platform:       "utxo",
		Direction:      direction,
		BaseAsset:      "BTC",
		BaseAmount:     btc,
		ValueUSD:       valueUSD,
		TxHash:         &txID,
		CatalogVersion: c.catalog.Version(),
	}

	var event *models.Event
	if valueUSD != nil && *valueUSD > 0 {
		etype := models.EventLargeTransfer
		if source == models.SourceExchangeFlow {
			etype = models.EventExchangeFlow
		}
		event = &models.Event{
			WhaleID: whale.ID, Timestamp: ts, Type: etype,
			Summary:  fmt.Sprintf("%s %s %.8f BTC", whale.Address, direction, btc),
			ValueUSD: *valueUSD, TxHash: &txID,
		}
	}
	return trade, event, true
}
