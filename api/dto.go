package api

import (
	"time"

	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/whales"
	"github.com/whaletrack/core/helpers"
)

// whaleOut is the wire shape of a Whale, decoding the stored JSON label
// array and deriving the explorer URL the way the specification's data
// model describes (an attribute, not a stored column).
type whaleOut struct {
	ID                string    `json:"id"`
	Chain             models.Chain `json:"chain"`
	Address           string    `json:"address"`
	Classification    models.WhaleType `json:"classification"`
	Labels            []string  `json:"labels"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
	ExplorerURL       string    `json:"explorer_url"`
	ROIPercent        float64   `json:"roi_percent"`
	PortfolioValueUSD float64   `json:"portfolio_value_usd"`
	Volume1dUSD       float64   `json:"volume_1d_usd"`
}

func toWhaleOut(w models.Whale, roi, portfolio, volume float64) whaleOut {
	return whaleOut{
		ID:                w.ID,
		Chain:             w.Chain,
		Address:           w.Address,
		Classification:    w.Classification,
		Labels:            helpers.DecodeLabels(w.Labels),
		FirstSeenAt:       w.FirstSeenAt,
		LastActiveAt:      w.LastActiveAt,
		ExplorerURL:       explorerURL(w.Chain, w.Address),
		ROIPercent:        roi,
		PortfolioValueUSD: portfolio,
		Volume1dUSD:       volume,
	}
}

func toWhaleOutSummary(s whales.WhaleSummary) whaleOut {
	return toWhaleOut(s.Whale, s.ROIPercent, s.PortfolioValueUSD, s.Volume1dUSD)
}

// explorerURL derives a block-explorer link per chain; PERP has no
// public chain explorer, so it links the exchange's own address page.
func explorerURL(chain models.Chain, address string) string {
	switch chain {
	case models.ChainEVM:
		return "https://etherscan.io/address/" + address
	case models.ChainUTXO:
		return "https://blockstream.info/address/" + address
	case models.ChainPerp:
		return "https://app.hyperliquid.xyz/explorer/address/" + address
	default:
		return ""
	}
}
