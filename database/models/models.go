// Package models defines the persisted entities of the whale tracking
// pipeline as GORM models, following the teacher's database/models_pkg
// convention of one file holding every entity with explicit TableName
// methods, kept separate from the database package itself to avoid
// circular imports between connection setup and the per-entity
// repositories.
package models

import "time"

// Chain is a static enumeration of the three source networks.
type Chain string

const (
	ChainEVM  Chain = "evm"
	ChainUTXO Chain = "utxo"
	ChainPerp Chain = "perp"
)

// WhaleType classifies a whale's observed behavior.
type WhaleType string

const (
	WhaleTypeUnclassified WhaleType = "unclassified"
	WhaleTypeHolder       WhaleType = "holder"
	WhaleTypeTrader       WhaleType = "trader"
	WhaleTypeHolderTrader WhaleType = "holder_trader"
)

// Whale is a tracked wallet identified by (chain, address).
type Whale struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	Chain         Chain     `gorm:"size:10;not null;uniqueIndex:idx_whale_chain_address" json:"chain"`
	Address       string    `gorm:"size:128;not null;uniqueIndex:idx_whale_chain_address" json:"address"`
	Classification WhaleType `gorm:"size:20;not null;default:unclassified" json:"classification"`
	Labels        string    `gorm:"type:text" json:"labels"` // JSON array, see helpers.DecodeLabels/EncodeLabels
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastActiveAt  time.Time `gorm:"index" json:"last_active_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Whale) TableName() string { return "whales" }

// TradeDirection enumerates the canonical directions a Trade may carry.
type TradeDirection string

const (
	DirBuy        TradeDirection = "buy"
	DirSell       TradeDirection = "sell"
	DirDeposit    TradeDirection = "deposit"
	DirWithdraw   TradeDirection = "withdraw"
	DirLong       TradeDirection = "long"
	DirShort      TradeDirection = "short"
	DirCloseLong  TradeDirection = "close_long"
	DirCloseShort TradeDirection = "close_short"
)

// TradeSource enumerates the three canonical sources a Trade can come from.
type TradeSource string

const (
	SourceOnchain      TradeSource = "onchain"
	SourcePerp         TradeSource = "perp"
	SourceExchangeFlow TradeSource = "exchange_flow"
)

// Trade is an append-only normalized action attributable to a whale.
//
// Invariant: at most one row per (whale, tx_hash) where tx_hash is
// non-null; replays must upsert, never insert a duplicate. Perp fills
// carry signed base amounts — closes are negative, never absolute.
type Trade struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WhaleID         string         `gorm:"type:uuid;not null;index:idx_trades_whale_ts,priority:1" json:"whale_id"`
	Timestamp       time.Time      `gorm:"not null;index:idx_trades_whale_ts,priority:2;index:idx_trades_chain_ts,priority:2" json:"timestamp"`
	Chain           Chain          `gorm:"size:10;not null;index:idx_trades_chain_ts,priority:1" json:"chain"`
	Source          TradeSource    `gorm:"size:20;not null" json:"source"`
	Platform        string         `gorm:"size:64" json:"platform"`
	Direction       TradeDirection `gorm:"size:20;not null" json:"direction"`
	BaseAsset       string         `gorm:"size:32;not null" json:"base_asset"`
	QuoteAsset      *string        `gorm:"size:32" json:"quote_asset,omitempty"`
	BaseAmount      float64        `gorm:"type:decimal(38,18);not null" json:"base_amount"` // signed
	QuoteAmount     float64        `gorm:"type:decimal(38,18)" json:"quote_amount"`
	ValueUSD        *float64       `gorm:"type:decimal(24,2)" json:"value_usd,omitempty"`
	RealizedPnLUSD  *float64       `gorm:"type:decimal(24,2)" json:"realized_pnl_usd,omitempty"`
	RealizedPnLPct  *float64       `gorm:"type:decimal(10,4)" json:"realized_pnl_pct,omitempty"`
	OpenPrice       *float64       `gorm:"type:decimal(24,8)" json:"open_price,omitempty"`
	ClosePrice      *float64       `gorm:"type:decimal(24,8)" json:"close_price,omitempty"`
	TxHash          *string        `gorm:"size:128;uniqueIndex:idx_trades_whale_txhash,priority:2" json:"tx_hash,omitempty"`
	CatalogVersion  string         `gorm:"size:32" json:"catalog_version,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string { return "trades" }

// UniqueWhaleTxHashIndex is the name of the partial unique index
// trades(whale_id, tx_hash) WHERE tx_hash IS NOT NULL. Migration and the
// repository code spell the name and columns out themselves.
const UniqueWhaleTxHashIndex = "idx_trades_whale_txhash"

// EventType enumerates the kinds of derived notification a Trade can emit.
type EventType string

const (
	EventLargeSwap     EventType = "large_swap"
	EventLargeTransfer EventType = "large_transfer"
	EventExchangeFlow  EventType = "exchange_flow"
	EventPerpTrade     EventType = "perp_trade"
)

// Event is a derived notification emitted when a Trade exceeds a
// per-type USD threshold.
type Event struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WhaleID   string    `gorm:"type:uuid;not null;index" json:"whale_id"`
	Timestamp time.Time `gorm:"not null;index:idx_events_ts" json:"timestamp"`
	Type      EventType `gorm:"size:24;not null" json:"type"`
	Summary   string    `gorm:"type:text;not null" json:"summary"`
	ValueUSD  float64   `gorm:"type:decimal(24,2);not null" json:"value_usd"`
	TxHash    *string   `gorm:"size:128" json:"tx_hash,omitempty"`
	Details   string    `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "events" }

// Holding is a current-snapshot row, replaced wholesale on refresh.
type Holding struct {
	WhaleID    string    `gorm:"type:uuid;primaryKey" json:"whale_id"`
	Asset      string    `gorm:"size:32;primaryKey" json:"asset"`
	Chain      Chain     `gorm:"size:10;primaryKey" json:"chain"`
	Amount     float64   `gorm:"type:decimal(38,18);not null" json:"amount"`
	ValueUSD   float64   `gorm:"type:decimal(24,2);not null" json:"value_usd"`
	PortfolioPct float64 `gorm:"type:decimal(8,4)" json:"portfolio_pct"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Holding) TableName() string { return "holdings" }

// WalletMetricsDaily is a per-(whale, date) snapshot. Exactly one row per
// date once rebuilt, gaps allowed only before the whale's first trade.
type WalletMetricsDaily struct {
	WhaleID        string    `gorm:"type:uuid;primaryKey" json:"whale_id"`
	Date           time.Time `gorm:"type:date;primaryKey" json:"date"`
	PortfolioValueUSD float64 `gorm:"type:decimal(24,2)" json:"portfolio_value_usd"`
	ROIPercent     float64   `gorm:"type:decimal(12,4)" json:"roi_percent"`
	RealizedPnLUSD float64   `gorm:"type:decimal(24,2)" json:"realized_pnl_usd"`
	UnrealizedPnLUSD float64 `gorm:"type:decimal(24,2)" json:"unrealized_pnl_usd"`
	Volume1dUSD    float64   `gorm:"type:decimal(24,2)" json:"volume_1d_usd"`
	TradeCount1d   int64     `json:"trade_count_1d"`
	WinRatePercent float64   `gorm:"type:decimal(8,4)" json:"win_rate_percent"`
}

func (WalletMetricsDaily) TableName() string { return "wallet_metrics_daily" }

// CurrentWalletMetrics mirrors the latest WalletMetricsDaily row per whale.
type CurrentWalletMetrics struct {
	WhaleID           string    `gorm:"type:uuid;primaryKey" json:"whale_id"`
	Date              time.Time `gorm:"type:date" json:"date"`
	PortfolioValueUSD float64   `gorm:"type:decimal(24,2)" json:"portfolio_value_usd"`
	ROIPercent        float64   `gorm:"type:decimal(12,4)" json:"roi_percent"`
	RealizedPnLUSD    float64   `gorm:"type:decimal(24,2)" json:"realized_pnl_usd"`
	UnrealizedPnLUSD  float64   `gorm:"type:decimal(24,2)" json:"unrealized_pnl_usd"`
	Volume1dUSD       float64   `gorm:"type:decimal(24,2)" json:"volume_1d_usd"`
	TradeCount1d      int64     `json:"trade_count_1d"`
	WinRatePercent    float64   `gorm:"type:decimal(8,4)" json:"win_rate_percent"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CurrentWalletMetrics) TableName() string { return "current_wallet_metrics" }

// IngestionCheckpoint tracks how far ingestion has advanced per (whale, source).
type IngestionCheckpoint struct {
	WhaleID            string    `gorm:"type:uuid;primaryKey" json:"whale_id"`
	Source             Chain     `gorm:"size:10;primaryKey" json:"source"`
	LastTimestamp      time.Time `json:"last_timestamp"`
	LastBlockHeight    *uint64   `json:"last_block_height,omitempty"`
	LastPositionSnapAt *time.Time `json:"last_position_snapshot_at,omitempty"`
	ContinuationToken  string    `gorm:"type:text" json:"continuation_token,omitempty"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (IngestionCheckpoint) TableName() string { return "ingestion_checkpoints" }

// BackfillState enumerates the BackfillStatus state machine.
type BackfillState string

const (
	BackfillIdle    BackfillState = "idle"
	BackfillRunning BackfillState = "running"
	BackfillDone    BackfillState = "done"
	BackfillError   BackfillState = "error"
)

// BackfillStatus tracks a whale's backfill job; only one running at a time.
type BackfillStatus struct {
	WhaleID   string        `gorm:"type:uuid;primaryKey" json:"whale_id"`
	State     BackfillState `gorm:"size:10;not null;default:idle" json:"state"`
	Progress  int           `gorm:"not null;default:0" json:"progress"`
	Message   string        `gorm:"type:text" json:"message,omitempty"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BackfillStatus) TableName() string { return "backfill_status" }

// BacktestRun stores a copier backtest configuration and result summary.
type BacktestRun struct {
	ID                   string    `gorm:"type:uuid;primaryKey" json:"id"`
	WhaleID              string    `gorm:"type:uuid;not null;index" json:"whale_id"`
	InitialDepositUSD    float64   `gorm:"type:decimal(24,2);not null" json:"initial_deposit_usd"`
	PositionPct          float64   `gorm:"type:decimal(8,4);not null" json:"position_pct"`
	FeeBps               float64   `gorm:"type:decimal(10,4);not null" json:"fee_bps"`
	SlippageBps          float64   `gorm:"type:decimal(10,4);not null" json:"slippage_bps"`
	Leverage             float64   `gorm:"type:decimal(10,4);not null;default:1" json:"leverage"`
	AssetsFilter         string    `gorm:"type:text" json:"assets_filter,omitempty"`
	WindowStart          *time.Time `json:"window_start,omitempty"`
	WindowEnd            *time.Time `json:"window_end,omitempty"`
	ROIPercent           float64   `gorm:"type:decimal(12,4)" json:"roi_percent"`
	NetPnLUSD            float64   `gorm:"type:decimal(24,2)" json:"net_pnl_usd"`
	MaxDrawdownPct       float64   `gorm:"type:decimal(10,4)" json:"max_drawdown_pct"`
	MaxDrawdownUSD       float64   `gorm:"type:decimal(24,2)" json:"max_drawdown_usd"`
	RecommendedPositionPct float64 `gorm:"type:decimal(8,4)" json:"recommended_position_pct"`
	TradeCount           int       `json:"trade_count"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BacktestRun) TableName() string { return "backtest_runs" }

// CopierSession is a live-shadowing session mirroring a whale's fills.
type CopierSession struct {
	ID                 string     `gorm:"type:uuid;primaryKey" json:"id"`
	WhaleID            string     `gorm:"type:uuid;not null;index" json:"whale_id"`
	RunID              string     `gorm:"type:uuid;not null" json:"run_id"`
	Active             bool       `gorm:"not null;default:true" json:"active"`
	ProcessedCount     int64      `json:"processed_count"`
	LastSeenTradeAt    *time.Time `json:"last_seen_trade_at,omitempty"`
	LastSeenTradeID    int64      `json:"last_seen_trade_id,omitempty"`
	Notifications      string     `gorm:"type:jsonb" json:"notifications,omitempty"` // ring buffer, JSON array
	Errors             string     `gorm:"type:jsonb" json:"errors,omitempty"`        // ring buffer, JSON array
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CopierSession) TableName() string { return "copier_sessions" }

// PricePoint is a persisted (asset, timestamp) -> USD observation, append-only.
type PricePoint struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Asset     string    `gorm:"size:32;not null;uniqueIndex:idx_price_asset_ts,priority:1" json:"asset"`
	Timestamp time.Time `gorm:"not null;uniqueIndex:idx_price_asset_ts,priority:2" json:"timestamp"`
	USD       float64   `gorm:"type:decimal(24,8);not null" json:"usd"`
}

func (PricePoint) TableName() string { return "price_history" }

// All returns every model, for AutoMigrate call sites that want a
// single source of truth for the schema instead of repeating the list.
func All() []interface{} {
	return []interface{}{
		&Whale{},
		&Trade{},
		&Event{},
		&Holding{},
		&WalletMetricsDaily{},
		&CurrentWalletMetrics{},
		&IngestionCheckpoint{},
		&BackfillStatus{},
		&BacktestRun{},
		&CopierSession{},
		&PricePoint{},
	}
}
