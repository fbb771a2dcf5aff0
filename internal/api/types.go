package api

import (
	"time"

	"perpcore/internal/config"
)

// DashboardSnapshot represents the complete read-only dashboard state
// across every market the engine holds in memory.
type DashboardSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Markets   []MarketStatus `json:"markets"`
	Margins   []MarginStatus `json:"margins"`
	Config    ConfigSummary  `json:"config"`
}

// MarketStatus represents per-market book and funding state.
type MarketStatus struct {
	Symbol          string    `json:"symbol"`
	BestBid         uint64    `json:"best_bid"`
	BestAsk         uint64    `json:"best_ask"`
	MarkPrice       int64     `json:"mark_price"`
	LastFundingTime time.Time `json:"last_funding_time"`
	LeverageLimit   uint8     `json:"leverage_limit"`
	MaintenanceBps  uint32    `json:"maintenance_margin_bps"`
}

// PositionStatus is one open position within a MarginStatus.
type PositionStatus struct {
	Key        uint64 `json:"key"`
	Qty        uint64 `json:"qty"`
	EntryPrice uint64 `json:"entry_price"`
	Side       string `json:"side"`
	Collateral uint64 `json:"collateral,omitempty"`
}

// MarginStatus represents one trader's margin account.
type MarginStatus struct {
	Owner      string           `json:"owner"`
	MarginType string           `json:"margin_type"`
	Collateral uint64           `json:"collateral"`
	Positions  []PositionStatus `json:"positions"`
}

// ConfigSummary is a human-readable projection of the engine's market and
// oracle configuration, for display only.
type ConfigSummary struct {
	Symbol               string `json:"symbol"`
	TickSize             uint64 `json:"tick_size"`
	LotSize              uint64 `json:"lot_size"`
	LeverageLimit        uint8  `json:"leverage_limit"`
	FundingIntervalSecs  int64  `json:"funding_interval_seconds"`
	MaintenanceMarginBps uint32 `json:"maintenance_margin_bps"`
	OracleMaxAge         string `json:"oracle_max_age"`
}

// NewConfigSummary projects a config.Config into its dashboard summary.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Symbol:               cfg.Market.Symbol,
		TickSize:             cfg.Market.TickSize,
		LotSize:              cfg.Market.LotSize,
		LeverageLimit:        cfg.Market.LeverageLimit,
		FundingIntervalSecs:  cfg.Market.FundingIntervalSeconds,
		MaintenanceMarginBps: cfg.Market.MaintenanceMarginBps,
		OracleMaxAge:         cfg.Oracle.MaxAge.String(),
	}
}
