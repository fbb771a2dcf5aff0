package api

import "time"

// DashboardEvent is the wrapper for all events sent to the dashboard.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "fill", "funding", "liquidation"
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data"`
}

// FillEvent notifies the dashboard of a matched trade.
type FillEvent struct {
	MakerKey uint64 `json:"maker_key"`
	Price    uint64 `json:"price"`
	Qty      uint64 `json:"qty"`
}

// FundingEvent notifies the dashboard of a funding settlement.
type FundingEvent struct {
	Owner     string `json:"owner"`
	MarkPrice int64  `json:"mark_price"`
}

// LiquidationEvent notifies the dashboard of a forced unwind.
type LiquidationEvent struct {
	Owner     string `json:"owner"`
	Proceeds  uint64 `json:"proceeds"`
	Fee       uint64 `json:"fee"`
	HealthBps int64  `json:"health_bps"`
}

// NewFillEvent builds a dashboard FillEvent for symbol.
func NewFillEvent(symbol string, makerKey, price, qty uint64) DashboardEvent {
	return DashboardEvent{
		Type:      "fill",
		Timestamp: time.Now(),
		Symbol:    symbol,
		Data:      FillEvent{MakerKey: makerKey, Price: price, Qty: qty},
	}
}

// NewFundingEvent builds a dashboard FundingEvent for symbol.
func NewFundingEvent(symbol, owner string, markPrice int64) DashboardEvent {
	return DashboardEvent{
		Type:      "funding",
		Timestamp: time.Now(),
		Symbol:    symbol,
		Data:      FundingEvent{Owner: owner, MarkPrice: markPrice},
	}
}

// NewLiquidationEvent builds a dashboard LiquidationEvent for symbol.
func NewLiquidationEvent(symbol, owner string, proceeds, fee uint64, healthBps int64) DashboardEvent {
	return DashboardEvent{
		Type:      "liquidation",
		Timestamp: time.Now(),
		Symbol:    symbol,
		Data:      LiquidationEvent{Owner: owner, Proceeds: proceeds, Fee: fee, HealthBps: healthBps},
	}
}
