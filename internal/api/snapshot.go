package api

import (
	"time"

	"perpcore/internal/config"
)

// MarketSnapshotProvider provides read-only snapshot access to engine
// state for the dashboard. internal/engine.Engine implements this.
type MarketSnapshotProvider interface {
	GetMarketsSnapshot() []MarketStatus
	GetMarginsSnapshot() []MarginStatus
	DashboardEvents() <-chan DashboardEvent
}

// BuildSnapshot aggregates state from the engine into a dashboard snapshot.
func BuildSnapshot(provider MarketSnapshotProvider, cfg config.Config) DashboardSnapshot {
	return DashboardSnapshot{
		Timestamp: time.Now(),
		Markets:   provider.GetMarketsSnapshot(),
		Margins:   provider.GetMarginsSnapshot(),
		Config:    NewConfigSummary(cfg),
	}
}
