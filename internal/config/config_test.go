package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
market:
  symbol: BTC-PERP
  tick_size: 1
  lot_size: 1
  leverage_limit: 10
  funding_interval_seconds: 3600
  maintenance_margin_bps: 500
  book_capacity: 64
  event_queue_capacity: 256
  authority: "0x1111111111111111111111111111111111111111111111111111111111111111"
  quote_decimals: 6
  base_decimals: 9
vault:
  identity: "0x2222222222222222222222222222222222222222222222222222222222222222"
oracle:
  primary_base_url: https://hermes.example.com
  primary_feed_id: 0xabc
  secondary_base_url: https://switchboard.example.com
  secondary_aggregator: 0xdef
  max_age: 5s
  max_stale_slots: 50
  min_samples: 3
  rate_limit_capacity: 10
  rate_limit_per_second: 2
store:
  data_dir: ./data
logging:
  level: info
  format: text
dashboard:
  enabled: true
  port: 8081
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.Symbol != "BTC-PERP" {
		t.Fatalf("Symbol = %q, want BTC-PERP", cfg.Market.Symbol)
	}
	if cfg.Market.LeverageLimit != 10 {
		t.Fatalf("LeverageLimit = %d, want 10", cfg.Market.LeverageLimit)
	}
	if cfg.Oracle.MaxAge.Seconds() != 5 {
		t.Fatalf("MaxAge = %v, want 5s", cfg.Oracle.MaxAge)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadEnvOverridesOracleURLs(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("PERPCORE_PRIMARY_BASE_URL", "https://override.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oracle.PrimaryBaseURL != "https://override.example.com" {
		t.Fatalf("PrimaryBaseURL = %q, want override", cfg.Oracle.PrimaryBaseURL)
	}
}

func TestValidateRejectsMissingSymbol(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Market: MarketConfig{TickSize: 1, LotSize: 1, LeverageLimit: 1, BookCapacity: 1, EventQueueCapacity: 1},
		Oracle: OracleConfig{PrimaryBaseURL: "x", SecondaryBaseURL: "y", MaxAge: 1, MinSamples: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate: expected error for missing symbol")
	}
}

func TestValidateRejectsMissingOracleURL(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Market: MarketConfig{Symbol: "X", TickSize: 1, LotSize: 1, LeverageLimit: 1, BookCapacity: 1, EventQueueCapacity: 1},
		Oracle: OracleConfig{MaxAge: 1, MinSamples: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate: expected error for missing oracle URLs")
	}
}
