// Package config defines all configuration for the matching and risk
// engine. Config is loaded from a YAML file (default: configs/config.yaml)
// with sensitive fields overridable via PERPCORE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Market    MarketConfig    `mapstructure:"market"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// MarketConfig seeds a single market's immutable and tunable parameters
// at bootstrap.
type MarketConfig struct {
	Symbol                 string `mapstructure:"symbol"`
	TickSize               uint64 `mapstructure:"tick_size"`
	LotSize                uint64 `mapstructure:"lot_size"`
	LeverageLimit          uint8  `mapstructure:"leverage_limit"`
	FundingIntervalSeconds int64  `mapstructure:"funding_interval_seconds"`
	MaintenanceMarginBps   uint32 `mapstructure:"maintenance_margin_bps"`
	BookCapacity           int    `mapstructure:"book_capacity"`
	EventQueueCapacity     int    `mapstructure:"event_queue_capacity"`
	Authority              string `mapstructure:"authority"`
	QuoteDecimals          int    `mapstructure:"quote_decimals"`
	BaseDecimals           int    `mapstructure:"base_decimals"`
}

// VaultConfig identifies the pooled custody account liquidation proceeds
// and fees move through before the fee split.
type VaultConfig struct {
	Identity string `mapstructure:"identity"`
}

// OracleConfig points at the two price feeds and tunes the reconciler's
// staleness and consensus thresholds.
type OracleConfig struct {
	PrimaryBaseURL       string        `mapstructure:"primary_base_url"`
	PrimaryFeedID        string        `mapstructure:"primary_feed_id"`
	SecondaryBaseURL     string        `mapstructure:"secondary_base_url"`
	SecondaryAggregator  string        `mapstructure:"secondary_aggregator"`
	MaxAge               time.Duration `mapstructure:"max_age"`
	MaxStaleSlots        uint64        `mapstructure:"max_stale_slots"`
	MinSamples           int           `mapstructure:"min_samples"`
	RateLimitCapacity    float64       `mapstructure:"rate_limit_capacity"`
	RateLimitPerSecond   float64       `mapstructure:"rate_limit_per_second"`
}

// StoreConfig sets where engine snapshots are persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only dashboard API server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive/deployment-specific fields use env vars: PERPCORE_PRIMARY_BASE_URL,
// PERPCORE_SECONDARY_BASE_URL, PERPCORE_DATA_DIR.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PERPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("PERPCORE_PRIMARY_BASE_URL"); url != "" {
		cfg.Oracle.PrimaryBaseURL = url
	}
	if url := os.Getenv("PERPCORE_SECONDARY_BASE_URL"); url != "" {
		cfg.Oracle.SecondaryBaseURL = url
	}
	if dir := os.Getenv("PERPCORE_DATA_DIR"); dir != "" {
		cfg.Store.DataDir = dir
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.TickSize == 0 {
		return fmt.Errorf("market.tick_size must be > 0")
	}
	if c.Market.LotSize == 0 {
		return fmt.Errorf("market.lot_size must be > 0")
	}
	if c.Market.LeverageLimit == 0 {
		return fmt.Errorf("market.leverage_limit must be > 0")
	}
	if c.Market.BookCapacity <= 0 {
		return fmt.Errorf("market.book_capacity must be > 0")
	}
	if c.Market.EventQueueCapacity <= 0 {
		return fmt.Errorf("market.event_queue_capacity must be > 0")
	}
	if c.Oracle.PrimaryBaseURL == "" {
		return fmt.Errorf("oracle.primary_base_url is required")
	}
	if c.Oracle.SecondaryBaseURL == "" {
		return fmt.Errorf("oracle.secondary_base_url is required")
	}
	if c.Oracle.MaxAge <= 0 {
		return fmt.Errorf("oracle.max_age must be > 0")
	}
	if c.Oracle.MinSamples <= 0 {
		return fmt.Errorf("oracle.min_samples must be > 0")
	}
	return nil
}
