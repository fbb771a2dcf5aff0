// Command enginesim loads a market configuration, bootstraps one market
// in the matching and risk engine, and replays a scenario file of
// deposit/order/funding/liquidation operations against it, printing the
// resulting book and margin state.
//
// Usage:
//
//	enginesim -config configs/config.yaml -scenario scenarios/demo.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpcore/internal/api"
	"perpcore/internal/config"
	"perpcore/internal/engine"
	"perpcore/internal/oracle"
	"perpcore/internal/presenter"
	"perpcore/internal/store"
	"perpcore/internal/vault"
	"perpcore/pkg/types"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to config.yaml")
	scenarioPath := flag.String("scenario", "", "path to a scenario JSON file to replay")
	flag.Parse()

	if p := os.Getenv("ENGINESIM_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	eng, fmtr, err := buildEngine(*cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if *scenarioPath != "" {
		if err := replayScenario(context.Background(), eng, logger, *scenarioPath); err != nil {
			logger.Error("scenario replay failed", "error", err)
			os.Exit(1)
		}
		printSnapshot(eng, fmtr, logger)
	}

	if apiServer == nil {
		if err := eng.SaveSnapshot(cfg.Market.Symbol); err != nil {
			logger.Error("failed to persist snapshot", "error", err)
		}
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop dashboard", "error", err)
	}
	if err := eng.SaveSnapshot(cfg.Market.Symbol); err != nil {
		logger.Error("failed to persist snapshot", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildEngine(cfg config.Config, logger *slog.Logger) (*engine.Engine, *presenter.Formatter, error) {
	primary := oracle.NewRateLimitedPrimary(
		oracle.NewPythReader(cfg.Oracle.PrimaryBaseURL, cfg.Oracle.PrimaryFeedID),
		cfg.Oracle.RateLimitCapacity, cfg.Oracle.RateLimitPerSecond,
	)
	secondary := oracle.NewRateLimitedSecondary(
		oracle.NewSwitchboardReader(cfg.Oracle.SecondaryBaseURL, cfg.Oracle.SecondaryAggregator),
		cfg.Oracle.RateLimitCapacity, cfg.Oracle.RateLimitPerSecond,
	)
	reconciler := oracle.New(oracle.Config{
		MaxAge:        cfg.Oracle.MaxAge,
		MaxStaleSlots: cfg.Oracle.MaxStaleSlots,
		MinSamples:    cfg.Oracle.MinSamples,
	}, primary, secondary)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	ledger := vault.NewLedger()
	vaultID := common.HexToHash(cfg.Vault.Identity)
	authority := common.HexToHash(cfg.Market.Authority)

	eng := engine.New(logger, ledger, vaultID, reconciler, st, cfg.Dashboard.Enabled)

	params := types.MarketParams{
		TickSize:               cfg.Market.TickSize,
		LotSize:                cfg.Market.LotSize,
		LeverageLimit:          cfg.Market.LeverageLimit,
		FundingInterval:        cfg.Market.FundingIntervalSeconds,
		MaintenanceMarginRatio: cfg.Market.MaintenanceMarginBps,
	}
	if err := eng.InitMarket(cfg.Market.Symbol, 0, authority, params); err != nil {
		return nil, nil, fmt.Errorf("init market: %w", err)
	}
	if err := eng.InitOrderbookSide(cfg.Market.Symbol, types.Bid, cfg.Market.BookCapacity); err != nil {
		return nil, nil, fmt.Errorf("init bid side: %w", err)
	}
	if err := eng.InitOrderbookSide(cfg.Market.Symbol, types.Ask, cfg.Market.BookCapacity); err != nil {
		return nil, nil, fmt.Errorf("init ask side: %w", err)
	}
	if err := eng.InitEventQueue(cfg.Market.Symbol, cfg.Market.EventQueueCapacity); err != nil {
		return nil, nil, fmt.Errorf("init event queue: %w", err)
	}

	fmtr := presenter.NewFormatter(cfg.Market.QuoteDecimals, cfg.Market.BaseDecimals)
	return eng, fmtr, nil
}

// scenarioOp is one line of a replayed scenario: Type selects which engine
// method to call, and only the fields it needs are populated.
type scenarioOp struct {
	Type       string `json:"type"`
	Owner      string `json:"owner,omitempty"`
	Side       string `json:"side,omitempty"`
	Price      uint64 `json:"price,omitempty"`
	Qty        uint64 `json:"qty,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	SlippageBp uint16 `json:"slippage_bps,omitempty"`
	Mark       int64  `json:"mark,omitempty"`
	Slot       uint64 `json:"slot,omitempty"`
	Liquidator string `json:"liquidator,omitempty"`
}

type scenario struct {
	Symbol     string       `json:"symbol"`
	Operations []scenarioOp `json:"operations"`
}

func replayScenario(ctx context.Context, eng *engine.Engine, logger *slog.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}

	for i, op := range sc.Operations {
		if err := applyOp(ctx, eng, sc.Symbol, op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op.Type, err)
		}
		logger.Info("replayed operation", "index", i, "type", op.Type)
	}
	return nil
}

func applyOp(ctx context.Context, eng *engine.Engine, symbol string, op scenarioOp) error {
	side := parseSide(op.Side)
	owner := common.HexToHash(op.Owner)

	switch op.Type {
	case "init_margin":
		return eng.InitMargin(symbol, owner)
	case "deposit":
		return eng.Deposit(ctx, symbol, owner, op.Amount)
	case "withdraw":
		return eng.Withdraw(ctx, symbol, owner, op.Amount)
	case "place_limit":
		_, err := eng.PlaceLimit(symbol, owner, side, op.Price, op.Qty)
		return err
	case "place_market":
		return eng.PlaceMarket(symbol, side, op.Qty, op.SlippageBp)
	case "settle_funding":
		return eng.SettleFunding(ctx, symbol, owner, time.Now(), op.Slot)
	case "liquidate":
		return eng.Liquidate(ctx, symbol, owner, common.HexToHash(op.Liquidator), op.Mark)
	case "settle_fills":
		return eng.SettleFills(ctx, symbol, owner, side)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func parseSide(s string) types.Side {
	if s == "ask" {
		return types.Ask
	}
	return types.Bid
}

func printSnapshot(eng *engine.Engine, fmtr *presenter.Formatter, logger *slog.Logger) {
	for _, market := range eng.GetMarketsSnapshot() {
		logger.Info("market state",
			"symbol", market.Symbol,
			"best_bid", fmtr.FormatPrice(market.BestBid),
			"best_ask", fmtr.FormatPrice(market.BestAsk),
		)
	}
	for _, margin := range eng.GetMarginsSnapshot() {
		logger.Info("margin account",
			"owner", margin.Owner,
			"collateral", fmtr.FormatCollateral(margin.Collateral),
			"positions", len(margin.Positions),
		)
	}
}
