package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"perpcore/internal/errs"
	"perpcore/internal/oracle"
	"perpcore/internal/vault"
	"perpcore/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPrimary struct{ sample oracle.PrimarySample }

func (s stubPrimary) Read(ctx context.Context) (oracle.PrimarySample, error) { return s.sample, nil }

type stubSecondary struct{ sample oracle.SecondarySample }

func (s stubSecondary) Read(ctx context.Context) (oracle.SecondarySample, error) {
	return s.sample, nil
}

func testEngine(t *testing.T, mark int64) (*Engine, *vault.Ledger) {
	t.Helper()
	ledger := vault.NewLedger()
	vaultID := types.Identity{0xff}

	reconciler := oracle.New(
		oracle.Config{MaxAge: time.Hour, MaxStaleSlots: 1000, MinSamples: 1},
		stubPrimary{sample: oracle.PrimarySample{Value: mark, PublishedAt: time.Now()}},
		stubSecondary{sample: oracle.SecondarySample{Mantissa: mark, Scale: 0, Slot: 1, NumSamples: 1}},
	)

	e := New(testLogger(), ledger, vaultID, reconciler, nil, false)
	return e, ledger
}

func setupMarket(t *testing.T, e *Engine, symbol string, leverageLimit uint8) {
	t.Helper()
	params := types.MarketParams{
		TickSize:               1,
		LotSize:                1,
		LeverageLimit:           leverageLimit,
		FundingInterval:         3600,
		MaintenanceMarginRatio: 500,
	}
	if err := e.InitMarket(symbol, 0, types.Identity{0xaa}, params); err != nil {
		t.Fatalf("InitMarket: %v", err)
	}
	if err := e.InitOrderbookSide(symbol, types.Bid, 16); err != nil {
		t.Fatalf("InitOrderbookSide(Bid): %v", err)
	}
	if err := e.InitOrderbookSide(symbol, types.Ask, 16); err != nil {
		t.Fatalf("InitOrderbookSide(Ask): %v", err)
	}
	if err := e.InitEventQueue(symbol, 64); err != nil {
		t.Fatalf("InitEventQueue: %v", err)
	}
}

// End-to-end: a maker rests an ask, a taker market-buys into it, and
// settle_fills moves collateral and opens the taker's position.
func TestEngineRestAndMatchAndSettle(t *testing.T) {
	t.Parallel()

	e, ledger := testEngine(t, 100)
	const symbol = "BTC-PERP"
	setupMarket(t, e, symbol, 10)

	maker := types.Identity{0x01}
	taker := types.Identity{0x02}
	ledger.Credit(maker, 10_000)
	ledger.Credit(taker, 10_000)

	if err := e.InitMargin(symbol, maker); err != nil {
		t.Fatalf("InitMargin(maker): %v", err)
	}
	if err := e.InitMargin(symbol, taker); err != nil {
		t.Fatalf("InitMargin(taker): %v", err)
	}
	ctx := context.Background()
	if err := e.Deposit(ctx, symbol, maker, 1000); err != nil {
		t.Fatalf("Deposit(maker): %v", err)
	}
	if err := e.Deposit(ctx, symbol, taker, 1000); err != nil {
		t.Fatalf("Deposit(taker): %v", err)
	}

	if _, err := e.PlaceLimit(symbol, maker, types.Ask, 100, 5); err != nil {
		t.Fatalf("PlaceLimit: %v", err)
	}
	if err := e.PlaceMarket(symbol, types.Bid, 5, 200); err != nil {
		t.Fatalf("PlaceMarket: %v", err)
	}
	if err := e.SettleFills(ctx, symbol, taker, types.Bid); err != nil {
		t.Fatalf("SettleFills: %v", err)
	}

	if ledger.Balance(taker) != 1000-500 {
		t.Fatalf("taker wallet = %d, want 500", ledger.Balance(taker))
	}
	if ledger.Balance(maker) != 1000+500 {
		t.Fatalf("maker wallet = %d, want 1500", ledger.Balance(maker))
	}

	margins := e.GetMarginsSnapshot()
	found := false
	for _, m := range margins {
		if m.Owner != taker.Hex() {
			continue
		}
		found = true
		if len(m.Positions) != 1 || m.Positions[0].Qty != 5 {
			t.Fatalf("taker positions = %+v, want one position qty=5", m.Positions)
		}
		if m.Positions[0].Side != "bid" {
			t.Fatalf("taker position side = %s, want bid", m.Positions[0].Side)
		}
	}
	if !found {
		t.Fatalf("taker margin status not found")
	}
}

// A leverage gate rejects an order that would push existing + incoming
// notional past collateral*leverage_limit.
func TestEngineLeverageGateRejectsOversizedOrder(t *testing.T) {
	t.Parallel()

	e, ledger := testEngine(t, 100)
	const symbol = "ETH-PERP"
	setupMarket(t, e, symbol, 5)

	owner := types.Identity{0x03}
	ledger.Credit(owner, 10_000)
	if err := e.InitMargin(symbol, owner); err != nil {
		t.Fatalf("InitMargin: %v", err)
	}
	ctx := context.Background()
	if err := e.Deposit(ctx, symbol, owner, 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// First order: notional 800*5=4000, within 1000*5=5000.
	if _, err := e.PlaceLimit(symbol, owner, types.Bid, 800, 5); err != nil {
		t.Fatalf("PlaceLimit 1: %v", err)
	}
	// The gate sums open positions, not resting orders: record the first
	// order as a filled position of the same 4000 notional.
	ms, err := e.market(symbol)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	ms.mu.Lock()
	ms.margins[owner].Positions = append(ms.margins[owner].Positions, types.Position{
		Key: 0, Qty: 5, EntryPrice: 800, Side: types.Bid,
	})
	ms.mu.Unlock()
	// Second order: notional 1500*1=1500, total 5500 > 5000.
	_, err = e.PlaceLimit(symbol, owner, types.Bid, 1500, 1)
	if err != errs.ErrLeverageExceeded {
		t.Fatalf("PlaceLimit 2 error = %v, want ErrLeverageExceeded", err)
	}
}

// Driven end to end: fund a cross position, then crash the mark price
// and liquidate the resulting unhealthy account.
func TestEngineFundingThenLiquidation(t *testing.T) {
	t.Parallel()

	e, ledger := testEngine(t, 110)
	const symbol = "SOL-PERP"
	setupMarket(t, e, symbol, 100)

	owner := types.Identity{0x04}
	liquidator := types.Identity{0x05}
	ledger.Credit(owner, 10_000)
	ledger.Credit(liquidator, 0)
	ledger.Credit(types.Identity{0xff}, 0)

	if err := e.InitMargin(symbol, owner); err != nil {
		t.Fatalf("InitMargin: %v", err)
	}
	ctx := context.Background()
	if err := e.Deposit(ctx, symbol, owner, 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	ms, err := e.market(symbol)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	ms.mu.Lock()
	ms.margins[owner].Positions = append(ms.margins[owner].Positions, types.Position{
		Key: 1, Qty: 10, EntryPrice: 100, Side: types.Bid,
	})
	ms.mu.Unlock()

	if err := e.SettleFunding(ctx, symbol, owner, time.Now(), 1); err != nil {
		t.Fatalf("SettleFunding: %v", err)
	}
	ms.mu.Lock()
	collateralAfterFunding := ms.margins[owner].Collateral
	ms.mu.Unlock()
	if collateralAfterFunding != 999 {
		t.Fatalf("collateral after funding = %d, want 999", collateralAfterFunding)
	}

	// Seed the ask book the liquidator unwind will hit, then liquidate at
	// a crashed mark price of 80, passed straight to Liquidate.
	if err := e.InitOrderbookSide(symbol, types.Ask, 16); err != nil {
		t.Fatalf("re-InitOrderbookSide: %v", err)
	}
	ms.mu.Lock()
	ms.margins[owner].Collateral = 100
	if _, err := ms.askBook.Insert(1, 80, 10, types.Identity{0x09}, 1); err != nil {
		t.Fatalf("seed ask book: %v", err)
	}
	ms.askSide.Head, ms.askSide.FreeHead = ms.askBook.Head, ms.askBook.FreeHead
	ms.mu.Unlock()

	if err := e.Liquidate(ctx, symbol, owner, liquidator, 80); err != nil {
		t.Fatalf("Liquidate: %v", err)
	}

	ms.mu.Lock()
	finalCollateral := ms.margins[owner].Collateral
	finalPositions := len(ms.margins[owner].Positions)
	ms.mu.Unlock()
	if finalCollateral != 796 {
		t.Fatalf("collateral after liquidation = %d, want 796", finalCollateral)
	}
	if finalPositions != 0 {
		t.Fatalf("positions after liquidation = %d, want 0", finalPositions)
	}
	if ledger.Balance(liquidator) != 4 {
		t.Fatalf("liquidator fee = %d, want 4", ledger.Balance(liquidator))
	}
}

func TestEngineUpdateRiskParamsRequiresAuthority(t *testing.T) {
	t.Parallel()

	e, _ := testEngine(t, 100)
	const symbol = "MATIC-PERP"
	setupMarket(t, e, symbol, 10)

	newParams := types.MarketParams{LeverageLimit: 20, MaintenanceMarginRatio: 700}
	err := e.UpdateRiskParams(symbol, types.Identity{0xbb}, newParams)
	if err != errs.ErrUnauthorized {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}

	if err := e.UpdateRiskParams(symbol, types.Identity{0xaa}, newParams); err != nil {
		t.Fatalf("UpdateRiskParams as authority: %v", err)
	}
}

func TestEngineWithdrawRejectsInsufficientCollateral(t *testing.T) {
	t.Parallel()

	e, ledger := testEngine(t, 100)
	const symbol = "AVAX-PERP"
	setupMarket(t, e, symbol, 10)

	owner := types.Identity{0x06}
	ledger.Credit(owner, 100)
	if err := e.InitMargin(symbol, owner); err != nil {
		t.Fatalf("InitMargin: %v", err)
	}
	ctx := context.Background()
	if err := e.Deposit(ctx, symbol, owner, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	err := e.Withdraw(ctx, symbol, owner, 200)
	if err != errs.ErrInsufficientCollateral {
		t.Fatalf("error = %v, want ErrInsufficientCollateral", err)
	}

	if err := e.Withdraw(ctx, symbol, owner, 100); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if ledger.Balance(owner) != 100 {
		t.Fatalf("owner wallet = %d, want 100 (refunded)", ledger.Balance(owner))
	}
}
