// Package engine is the central orchestrator of the matching and risk
// core. It owns one marketState per trading pair and exposes matching,
// margin, funding, liquidation, and settlement operations as plain Go
// methods, each serialized by that market's mutex so concurrent callers
// never observe a torn update to the same account or book.
//
// Lifecycle: New() wires the oracle, funding, liquidation, settlement,
// and store collaborators; InitMarket/InitOrderbookSide/InitEventQueue/
// InitMargin bootstrap one market; the remaining methods operate on it
// until the process exits.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"perpcore/internal/api"
	"perpcore/internal/errs"
	"perpcore/internal/funding"
	"perpcore/internal/liquidation"
	"perpcore/internal/oracle"
	"perpcore/internal/orderbook"
	"perpcore/internal/queue"
	"perpcore/internal/settlement"
	"perpcore/internal/slab"
	"perpcore/internal/store"
	"perpcore/internal/vault"
	"perpcore/pkg/types"
)

// marketState holds every record belonging to one trading pair: the
// market parameters, both order-book sides, the shared event queue, and
// every trader's margin account. mu serializes all transactions that
// touch this market, mirroring the host program's per-account locking.
type marketState struct {
	mu       sync.Mutex
	symbol   string
	market   types.Market
	bidSide  types.OrderbookSide
	askSide  types.OrderbookSide
	bidBook  *slab.Slab
	askBook  *slab.Slab
	eq       *queue.EventQueue
	margins  map[types.Identity]*types.MarginAccount
	nextSlot uint64
}

func (ms *marketState) bookFor(side types.Side) (*types.OrderbookSide, *slab.Slab) {
	if side == types.Bid {
		return &ms.bidSide, ms.bidBook
	}
	return &ms.askSide, ms.askBook
}

// Engine orchestrates every market's matching, funding, liquidation, and
// settlement flow.
type Engine struct {
	logger     *slog.Logger
	mover      vault.TokenMover
	vaultID    types.Identity
	reconciler *oracle.Reconciler
	funding    *funding.Settler
	liquidator *liquidation.Liquidator
	settler    *settlement.Settler
	store      *store.Store

	marketsMu sync.RWMutex
	markets   map[string]*marketState

	dashboardEvents chan api.DashboardEvent
}

// New wires all collaborators into a fresh Engine. dashboardEnabled
// controls whether DashboardEvents() returns a live channel.
func New(
	logger *slog.Logger,
	mover vault.TokenMover,
	vaultID types.Identity,
	reconciler *oracle.Reconciler,
	st *store.Store,
	dashboardEnabled bool,
) *Engine {
	logger = logger.With("component", "engine")

	var dashEvents chan api.DashboardEvent
	if dashboardEnabled {
		dashEvents = make(chan api.DashboardEvent, 100)
	}

	return &Engine{
		logger:          logger,
		mover:           mover,
		vaultID:         vaultID,
		reconciler:      reconciler,
		funding:         funding.New(logger),
		liquidator:      liquidation.New(logger, mover, vaultID),
		settler:         settlement.New(logger, mover),
		store:           st,
		markets:         make(map[string]*marketState),
		dashboardEvents: dashEvents,
	}
}

func (e *Engine) market(symbol string) (*marketState, error) {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	ms, ok := e.markets[symbol]
	if !ok {
		return nil, fmt.Errorf("engine: unknown market %q", symbol)
	}
	return ms, nil
}

// InitMarket creates a Market record.
func (e *Engine) InitMarket(symbol string, nonce uint8, authority types.Identity, params types.MarketParams) error {
	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()

	if _, exists := e.markets[symbol]; exists {
		return fmt.Errorf("engine: market %q already initialized", symbol)
	}

	e.markets[symbol] = &marketState{
		symbol: symbol,
		market: types.Market{
			Authority: authority,
			Params:    params,
			Nonce:     nonce,
		},
		margins: make(map[types.Identity]*types.MarginAccount),
	}
	e.logger.Info("market initialized", "symbol", symbol, "leverage_limit", params.LeverageLimit)
	return nil
}

// InitOrderbookSide creates an OrderbookSide and its backing Slab.
func (e *Engine) InitOrderbookSide(symbol string, side types.Side, capacity int) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	book, err := slab.New(capacity, side)
	if err != nil {
		return err
	}
	if side == types.Bid {
		ms.bidBook = book
		ms.bidSide = types.OrderbookSide{Side: types.Bid, Head: book.Head, FreeHead: book.FreeHead}
	} else {
		ms.askBook = book
		ms.askSide = types.OrderbookSide{Side: types.Ask, Head: book.Head, FreeHead: book.FreeHead}
	}
	return nil
}

// InitEventQueue creates the market's shared EventQueue.
func (e *Engine) InitEventQueue(symbol string, capacity int) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.eq = queue.New(capacity)
	return nil
}

// InitMargin creates a Cross-mode MarginAccount for owner if one does not
// already exist.
func (e *Engine) InitMargin(symbol string, owner types.Identity) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.margins[owner]; exists {
		return nil
	}
	ms.margins[owner] = &types.MarginAccount{Owner: owner, MarginType: types.Cross}
	return nil
}

// Deposit moves amount from owner's wallet into the vault and credits
// their collateral.
func (e *Engine) Deposit(ctx context.Context, symbol string, owner types.Identity, amount uint64) error {
	if amount == 0 {
		return errs.ErrInvalidAmount
	}
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	margin, ok := ms.margins[owner]
	if !ok {
		return fmt.Errorf("engine: no margin account for %s", owner)
	}
	if err := e.mover.Transfer(ctx, owner, e.vaultID, amount); err != nil {
		return err
	}
	margin.Collateral += amount
	return nil
}

// Withdraw moves amount out of owner's collateral and the vault back to
// their wallet. Fails InsufficientCollateral on underflow.
func (e *Engine) Withdraw(ctx context.Context, symbol string, owner types.Identity, amount uint64) error {
	if amount == 0 {
		return errs.ErrInvalidAmount
	}
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	margin, ok := ms.margins[owner]
	if !ok {
		return fmt.Errorf("engine: no margin account for %s", owner)
	}
	if margin.Collateral < amount {
		return errs.ErrInsufficientCollateral
	}
	if err := e.mover.Transfer(ctx, e.vaultID, owner, amount); err != nil {
		return err
	}
	margin.Collateral -= amount
	return nil
}

// PlaceLimit places a resting limit order.
func (e *Engine) PlaceLimit(symbol string, owner types.Identity, side types.Side, price, qty uint64) (uint64, error) {
	ms, err := e.market(symbol)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	margin, ok := ms.margins[owner]
	if !ok {
		return 0, fmt.Errorf("engine: no margin account for %s", owner)
	}

	ob, book := ms.bookFor(side)
	ms.nextSlot++
	key, err := orderbook.PlaceLimit(ob, book, ms.eq, &ms.market, margin, side, price, qty, owner, ms.nextSlot)
	if err != nil {
		return 0, err
	}
	return key, nil
}

// PlaceMarket matches a taker order against the opposite-side book.
// Fills are recorded in the event queue for SettleFills to apply; margin
// is untouched here.
func (e *Engine) PlaceMarket(symbol string, side types.Side, qty uint64, maxSlippageBps uint16) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ob, book := ms.bookFor(side.Opposite())
	return orderbook.PlaceMarket(ob, book, ms.eq, side, qty, maxSlippageBps)
}

// SettleFunding applies one funding cycle to owner's margin account using
// the reconciled mark price.
func (e *Engine) SettleFunding(ctx context.Context, symbol string, owner types.Identity, now time.Time, currentSlot uint64) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	margin, ok := ms.margins[owner]
	if !ok {
		return fmt.Errorf("engine: no margin account for %s", owner)
	}

	mark, err := e.reconciler.MarkPrice(ctx, now, currentSlot)
	if err != nil {
		return err
	}
	if err := e.funding.Settle(&ms.market, margin, mark, now); err != nil {
		return err
	}

	e.emitDashboardEvent(api.NewFundingEvent(symbol, owner.Hex(), mark))
	return nil
}

// Liquidate health-checks owner's margin account and, if unhealthy,
// unwinds it against the book. Positions are assumed single-sided: the
// opposite-side book consumed is the complement of the first open
// position's side.
func (e *Engine) Liquidate(ctx context.Context, symbol string, owner, liquidatorID types.Identity, mark int64) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	margin, ok := ms.margins[owner]
	if !ok {
		return fmt.Errorf("engine: no margin account for %s", owner)
	}
	if len(margin.Positions) == 0 {
		return errs.ErrHealthyAccount
	}

	unwindSide := margin.Positions[0].Side.Opposite()
	ob, book := ms.bookFor(unwindSide)

	result, err := e.liquidator.Liquidate(ctx, margin, ob, book, mark, ms.market.Params.MaintenanceMarginRatio, liquidatorID)
	if err != nil {
		return err
	}

	e.emitDashboardEvent(api.NewLiquidationEvent(symbol, owner.Hex(), result.Proceeds, result.Fee, result.HealthBps))
	return nil
}

// SettleFills drains the market's event queue into margin accounts.
func (e *Engine) SettleFills(ctx context.Context, symbol string, taker types.Identity, takerSide types.Side) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	takerMargin, ok := ms.margins[taker]
	if !ok {
		return fmt.Errorf("engine: no margin account for %s", taker)
	}

	return e.settler.Drain(ctx, ms.eq, ms.margins, takerMargin, takerSide)
}

// UpdateRiskParams replaces a market's tunable parameters, gated by
// authority.
func (e *Engine) UpdateRiskParams(symbol string, caller types.Identity, params types.MarketParams) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if caller != ms.market.Authority {
		return errs.ErrUnauthorized
	}
	ms.market.Params = params
	return nil
}

func (e *Engine) emitDashboardEvent(evt api.DashboardEvent) {
	if e.dashboardEvents == nil {
		return
	}
	select {
	case e.dashboardEvents <- evt:
	default:
		e.logger.Warn("dashboard event channel full, dropping event", "type", evt.Type)
	}
}

// DashboardEvents returns the dashboard event channel (nil if disabled).
func (e *Engine) DashboardEvents() <-chan api.DashboardEvent {
	return e.dashboardEvents
}

// GetMarketsSnapshot returns current book/funding state for every market.
func (e *Engine) GetMarketsSnapshot() []api.MarketStatus {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()

	result := make([]api.MarketStatus, 0, len(e.markets))
	for symbol, ms := range e.markets {
		ms.mu.Lock()
		var bestBid, bestAsk uint64
		if ms.bidBook != nil {
			if node, _, ok := ms.bidBook.BestNode(); ok {
				bestBid = node.Price
			}
		}
		if ms.askBook != nil {
			if node, _, ok := ms.askBook.BestNode(); ok {
				bestAsk = node.Price
			}
		}
		status := api.MarketStatus{
			Symbol:          symbol,
			BestBid:         bestBid,
			BestAsk:         bestAsk,
			LastFundingTime: time.Unix(ms.market.LastFundingTime, 0),
			LeverageLimit:   ms.market.Params.LeverageLimit,
			MaintenanceBps:  ms.market.Params.MaintenanceMarginRatio,
		}
		ms.mu.Unlock()
		result = append(result, status)
	}
	return result
}

// GetMarginsSnapshot returns every trader's margin account across every
// market.
func (e *Engine) GetMarginsSnapshot() []api.MarginStatus {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()

	var result []api.MarginStatus
	for _, ms := range e.markets {
		ms.mu.Lock()
		for _, margin := range ms.margins {
			status := api.MarginStatus{
				Owner:      margin.Owner.Hex(),
				MarginType: marginTypeLabel(margin.MarginType),
				Collateral: margin.Collateral,
				Positions:  make([]api.PositionStatus, 0, len(margin.Positions)),
			}
			for _, pos := range margin.Positions {
				status.Positions = append(status.Positions, api.PositionStatus{
					Key:        pos.Key,
					Qty:        pos.Qty,
					EntryPrice: pos.EntryPrice,
					Side:       pos.Side.String(),
					Collateral: pos.Collateral,
				})
			}
			result = append(result, status)
		}
		ms.mu.Unlock()
	}
	return result
}

func marginTypeLabel(mt types.MarginType) string {
	if mt == types.Isolated {
		return "isolated"
	}
	return "cross"
}

// SaveSnapshot persists one market's state to the store.
func (e *Engine) SaveSnapshot(symbol string) error {
	ms, err := e.market(symbol)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	margins := make(map[types.Identity]types.MarginAccount, len(ms.margins))
	for owner, margin := range ms.margins {
		margins[owner] = *margin
	}
	return e.store.SaveSnapshot(symbol, store.Snapshot{
		Market:  ms.market,
		Bid:     ms.bidSide,
		Ask:     ms.askSide,
		Margins: margins,
	})
}
