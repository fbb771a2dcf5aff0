// Package liquidation implements forced unwind of under-collateralized
// margin accounts: a health check gates the unwind, which consumes the
// opposite-side book at its best price until every position is flat or
// the book is empty, then splits the proceeds between the vault and the
// liquidator.
package liquidation

import (
	"context"
	"log/slog"

	"github.com/holiman/uint256"

	"perpcore/internal/errs"
	"perpcore/internal/slab"
	"perpcore/internal/vault"
	"perpcore/pkg/types"
)

// liquidatorFeeDivisor encodes the 0.5% fee paid to whoever calls
// Liquidate, as proceeds/200.
const liquidatorFeeDivisor = 200

func addOverflow(a, b uint64) (uint64, bool) {
	x, y := uint256.NewInt(a), uint256.NewInt(b)
	sum := new(uint256.Int).Add(x, y)
	if !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}

func mulOverflow(a, b uint64) (uint64, bool) {
	x, y := uint256.NewInt(a), uint256.NewInt(b)
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || !product.IsUint64() {
		return 0, false
	}
	return product.Uint64(), true
}

// sign returns +1 for a long (Bid) position and -1 for a short (Ask).
func sign(side types.Side) int64 {
	if side == types.Ask {
		return -1
	}
	return 1
}

// Liquidator performs health checks and unwinds.
type Liquidator struct {
	logger *slog.Logger
	mover  vault.TokenMover
	vault  types.Identity
}

// New builds a Liquidator. mover transfers the fee to the liquidator;
// vaultIdentity is the pooled custody identity proceeds settle into
// before the fee split.
func New(logger *slog.Logger, mover vault.TokenMover, vaultIdentity types.Identity) *Liquidator {
	return &Liquidator{logger: logger.With("component", "liquidation"), mover: mover, vault: vaultIdentity}
}

// Result reports the outcome of a successful Liquidate call, for callers
// that surface liquidation activity (e.g. the dashboard feed).
type Result struct {
	Proceeds  uint64
	Fee       uint64
	HealthBps int64
}

// unwindFill is one resting node's planned consumption during an unwind,
// worked out by a read-only walk of the book before anything is mutated.
type unwindFill struct {
	idx  uint32
	fill uint64
}

// Liquidate checks margin's health at mark price and, if unhealthy,
// unwinds every position against the opposite-side book, paying a 0.5%
// fee to liquidator and setting margin's collateral to the remainder.
// ob/book are the opposite side of the positions being unwound (e.g. the
// Ask book to unwind Bid positions). Every position is unwound against
// this one book whatever its side, and all positions are cleared
// afterwards; a mixed long/short portfolio is not split by side.
//
// The unwind is planned across all positions in a read-only pass over the
// book first; book.Reduce only runs once the whole unwind is known to be
// free of overflow, so an overflow discovered partway through never
// leaves an earlier position's fills applied to the book.
func (l *Liquidator) Liquidate(ctx context.Context, margin *types.MarginAccount, ob *types.OrderbookSide, book *slab.Slab, mark int64, maintenanceMarginRatio uint32, liquidator types.Identity) (Result, error) {
	var equity int64 = int64(margin.Collateral)
	var notional uint64
	for _, pos := range margin.Positions {
		equity += (mark - int64(pos.EntryPrice)) * int64(pos.Qty) * sign(pos.Side)

		posNotional, ok := mulOverflow(pos.EntryPrice, pos.Qty)
		if !ok {
			return Result{}, errs.ErrOverflow
		}
		notional, ok = addOverflow(notional, posNotional)
		if !ok {
			return Result{}, errs.ErrOverflow
		}
	}

	var healthBps int64
	if notional != 0 {
		healthBps = equity * 10_000 / int64(notional)
	}
	if healthBps >= int64(maintenanceMarginRatio) {
		return Result{}, errs.ErrHealthyAccount
	}

	idx := book.Head
	var nodeRemaining uint64
	if idx != slab.NullIndex {
		nodeRemaining = book.Nodes[idx].Qty
	}

	var proceeds uint64
	var plan []unwindFill
	consumed := make([]uint64, len(margin.Positions))

	for i := range margin.Positions {
		remaining := margin.Positions[i].Qty
		for remaining > 0 && idx != slab.NullIndex {
			fill := remaining
			if nodeRemaining < fill {
				fill = nodeRemaining
			}

			fillValue, ok := mulOverflow(fill, book.Nodes[idx].Price)
			if !ok {
				return Result{}, errs.ErrOverflow
			}
			proceeds, ok = addOverflow(proceeds, fillValue)
			if !ok {
				return Result{}, errs.ErrOverflow
			}

			plan = append(plan, unwindFill{idx: idx, fill: fill})
			consumed[i] += fill
			remaining -= fill
			nodeRemaining -= fill

			if nodeRemaining == 0 {
				idx = book.Nodes[idx].Next
				if idx != slab.NullIndex {
					nodeRemaining = book.Nodes[idx].Qty
				}
			}
		}
	}

	for _, f := range plan {
		if err := book.Reduce(f.idx, f.fill); err != nil {
			return Result{}, err
		}
	}
	ob.Head, ob.FreeHead = book.Head, book.FreeHead
	for i := range margin.Positions {
		margin.Positions[i].Qty -= consumed[i]
	}

	fee := proceeds / liquidatorFeeDivisor
	if l.mover != nil {
		if err := l.mover.Transfer(ctx, l.vault, liquidator, fee); err != nil {
			return Result{}, err
		}
	}

	margin.Positions = nil
	margin.Collateral = proceeds - fee

	l.logger.Info("liquidated account", "owner", margin.Owner, "health_bps", healthBps, "proceeds", proceeds, "fee", fee)
	return Result{Proceeds: proceeds, Fee: fee, HealthBps: healthBps}, nil
}
