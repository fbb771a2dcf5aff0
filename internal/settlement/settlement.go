// Package settlement drains the event queue into margin accounts: each
// Fill event moves quote-currency collateral from taker to maker and
// mutates both sides' positions; Place events are informational and
// skipped.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"perpcore/internal/errs"
	"perpcore/internal/queue"
	"perpcore/internal/vault"
	"perpcore/pkg/types"
)

func mulOverflow(a, b uint64) (uint64, bool) {
	x, y := uint256.NewInt(a), uint256.NewInt(b)
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || !product.IsUint64() {
		return 0, false
	}
	return product.Uint64(), true
}

// Settler drains fill events into margin accounts.
type Settler struct {
	logger *slog.Logger
	mover  vault.TokenMover
}

// New builds a Settler. mover performs the quote-currency transfer each
// fill implies; tests may pass a vault.Ledger or any other TokenMover.
func New(logger *slog.Logger, mover vault.TokenMover) *Settler {
	return &Settler{logger: logger.With("component", "settlement"), mover: mover}
}

// Drain consumes every event in eq, transferring collateral and mutating
// positions for each Fill event's maker (looked up by the event's
// resting-order owner in margins) and the taker, then prunes any
// position left at zero quantity in every account that was touched.
// takerSide is the side the taker traded; a newly opened taker position
// takes that side, since the event only records the maker's resting side
// implicitly via the book it was pulled from.
func (s *Settler) Drain(ctx context.Context, eq *queue.EventQueue, margins map[types.Identity]*types.MarginAccount, taker *types.MarginAccount, takerSide types.Side) error {
	touched := make(map[*types.MarginAccount]struct{})
	touched[taker] = struct{}{}

	var drainErr error
	err := eq.Drain(func(ev types.OrderEvent) error {
		if ev.EventType != types.EventFill {
			return nil
		}

		maker, ok := margins[ev.Owner]
		if !ok {
			drainErr = fmt.Errorf("settlement: no margin account for maker %s", ev.Owner)
			return drainErr
		}
		touched[maker] = struct{}{}

		amount, ok := mulOverflow(ev.Price, ev.Qty)
		if !ok {
			drainErr = errs.ErrOverflow
			return drainErr
		}

		if err := s.mover.Transfer(ctx, taker.Owner, maker.Owner, amount); err != nil {
			drainErr = err
			return err
		}

		if makerPos := maker.PositionByKey(ev.Key); makerPos != nil {
			if ev.Qty >= makerPos.Qty {
				makerPos.Qty = 0
			} else {
				makerPos.Qty -= ev.Qty
			}
		}

		if takerPos := taker.PositionByKey(ev.Key); takerPos != nil {
			takerPos.Qty += ev.Qty
		} else {
			taker.Positions = append(taker.Positions, types.Position{
				Key:        ev.Key,
				Qty:        ev.Qty,
				EntryPrice: ev.Price,
				Side:       takerSide,
			})
		}

		s.logger.Debug("fill settled", "key", ev.Key, "price", ev.Price, "qty", ev.Qty, "amount", amount)
		return nil
	})
	if err != nil {
		if drainErr != nil {
			return drainErr
		}
		return err
	}

	for account := range touched {
		account.PruneZero()
	}
	return nil
}
