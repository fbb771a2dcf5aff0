// Package orderbook implements order placement and matching against a
// single market side: PlaceLimit validates leverage and inserts into the
// slab; PlaceMarket walks the opposite side's slab best-first, consuming
// liquidity within a slippage band.
package orderbook

import (
	"perpcore/internal/errs"
	"perpcore/internal/queue"
	"perpcore/internal/slab"
	"perpcore/pkg/types"

	"github.com/holiman/uint256"
)

// mulOverflow returns a*b and whether the u64 multiplication overflowed,
// using uint256 for the checked widening multiply.
func mulOverflow(a, b uint64) (uint64, bool) {
	x, y := uint256.NewInt(a), uint256.NewInt(b)
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || !z.IsUint64() {
		return 0, true
	}
	return z.Uint64(), false
}

func addOverflow(a, b uint64) (uint64, bool) {
	x, y := uint256.NewInt(a), uint256.NewInt(b)
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || !z.IsUint64() {
		return 0, true
	}
	return z.Uint64(), false
}

// PlaceLimit validates the order against the margin account's leverage
// limit, assigns the next order id, inserts into the slab, and emits a
// Place event. Returns the assigned key.
//
//   1. ob.Side must equal side.
//   2. order_notional = price*qty, checked.
//   3. existing_notional = sum(entry_price*qty) over margin positions.
//   4. existing_notional + order_notional <= collateral*leverage_limit.
//   5. key = ob.NextOrderID; ob.NextOrderID += 1, checked.
//   6. book.Insert(key, price, qty, owner, slot).
//   7. eq.Push(Place, key, price, qty, owner).
func PlaceLimit(
	ob *types.OrderbookSide,
	book *slab.Slab,
	eq *queue.EventQueue,
	market *types.Market,
	margin *types.MarginAccount,
	side types.Side,
	price, qty uint64,
	owner types.Identity,
	slot uint64,
) (uint64, error) {
	if ob.Side != side {
		return 0, errs.ErrInvalidOrderbookSide
	}
	if qty == 0 {
		return 0, errs.ErrInvalidQuantity
	}

	orderNotional, overflow := mulOverflow(price, qty)
	if overflow {
		return 0, errs.ErrOverflow
	}

	existingNotional, err := margin.ExistingNotional()
	if err != nil {
		return 0, errs.ErrOverflow
	}

	totalNotional, overflow := addOverflow(existingNotional, orderNotional)
	if overflow {
		return 0, errs.ErrOverflow
	}

	limit, overflow := mulOverflow(margin.Collateral, uint64(market.Params.LeverageLimit))
	if overflow {
		// an overflowing limit is trivially satisfied (limit is effectively
		// unbounded); only the notional side needs to be finite.
		limit = ^uint64(0)
	}
	if totalNotional > limit {
		return 0, errs.ErrLeverageExceeded
	}

	if ob.NextOrderID == ^uint64(0) {
		return 0, errs.ErrOrderbookOverflow
	}
	key := ob.NextOrderID
	ob.NextOrderID++

	idx, err := book.Insert(key, price, qty, owner, slot)
	if err != nil {
		ob.NextOrderID-- // roll back the issued id; the transaction fails atomically
		return 0, err
	}
	ob.Head = book.Head
	ob.FreeHead = book.FreeHead
	_ = idx

	if err := eq.Push(types.OrderEvent{
		EventType: types.EventPlace,
		Key:       key,
		Price:     price,
		Qty:       qty,
		Owner:     owner,
	}); err != nil {
		return 0, err
	}

	return key, nil
}

// plannedFill is one resting node's consumption as worked out by a
// read-only walk of the book, before anything is mutated.
type plannedFill struct {
	idx   uint32
	key   uint64
	price uint64
	qty   uint64
	owner types.Identity
}

// PlaceMarket consumes resting liquidity from book — the *opposite*
// side's slab; side names the trader's side, and the caller is
// responsible for passing the book that side trades against — until qty
// is filled or the book empties, failing the whole order if any fill
// would cross the slippage band.
//
// For a Bid-side market order (buying, hitting asks) the band is an upper
// bound: bestPrice*(10000+bps)/10000. For an Ask-side market order
// (selling, hitting bids) the band is a lower bound:
// bestPrice*(10000-bps)/10000.
//
// Matching is planned in a read-only pass over the active list first;
// book.Reduce and eq.Push only run once the whole order is known to clear
// the slippage band, so a slippage failure partway through never leaves
// earlier fills from the same call applied to the book or event queue.
func PlaceMarket(
	ob *types.OrderbookSide,
	book *slab.Slab,
	eq *queue.EventQueue,
	side types.Side,
	qty uint64,
	maxSlippageBps uint16,
) error {
	if qty == 0 {
		return errs.ErrInvalidQuantity
	}

	_, bestIdx, ok := book.BestNode()
	if !ok {
		return errs.ErrOrderbookEmpty
	}
	bestPrice := book.Nodes[bestIdx].Price

	var priceLimit uint64
	if side == types.Bid {
		num, overflow := mulOverflow(bestPrice, 10_000+uint64(maxSlippageBps))
		if overflow {
			return errs.ErrOverflow
		}
		priceLimit = num / 10_000
	} else {
		if uint64(maxSlippageBps) > 10_000 {
			priceLimit = 0
		} else {
			num, overflow := mulOverflow(bestPrice, 10_000-uint64(maxSlippageBps))
			if overflow {
				return errs.ErrOverflow
			}
			priceLimit = num / 10_000
		}
	}

	var plan []plannedFill
	remaining := qty
	idx := book.Head
	for remaining > 0 && idx != slab.NullIndex {
		node := book.Nodes[idx]

		if side == types.Bid {
			if node.Price > priceLimit {
				return errs.ErrSlippageExceeded
			}
		} else {
			if node.Price < priceLimit {
				return errs.ErrSlippageExceeded
			}
		}

		fill := remaining
		if node.Qty < fill {
			fill = node.Qty
		}
		plan = append(plan, plannedFill{idx: idx, key: node.Key, price: node.Price, qty: fill, owner: node.Owner})

		remaining -= fill
		idx = node.Next
	}

	for _, f := range plan {
		if err := book.Reduce(f.idx, f.qty); err != nil {
			return err
		}
		if err := eq.Push(types.OrderEvent{
			EventType: types.EventFill,
			Key:       f.key,
			Price:     f.price,
			Qty:       f.qty,
			Owner:     f.owner,
		}); err != nil {
			return err
		}
	}

	ob.Head = book.Head
	ob.FreeHead = book.FreeHead
	return nil
}
