package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"perpcore/internal/queue"
	"perpcore/internal/vault"
	"perpcore/pkg/types"
)

func testSettler(mover vault.TokenMover) *Settler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), mover)
}

func TestDrainTransfersAndOpensTakerPosition(t *testing.T) {
	t.Parallel()

	eq := queue.New(4)
	makerID := types.Identity{0x01}
	takerID := types.Identity{0x02}
	if err := eq.Push(types.OrderEvent{EventType: types.EventFill, Key: 1, Price: 100, Qty: 5, Owner: makerID}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	maker := &types.MarginAccount{
		Owner: makerID,
		Positions: []types.Position{
			{Key: 1, Qty: 5, EntryPrice: 100, Side: types.Ask},
		},
	}
	taker := &types.MarginAccount{Owner: takerID}
	margins := map[types.Identity]*types.MarginAccount{makerID: maker, takerID: taker}

	ledger := vault.NewLedger()
	ledger.Credit(takerID, 1000)

	s := testSettler(ledger)
	if err := s.Drain(context.Background(), eq, margins, taker, types.Bid); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if ledger.Balance(takerID) != 500 {
		t.Fatalf("taker balance = %d, want 500", ledger.Balance(takerID))
	}
	if ledger.Balance(makerID) != 500 {
		t.Fatalf("maker balance = %d, want 500", ledger.Balance(makerID))
	}
	if len(maker.Positions) != 0 {
		t.Fatalf("maker positions = %+v, want pruned empty (qty hit zero)", maker.Positions)
	}
	if len(taker.Positions) != 1 || taker.Positions[0].Qty != 5 {
		t.Fatalf("taker positions = %+v, want one position qty=5", taker.Positions)
	}
}

func TestDrainAddsToExistingTakerPosition(t *testing.T) {
	t.Parallel()

	makerID := types.Identity{0x01}
	takerID := types.Identity{0x02}

	eq := queue.New(4)
	eq.Push(types.OrderEvent{EventType: types.EventFill, Key: 7, Price: 50, Qty: 3, Owner: makerID})

	maker := &types.MarginAccount{Owner: makerID, Positions: []types.Position{{Key: 7, Qty: 10, EntryPrice: 50, Side: types.Ask}}}
	taker := &types.MarginAccount{Owner: takerID, Positions: []types.Position{{Key: 7, Qty: 2, EntryPrice: 50, Side: types.Bid}}}
	margins := map[types.Identity]*types.MarginAccount{makerID: maker, takerID: taker}

	ledger := vault.NewLedger()
	ledger.Credit(takerID, 1000)

	s := testSettler(ledger)
	if err := s.Drain(context.Background(), eq, margins, taker, types.Bid); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if taker.Positions[0].Qty != 5 {
		t.Fatalf("taker qty = %d, want 5", taker.Positions[0].Qty)
	}
	if maker.Positions[0].Qty != 7 {
		t.Fatalf("maker qty = %d, want 7", maker.Positions[0].Qty)
	}
}

func TestDrainSkipsPlaceEvents(t *testing.T) {
	t.Parallel()

	eq := queue.New(4)
	eq.Push(types.OrderEvent{EventType: types.EventPlace, Key: 1, Price: 100, Qty: 5})

	taker := &types.MarginAccount{Owner: types.Identity{0x02}}
	margins := map[types.Identity]*types.MarginAccount{}

	s := testSettler(vault.NewLedger())
	if err := s.Drain(context.Background(), eq, margins, taker, types.Bid); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(taker.Positions) != 0 {
		t.Fatalf("taker positions = %+v, want untouched by Place event", taker.Positions)
	}
}

func TestDrainPropagatesTransferFailure(t *testing.T) {
	t.Parallel()

	makerID := types.Identity{0x01}
	takerID := types.Identity{0x02}

	eq := queue.New(4)
	eq.Push(types.OrderEvent{EventType: types.EventFill, Key: 1, Price: 100, Qty: 5, Owner: makerID})

	maker := &types.MarginAccount{Owner: makerID}
	taker := &types.MarginAccount{Owner: takerID} // no balance credited
	margins := map[types.Identity]*types.MarginAccount{makerID: maker, takerID: taker}

	s := testSettler(vault.NewLedger())
	if err := s.Drain(context.Background(), eq, margins, taker, types.Bid); err == nil {
		t.Fatalf("Drain: expected error from insufficient taker balance")
	}
}

func TestDrainMissingMakerAccountErrors(t *testing.T) {
	t.Parallel()

	eq := queue.New(4)
	eq.Push(types.OrderEvent{EventType: types.EventFill, Key: 1, Price: 100, Qty: 5, Owner: types.Identity{0x09}})

	taker := &types.MarginAccount{Owner: types.Identity{0x02}}
	margins := map[types.Identity]*types.MarginAccount{}

	s := testSettler(vault.NewLedger())
	if err := s.Drain(context.Background(), eq, margins, taker, types.Bid); err == nil {
		t.Fatalf("Drain: expected error for unknown maker account")
	}
}
