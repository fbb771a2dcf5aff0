package store

import (
	"testing"

	"perpcore/pkg/types"
)

func testSnapshot() Snapshot {
	owner := types.Identity{0x01}
	return Snapshot{
		Market: types.Market{Params: types.MarketParams{TickSize: 1, LotSize: 1, LeverageLimit: 10}},
		Bid:    types.OrderbookSide{Side: types.Bid, NextOrderID: 3},
		Ask:    types.OrderbookSide{Side: types.Ask},
		Margins: map[types.Identity]types.MarginAccount{
			owner: {
				Owner:      owner,
				Collateral: 1000,
				Positions:  []types.Position{{Key: 1, Qty: 5, EntryPrice: 100, Side: types.Bid}},
			},
		},
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	snap := testSnapshot()
	if err := s.SaveSnapshot("BTC-PERP", snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := s.LoadSnapshot("BTC-PERP")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadSnapshot returned nil")
	}

	if loaded.Bid.NextOrderID != 3 {
		t.Errorf("Bid.NextOrderID = %d, want 3", loaded.Bid.NextOrderID)
	}
	owner := types.Identity{0x01}
	margin, ok := loaded.Margins[owner]
	if !ok {
		t.Fatalf("margin for owner missing after round-trip")
	}
	if margin.Collateral != 1000 {
		t.Errorf("Collateral = %d, want 1000", margin.Collateral)
	}
	if len(margin.Positions) != 1 || margin.Positions[0].Qty != 5 {
		t.Errorf("Positions = %+v, want one position qty=5", margin.Positions)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadSnapshot("nonexistent")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", loaded)
	}
}

func TestSaveSnapshotOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	snap1 := Snapshot{Bid: types.OrderbookSide{NextOrderID: 1}}
	snap2 := Snapshot{Bid: types.OrderbookSide{NextOrderID: 2}}

	_ = s.SaveSnapshot("mkt1", snap1)
	_ = s.SaveSnapshot("mkt1", snap2)

	loaded, err := s.LoadSnapshot("mkt1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.Bid.NextOrderID != 2 {
		t.Errorf("Bid.NextOrderID = %d, want 2 (latest save)", loaded.Bid.NextOrderID)
	}
}
