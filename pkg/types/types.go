// Package types defines the shared data model for the matching and risk
// core — market configuration, order-book side metadata, margin accounts,
// positions, and the event-queue wire record. It has no dependency on any
// other internal package, so it can be imported by every layer (slab,
// orderbook, funding, liquidation, settlement, the dashboard API).
package types

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is the 32-byte trader/authority identity used throughout the
// engine. It is a type alias for go-ethereum's common.Hash, which gives
// hex parsing/printing without inventing a bespoke fixed-array type.
type Identity = common.Hash

// ZeroIdentity is the default/empty identity value.
var ZeroIdentity Identity

// Side is the direction of an order or position.
type Side uint8

const (
	Bid Side = 0
	Ask Side = 1
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// MarginType selects whether a margin account shares collateral across all
// positions (Cross) or tracks collateral per position (Isolated).
type MarginType uint8

const (
	Cross    MarginType = 0
	Isolated MarginType = 1
)

// EventType enumerates the two kinds of record the event queue carries.
type EventType uint8

const (
	EventPlace EventType = 0
	EventFill  EventType = 1
)

// NullIndex is the sentinel marking list termination in the slab.
const NullIndex uint32 = ^uint32(0)

// MarketParams holds the authority-tunable risk/trading parameters of a
// market. Mutated only via the risk-params update entry point.
type MarketParams struct {
	TickSize               uint64
	LotSize                uint64
	LeverageLimit          uint8  // notional/collateral multiple
	FundingInterval        int64  // seconds
	MaintenanceMarginRatio uint32 // basis points
}

// Market identifies a trading pair and its tunable parameters.
type Market struct {
	Authority       Identity
	BaseMint        Identity
	QuoteMint       Identity
	OraclePrimary   Identity
	OracleSecondary Identity
	Params          MarketParams
	Nonce           uint8
	LastFundingTime int64 // unix seconds
}

// OrderbookSide is the metadata record for one side of one market's book.
// The slab itself is a separate record (internal/slab.Slab) referenced by
// the caller; this struct only tracks order-id issuance and a cached
// pointer to the slab's head/free_head for round-trip persistence.
type OrderbookSide struct {
	Side        Side
	NextOrderID uint64 // monotonically increasing (u128 in the source; u64 is ample headroom here)
	Head        uint32
	FreeHead    uint32
}

// Position is one open exposure in a margin account. Key is the maker's
// original order id when the position was opened (order ids start at 0).
type Position struct {
	Key        uint64
	Qty        uint64
	EntryPrice uint64
	Side       Side
	Collateral uint64 // only meaningful under MarginType Isolated
}

// MarginAccount tracks one trader's collateral and open positions for one
// market.
type MarginAccount struct {
	Owner      Identity
	MarginType MarginType
	Collateral uint64
	Positions  []Position
}

// PositionByKey returns a pointer to the position with the given key, or
// nil if none exists.
func (m *MarginAccount) PositionByKey(key uint64) *Position {
	for i := range m.Positions {
		if m.Positions[i].Key == key {
			return &m.Positions[i]
		}
	}
	return nil
}

// PruneZero removes every position with Qty == 0. Called by settlement
// after draining fills.
func (m *MarginAccount) PruneZero() {
	kept := m.Positions[:0]
	for _, p := range m.Positions {
		if p.Qty > 0 {
			kept = append(kept, p)
		}
	}
	m.Positions = kept
}

// ExistingNotional sums entry_price*qty across all positions, checked for
// overflow. Used by the leverage gate in place_limit.
func (m *MarginAccount) ExistingNotional() (uint64, error) {
	var total uint64
	for _, p := range m.Positions {
		n, over := mulOverflowU64(p.EntryPrice, p.Qty)
		if over {
			return 0, ErrOverflow
		}
		sum, over := addOverflowU64(total, n)
		if over {
			return 0, ErrOverflow
		}
		total = sum
	}
	return total, nil
}

// ErrOverflow is returned by the notional helpers in this package on
// arithmetic overflow. internal/orderbook maps it to errs.ErrOverflow in
// the engine's enumerated taxonomy; kept local here so pkg/types stays dependency-free
// with respect to internal packages.
var ErrOverflow = errors.New("types: arithmetic overflow")

func mulOverflowU64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	r := a * b
	return r, r/a != b
}

func addOverflowU64(a, b uint64) (uint64, bool) {
	r := a + b
	return r, r < a
}

// OrderEvent is the fixed 65-byte event-queue record: 1 (type) + 16 (key,
// stored as a u128-sized field even though we carry a u64 key internally —
// the high 8 bytes are always zero) + 8 (price) + 8 (qty) + 32 (owner).
type OrderEvent struct {
	EventType EventType
	Key       uint64
	Price     uint64
	Qty       uint64
	Owner     Identity
}

// OrderEventSize is the on-disk size of an OrderEvent record in bytes.
const OrderEventSize = 1 + 16 + 8 + 8 + 32

// MarshalBinary encodes the event with fields in declaration order,
// little-endian, no leading discriminator (a discriminator is for
// top-level account records, not queue slots).
func (e OrderEvent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, OrderEventSize)
	buf[0] = byte(e.EventType)
	// key occupies 16 bytes (u128 on the wire); only the low 8 are used.
	binary.LittleEndian.PutUint64(buf[1:9], e.Key)
	// buf[9:17] stays zero (high 64 bits of the u128 key)
	binary.LittleEndian.PutUint64(buf[17:25], e.Price)
	binary.LittleEndian.PutUint64(buf[25:33], e.Qty)
	copy(buf[33:65], e.Owner[:])
	return buf, nil
}

// UnmarshalBinary decodes an OrderEvent from exactly OrderEventSize bytes.
func (e *OrderEvent) UnmarshalBinary(buf []byte) error {
	if len(buf) != OrderEventSize {
		return ErrBadRecordSize
	}
	e.EventType = EventType(buf[0])
	e.Key = binary.LittleEndian.Uint64(buf[1:9])
	e.Price = binary.LittleEndian.Uint64(buf[17:25])
	e.Qty = binary.LittleEndian.Uint64(buf[25:33])
	copy(e.Owner[:], buf[33:65])
	return nil
}

// ErrBadRecordSize is returned by UnmarshalBinary when given a buffer of
// the wrong length.
var ErrBadRecordSize = errors.New("types: record has wrong size for its type")
