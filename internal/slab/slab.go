// Package slab implements the fixed-capacity intrusive doubly-linked order
// book. It is the arena-with-handles pattern: a fixed array of nodes, an
// "active" list sorted by price-time priority, and a "free" list of
// unused slots, so insertion and removal never allocate.
package slab

import (
	"perpcore/internal/errs"
	"perpcore/pkg/types"
)

// MaxCapacity is the compile-time ceiling on slab size, matching the
// source's MAX_SLAB_CAPACITY.
const MaxCapacity = 140

// NullIndex re-exports types.NullIndex for readability within this package.
const NullIndex = types.NullIndex

// Node is one order resting in the book, or a free slot.
type Node struct {
	Key          uint64
	Price        uint64
	Qty          uint64
	Owner        types.Identity
	InsertedSlot uint64
	Prev         uint32
	Next         uint32
}

// Slab is a fixed-capacity arena of Nodes plus an active list (sorted by
// price-time priority) and a free list.
type Slab struct {
	Side     types.Side
	Head     uint32
	FreeHead uint32
	Nodes    []Node
}

// New allocates a Slab with the given capacity and initializes its free
// list. Capacity must be in (0, MaxCapacity].
func New(capacity int, side types.Side) (*Slab, error) {
	s := &Slab{}
	if err := s.Init(capacity, side); err != nil {
		return nil, err
	}
	return s, nil
}

// Init lays out the free list 0 -> 1 -> ... -> capacity-1 -> NULL and
// resets Head to NULL. Fails with ErrInvalidCapacity if capacity is zero
// or exceeds MaxCapacity.
func (s *Slab) Init(capacity int, side types.Side) error {
	if capacity <= 0 || capacity > MaxCapacity {
		return errs.ErrInvalidCapacity
	}
	s.Side = side
	s.Head = NullIndex
	s.FreeHead = 0
	s.Nodes = make([]Node, capacity)
	for i := range s.Nodes {
		s.Nodes[i].Prev = NullIndex
		if i+1 < capacity {
			s.Nodes[i].Next = uint32(i + 1)
		} else {
			s.Nodes[i].Next = NullIndex
		}
	}
	return nil
}

// Capacity returns the number of node slots in the slab.
func (s *Slab) Capacity() int {
	return len(s.Nodes)
}

// Best returns the index of the best active order (highest bid / lowest
// ask), or NullIndex if the book is empty.
func (s *Slab) Best() uint32 {
	return s.Head
}

// BestNode is a convenience wrapper around Best that also returns the node
// and whether the book is non-empty.
func (s *Slab) BestNode() (Node, uint32, bool) {
	idx := s.Head
	if idx == NullIndex {
		return Node{}, NullIndex, false
	}
	return s.Nodes[idx], idx, true
}

// Insert allocates a free node, stamps it with the given order fields, and
// splices it into the active list in price-time priority order: for a Bid
// side, strictly higher price wins, with equal price broken by the
// strictly earlier slot; for an Ask side, strictly lower price wins with
// the same tie-break. Requires qty > 0.
func (s *Slab) Insert(key, price, qty uint64, owner types.Identity, slot uint64) (uint32, error) {
	if qty == 0 {
		return 0, errs.ErrInvalidQuantity
	}
	idx := s.FreeHead
	if idx == NullIndex {
		return 0, errs.ErrOrderbookFull
	}
	s.FreeHead = s.Nodes[idx].Next

	curr := s.Head
	prev := NullIndex
	for curr != NullIndex {
		node := s.Nodes[curr]
		var better bool
		if s.Side == types.Bid {
			better = price > node.Price || (price == node.Price && slot < node.InsertedSlot)
		} else {
			better = price < node.Price || (price == node.Price && slot < node.InsertedSlot)
		}
		if better {
			break
		}
		prev = curr
		curr = node.Next
	}

	s.Nodes[idx] = Node{
		Key:          key,
		Price:        price,
		Qty:          qty,
		Owner:        owner,
		InsertedSlot: slot,
		Prev:         prev,
		Next:         curr,
	}

	if prev != NullIndex {
		s.Nodes[prev].Next = idx
	} else {
		s.Head = idx
	}
	if curr != NullIndex {
		s.Nodes[curr].Prev = idx
	}
	return idx, nil
}

// Remove unlinks the node at idx from the active list, zeroes its
// payload, and pushes it onto the front of the free list.
func (s *Slab) Remove(idx uint32) error {
	if int(idx) >= len(s.Nodes) {
		return errs.ErrInvalidIndex
	}
	node := s.Nodes[idx]
	if node.Prev != NullIndex {
		s.Nodes[node.Prev].Next = node.Next
	} else {
		s.Head = node.Next
	}
	if node.Next != NullIndex {
		s.Nodes[node.Next].Prev = node.Prev
	}

	s.Nodes[idx] = Node{Prev: NullIndex, Next: s.FreeHead}
	s.FreeHead = idx
	return nil
}

// Reduce shrinks the qty of the node at idx by fillQty. If the fill
// consumes the whole resting quantity, the node is removed entirely.
// Requires fillQty > 0.
func (s *Slab) Reduce(idx uint32, fillQty uint64) error {
	if fillQty == 0 {
		return errs.ErrInvalidQuantity
	}
	if int(idx) >= len(s.Nodes) {
		return errs.ErrInvalidIndex
	}
	if fillQty >= s.Nodes[idx].Qty {
		return s.Remove(idx)
	}
	s.Nodes[idx].Qty -= fillQty
	return nil
}

// activeIndices walks the active list from Head and returns the visited
// indices in order. Exposed for invariant testing only.
func (s *Slab) activeIndices() []uint32 {
	var out []uint32
	curr := s.Head
	for curr != NullIndex {
		out = append(out, curr)
		curr = s.Nodes[curr].Next
	}
	return out
}

// freeIndices walks the free list from FreeHead and returns the visited
// indices. Exposed for invariant testing only.
func (s *Slab) freeIndices() []uint32 {
	var out []uint32
	curr := s.FreeHead
	for curr != NullIndex {
		out = append(out, curr)
		curr = s.Nodes[curr].Next
	}
	return out
}
