// Package queue implements a fixed-size event-queue ring. The matcher
// (internal/orderbook) pushes Place/Fill records; settlement
// (internal/settlement) drains them. Overwrite-on-full semantics mean the
// producer never blocks — a slow consumer loses its oldest unread records
// instead of stalling matching.
//
// The ring is backed by a flat byte buffer of fixed-size slots
// (events[tail*65 .. tail*65+65]) rather than a slice of structs, so
// Push/Drain exercise the same marshal/unmarshal path that would be
// needed for an on-disk or over-the-wire queue.
package queue

import (
	"perpcore/internal/errs"
	"perpcore/pkg/types"
)

const slotSize = types.OrderEventSize

// EventQueue is a ring of fixed-size OrderEvent records, addressed by
// Head/Tail counters advanced modulo the ring's capacity.
type EventQueue struct {
	Head uint32
	Tail uint32
	Buf  []byte // capacity*slotSize bytes
}

// New allocates an EventQueue with the given ring capacity (number of
// record slots, not bytes).
func New(capacity int) *EventQueue {
	return &EventQueue{Buf: make([]byte, capacity*slotSize)}
}

// Capacity returns the number of ring slots.
func (q *EventQueue) Capacity() uint32 {
	return uint32(len(q.Buf) / slotSize)
}

// Len returns the number of unread records currently in the ring.
func (q *EventQueue) Len() uint32 {
	return q.Tail - q.Head
}

// Push serializes ev into the slot at Tail and advances Tail. If the ring
// is full (Tail would catch Head on the next push), the oldest record is
// dropped by advancing Head too — overwrite semantics, so the producer
// never blocks.
func (q *EventQueue) Push(ev types.OrderEvent) error {
	cap := q.Capacity()
	data, err := ev.MarshalBinary()
	if err != nil {
		return errs.ErrEventSerializationFailure
	}
	slot := q.Tail % cap
	start := int(slot) * slotSize
	copy(q.Buf[start:start+slotSize], data)
	q.Tail++
	if q.Tail-q.Head > cap {
		q.Head = q.Tail - cap
	}
	return nil
}

// Drain invokes consume for every unread record from Head to Tail, in
// order, advancing Head as it goes. If consume returns an error, Drain
// stops immediately without advancing past the failing record (so a
// retried Drain call re-delivers it) and returns that error.
func (q *EventQueue) Drain(consume func(types.OrderEvent) error) error {
	cap := q.Capacity()
	for q.Head != q.Tail {
		slot := q.Head % cap
		start := int(slot) * slotSize
		var ev types.OrderEvent
		if err := ev.UnmarshalBinary(q.Buf[start : start+slotSize]); err != nil {
			return errs.ErrEventDeserializationFailure
		}
		if err := consume(ev); err != nil {
			return err
		}
		q.Head++
	}
	return nil
}
