// Package vault stands in for the token-transfer primitive the engine
// relies on but does not implement itself: a narrow collaborator
// interface plus an in-memory ledger implementation, the same
// interface-over-a-swappable-backend shape used for the engine's other
// external collaborators (the oracle readers, the snapshot store).
package vault

import (
	"context"
	"fmt"
	"sync"

	"perpcore/pkg/types"
)

// TokenMover moves quote-currency units between two identities. The
// engine never assumes which concrete implementation is wired in.
type TokenMover interface {
	Transfer(ctx context.Context, from, to types.Identity, amount uint64) error
}

// Ledger is an in-memory TokenMover keyed by identity. Transfer fails
// with an error, leaving both balances unchanged, when the sender's
// balance is below the amount; no balance ever goes negative.
type Ledger struct {
	mu       sync.Mutex
	balances map[types.Identity]uint64
}

// NewLedger builds an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[types.Identity]uint64)}
}

// Credit adds amount to identity's balance, used to seed initial deposits.
func (l *Ledger) Credit(identity types.Identity, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[identity] += amount
}

// Balance returns identity's current balance.
func (l *Ledger) Balance(identity types.Identity) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[identity]
}

// Transfer moves amount from one identity to another.
func (l *Ledger) Transfer(ctx context.Context, from, to types.Identity, amount uint64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("vault: %s has insufficient balance for transfer of %d", from, amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
