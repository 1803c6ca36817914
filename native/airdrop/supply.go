package airdrop

import (
	"fmt"
	"sync"
)

// TokenLedger is the global token balance that redemptions draw from.
type TokenLedger interface {
	Deduct(amount uint64) error
	Remaining() uint64
}

// Supply is an in-process TokenLedger seeded with a fixed amount of tokens.
type Supply struct {
	mu        sync.Mutex
	remaining uint64
}

// NewSupply returns a ledger holding initial tokens.
func NewSupply(initial uint64) *Supply {
	return &Supply{remaining: initial}
}

// Deduct removes amount from the supply, or fails without side effects when
// the balance is too low.
func (s *Supply) Deduct(amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount > s.remaining {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount, s.remaining)
	}
	s.remaining -= amount
	return nil
}

// Remaining returns the undistributed balance.
func (s *Supply) Remaining() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Supply) restore(remaining uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = remaining
}
