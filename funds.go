package exchange

import (
	"sync"

	"github.com/shopspring/decimal"
)

// FundStore is the escrow collaborator holding per-owner, per-asset balances.
// The engine calls Debit/Credit symmetrically for both legs of every fill;
// a failed Debit aborts and unwinds the whole submit call.
type FundStore interface {
	// BalanceOf returns the available balance. Unknown owners or assets
	// report zero.
	BalanceOf(owner, asset string) decimal.Decimal

	// Debit removes amount from the balance.
	// Returns ErrInsufficientFunds when the balance does not cover it.
	Debit(owner, asset string, amount decimal.Decimal) error

	// Credit adds amount to the balance.
	Credit(owner, asset string, amount decimal.Decimal)
}

// MemoryFundStore is an in-memory FundStore, useful for testing and for
// single-process deployments where custody lives elsewhere.
type MemoryFundStore struct {
	mu       sync.RWMutex
	balances map[string]map[string]decimal.Decimal
}

// NewMemoryFundStore creates an empty in-memory fund store.
func NewMemoryFundStore() *MemoryFundStore {
	return &MemoryFundStore{
		balances: make(map[string]map[string]decimal.Decimal),
	}
}

func (s *MemoryFundStore) BalanceOf(owner, asset string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[owner][asset]
}

func (s *MemoryFundStore) Debit(owner, asset string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balances[owner][asset]
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	s.balances[owner][asset] = balance.Sub(amount)
	return nil
}

func (s *MemoryFundStore) Credit(owner, asset string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[owner] == nil {
		s.balances[owner] = make(map[string]decimal.Decimal)
	}
	s.balances[owner][asset] = s.balances[owner][asset].Add(amount)
}
