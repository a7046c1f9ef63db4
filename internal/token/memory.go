package token

import (
	"context"
	"math/big"
	"sort"
	"sync"
)

type memoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	allowances map[[2]string]*big.Int
	supply     *big.Int
	globalRate *big.Int
}

// NewMemoryStore creates a concurrency-safe in-memory store useful for unit
// tests and dev mode.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts:   make(map[string]Account),
		allowances: make(map[[2]string]*big.Int),
		supply:     new(big.Int),
	}
}

func (s *memoryStore) Account(_ context.Context, address string) (Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[address]
	if !ok {
		return Account{}, false, nil
	}
	return copyAccount(acct), true, nil
}

func (s *memoryStore) GlobalRate(_ context.Context) (*big.Int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.globalRate == nil {
		return nil, false, nil
	}
	return new(big.Int).Set(s.globalRate), true, nil
}

func (s *memoryStore) TotalSupply(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.supply), nil
}

func (s *memoryStore) Allowance(_ context.Context, owner, spender string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if amt, ok := s.allowances[[2]string{owner, spender}]; ok {
		return new(big.Int).Set(amt), nil
	}
	return new(big.Int), nil
}

func (s *memoryStore) ListAccounts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addresses := make([]string, 0, len(s.accounts))
	for address := range s.accounts {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses, nil
}

func (s *memoryStore) Apply(_ context.Context, cs Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range cs.Accounts {
		s.accounts[acct.Address] = copyAccount(acct)
	}
	if cs.TotalSupply != nil {
		s.supply = new(big.Int).Set(cs.TotalSupply)
	}
	if cs.GlobalRate != nil {
		s.globalRate = new(big.Int).Set(cs.GlobalRate)
	}
	for _, a := range cs.Allowances {
		s.allowances[[2]string{a.Owner, a.Spender}] = new(big.Int).Set(a.Amount)
	}
	return nil
}

func copyAccount(acct Account) Account {
	return Account{
		Address:      acct.Address,
		Principal:    new(big.Int).Set(acct.Principal),
		RateSnapshot: new(big.Int).Set(acct.RateSnapshot),
		UpdatedAt:    acct.UpdatedAt,
	}
}
