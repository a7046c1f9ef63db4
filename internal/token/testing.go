package token

import (
	"math/big"
)

// SeedAccount is a test helper that plants account state directly in the
// in-memory store, bypassing the ledger.
func SeedAccount(s Store, address string, principal, rateSnapshot *big.Int, updatedAt int64) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.accounts[address] = Account{
			Address:      address,
			Principal:    new(big.Int).Set(principal),
			RateSnapshot: new(big.Int).Set(rateSnapshot),
			UpdatedAt:    updatedAt,
		}
		mem.supply.Add(mem.supply, principal)
	}
}
