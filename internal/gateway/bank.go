package gateway

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/yield-pay/yield_pay/internal/token"
)

// ErrInsufficientFunds occurs when a native-currency account lacks the balance
// to cover a transfer.
var ErrInsufficientFunds = errors.New("insufficient native funds")

// Bank represents the native-currency custody backing the token 1:1. The
// gateway's own bank account holds every deposit until it is redeemed.
type Bank interface {
	Transfer(ctx context.Context, from, to string, amount *big.Int) error
	Balance(ctx context.Context, account string) (*big.Int, error)
}

type memoryBank struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

// NewMemoryBank creates a concurrency-safe in-memory bank for tests and dev.
func NewMemoryBank() Bank {
	return &memoryBank{balances: make(map[string]*big.Int)}
}

func (b *memoryBank) Transfer(_ context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(token.MaxAmount) > 0 {
		return token.ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fromBalance := b.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	fromBalance.Sub(fromBalance, amount)
	b.balance(to).Add(b.balance(to), amount)
	return nil
}

func (b *memoryBank) Balance(_ context.Context, account string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(account)), nil
}

func (b *memoryBank) balance(account string) *big.Int {
	if _, ok := b.balances[account]; !ok {
		b.balances[account] = new(big.Int)
	}
	return b.balances[account]
}

// SeedFunds plants native currency in an account when using the in-memory
// bank. Used by tests and the dev faucet.
func SeedFunds(b Bank, account string, amount *big.Int) {
	if mem, ok := b.(*memoryBank); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[account] = new(big.Int).Set(amount)
	}
}
