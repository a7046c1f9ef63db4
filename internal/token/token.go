package token

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrRateChangeRejected occurs when a global rate update would lower the
	// rate; rate changes are monotonically increasing.
	ErrRateChangeRejected = errors.New("rate change rejected")

	// ErrInsufficientBalance occurs when a burn or transfer amount exceeds the
	// account's effective balance after pending interest is settled.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance occurs when a delegated transfer exceeds the
	// spender's approved allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrUnauthorizedCaller indicates a mint, burn or admin operation invoked
	// by an identity without the required role.
	ErrUnauthorizedCaller = errors.New("unauthorized caller")

	// ErrAmountOverflow indicates an amount that would push a principal or the
	// total supply past the representable maximum.
	ErrAmountOverflow = errors.New("amount overflows principal representation")

	// ErrInvalidAmount indicates a nil or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Precision is the fixed-point scale for interest rates: a rate of Precision
// accrues 100% of principal per second.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// MaxAmount is the largest representable amount (2^256 - 1). Passing it as the
// amount to Burn or Transfer is a sentinel for "the whole effective balance",
// and as an allowance it means unlimited.
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// DefaultRate is the global interest rate a fresh ledger starts with:
// 5e10, i.e. 5e-8 of principal per second at Precision scale.
var DefaultRate = big.NewInt(50_000_000_000)

// Account holds the per-holder ledger state. Principal is the raw minted
// amount; the externally visible balance is derived from it on every read and
// never stored. RateSnapshot and UpdatedAt move together: both are written by
// interest settlement, and RateSnapshot alone may additionally be overwritten
// by a mint or inherited through a transfer into an empty account.
type Account struct {
	Address      string
	Principal    *big.Int
	RateSnapshot *big.Int
	UpdatedAt    int64 // unix seconds of the last settlement
}

// AllowanceRecord is a spender approval owned by an account.
type AllowanceRecord struct {
	Owner   string
	Spender string
	Amount  *big.Int
}

// Changeset is the atomic unit of ledger persistence: every mutating ledger
// operation stages its full effect into one changeset and applies it in a
// single call, so a failure persists nothing.
type Changeset struct {
	Accounts    []Account
	TotalSupply *big.Int // nil leaves the supply untouched
	GlobalRate  *big.Int // nil leaves the rate untouched
	Allowances  []AllowanceRecord
}

// Store persists ledger state. Implementations must apply a changeset
// atomically; reads outside a changeset need no isolation because the ledger
// serializes operations itself.
type Store interface {
	Account(ctx context.Context, address string) (Account, bool, error)
	GlobalRate(ctx context.Context) (*big.Int, bool, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	ListAccounts(ctx context.Context) ([]string, error)
	Apply(ctx context.Context, cs Changeset) error
}
