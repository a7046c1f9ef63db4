package token

import "math/big"

// accruedFactor returns Precision + rate*elapsed: the linear growth multiplier
// for a single interval between settlements. Compounding happens across
// settlements, not inside the factor, because each settlement folds the earned
// interest into principal and restarts the interval.
func accruedFactor(rate *big.Int, elapsed int64) *big.Int {
	if elapsed < 0 {
		elapsed = 0
	}
	factor := new(big.Int).Mul(rate, big.NewInt(elapsed))
	return factor.Add(factor, Precision)
}

// effectiveBalance derives the externally visible balance from stored account
// state at the given instant. Pure: it never mutates the account.
func effectiveBalance(acct Account, now int64) *big.Int {
	if acct.Principal == nil || acct.Principal.Sign() == 0 {
		return new(big.Int)
	}
	factor := accruedFactor(acct.RateSnapshot, now-acct.UpdatedAt)
	out := new(big.Int).Mul(acct.Principal, factor)
	return out.Quo(out, Precision)
}
