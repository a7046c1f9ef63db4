package token

import (
	"context"
	"math/big"
	"sort"
)

// baseLedger is the plain fungible layer: it moves raw principal, tracks the
// total supply and keeps spender allowances. It knows nothing about interest;
// the rebase layer runs its settlement hooks first and then delegates here.
// All mutations go through a stage so one operation commits in one Apply.
type baseLedger struct {
	store Store
}

// stage is the working copy of everything one operation touches. Reads go
// through the stage so repeated lookups of the same account share a pointer.
type stage struct {
	accounts   map[string]*Account
	supply     *big.Int
	allowances map[[2]string]*big.Int
}

func (b *baseLedger) begin() *stage {
	return &stage{
		accounts:   make(map[string]*Account),
		allowances: make(map[[2]string]*big.Int),
	}
}

// account loads an account into the stage, creating a zero-principal record
// for unknown addresses. Accounts come into existence implicitly on first use
// and are never destroyed.
func (b *baseLedger) account(ctx context.Context, st *stage, address string) (*Account, error) {
	if acct, ok := st.accounts[address]; ok {
		return acct, nil
	}
	acct, found, err := b.store.Account(ctx, address)
	if err != nil {
		return nil, err
	}
	if !found {
		acct = Account{Address: address, Principal: new(big.Int), RateSnapshot: new(big.Int)}
	}
	staged := Account{
		Address:      acct.Address,
		Principal:    new(big.Int).Set(acct.Principal),
		RateSnapshot: new(big.Int).Set(acct.RateSnapshot),
		UpdatedAt:    acct.UpdatedAt,
	}
	st.accounts[address] = &staged
	return &staged, nil
}

func (b *baseLedger) supply(ctx context.Context, st *stage) (*big.Int, error) {
	if st.supply != nil {
		return st.supply, nil
	}
	supply, err := b.store.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	st.supply = new(big.Int).Set(supply)
	return st.supply, nil
}

// credit adds raw units to an account and to the total supply.
func (b *baseLedger) credit(ctx context.Context, st *stage, address string, amount *big.Int) error {
	acct, err := b.account(ctx, st, address)
	if err != nil {
		return err
	}
	supply, err := b.supply(ctx, st)
	if err != nil {
		return err
	}
	if new(big.Int).Add(acct.Principal, amount).Cmp(MaxAmount) > 0 ||
		new(big.Int).Add(supply, amount).Cmp(MaxAmount) > 0 {
		return ErrAmountOverflow
	}
	acct.Principal.Add(acct.Principal, amount)
	supply.Add(supply, amount)
	return nil
}

// debit removes raw units from an account and from the total supply. The
// caller has already checked the balance.
func (b *baseLedger) debit(ctx context.Context, st *stage, address string, amount *big.Int) error {
	acct, err := b.account(ctx, st, address)
	if err != nil {
		return err
	}
	supply, err := b.supply(ctx, st)
	if err != nil {
		return err
	}
	acct.Principal.Sub(acct.Principal, amount)
	supply.Sub(supply, amount)
	return nil
}

// move shifts raw units between accounts without touching the supply.
func (b *baseLedger) move(ctx context.Context, st *stage, from, to string, amount *big.Int) error {
	fromAcct, err := b.account(ctx, st, from)
	if err != nil {
		return err
	}
	toAcct, err := b.account(ctx, st, to)
	if err != nil {
		return err
	}
	fromAcct.Principal.Sub(fromAcct.Principal, amount)
	toAcct.Principal.Add(toAcct.Principal, amount)
	return nil
}

func (b *baseLedger) allowance(ctx context.Context, st *stage, owner, spender string) (*big.Int, error) {
	key := [2]string{owner, spender}
	if amt, ok := st.allowances[key]; ok {
		return amt, nil
	}
	amt, err := b.store.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	staged := new(big.Int).Set(amt)
	st.allowances[key] = staged
	return staged, nil
}

func (b *baseLedger) approve(st *stage, owner, spender string, amount *big.Int) {
	st.allowances[[2]string{owner, spender}] = new(big.Int).Set(amount)
}

// commit flushes the stage through the store in one atomic changeset.
func (b *baseLedger) commit(ctx context.Context, st *stage) error {
	cs := Changeset{TotalSupply: st.supply}

	addresses := make([]string, 0, len(st.accounts))
	for address := range st.accounts {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	for _, address := range addresses {
		cs.Accounts = append(cs.Accounts, *st.accounts[address])
	}

	keys := make([][2]string, 0, len(st.allowances))
	for key := range st.allowances {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, key := range keys {
		cs.Allowances = append(cs.Allowances, AllowanceRecord{Owner: key[0], Spender: key[1], Amount: st.allowances[key]})
	}

	return b.store.Apply(ctx, cs)
}
