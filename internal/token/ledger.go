package token

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yield-pay/yield_pay/internal/notification"
)

// Ledger is the interest-bearing rebase ledger. It owns the global rate and
// the per-account rate snapshots, settles accrued interest into principal
// before every balance-affecting action, and derives effective balances on
// read instead of storing them.
//
// Every operation runs under one mutex: the ledger behaves as a serialized
// transaction log, so an operation either applies in full or not at all.
type Ledger struct {
	mu      sync.Mutex
	base    *baseLedger
	store   Store
	owner   string
	minters map[string]struct{}
	now     func() time.Time

	notifier notification.Notifier
	logger   *slog.Logger
}

// Options configures a ledger instance.
type Options struct {
	// Owner may change the global rate and grant mint/burn roles.
	Owner string
	// BaseRate seeds the global rate on first boot; defaults to DefaultRate.
	BaseRate *big.Int
	// Now supplies timestamps; defaults to time.Now. Tests inject fixed clocks.
	Now      func() time.Time
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// NewLedger builds a ledger over the given store, seeding the global rate when
// the store is empty.
func NewLedger(ctx context.Context, store Store, opts Options) (*Ledger, error) {
	if opts.Owner == "" {
		return nil, fmt.Errorf("ledger owner is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	_, found, err := store.GlobalRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("read global rate: %w", err)
	}
	if !found {
		rate := opts.BaseRate
		if rate == nil {
			rate = DefaultRate
		}
		if rate.Sign() < 0 || rate.Cmp(MaxAmount) > 0 {
			return nil, fmt.Errorf("base rate out of range")
		}
		if err := store.Apply(ctx, Changeset{GlobalRate: rate}); err != nil {
			return nil, fmt.Errorf("seed global rate: %w", err)
		}
	}

	return &Ledger{
		base:     &baseLedger{store: store},
		store:    store,
		owner:    opts.Owner,
		minters:  make(map[string]struct{}),
		now:      opts.Now,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}, nil
}

// Owner returns the admin identity.
func (l *Ledger) Owner() string { return l.owner }

// GrantMintBurn authorizes an identity to mint and burn. Only the owner may
// grant; the custody gateway is granted at boot, and a bridge pool would be
// granted the same way.
func (l *Ledger) GrantMintBurn(_ context.Context, caller, grantee string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.owner {
		return ErrUnauthorizedCaller
	}
	l.minters[grantee] = struct{}{}
	l.logger.Info("mint/burn role granted", "grantee", grantee)
	return nil
}

// SetGlobalRate updates the rate stamped onto accounts by future mints.
// The rate is monotonic: an update below the current rate fails with
// ErrRateChangeRejected. Existing snapshots are unaffected either way.
func (l *Ledger) SetGlobalRate(ctx context.Context, caller string, rate *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrUnauthorizedCaller
	}
	if rate == nil || rate.Sign() < 0 || rate.Cmp(MaxAmount) > 0 {
		return ErrInvalidAmount
	}

	current, _, err := l.store.GlobalRate(ctx)
	if err != nil {
		return fmt.Errorf("read global rate: %w", err)
	}
	if rate.Cmp(current) < 0 {
		return fmt.Errorf("%w: %s below current %s", ErrRateChangeRejected, rate, current)
	}

	if err := l.store.Apply(ctx, Changeset{GlobalRate: rate}); err != nil {
		return err
	}

	l.logger.Info("global rate updated", "rate", rate.String())
	l.publish(ctx, notification.Event{
		Kind:   notification.KindRateChanged,
		Fields: map[string]string{"rate": rate.String()},
	})
	return nil
}

// Mint settles pending interest for the account, stamps it with the current
// global rate and credits principal. The stamp is unconditional: a returning
// depositor's snapshot is overwritten even when the current global rate is
// higher than the one they held. Zero amounts are allowed and act as a
// settlement plus rate refresh. Restricted to mint/burn role holders.
func (l *Ledger) Mint(ctx context.Context, caller, account string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireMinter(caller); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	st := l.base.begin()
	now := l.now().Unix()
	acct, err := l.settle(ctx, st, account, now)
	if err != nil {
		return err
	}

	rate, _, err := l.store.GlobalRate(ctx)
	if err != nil {
		return fmt.Errorf("read global rate: %w", err)
	}
	acct.RateSnapshot.Set(rate)

	if err := l.base.credit(ctx, st, account, amount); err != nil {
		return err
	}
	return l.base.commit(ctx, st)
}

// Burn settles pending interest and debits principal. MaxAmount resolves to
// the full effective balance. Returns the amount actually burned. Restricted
// to mint/burn role holders.
func (l *Ledger) Burn(ctx context.Context, caller, account string, amount *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireMinter(caller); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	st := l.base.begin()
	now := l.now().Unix()
	acct, err := l.settle(ctx, st, account, now)
	if err != nil {
		return nil, err
	}

	// After settlement the principal is the effective balance.
	if amount.Cmp(MaxAmount) == 0 {
		amount = new(big.Int).Set(acct.Principal)
	}
	if amount.Cmp(acct.Principal) > 0 {
		return nil, fmt.Errorf("%w: burn %s exceeds balance %s", ErrInsufficientBalance, amount, acct.Principal)
	}

	if err := l.base.debit(ctx, st, account, amount); err != nil {
		return nil, err
	}
	if err := l.base.commit(ctx, st); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// ReverseBurn restores principal removed by an earlier Burn in the same
// logical transaction, without settlement or a snapshot stamp. The custody
// gateway uses it to unwind a burn when the native payout fails, leaving the
// account exactly as a pure settlement would have.
func (l *Ledger) ReverseBurn(ctx context.Context, caller, account string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireMinter(caller); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	st := l.base.begin()
	if err := l.base.credit(ctx, st, account, amount); err != nil {
		return err
	}
	return l.base.commit(ctx, st)
}

// Settle materializes pending interest for an account without changing its
// rate snapshot. The periodic sweep uses it to keep principal-based accounting
// close to effective balances. Restricted to mint/burn role holders.
func (l *Ledger) Settle(ctx context.Context, caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireMinter(caller); err != nil {
		return err
	}

	st := l.base.begin()
	if _, err := l.settle(ctx, st, account, l.now().Unix()); err != nil {
		return err
	}
	return l.base.commit(ctx, st)
}

// Transfer moves value from sender to recipient. Both sides settle first so
// neither loses nor double-counts interest. MaxAmount resolves to the sender's
// effective balance. A recipient holding zero principal inherits the sender's
// rate snapshot; a funded recipient keeps their own.
func (l *Ledger) Transfer(ctx context.Context, sender, recipient string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(ctx, sender, recipient, amount)
}

// TransferFrom is Transfer on behalf of sender, drawing down the spender's
// allowance. An allowance of MaxAmount is unlimited and is not reduced.
func (l *Ledger) TransferFrom(ctx context.Context, spender, sender, recipient string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := validAmount(amount); err != nil {
		return err
	}

	st := l.base.begin()
	now := l.now().Unix()

	senderAcct, err := l.settle(ctx, st, sender, now)
	if err != nil {
		return err
	}
	if amount.Cmp(MaxAmount) == 0 {
		amount = new(big.Int).Set(senderAcct.Principal)
	}

	allowance, err := l.base.allowance(ctx, st, sender, spender)
	if err != nil {
		return err
	}
	unlimited := allowance.Cmp(MaxAmount) == 0
	if !unlimited && allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s approved, %s requested", ErrInsufficientAllowance, allowance, amount)
	}
	if !unlimited {
		l.base.approve(st, sender, spender, new(big.Int).Sub(allowance, amount))
	}

	return l.finishTransfer(ctx, st, senderAcct, recipient, amount, now)
}

// Approve sets the spender's allowance over the owner's balance.
func (l *Ledger) Approve(ctx context.Context, owner, spender string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == nil || amount.Sign() < 0 || amount.Cmp(MaxAmount) > 0 {
		return ErrInvalidAmount
	}

	st := l.base.begin()
	l.base.approve(st, owner, spender, amount)
	return l.base.commit(ctx, st)
}

// Allowance returns the spender's remaining approval.
func (l *Ledger) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Allowance(ctx, owner, spender)
}

// BalanceOf derives the effective balance at the current instant. Read-only:
// no settlement happens and no state changes.
func (l *Ledger) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, found, err := l.store.Account(ctx, account)
	if err != nil {
		return nil, err
	}
	if !found {
		return new(big.Int), nil
	}
	return effectiveBalance(acct, l.now().Unix()), nil
}

// PrincipalBalanceOf returns the raw principal, ignoring unsettled interest.
func (l *Ledger) PrincipalBalanceOf(ctx context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, found, err := l.store.Account(ctx, account)
	if err != nil {
		return nil, err
	}
	if !found {
		return new(big.Int), nil
	}
	return new(big.Int).Set(acct.Principal), nil
}

// GlobalRate returns the rate applied to new snapshots going forward.
func (l *Ledger) GlobalRate(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rate, _, err := l.store.GlobalRate(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(rate), nil
}

// AccountRate returns the rate snapshot locked in for an account.
func (l *Ledger) AccountRate(ctx context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, found, err := l.store.Account(ctx, account)
	if err != nil {
		return nil, err
	}
	if !found {
		return new(big.Int), nil
	}
	return new(big.Int).Set(acct.RateSnapshot), nil
}

// TotalSupply returns the sum of all settled principal.
func (l *Ledger) TotalSupply(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.TotalSupply(ctx)
}

// ListAccounts returns every known account address.
func (l *Ledger) ListAccounts(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.ListAccounts(ctx)
}

func (l *Ledger) transfer(ctx context.Context, sender, recipient string, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	st := l.base.begin()
	now := l.now().Unix()

	senderAcct, err := l.settle(ctx, st, sender, now)
	if err != nil {
		return err
	}
	if amount.Cmp(MaxAmount) == 0 {
		amount = new(big.Int).Set(senderAcct.Principal)
	}

	return l.finishTransfer(ctx, st, senderAcct, recipient, amount, now)
}

// finishTransfer settles the recipient, applies rate inheritance and moves the
// principal. The sender is already settled and the amount already resolved.
func (l *Ledger) finishTransfer(ctx context.Context, st *stage, senderAcct *Account, recipient string, amount *big.Int, now int64) error {
	recipientAcct, err := l.settle(ctx, st, recipient, now)
	if err != nil {
		return err
	}

	if amount.Cmp(senderAcct.Principal) > 0 {
		return fmt.Errorf("%w: transfer %s exceeds balance %s", ErrInsufficientBalance, amount, senderAcct.Principal)
	}

	// An empty account catches the sender's locked-in rate.
	if recipientAcct.Principal.Sign() == 0 {
		recipientAcct.RateSnapshot.Set(senderAcct.RateSnapshot)
	}

	if err := l.base.move(ctx, st, senderAcct.Address, recipient, amount); err != nil {
		return err
	}
	if err := l.base.commit(ctx, st); err != nil {
		return err
	}

	l.publish(ctx, notification.Event{
		Kind:    notification.KindTransfer,
		Account: senderAcct.Address,
		Fields:  map[string]string{"to": recipient, "amount": amount.String()},
	})
	return nil
}

// settle folds interest accrued since the account's last update into its
// principal and total supply, then resets the accrual clock. Re-entering at
// the same instant yields a zero delta, so interest is realized exactly once.
func (l *Ledger) settle(ctx context.Context, st *stage, account string, now int64) (*Account, error) {
	acct, err := l.base.account(ctx, st, account)
	if err != nil {
		return nil, err
	}

	delta := new(big.Int).Sub(effectiveBalance(*acct, now), acct.Principal)
	if delta.Sign() > 0 {
		if err := l.base.credit(ctx, st, account, delta); err != nil {
			return nil, err
		}
	}
	acct.UpdatedAt = now
	return acct, nil
}

func (l *Ledger) requireMinter(caller string) error {
	if _, ok := l.minters[caller]; !ok {
		return fmt.Errorf("%w: %s lacks mint/burn role", ErrUnauthorizedCaller, caller)
	}
	return nil
}

func (l *Ledger) publish(ctx context.Context, event notification.Event) {
	if l.notifier == nil {
		return
	}
	event.ID = uuid.NewString()
	if err := l.notifier.Publish(ctx, event); err != nil {
		l.logger.Warn("publish ledger event", "kind", event.Kind, "error", err)
	}
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(MaxAmount) > 0 {
		return ErrInvalidAmount
	}
	return nil
}
