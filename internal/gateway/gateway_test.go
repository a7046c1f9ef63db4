package gateway

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/yield-pay/yield_pay/internal/logging"
	"github.com/yield-pay/yield_pay/internal/token"
)

const gatewayID = "gateway:custody"

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestGateway(t *testing.T, bank Bank) (*Gateway, *fakeClock) {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}

	led, err := token.NewLedger(ctx, token.NewMemoryStore(), token.Options{
		Owner:  "owner",
		Now:    clock.Now,
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := led.GrantMintBurn(ctx, "owner", gatewayID); err != nil {
		t.Fatalf("grant role: %v", err)
	}

	gw, err := New(led, bank, gatewayID, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw, clock
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), token.Precision)
}

func TestDepositMintsOneToOne(t *testing.T) {
	bank := NewMemoryBank()
	gw, _ := newTestGateway(t, bank)
	ctx := context.Background()

	SeedFunds(bank, "alice", tokens(20))
	if err := gw.Deposit(ctx, "alice", tokens(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	balance, err := gw.Ledger().BalanceOf(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(tokens(5)) != 0 {
		t.Fatalf("expected 5 tokens minted, got %s", balance)
	}

	reserves, _ := gw.Reserves(ctx)
	if reserves.Cmp(tokens(5)) != 0 {
		t.Fatalf("expected reserves 5, got %s", reserves)
	}

	native, _ := bank.Balance(ctx, "alice")
	if native.Cmp(tokens(15)) != 0 {
		t.Fatalf("expected native 15 left, got %s", native)
	}
}

func TestDepositRequiresNativeFunds(t *testing.T) {
	gw, _ := newTestGateway(t, NewMemoryBank())
	ctx := context.Background()

	if err := gw.Deposit(ctx, "alice", tokens(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	balance, _ := gw.Ledger().BalanceOf(ctx, "alice")
	if balance.Sign() != 0 {
		t.Fatalf("expected no mint, balance %s", balance)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	gw, _ := newTestGateway(t, NewMemoryBank())
	if err := gw.Deposit(context.Background(), "alice", new(big.Int)); !errors.Is(err, ErrInvalidDeposit) {
		t.Fatalf("expected ErrInvalidDeposit, got %v", err)
	}
}

func TestRedeemPaysOutBurnedAmount(t *testing.T) {
	bank := NewMemoryBank()
	gw, _ := newTestGateway(t, bank)
	ctx := context.Background()

	SeedFunds(bank, "alice", tokens(10))
	if err := gw.Deposit(ctx, "alice", tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	burned, err := gw.Redeem(ctx, "alice", tokens(4))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if burned.Cmp(tokens(4)) != 0 {
		t.Fatalf("expected 4 burned, got %s", burned)
	}

	native, _ := bank.Balance(ctx, "alice")
	if native.Cmp(tokens(4)) != 0 {
		t.Fatalf("expected native 4 paid out, got %s", native)
	}
	balance, _ := gw.Ledger().BalanceOf(ctx, "alice")
	if balance.Cmp(tokens(6)) != 0 {
		t.Fatalf("expected 6 tokens left, got %s", balance)
	}
}

func TestRedeemMaxIncludesAccruedInterest(t *testing.T) {
	bank := NewMemoryBank()
	gw, clock := newTestGateway(t, bank)
	ctx := context.Background()

	SeedFunds(bank, "alice", tokens(10))
	if err := gw.Deposit(ctx, "alice", tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Interest accrues; the custody account is topped up to cover it the way
	// a rewards funding operation would.
	clock.Advance(24 * time.Hour)
	SeedFunds(bank, gatewayID, tokens(11))

	burned, err := gw.Redeem(ctx, "alice", token.MaxAmount)
	if err != nil {
		t.Fatalf("redeem max: %v", err)
	}
	if burned.Cmp(tokens(10)) <= 0 {
		t.Fatalf("expected burn above principal, got %s", burned)
	}

	balance, _ := gw.Ledger().BalanceOf(ctx, "alice")
	if balance.Sign() != 0 {
		t.Fatalf("expected drained account, balance %s", balance)
	}
	native, _ := bank.Balance(ctx, "alice")
	if native.Cmp(burned) != 0 {
		t.Fatalf("expected payout %s, got %s", burned, native)
	}
}

// failingBank refuses payouts from a configured account, simulating an
// undeliverable native transfer.
type failingBank struct {
	inner    Bank
	failFrom string
}

func (b *failingBank) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if from == b.failFrom {
		return errors.New("payout rejected")
	}
	return b.inner.Transfer(ctx, from, to, amount)
}

func (b *failingBank) Balance(ctx context.Context, account string) (*big.Int, error) {
	return b.inner.Balance(ctx, account)
}

func TestRedeemPayoutFailureRollsBackBurn(t *testing.T) {
	inner := NewMemoryBank()
	bank := &failingBank{inner: inner, failFrom: gatewayID}
	gw, clock := newTestGateway(t, bank)
	ctx := context.Background()

	SeedFunds(inner, "alice", tokens(10))
	if err := gw.Deposit(ctx, "alice", tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.Advance(time.Hour)

	before, _ := gw.Ledger().BalanceOf(ctx, "alice")

	if _, err := gw.Redeem(ctx, "alice", tokens(3)); !errors.Is(err, ErrRedeemTransferFailed) {
		t.Fatalf("expected ErrRedeemTransferFailed, got %v", err)
	}

	after, _ := gw.Ledger().BalanceOf(ctx, "alice")
	if after.Cmp(before) != 0 {
		t.Fatalf("expected balance unchanged, before %s after %s", before, after)
	}
}

// reentrantBank calls back into Redeem from inside the payout, the way a
// malicious native recipient would.
type reentrantBank struct {
	inner    Bank
	gateway  *Gateway
	observed error
}

func (b *reentrantBank) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if from == b.gateway.Identity() {
		_, b.observed = b.gateway.Redeem(ctx, to, amount)
	}
	return b.inner.Transfer(ctx, from, to, amount)
}

func (b *reentrantBank) Balance(ctx context.Context, account string) (*big.Int, error) {
	return b.inner.Balance(ctx, account)
}

func TestRedeemBlocksReentrancy(t *testing.T) {
	inner := NewMemoryBank()
	bank := &reentrantBank{inner: inner}
	gw, _ := newTestGateway(t, bank)
	bank.gateway = gw
	ctx := context.Background()

	SeedFunds(inner, "alice", tokens(10))
	if err := gw.Deposit(ctx, "alice", tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := gw.Redeem(ctx, "alice", tokens(2)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !errors.Is(bank.observed, ErrRedeemInProgress) {
		t.Fatalf("expected reentrant call to fail with ErrRedeemInProgress, got %v", bank.observed)
	}

	// Only the outer redeem took effect.
	balance, _ := gw.Ledger().BalanceOf(ctx, "alice")
	if balance.Cmp(tokens(8)) != 0 {
		t.Fatalf("expected 8 tokens left, got %s", balance)
	}
}

func TestRedeemZeroBalanceIsNoop(t *testing.T) {
	bank := NewMemoryBank()
	gw, _ := newTestGateway(t, bank)

	burned, err := gw.Redeem(context.Background(), "alice", token.MaxAmount)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if burned.Sign() != 0 {
		t.Fatalf("expected zero burn, got %s", burned)
	}
}
