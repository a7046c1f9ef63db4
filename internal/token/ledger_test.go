package token

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

const (
	testOwner  = "owner"
	testMinter = "gateway:custody"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}
	led, err := NewLedger(context.Background(), NewMemoryStore(), Options{
		Owner: testOwner,
		Now:   clock.Now,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := led.GrantMintBurn(context.Background(), testOwner, testMinter); err != nil {
		t.Fatalf("grant mint/burn: %v", err)
	}
	return led, clock
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision)
}

func mustEqual(t *testing.T, got, want *big.Int, label string) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Fatalf("%s: got %s want %s", label, got, want)
	}
}

func TestMintAccruesLinearInterestWithinInterval(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	// 10 tokens at the default 5e10/sec rate.
	if err := led.Mint(ctx, testMinter, "alice", tokens(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	clock.Advance(2 * time.Second)

	// 10e18 * (1e18 + 5e10*2) / 1e18 = 10e18 + 1e12
	want := new(big.Int).Add(tokens(10), big.NewInt(1_000_000_000_000))
	got, err := led.BalanceOf(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	mustEqual(t, got, want, "effective balance after 2s")

	// Principal is untouched until something settles.
	principal, err := led.PrincipalBalanceOf(ctx, "alice")
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	mustEqual(t, principal, tokens(10), "principal before settlement")

	// A zero mint settles exactly the pending delta and resets the clock.
	if err := led.Mint(ctx, testMinter, "alice", new(big.Int)); err != nil {
		t.Fatalf("zero mint: %v", err)
	}
	principal, _ = led.PrincipalBalanceOf(ctx, "alice")
	mustEqual(t, principal, want, "principal after zero mint")

	balance, _ := led.BalanceOf(ctx, "alice")
	mustEqual(t, balance, principal, "no pending interest right after settlement")
}

func TestSettleLeavesNoPendingInterest(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	if err := led.Mint(ctx, testMinter, "alice", tokens(3)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	clock.Advance(12 * time.Hour)

	if err := led.Settle(ctx, testMinter, "alice"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	principal, _ := led.PrincipalBalanceOf(ctx, "alice")
	balance, _ := led.BalanceOf(ctx, "alice")
	mustEqual(t, balance, principal, "principal == balance after settlement")

	supply, _ := led.TotalSupply(ctx)
	mustEqual(t, supply, principal, "settled interest is minted into supply")
}

func TestSettleSameInstantIsIdempotent(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(5))
	clock.Advance(time.Hour)

	if err := led.Settle(ctx, testMinter, "alice"); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	first, _ := led.PrincipalBalanceOf(ctx, "alice")

	if err := led.Settle(ctx, testMinter, "alice"); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	second, _ := led.PrincipalBalanceOf(ctx, "alice")
	mustEqual(t, second, first, "same-instant settlement adds nothing")
}

func TestCompoundingAcrossSettlements(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	// High rate so the quadratic term is visible: 1e15/sec = 0.1%/sec.
	rate := big.NewInt(1_000_000_000_000_000)
	if err := led.SetGlobalRate(ctx, testOwner, rate); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := led.Mint(ctx, testMinter, "alice", tokens(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	clock.Advance(100 * time.Second)
	if err := led.Settle(ctx, testMinter, "alice"); err != nil {
		t.Fatalf("settle t1: %v", err)
	}
	clock.Advance(200 * time.Second)
	if err := led.Settle(ctx, testMinter, "alice"); err != nil {
		t.Fatalf("settle t2: %v", err)
	}

	compounded, _ := led.PrincipalBalanceOf(ctx, "alice")

	// Single linear interval over t1+t2 = 300s.
	linear := new(big.Int).Mul(tokens(1), accruedFactor(rate, 300))
	linear.Quo(linear, Precision)

	if compounded.Cmp(linear) <= 0 {
		t.Fatalf("expected compounding %s to exceed linear %s", compounded, linear)
	}
}

func TestBurnThenRemintRestoresPrincipal(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(10))
	clock.Advance(30 * time.Minute)

	amount := tokens(4)
	if _, err := led.Burn(ctx, testMinter, "alice", amount); err != nil {
		t.Fatalf("burn: %v", err)
	}
	afterBurn, _ := led.PrincipalBalanceOf(ctx, "alice")

	if err := led.Mint(ctx, testMinter, "alice", amount); err != nil {
		t.Fatalf("remint: %v", err)
	}
	restored, _ := led.PrincipalBalanceOf(ctx, "alice")
	mustEqual(t, restored, new(big.Int).Add(afterBurn, amount), "principal restored by remint")
}

func TestBurnMaxSentinelEmptiesAccount(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(7))
	clock.Advance(time.Hour)

	burned, err := led.Burn(ctx, testMinter, "alice", MaxAmount)
	if err != nil {
		t.Fatalf("burn max: %v", err)
	}
	if burned.Cmp(tokens(7)) <= 0 {
		t.Fatalf("expected burn to include accrued interest, burned %s", burned)
	}

	balance, _ := led.BalanceOf(ctx, "alice")
	if balance.Sign() != 0 {
		t.Fatalf("expected empty account, balance %s", balance)
	}
	supply, _ := led.TotalSupply(ctx)
	if supply.Sign() != 0 {
		t.Fatalf("expected zero supply, got %s", supply)
	}
}

func TestBurnRejectsExcessAmount(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(1))
	if _, err := led.Burn(ctx, testMinter, "alice", tokens(2)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// Failed burn changes nothing.
	principal, _ := led.PrincipalBalanceOf(ctx, "alice")
	mustEqual(t, principal, tokens(1), "principal after rejected burn")
}

func TestSetGlobalRateMonotonicDirection(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	higher := new(big.Int).Mul(DefaultRate, big.NewInt(2))
	if err := led.SetGlobalRate(ctx, testOwner, higher); err != nil {
		t.Fatalf("raising the rate should succeed: %v", err)
	}

	lower := new(big.Int).Sub(higher, big.NewInt(1))
	if err := led.SetGlobalRate(ctx, testOwner, lower); !errors.Is(err, ErrRateChangeRejected) {
		t.Fatalf("expected ErrRateChangeRejected, got %v", err)
	}

	rate, _ := led.GlobalRate(ctx)
	mustEqual(t, rate, higher, "rate unchanged after rejected update")
}

func TestSetGlobalRateRequiresOwner(t *testing.T) {
	led, _ := newTestLedger(t)
	if err := led.SetGlobalRate(context.Background(), "mallory", tokens(1)); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller, got %v", err)
	}
}

func TestMintOverwritesRateSnapshot(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(1))
	first, _ := led.AccountRate(ctx, "alice")
	mustEqual(t, first, DefaultRate, "initial snapshot")

	raised := new(big.Int).Mul(DefaultRate, big.NewInt(3))
	led.SetGlobalRate(ctx, testOwner, raised)

	// Every mint restamps, not just the first deposit.
	led.Mint(ctx, testMinter, "alice", tokens(1))
	second, _ := led.AccountRate(ctx, "alice")
	mustEqual(t, second, raised, "snapshot after repeat deposit")
}

func TestTransferNewRecipientInheritsSenderRate(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(5))
	aliceRate, _ := led.AccountRate(ctx, "alice")

	// Raise the global rate so inheritance is distinguishable from stamping.
	led.SetGlobalRate(ctx, testOwner, new(big.Int).Mul(DefaultRate, big.NewInt(4)))

	if err := led.Transfer(ctx, "alice", "bob", tokens(2)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bobRate, _ := led.AccountRate(ctx, "bob")
	mustEqual(t, bobRate, aliceRate, "empty recipient catches sender rate")
}

func TestTransferFundedRecipientKeepsOwnRate(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "bob", tokens(1))
	bobRate, _ := led.AccountRate(ctx, "bob")

	led.SetGlobalRate(ctx, testOwner, new(big.Int).Mul(DefaultRate, big.NewInt(4)))
	led.Mint(ctx, testMinter, "alice", tokens(5))

	if err := led.Transfer(ctx, "alice", "bob", tokens(2)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	after, _ := led.AccountRate(ctx, "bob")
	mustEqual(t, after, bobRate, "funded recipient keeps snapshot")
}

func TestTransferSettlesBothSides(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(10))
	led.Mint(ctx, testMinter, "bob", tokens(10))
	clock.Advance(6 * time.Hour)

	aliceBefore, _ := led.BalanceOf(ctx, "alice")
	bobBefore, _ := led.BalanceOf(ctx, "bob")

	if err := led.Transfer(ctx, "alice", "bob", tokens(3)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	alice, _ := led.PrincipalBalanceOf(ctx, "alice")
	bob, _ := led.PrincipalBalanceOf(ctx, "bob")
	mustEqual(t, alice, new(big.Int).Sub(aliceBefore, tokens(3)), "sender settled then debited")
	mustEqual(t, bob, new(big.Int).Add(bobBefore, tokens(3)), "recipient settled then credited")
}

func TestTransferMaxSentinelMovesEffectiveBalance(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(2))
	clock.Advance(time.Hour)

	if err := led.Transfer(ctx, "alice", "bob", MaxAmount); err != nil {
		t.Fatalf("transfer max: %v", err)
	}
	alice, _ := led.BalanceOf(ctx, "alice")
	if alice.Sign() != 0 {
		t.Fatalf("expected drained sender, balance %s", alice)
	}
	bob, _ := led.PrincipalBalanceOf(ctx, "bob")
	if bob.Cmp(tokens(2)) <= 0 {
		t.Fatalf("expected recipient to receive principal plus interest, got %s", bob)
	}
}

func TestTransferFromEnforcesAllowance(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(10))
	if err := led.Approve(ctx, "alice", "carol", tokens(4)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := led.TransferFrom(ctx, "carol", "alice", "bob", tokens(5)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	if err := led.TransferFrom(ctx, "carol", "alice", "bob", tokens(3)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, _ := led.Allowance(ctx, "alice", "carol")
	mustEqual(t, remaining, tokens(1), "allowance drawn down")
}

func TestTransferFromUnlimitedAllowance(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(10))
	led.Approve(ctx, "alice", "carol", MaxAmount)

	if err := led.TransferFrom(ctx, "carol", "alice", "bob", tokens(3)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, _ := led.Allowance(ctx, "alice", "carol")
	mustEqual(t, remaining, MaxAmount, "unlimited allowance is not drawn down")
}

func TestMintBurnRequireRole(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	if err := led.Mint(ctx, "mallory", "alice", tokens(1)); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller on mint, got %v", err)
	}
	if _, err := led.Burn(ctx, "mallory", "alice", tokens(1)); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller on burn, got %v", err)
	}
	if err := led.GrantMintBurn(ctx, "mallory", "mallory"); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller on grant, got %v", err)
	}
}

func TestReverseBurnRestoresEffectiveBalance(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(10))
	clock.Advance(time.Hour)

	before, _ := led.BalanceOf(ctx, "alice")

	burned, err := led.Burn(ctx, testMinter, "alice", tokens(4))
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := led.ReverseBurn(ctx, testMinter, "alice", burned); err != nil {
		t.Fatalf("reverse burn: %v", err)
	}

	after, _ := led.BalanceOf(ctx, "alice")
	mustEqual(t, after, before, "effective balance unchanged after burn + reversal")
}

func TestMintOverflowRejected(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	if err := led.Mint(ctx, testMinter, "alice", MaxAmount); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := led.Mint(ctx, testMinter, "bob", big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestBalanceOfIsReadOnly(t *testing.T) {
	led, clock := newTestLedger(t)
	ctx := context.Background()

	led.Mint(ctx, testMinter, "alice", tokens(1))
	clock.Advance(time.Hour)

	first, _ := led.BalanceOf(ctx, "alice")
	second, _ := led.BalanceOf(ctx, "alice")
	mustEqual(t, second, first, "repeated reads at the same instant agree")

	principal, _ := led.PrincipalBalanceOf(ctx, "alice")
	mustEqual(t, principal, tokens(1), "reads do not settle")
}
