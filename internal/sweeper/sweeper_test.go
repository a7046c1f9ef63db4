package sweeper

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/yield-pay/yield_pay/internal/logging"
	"github.com/yield-pay/yield_pay/internal/token"
)

func TestSweepSettlesAllAccounts(t *testing.T) {
	ctx := context.Background()
	current := time.Unix(1_700_000_000, 0)

	led, err := token.NewLedger(ctx, token.NewMemoryStore(), token.Options{
		Owner:  "owner",
		Now:    func() time.Time { return current },
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := led.GrantMintBurn(ctx, "owner", "sweeper"); err != nil {
		t.Fatalf("grant role: %v", err)
	}

	amount := new(big.Int).Mul(big.NewInt(10), token.Precision)
	for _, account := range []string{"alice", "bob"} {
		if err := led.Mint(ctx, "sweeper", account, amount); err != nil {
			t.Fatalf("mint %s: %v", account, err)
		}
	}

	current = current.Add(time.Hour)

	s := New(led, "sweeper", logging.Discard())
	s.Sweep(ctx)

	for _, account := range []string{"alice", "bob"} {
		principal, err := led.PrincipalBalanceOf(ctx, account)
		if err != nil {
			t.Fatalf("principal %s: %v", account, err)
		}
		if principal.Cmp(amount) <= 0 {
			t.Fatalf("expected %s settled above principal, got %s", account, principal)
		}
		balance, _ := led.BalanceOf(ctx, account)
		if balance.Cmp(principal) != 0 {
			t.Fatalf("expected no pending interest for %s after sweep", account)
		}
	}
}

func TestSweepKeepsRateSnapshots(t *testing.T) {
	ctx := context.Background()
	current := time.Unix(1_700_000_000, 0)

	led, err := token.NewLedger(ctx, token.NewMemoryStore(), token.Options{
		Owner:  "owner",
		Now:    func() time.Time { return current },
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	led.GrantMintBurn(ctx, "owner", "sweeper")
	led.Mint(ctx, "sweeper", "alice", token.Precision)

	before, _ := led.AccountRate(ctx, "alice")
	led.SetGlobalRate(ctx, "owner", new(big.Int).Mul(token.DefaultRate, big.NewInt(2)))

	current = current.Add(time.Hour)
	New(led, "sweeper", logging.Discard()).Sweep(ctx)

	after, _ := led.AccountRate(ctx, "alice")
	if after.Cmp(before) != 0 {
		t.Fatalf("sweep must not restamp snapshots: before %s after %s", before, after)
	}
}
