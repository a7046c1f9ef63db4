package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/yield-pay/yield_pay/internal/notification"
	"github.com/yield-pay/yield_pay/internal/token"
)

var (
	// ErrRedeemTransferFailed occurs when the native payout cannot be
	// delivered; the burn is rolled back and balances are unchanged.
	ErrRedeemTransferFailed = errors.New("redeem transfer failed")

	// ErrRedeemInProgress occurs when a redeem re-enters while an earlier one
	// for any caller is still paying out.
	ErrRedeemInProgress = errors.New("redeem already in progress")

	// ErrInvalidDeposit occurs on a non-positive deposit amount.
	ErrInvalidDeposit = errors.New("deposit amount must be positive")
)

// Gateway custodies native currency 1:1 against minted tokens. Deposits mint,
// redemptions burn before paying out so a reentrant call can never draw
// against an undecremented balance.
type Gateway struct {
	ledger   *token.Ledger
	bank     Bank
	identity string

	busy sync.Mutex // reentrancy guard held across the redeem payout

	notifier notification.Notifier
	logger   *slog.Logger
}

// New builds a gateway. The identity names both its mint/burn role on the
// ledger and its custody account at the bank; the caller grants the role.
func New(ledger *token.Ledger, bank Bank, identity string, notifier notification.Notifier, logger *slog.Logger) (*Gateway, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if bank == nil {
		return nil, fmt.Errorf("bank is required")
	}
	if identity == "" {
		return nil, fmt.Errorf("gateway identity is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{ledger: ledger, bank: bank, identity: identity, notifier: notifier, logger: logger}, nil
}

// Ledger returns the ledger this gateway custodies for.
func (g *Gateway) Ledger() *token.Ledger { return g.ledger }

// Identity returns the gateway's ledger/bank identity.
func (g *Gateway) Identity() string { return g.identity }

// Deposit takes native currency from the caller and mints tokens 1:1. A mint
// failure refunds the native transfer.
func (g *Gateway) Deposit(ctx context.Context, caller string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidDeposit
	}

	if err := g.bank.Transfer(ctx, caller, g.identity, amount); err != nil {
		return fmt.Errorf("collect deposit: %w", err)
	}

	if err := g.ledger.Mint(ctx, g.identity, caller, amount); err != nil {
		if refundErr := g.bank.Transfer(ctx, g.identity, caller, amount); refundErr != nil {
			g.logger.Error("deposit refund failed", "account", caller, "amount", amount.String(), "error", refundErr)
		}
		return fmt.Errorf("mint deposit: %w", err)
	}

	g.publish(ctx, notification.Event{
		Kind:    notification.KindDeposit,
		Account: caller,
		Fields:  map[string]string{"amount": amount.String()},
	})
	return nil
}

// Redeem burns the caller's tokens and pays out native currency. The burn
// happens strictly before the payout; if the payout fails the burn is reversed
// so the caller's effective balance is unchanged. token.MaxAmount redeems the
// whole balance.
func (g *Gateway) Redeem(ctx context.Context, caller string, amount *big.Int) (*big.Int, error) {
	if !g.busy.TryLock() {
		return nil, ErrRedeemInProgress
	}
	defer g.busy.Unlock()

	burned, err := g.ledger.Burn(ctx, g.identity, caller, amount)
	if err != nil {
		return nil, err
	}
	if burned.Sign() == 0 {
		return burned, nil
	}

	if err := g.bank.Transfer(ctx, g.identity, caller, burned); err != nil {
		if reverseErr := g.ledger.ReverseBurn(ctx, g.identity, caller, burned); reverseErr != nil {
			// Should be unreachable: reversing a just-applied burn cannot
			// overflow and the role was checked above.
			g.logger.Error("burn reversal failed", "account", caller, "amount", burned.String(), "error", reverseErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRedeemTransferFailed, err)
	}

	g.publish(ctx, notification.Event{
		Kind:    notification.KindRedeem,
		Account: caller,
		Fields:  map[string]string{"amount": burned.String()},
	})
	return burned, nil
}

// Reserves returns the native currency currently held in custody.
func (g *Gateway) Reserves(ctx context.Context) (*big.Int, error) {
	return g.bank.Balance(ctx, g.identity)
}

func (g *Gateway) publish(ctx context.Context, event notification.Event) {
	if g.notifier == nil {
		return
	}
	event.ID = uuid.NewString()
	if err := g.notifier.Publish(ctx, event); err != nil {
		g.logger.Warn("publish gateway event", "kind", event.Kind, "error", err)
	}
}
