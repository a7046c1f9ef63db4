package notification

import (
	"context"
	"log/slog"
)

const (
	// KindRateChanged signals a global interest rate update.
	KindRateChanged = "rate_changed"
	// KindDeposit signals native currency deposited and tokens minted.
	KindDeposit = "deposit"
	// KindRedeem signals tokens burned and native currency paid out.
	KindRedeem = "redeem"
	// KindTransfer signals tokens moved between accounts.
	KindTransfer = "transfer"
)

// Event describes a ledger notification payload.
type Event struct {
	ID      string            `json:"id"`
	Kind    string            `json:"kind"`
	Account string            `json:"account,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier delivers ledger events to downstream systems.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Publish writes the event to the structured logger.
func (n *LoggerNotifier) Publish(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("ledger event", "id", event.ID, "kind", event.Kind, "account", event.Account, "fields", event.Fields)
	return nil
}
