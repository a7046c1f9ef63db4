package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yield-pay/yield_pay/internal/token"
)

// Sweeper periodically settles accrued interest for every account, keeping
// settled principal (the number audits and supply reports see) close to the
// effective balances holders observe. Settlement never touches rate
// snapshots, so the sweep changes when interest compounds, never how much an
// account is worth at a given instant.
type Sweeper struct {
	cron     *cron.Cron
	ledger   *token.Ledger
	identity string // must hold the mint/burn role
	logger   *slog.Logger
}

// New builds a sweeper that settles on behalf of the given ledger identity.
func New(ledger *token.Ledger, identity string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cron: cron.New(), ledger: ledger, identity: identity, logger: logger}
}

// Start registers the sweep under the cron schedule and starts the scheduler.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("interest sweep scheduled", "schedule", schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep settles every account once. Individual failures are logged and do not
// stop the pass; the next run retries them.
func (s *Sweeper) Sweep(ctx context.Context) {
	started := time.Now()

	accounts, err := s.ledger.ListAccounts(ctx)
	if err != nil {
		s.logger.Error("list accounts for sweep", "error", err)
		return
	}

	settled := 0
	for _, account := range accounts {
		if err := s.ledger.Settle(ctx, s.identity, account); err != nil {
			s.logger.Warn("settle account", "account", account, "error", err)
			continue
		}
		settled++
	}

	s.logger.Info("interest sweep complete",
		"accounts", len(accounts),
		"settled", settled,
		"elapsed", time.Since(started).String(),
	)
}
