package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists ledger state in PostgreSQL. Each changeset is applied
// in a single transaction so an operation never leaves partial state behind.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS token_accounts (
            address       TEXT PRIMARY KEY,
            principal     NUMERIC(78,0) NOT NULL,
            rate_snapshot NUMERIC(78,0) NOT NULL,
            updated_at    BIGINT NOT NULL
        );
        CREATE TABLE IF NOT EXISTS token_state (
            id           SMALLINT PRIMARY KEY CHECK (id = 1),
            global_rate  NUMERIC(78,0),
            total_supply NUMERIC(78,0) NOT NULL DEFAULT 0
        );
        CREATE TABLE IF NOT EXISTS token_allowances (
            owner   TEXT NOT NULL,
            spender TEXT NOT NULL,
            amount  NUMERIC(78,0) NOT NULL,
            PRIMARY KEY (owner, spender)
        );`
	_, err := s.db.Exec(ctx, ddl)
	return err
}

// Account fetches one account row.
func (s *PostgresStore) Account(ctx context.Context, address string) (Account, bool, error) {
	const query = `SELECT principal::text, rate_snapshot::text, updated_at
        FROM token_accounts WHERE address = $1`
	var principal, snapshot string
	var updatedAt int64
	if err := s.db.QueryRow(ctx, query, address).Scan(&principal, &snapshot, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, false, nil
		}
		return Account{}, false, err
	}

	acct := Account{Address: address, UpdatedAt: updatedAt}
	var err error
	if acct.Principal, err = parseNumeric(principal); err != nil {
		return Account{}, false, fmt.Errorf("account %s principal: %w", address, err)
	}
	if acct.RateSnapshot, err = parseNumeric(snapshot); err != nil {
		return Account{}, false, fmt.Errorf("account %s rate snapshot: %w", address, err)
	}
	return acct, true, nil
}

// GlobalRate reads the process-wide rate; found is false on a fresh database.
func (s *PostgresStore) GlobalRate(ctx context.Context) (*big.Int, bool, error) {
	var rate *string
	err := s.db.QueryRow(ctx, `SELECT global_rate::text FROM token_state WHERE id = 1`).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if rate == nil {
		return nil, false, nil
	}
	parsed, err := parseNumeric(*rate)
	if err != nil {
		return nil, false, fmt.Errorf("global rate: %w", err)
	}
	return parsed, true, nil
}

// TotalSupply reads the settled supply, zero on a fresh database.
func (s *PostgresStore) TotalSupply(ctx context.Context) (*big.Int, error) {
	var supply string
	err := s.db.QueryRow(ctx, `SELECT total_supply::text FROM token_state WHERE id = 1`).Scan(&supply)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := parseNumeric(supply)
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}
	return parsed, nil
}

// Allowance reads a spender approval, zero when absent.
func (s *PostgresStore) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	var amount string
	err := s.db.QueryRow(ctx, `SELECT amount::text FROM token_allowances
        WHERE owner = $1 AND spender = $2`, owner, spender).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := parseNumeric(amount)
	if err != nil {
		return nil, fmt.Errorf("allowance %s/%s: %w", owner, spender, err)
	}
	return parsed, nil
}

// ListAccounts returns every account address in deterministic order.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT address FROM token_accounts ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}
	return addresses, rows.Err()
}

// Apply upserts the whole changeset inside one transaction.
func (s *PostgresStore) Apply(ctx context.Context, cs Changeset) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, acct := range cs.Accounts {
		if _, err := tx.Exec(ctx, `INSERT INTO token_accounts (address, principal, rate_snapshot, updated_at)
            VALUES ($1, $2::numeric, $3::numeric, $4)
            ON CONFLICT (address) DO UPDATE SET
                principal = EXCLUDED.principal,
                rate_snapshot = EXCLUDED.rate_snapshot,
                updated_at = EXCLUDED.updated_at`,
			acct.Address, acct.Principal.String(), acct.RateSnapshot.String(), acct.UpdatedAt); err != nil {
			return err
		}
	}

	if cs.GlobalRate != nil {
		if _, err := tx.Exec(ctx, `INSERT INTO token_state (id, global_rate) VALUES (1, $1::numeric)
            ON CONFLICT (id) DO UPDATE SET global_rate = EXCLUDED.global_rate`,
			cs.GlobalRate.String()); err != nil {
			return err
		}
	}
	if cs.TotalSupply != nil {
		if _, err := tx.Exec(ctx, `INSERT INTO token_state (id, total_supply) VALUES (1, $1::numeric)
            ON CONFLICT (id) DO UPDATE SET total_supply = EXCLUDED.total_supply`,
			cs.TotalSupply.String()); err != nil {
			return err
		}
	}

	for _, a := range cs.Allowances {
		if _, err := tx.Exec(ctx, `INSERT INTO token_allowances (owner, spender, amount)
            VALUES ($1, $2, $3::numeric)
            ON CONFLICT (owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
			a.Owner, a.Spender, a.Amount.String()); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric %q", s)
	}
	return v, nil
}
