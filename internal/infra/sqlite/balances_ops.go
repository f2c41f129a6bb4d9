package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

const upsertBalanceSQL = `
INSERT INTO balances (account_id, balance, total_balance, spend_today, currency, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(account_id) DO UPDATE SET
    balance       = excluded.balance,
    total_balance = excluded.total_balance,
    spend_today   = excluded.spend_today,
    currency      = excluded.currency,
    updated_at    = excluded.updated_at
`

// UpsertBalances overwrites the reported balance row of each account.
func (s *Store) UpsertBalances(ctx context.Context, balances []domain.Balance, asOf time.Time) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpsertBalances: starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertBalanceSQL)
	if err != nil {
		return 0, fmt.Errorf("UpsertBalances: preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range balances {
		_, err := stmt.ExecContext(ctx,
			b.AccountID,
			b.Balance,
			b.TotalBalance,
			b.SpendToday,
			b.Currency,
			formatTime(asOf),
		)
		if err != nil {
			return 0, fmt.Errorf("UpsertBalances: writing %s: %w", b.AccountID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("UpsertBalances: committing: %w", err)
	}
	return len(balances), nil
}

// BalanceRow is a reported account balance as stored.
type BalanceRow struct {
	AccountID    string
	Balance      int64
	TotalBalance int64
	SpendToday   int64
	Currency     string
	UpdatedAt    time.Time
}

// AccountBalances returns the last reported balance of every account.
func (s *Store) AccountBalances(ctx context.Context) ([]BalanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, balance, total_balance, spend_today, currency, updated_at
		FROM balances
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("AccountBalances: querying: %w", err)
	}
	defer rows.Close()

	var balances []BalanceRow
	for rows.Next() {
		var (
			row       BalanceRow
			updatedAt string
		)
		if err := rows.Scan(&row.AccountID, &row.Balance, &row.TotalBalance, &row.SpendToday, &row.Currency, &updatedAt); err != nil {
			return nil, fmt.Errorf("AccountBalances: scanning: %w", err)
		}
		if ts, err := time.Parse(timeLayout, updatedAt); err == nil {
			row.UpdatedAt = ts
		}
		balances = append(balances, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AccountBalances: iterating: %w", err)
	}
	return balances, nil
}
