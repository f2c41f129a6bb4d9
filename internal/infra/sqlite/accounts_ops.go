package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

const upsertAccountSQL = `
INSERT INTO accounts (id, type, description, created, closed, currency)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    type        = excluded.type,
    description = excluded.description,
    created     = excluded.created,
    closed      = excluded.closed,
    currency    = excluded.currency
`

// UpsertAccounts writes accounts, updating existing rows in place.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []domain.Account) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpsertAccounts: starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertAccountSQL)
	if err != nil {
		return 0, fmt.Errorf("UpsertAccounts: preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, acc := range accounts {
		_, err := stmt.ExecContext(ctx,
			acc.ID,
			acc.Type,
			nullString(acc.Description),
			nullTime(acc.Created.Time),
			b2i(acc.Closed),
			acc.Currency,
		)
		if err != nil {
			return 0, fmt.Errorf("UpsertAccounts: writing %s: %w", acc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("UpsertAccounts: committing: %w", err)
	}
	return len(accounts), nil
}

// AccountRow is an account as stored, with its transaction count.
type AccountRow struct {
	ID               string
	Type             string
	Description      string
	Created          time.Time
	Closed           bool
	Currency         string
	TransactionCount int64
}

// ListAccounts returns all stored accounts with per-account transaction
// counts, open accounts first.
func (s *Store) ListAccounts(ctx context.Context) ([]AccountRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
		    a.id, a.type, COALESCE(a.description, ''), COALESCE(a.created, ''),
		    a.closed, a.currency,
		    (SELECT COUNT(*) FROM transactions t WHERE t.account_id = a.id)
		FROM accounts a
		ORDER BY a.closed, a.created
	`)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: querying: %w", err)
	}
	defer rows.Close()

	var accounts []AccountRow
	for rows.Next() {
		var (
			row     AccountRow
			created string
			closed  int64
		)
		if err := rows.Scan(&row.ID, &row.Type, &row.Description, &created, &closed, &row.Currency, &row.TransactionCount); err != nil {
			return nil, fmt.Errorf("ListAccounts: scanning: %w", err)
		}
		row.Closed = closed != 0
		if created != "" {
			if ts, err := time.Parse(timeLayout, created); err == nil {
				row.Created = ts
			}
		}
		accounts = append(accounts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAccounts: iterating: %w", err)
	}
	return accounts, nil
}

// AccountIDs returns the ids of all stored accounts.
func (s *Store) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("AccountIDs: querying: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("AccountIDs: scanning: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AccountIDs: iterating: %w", err)
	}
	return ids, nil
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
