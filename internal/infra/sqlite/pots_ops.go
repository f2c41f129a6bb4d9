package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

const upsertPotSQL = `
INSERT INTO pots (id, account_id, name, style, balance, goal, currency, created, updated, deleted, locked)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    account_id = excluded.account_id,
    name       = excluded.name,
    style      = excluded.style,
    balance    = excluded.balance,
    goal       = excluded.goal,
    currency   = excluded.currency,
    created    = excluded.created,
    updated    = excluded.updated,
    deleted    = excluded.deleted,
    locked     = excluded.locked
`

// UpsertPots writes pots, updating existing rows in place. Pots absent
// from the input are left untouched, so deleted pots survive re-ingests.
func (s *Store) UpsertPots(ctx context.Context, pots []domain.Pot) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpsertPots: starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPotSQL)
	if err != nil {
		return 0, fmt.Errorf("UpsertPots: preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, pot := range pots {
		_, err := stmt.ExecContext(ctx,
			pot.ID,
			pot.AccountID,
			nullString(pot.Name),
			nullString(pot.Style),
			pot.Balance,
			pot.GoalAmount,
			pot.Currency,
			nullTime(pot.Created.Time),
			nullTime(pot.Updated.Time),
			b2i(pot.Deleted),
			b2i(pot.Locked),
		)
		if err != nil {
			return 0, fmt.Errorf("UpsertPots: writing %s: %w", pot.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("UpsertPots: committing: %w", err)
	}
	return len(pots), nil
}

// PotRow is a pot as stored.
type PotRow struct {
	ID       string
	Name     string
	Style    string
	Balance  int64
	Goal     int64
	Currency string
	Deleted  bool
	Locked   bool
	Updated  time.Time
}

// ListPots returns stored pots, optionally including deleted ones,
// largest balance first.
func (s *Store) ListPots(ctx context.Context, includeDeleted bool) ([]PotRow, error) {
	query := `
		SELECT id, COALESCE(name, ''), COALESCE(style, ''), COALESCE(balance, 0),
		       COALESCE(goal, 0), currency, deleted, locked, COALESCE(updated, '')
		FROM pots
	`
	if !includeDeleted {
		query += " WHERE deleted = 0"
	}
	query += " ORDER BY balance DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListPots: querying: %w", err)
	}
	defer rows.Close()

	var pots []PotRow
	for rows.Next() {
		var (
			row             PotRow
			deleted, locked int64
			updated         string
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.Style, &row.Balance, &row.Goal, &row.Currency, &deleted, &locked, &updated); err != nil {
			return nil, fmt.Errorf("ListPots: scanning: %w", err)
		}
		row.Deleted = deleted != 0
		row.Locked = locked != 0
		if updated != "" {
			if ts, err := time.Parse(timeLayout, updated); err == nil {
				row.Updated = ts
			}
		}
		pots = append(pots, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPots: iterating: %w", err)
	}
	return pots, nil
}
