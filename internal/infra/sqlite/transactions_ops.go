package sqlite

import (
	"context"
	"fmt"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

const upsertTransactionSQL = `
INSERT INTO transactions (id, account_id, merchant_id, created, settled, amount, currency,
                          local_amount, local_currency, description, category, notes,
                          mcc, scheme, is_load, include_in_spending, decline_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    merchant_id         = excluded.merchant_id,
    settled             = excluded.settled,
    local_amount        = excluded.local_amount,
    local_currency      = excluded.local_currency,
    description         = excluded.description,
    category            = excluded.category,
    notes               = excluded.notes,
    mcc                 = excluded.mcc,
    scheme              = excluded.scheme,
    is_load             = excluded.is_load,
    include_in_spending = excluded.include_in_spending,
    decline_reason      = excluded.decline_reason
`

// UpsertTransactions writes transactions, updating the mutable fields of
// existing rows. Identity columns (account, amount, created) never change
// once written.
func (s *Store) UpsertTransactions(ctx context.Context, transactions []domain.Transaction) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpsertTransactions: starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTransactionSQL)
	if err != nil {
		return 0, fmt.Errorf("UpsertTransactions: preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range transactions {
		t := &transactions[i]
		var localAmount any
		if t.LocalCurrency != "" && t.LocalCurrency != t.Currency {
			localAmount = t.LocalAmount
		}
		_, err := stmt.ExecContext(ctx,
			t.ID,
			t.AccountID,
			nullString(t.Merchant.ID),
			formatTime(t.Created.Time),
			nullTime(t.Settled.Time),
			t.Amount,
			t.Currency,
			localAmount,
			nullString(t.LocalCurrency),
			nullString(t.Description),
			nullString(t.Category),
			nullString(t.Notes),
			nullString(t.MCC()),
			nullString(t.Scheme),
			b2i(t.IsLoad),
			b2i(t.IncludeInSpending),
			nullString(t.DeclineReason),
		)
		if err != nil {
			return 0, fmt.Errorf("UpsertTransactions: writing %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("UpsertTransactions: committing: %w", err)
	}
	return len(transactions), nil
}

// TransactionCount returns the number of stored transactions for an
// account, declined ones included.
func (s *Store) TransactionCount(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE account_id = ?", accountID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("TransactionCount: %w", err)
	}
	return n, nil
}

// ComputedBalance sums all non-declined transactions of an account.
func (s *Store) ComputedBalance(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = ? AND decline_reason IS NULL
	`, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ComputedBalance: %w", err)
	}
	return sum, nil
}
