package export

import (
	"context"
	"fmt"
)

// BalanceStore computes an account's balance from stored transactions.
// The sqlite store satisfies it.
type BalanceStore interface {
	ComputedBalance(ctx context.Context, accountID string) (int64, error)
}

// Mismatch is one account whose stored transactions do not add up to the
// balance the API reports, usually a sign of missing history.
type Mismatch struct {
	AccountID string
	API       int64
	DB        int64
}

func (m Mismatch) Diff() int64 {
	return m.API - m.DB
}

// VerifyBalances compares the API's reported balance of every open account
// against the balance computed from the database. It returns the accounts
// that disagree; an empty result means everything adds up.
func VerifyBalances(ctx context.Context, api API, store BalanceStore) ([]Mismatch, error) {
	accounts, err := api.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("VerifyBalances: fetching accounts: %w", err)
	}

	var mismatches []Mismatch
	for _, acc := range accounts {
		if acc.Closed {
			continue
		}
		balance, err := api.Balance(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("VerifyBalances: fetching balance for %s: %w", acc.ID, err)
		}
		computed, err := store.ComputedBalance(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("VerifyBalances: computing balance for %s: %w", acc.ID, err)
		}
		if balance.Balance != computed {
			mismatches = append(mismatches, Mismatch{AccountID: acc.ID, API: balance.Balance, DB: computed})
		}
	}
	return mismatches, nil
}
