// Package export fetches a full picture of the authenticated user's Monzo
// data and assembles it into a snapshot for caching and ingest.
package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/token"
)

// chunkDays keeps every transaction window under the API's 365-day cap.
const chunkDays = 364

// scaHistoryDays is how far back the API allows outside the 5-minute
// strong-authentication window.
const scaHistoryDays = 89

// API is the slice of the Monzo client the exporter needs.
type API interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
	Balance(ctx context.Context, accountID string) (domain.Balance, error)
	Pots(ctx context.Context, accountID string) ([]domain.Pot, error)
	TransactionsSince(ctx context.Context, accountID string, since, before time.Time) ([]domain.Transaction, error)
}

// Options configures one export run.
type Options struct {
	// Days of history to fetch; 0 means everything since account creation.
	Days int

	// AccountIDs restricts the export to these accounts when non-empty.
	AccountIDs []string

	// AuthenticatedAt is when the user last completed the OAuth approval,
	// used to check the strong-authentication window up front.
	AuthenticatedAt time.Time
}

// Exporter pulls accounts, balances, pots and transactions into a snapshot.
type Exporter struct {
	api API
	log zerolog.Logger
	now func() time.Time
}

// New creates an exporter.
func New(api API, log zerolog.Logger) *Exporter {
	return &Exporter{api: api, log: log, now: time.Now}
}

// Export runs one export. Fetching more than 89 days requires a recent
// strong authentication; the window is checked before any network call so
// the failure is reported instead of silently truncating history.
func (e *Exporter) Export(ctx context.Context, opts Options) (*domain.Snapshot, error) {
	now := e.now().UTC()

	if opts.Days == 0 || opts.Days > scaHistoryDays {
		if opts.AuthenticatedAt.IsZero() || now.Sub(opts.AuthenticatedAt) > token.SCAWindow {
			return nil, &domain.AccessWindowError{AuthenticatedAt: opts.AuthenticatedAt}
		}
	}

	accounts, err := e.api.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("Export: fetching accounts: %w", err)
	}
	active := activeAccounts(accounts, opts.AccountIDs)
	e.log.Info().Int("total", len(accounts)).Int("active", len(active)).Msg("fetched accounts")

	snap := &domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		ExportID:      uuid.NewString(),
		ExportedAt:    now,
		Days:          opts.Days,
		Accounts:      accounts,
		Balances:      make(map[string]domain.Balance, len(active)),
		Transactions:  make(map[string][]domain.Transaction, len(active)),
	}

	for _, acc := range active {
		balance, err := e.api.Balance(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("Export: fetching balance for %s: %w", acc.ID, err)
		}
		snap.Balances[acc.ID] = balance

		pots, err := e.api.Pots(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("Export: fetching pots for %s: %w", acc.ID, err)
		}
		snap.Pots = append(snap.Pots, pots...)

		txs, fullHistory, err := e.fetchHistory(ctx, acc, opts, now)
		if err != nil {
			return nil, err
		}
		snap.Transactions[acc.ID] = txs
		e.log.Info().Str("account", acc.ID).Int("transactions", len(txs)).Msg("fetched transactions")

		if fullHistory {
			if err := reconcile(acc.ID, txs, balance); err != nil {
				return nil, err
			}
		}
	}

	e.log.Info().
		Str("export_id", snap.ExportID).
		Int("transactions", snap.TransactionCount()).
		Int("pots", len(snap.Pots)).
		Msg("export complete")
	return snap, nil
}

// fetchHistory pulls an account's transactions in chunks of at most 364
// days, deduplicating across chunk boundaries. It reports whether the
// fetched window covers the account's entire history.
func (e *Exporter) fetchHistory(ctx context.Context, acc domain.Account, opts Options, now time.Time) ([]domain.Transaction, bool, error) {
	created := acc.Created.Time
	if created.IsZero() {
		created = now.AddDate(0, 0, -chunkDays)
	}

	start := created
	if opts.Days > 0 {
		requested := now.AddDate(0, 0, -opts.Days)
		if requested.After(start) {
			start = requested
		}
	}
	fullHistory := !start.After(created)

	var (
		all  []domain.Transaction
		seen = make(map[string]struct{})
	)
	for chunkStart := start; chunkStart.Before(now); {
		chunkEnd := chunkStart.AddDate(0, 0, chunkDays)
		if limit := now.AddDate(0, 0, 1); chunkEnd.After(limit) {
			chunkEnd = limit
		}

		txs, err := e.api.TransactionsSince(ctx, acc.ID, chunkStart, chunkEnd)
		if err != nil {
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
				return nil, false, &domain.AccessWindowError{
					AuthenticatedAt: opts.AuthenticatedAt,
					AccountID:       acc.ID,
				}
			}
			return nil, false, fmt.Errorf("Export: fetching transactions for %s: %w", acc.ID, err)
		}

		for _, tx := range txs {
			if _, dup := seen[tx.ID]; dup {
				continue
			}
			seen[tx.ID] = struct{}{}
			all = append(all, tx)
		}
		chunkStart = chunkEnd
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Created.Before(all[j].Created.Time)
	})
	return all, fullHistory, nil
}

// reconcile checks that the sum of all non-declined transactions matches
// the balance the API reports. Only meaningful when the transactions cover
// the account's full history.
func reconcile(accountID string, txs []domain.Transaction, balance domain.Balance) error {
	var computed int64
	for i := range txs {
		if txs[i].Declined() {
			continue
		}
		computed += txs[i].Amount
	}
	if computed != balance.Balance {
		return &domain.ReconciliationError{
			AccountID: accountID,
			Computed:  computed,
			Reported:  balance.Balance,
		}
	}
	return nil
}

func activeAccounts(accounts []domain.Account, ids []string) []domain.Account {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var active []domain.Account
	for _, acc := range accounts {
		if acc.Closed {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[acc.ID]; !ok {
				continue
			}
		}
		active = append(active, acc)
	}
	return active
}
