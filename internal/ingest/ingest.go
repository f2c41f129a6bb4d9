// Package ingest loads exported snapshots into the SQLite database.
package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/infra/sqlite"
)

// Ingestor writes snapshots into the store. Every write is an upsert
// keyed by id, so re-ingesting overlapping exports is safe: rows are
// updated in place and never deleted.
type Ingestor struct {
	store *sqlite.Store
	log   zerolog.Logger
}

// New creates an ingestor.
func New(store *sqlite.Store, log zerolog.Logger) *Ingestor {
	return &Ingestor{store: store, log: log}
}

// Stats summarises one ingest run.
type Stats struct {
	// Upserted counts rows written per table during this run.
	Upserted map[string]int

	// Rows counts rows per table and view after the run.
	Rows []sqlite.TableStat
}

// Ingest writes everything in the snapshot. The schema is created if
// needed, and parents (accounts, merchants) land before transactions so
// foreign keys hold.
func (i *Ingestor) Ingest(ctx context.Context, snap *domain.Snapshot) (Stats, error) {
	if snap.SchemaVersion > domain.SnapshotSchemaVersion {
		return Stats{}, fmt.Errorf("Ingest: snapshot schema version %d is newer than supported %d",
			snap.SchemaVersion, domain.SnapshotSchemaVersion)
	}

	if err := i.store.Setup(ctx); err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}

	stats := Stats{Upserted: make(map[string]int)}

	n, err := i.store.UpsertAccounts(ctx, snap.Accounts)
	if err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}
	stats.Upserted["accounts"] = n

	n, err = i.store.UpsertMerchants(ctx, sortedMerchants(snap.Merchants()))
	if err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}
	stats.Upserted["merchants"] = n

	n, err = i.store.UpsertTransactions(ctx, snap.AllTransactions())
	if err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}
	stats.Upserted["transactions"] = n

	n, err = i.store.UpsertPots(ctx, snap.Pots)
	if err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}
	stats.Upserted["pots"] = n

	n, err = i.store.UpsertBalances(ctx, sortedBalances(snap.Balances), snap.ExportedAt)
	if err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}
	stats.Upserted["balances"] = n

	if err := i.store.RefreshMerchantStats(ctx); err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}

	rows, err := i.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("Ingest: %w", err)
	}
	stats.Rows = rows

	i.log.Info().
		Str("export_id", snap.ExportID).
		Int("transactions", stats.Upserted["transactions"]).
		Int("merchants", stats.Upserted["merchants"]).
		Msg("ingest complete")
	return stats, nil
}

func sortedMerchants(byID map[string]domain.Merchant) []domain.Merchant {
	merchants := make([]domain.Merchant, 0, len(byID))
	for _, m := range byID {
		merchants = append(merchants, m)
	}
	sort.Slice(merchants, func(i, j int) bool { return merchants[i].ID < merchants[j].ID })
	return merchants
}

func sortedBalances(byAccount map[string]domain.Balance) []domain.Balance {
	balances := make([]domain.Balance, 0, len(byAccount))
	for _, b := range byAccount {
		balances = append(balances, b)
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].AccountID < balances[j].AccountID })
	return balances
}
