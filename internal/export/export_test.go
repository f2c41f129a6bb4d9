package export

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/logger"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// fakeAPI serves canned data and records the transaction windows it was
// asked for.
type fakeAPI struct {
	accounts []domain.Account
	balances map[string]domain.Balance
	pots     map[string][]domain.Pot
	txs      map[string][]domain.Transaction
	txErr    error

	windows []window
}

type window struct {
	accountID     string
	since, before time.Time
}

func (f *fakeAPI) Accounts(ctx context.Context) ([]domain.Account, error) {
	return f.accounts, nil
}

func (f *fakeAPI) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	return f.balances[accountID], nil
}

func (f *fakeAPI) Pots(ctx context.Context, accountID string) ([]domain.Pot, error) {
	return f.pots[accountID], nil
}

func (f *fakeAPI) TransactionsSince(ctx context.Context, accountID string, since, before time.Time) ([]domain.Transaction, error) {
	f.windows = append(f.windows, window{accountID: accountID, since: since, before: before})
	if f.txErr != nil {
		return nil, f.txErr
	}
	var out []domain.Transaction
	for _, tx := range f.txs[accountID] {
		if tx.Created.Before(since) || !tx.Created.Before(before) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func newTestExporter(t *testing.T, api API, now time.Time) *Exporter {
	t.Helper()
	e := New(api, logger.NewWithWriter(testWriter{t}))
	e.now = func() time.Time { return now }
	return e
}

func account(id string, created time.Time, closed bool) domain.Account {
	return domain.Account{
		ID:       id,
		Type:     "uk_retail",
		Created:  domain.NewTimestamp(created),
		Closed:   closed,
		Currency: "GBP",
	}
}

func TestExport_StaleAuthRejectsFullHistory(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{}
	e := newTestExporter(t, api, now)

	tests := []struct {
		name string
		opts Options
	}{
		{"full history", Options{AuthenticatedAt: now.Add(-time.Hour)}},
		{"beyond 89 days", Options{Days: 120, AuthenticatedAt: now.Add(-10 * time.Minute)}},
		{"never authenticated", Options{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Export(context.Background(), tt.opts)
			var winErr *domain.AccessWindowError
			if !errors.As(err, &winErr) {
				t.Fatalf("expected AccessWindowError, got %v", err)
			}
			if len(api.windows) != 0 {
				t.Error("exporter hit the API despite failed precondition")
			}
		})
	}
}

func TestExport_RecentWindowSkipsSCACheck(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(-2, 0, 0)
	api := &fakeAPI{
		accounts: []domain.Account{account("acc_1", created, false)},
		balances: map[string]domain.Balance{"acc_1": {AccountID: "acc_1", Balance: 5000, Currency: "GBP"}},
	}
	e := newTestExporter(t, api, now)

	// Auth is hours old, but 30 days of history never needs the window.
	snap, err := e.Export(context.Background(), Options{Days: 30, AuthenticatedAt: now.Add(-6 * time.Hour)})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if snap.Days != 30 {
		t.Errorf("Days = %d, want 30", snap.Days)
	}
}

func TestExport_ChunksLongHistories(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -800)

	txs := []domain.Transaction{
		{ID: "tx_old", AccountID: "acc_1", Amount: 10000, Created: domain.NewTimestamp(created.Add(24 * time.Hour))},
		{ID: "tx_mid", AccountID: "acc_1", Amount: -2000, Created: domain.NewTimestamp(now.AddDate(0, 0, -400))},
		{ID: "tx_new", AccountID: "acc_1", Amount: -500, Created: domain.NewTimestamp(now.AddDate(0, 0, -3))},
	}
	api := &fakeAPI{
		accounts: []domain.Account{account("acc_1", created, false)},
		balances: map[string]domain.Balance{"acc_1": {AccountID: "acc_1", Balance: 7500, Currency: "GBP"}},
		txs:      map[string][]domain.Transaction{"acc_1": txs},
	}
	e := newTestExporter(t, api, now)

	snap, err := e.Export(context.Background(), Options{AuthenticatedAt: now.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if got := len(snap.Transactions["acc_1"]); got != 3 {
		t.Errorf("got %d transactions, want 3", got)
	}
	if len(api.windows) < 3 {
		t.Errorf("800 days fetched in %d chunks, want at least 3", len(api.windows))
	}
	for _, w := range api.windows {
		if w.before.Sub(w.since) > 365*24*time.Hour {
			t.Errorf("chunk %v to %v exceeds the 365-day cap", w.since, w.before)
		}
	}
	// Windows must tile the history without gaps.
	for i := 1; i < len(api.windows); i++ {
		if !api.windows[i].since.Equal(api.windows[i-1].before) {
			t.Errorf("gap between chunk %d and %d: %v vs %v",
				i-1, i, api.windows[i-1].before, api.windows[i].since)
		}
	}
}

func TestExport_ReconciliationMismatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -100)

	declined := domain.Transaction{
		ID: "tx_declined", AccountID: "acc_1", Amount: -99999,
		Created:       domain.NewTimestamp(created.Add(48 * time.Hour)),
		DeclineReason: "INSUFFICIENT_FUNDS",
	}
	api := &fakeAPI{
		accounts: []domain.Account{account("acc_1", created, false)},
		balances: map[string]domain.Balance{"acc_1": {AccountID: "acc_1", Balance: 9000, Currency: "GBP"}},
		txs: map[string][]domain.Transaction{"acc_1": {
			{ID: "tx_1", AccountID: "acc_1", Amount: 10000, Created: domain.NewTimestamp(created.Add(24 * time.Hour))},
			declined,
		}},
	}
	e := newTestExporter(t, api, now)

	_, err := e.Export(context.Background(), Options{AuthenticatedAt: now.Add(-time.Minute)})
	var recErr *domain.ReconciliationError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected ReconciliationError, got %v", err)
	}
	// The declined transaction must not count towards the computed sum.
	if recErr.Computed != 10000 || recErr.Reported != 9000 {
		t.Errorf("Computed/Reported = %d/%d, want 10000/9000", recErr.Computed, recErr.Reported)
	}
}

func TestExport_ForbiddenBecomesAccessWindowError(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		accounts: []domain.Account{account("acc_1", now.AddDate(0, 0, -200), false)},
		balances: map[string]domain.Balance{"acc_1": {AccountID: "acc_1"}},
		txErr:    &domain.APIError{Endpoint: "GET /transactions", Status: http.StatusForbidden},
	}
	e := newTestExporter(t, api, now)

	_, err := e.Export(context.Background(), Options{AuthenticatedAt: now.Add(-time.Minute)})
	var winErr *domain.AccessWindowError
	if !errors.As(err, &winErr) {
		t.Fatalf("expected AccessWindowError, got %v", err)
	}
	if winErr.AccountID != "acc_1" {
		t.Errorf("AccountID = %q, want acc_1", winErr.AccountID)
	}
}

func TestExport_SkipsClosedAccounts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -50)
	api := &fakeAPI{
		accounts: []domain.Account{
			account("acc_open", created, false),
			account("acc_closed", created, true),
		},
		balances: map[string]domain.Balance{"acc_open": {AccountID: "acc_open"}},
	}
	e := newTestExporter(t, api, now)

	snap, err := e.Export(context.Background(), Options{Days: 30, AuthenticatedAt: now})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Closed accounts stay in the snapshot metadata but are never fetched.
	if len(snap.Accounts) != 2 {
		t.Errorf("snapshot has %d accounts, want 2", len(snap.Accounts))
	}
	if _, ok := snap.Transactions["acc_closed"]; ok {
		t.Error("transactions fetched for closed account")
	}
	for _, w := range api.windows {
		if w.accountID == "acc_closed" {
			t.Error("API called for closed account")
		}
	}
}

func TestSnapshot_WriteRead(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), ".monzo_data.json")

	in := &domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		ExportID:      "11111111-2222-3333-4444-555555555555",
		ExportedAt:    now,
		Days:          30,
		Accounts:      []domain.Account{account("acc_1", now.AddDate(0, 0, -50), false)},
		Balances:      map[string]domain.Balance{"acc_1": {AccountID: "acc_1", Balance: 1234}},
		Transactions: map[string][]domain.Transaction{"acc_1": {
			{ID: "tx_1", AccountID: "acc_1", Amount: 1234, Created: domain.NewTimestamp(now.AddDate(0, 0, -2))},
		}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if out.ExportID != in.ExportID || out.Days != 30 {
		t.Errorf("round trip lost metadata: %+v", out)
	}
	if out.TransactionCount() != 1 {
		t.Errorf("TransactionCount = %d, want 1", out.TransactionCount())
	}
}

func TestSnapshot_ReadRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".monzo_data.json")
	in := &domain.Snapshot{SchemaVersion: domain.SnapshotSchemaVersion + 1}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	if _, err := ReadSnapshot(path); err == nil {
		t.Fatal("expected error for newer schema version")
	}
}

type balanceStoreFunc func(ctx context.Context, accountID string) (int64, error)

func (f balanceStoreFunc) ComputedBalance(ctx context.Context, accountID string) (int64, error) {
	return f(ctx, accountID)
}

func TestVerifyBalances(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		accounts: []domain.Account{
			account("acc_1", now.AddDate(0, 0, -50), false),
			account("acc_2", now.AddDate(0, 0, -50), false),
			account("acc_closed", now.AddDate(0, 0, -50), true),
		},
		balances: map[string]domain.Balance{
			"acc_1": {AccountID: "acc_1", Balance: 5000},
			"acc_2": {AccountID: "acc_2", Balance: 7000},
		},
	}
	store := balanceStoreFunc(func(ctx context.Context, accountID string) (int64, error) {
		if accountID == "acc_2" {
			return 6500, nil // 500 short
		}
		return 5000, nil
	})

	mismatches, err := VerifyBalances(context.Background(), api, store)
	if err != nil {
		t.Fatalf("VerifyBalances failed: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("got %d mismatches, want 1", len(mismatches))
	}
	if mismatches[0].AccountID != "acc_2" || mismatches[0].Diff() != 500 {
		t.Errorf("mismatch = %+v, want acc_2 with diff 500", mismatches[0])
	}
}
