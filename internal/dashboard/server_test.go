package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/infra/sqlite"
	"github.com/dvloznov/monzo-tracker/internal/logger"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	log := logger.NewWithWriter(testWriter{t})

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "monzo.db"), log)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	day := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	_, err = store.UpsertAccounts(ctx, []domain.Account{{
		ID: "acc_1", Type: "uk_retail", Currency: "GBP",
		Created: domain.NewTimestamp(day.AddDate(0, 0, -30)),
	}})
	if err != nil {
		t.Fatalf("UpsertAccounts failed: %v", err)
	}
	_, err = store.UpsertTransactions(ctx, []domain.Transaction{
		{ID: "tx_1", AccountID: "acc_1", Amount: 10000, Currency: "GBP",
			Created: domain.NewTimestamp(day), Category: "income", IncludeInSpending: true},
		{ID: "tx_2", AccountID: "acc_1", Amount: -1500, Currency: "GBP",
			Created: domain.NewTimestamp(day.Add(26 * time.Hour)), Category: "groceries", IncludeInSpending: true},
	})
	if err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}
	_, err = store.UpsertPots(ctx, []domain.Pot{
		{ID: "pot_1", AccountID: "acc_1", Name: "Savings", Balance: 20000, Currency: "GBP"},
	})
	if err != nil {
		t.Fatalf("UpsertPots failed: %v", err)
	}

	return New(store, log)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Overview(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Balance Over Time") {
		t.Error("overview missing balance chart")
	}
	if !strings.Contains(body, "Savings") {
		t.Error("overview missing pot name")
	}
}

func TestServer_Waterfall(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/waterfall?days=90")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /waterfall = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Daily Net Change") {
		t.Error("waterfall page missing chart title")
	}

	rec = get(t, srv, "/waterfall?account=acc_unknown")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /waterfall with unknown account = %d, want 404", rec.Code)
	}
}

func TestServer_SpendingDefaultsAndExcludes(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/spending")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /spending = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "savings, transfers") {
		t.Error("spending page missing default exclusions in subtitle")
	}

	rec = get(t, srv, "/spending?exclude=groceries")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /spending?exclude = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "excluding: groceries") {
		t.Error("spending page ignored exclude parameter")
	}
}

func TestServer_StatsJSON(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/stats = %d, want 200", rec.Code)
	}

	var stats map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats["transactions"] != 2 {
		t.Errorf("transactions = %d, want 2", stats["transactions"])
	}
	if stats["pots"] != 1 {
		t.Errorf("pots = %d, want 1", stats["pots"])
	}
}
