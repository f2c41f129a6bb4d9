package monzo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/logger"
)

// staticAuth hands out canned tokens and counts refreshes.
type staticAuth struct {
	token     string
	refreshed atomic.Int64
}

func (a *staticAuth) AccessToken(ctx context.Context) (string, error) {
	return a.token, nil
}

func (a *staticAuth) ForceRefresh(ctx context.Context) (string, error) {
	a.refreshed.Add(1)
	a.token = "refreshed_" + a.token
	return a.token, nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestClient(t *testing.T, srv *httptest.Server, auth *staticAuth) *Client {
	t.Helper()
	retry := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}
	return NewClient(srv.Client(), srv.URL, auth, retry, logger.NewWithWriter(testWriter{t}))
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access_ok" {
			t.Errorf("Authorization = %q, want Bearer access_ok", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"accounts":[{"id":"acc_1","type":"uk_retail"},{"id":"acc_2","type":"uk_retail_joint"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticAuth{token: "access_ok"})
	accounts, err := c.Accounts(context.Background())
	if err != nil {
		t.Fatalf("Accounts failed: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "acc_1" {
		t.Errorf("unexpected accounts: %+v", accounts)
	}
}

func TestClient_RefreshOn401(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer refreshed_access_stale" {
			t.Errorf("retry Authorization = %q, want refreshed token", got)
		}
		fmt.Fprint(w, `{"user_id":"user_1","authenticated":true}`)
	}))
	defer srv.Close()

	auth := &staticAuth{token: "access_stale"}
	c := newTestClient(t, srv, auth)

	identity, err := c.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if identity.UserID != "user_1" {
		t.Errorf("UserID = %q, want user_1", identity.UserID)
	}
	if got := auth.refreshed.Load(); got != 1 {
		t.Errorf("refresh count = %d, want 1", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("request count = %d, want 2", got)
	}
}

func TestClient_AuthErrorAfterSecond401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := &staticAuth{token: "access_revoked"}
	c := newTestClient(t, srv, auth)

	_, err := c.WhoAmI(context.Background())
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if got := auth.refreshed.Load(); got != 1 {
		t.Errorf("refresh count = %d, want exactly 1", got)
	}
}

func TestClient_RateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":"too_many_requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticAuth{token: "access_ok"})

	_, err := c.Accounts(context.Background())
	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if got := calls.Load(); got != 4 { // initial attempt + 3 retries
		t.Errorf("request count = %d, want 4", got)
	}
}

func TestClient_RateLimitRecovers(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"code":"too_many_requests"}`, http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"accounts":[{"id":"acc_1"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticAuth{token: "access_ok"})

	accounts, err := c.Accounts(context.Background())
	if err != nil {
		t.Fatalf("Accounts failed after backoff: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("accounts = %+v, want one", accounts)
	}
}

func TestClient_ServerErrorExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticAuth{token: "access_ok"})

	_, err := c.Accounts(context.Background())
	var transient *domain.TransientHTTPError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientHTTPError, got %v", err)
	}
	if transient.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", transient.Status)
	}
}

func TestClient_TerminalAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"forbidden.insufficient_permissions"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticAuth{token: "access_ok"})

	_, err := c.Accounts(context.Background())
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
}

func TestClient_PotDeposit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/pots/pot_1/deposit" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if got := r.Form.Get("amount"); got != "1500" {
			t.Errorf("amount = %q, want 1500", got)
		}
		if got := r.Form.Get("dedupe_id"); got == "" {
			t.Error("dedupe_id missing, want a generated idempotency key")
		}
		fmt.Fprint(w, `{"id":"pot_1","name":"Savings","balance":11500,"currency":"GBP"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &staticAuth{token: "access_ok"})

	pot, err := c.DepositIntoPot(context.Background(), "pot_1", "acc_1", 1500, "")
	if err != nil {
		t.Fatalf("DepositIntoPot failed: %v", err)
	}
	if pot.Balance != 11500 {
		t.Errorf("Balance = %d, want 11500", pot.Balance)
	}
}
