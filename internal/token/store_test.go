package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/config"
	"github.com/dvloznov/monzo-tracker/internal/domain"
	"github.com/dvloznov/monzo-tracker/internal/logger"
)

func newTestStore(t *testing.T, apiURL string) *Store {
	t.Helper()
	cfg := config.Config{
		ClientID:     "oauth2client_test",
		ClientSecret: "mnzconf.test",
		APIURL:       apiURL,
		AuthURL:      apiURL,
		RedirectURL:  "http://localhost:8080/callback",
		ListenAddr:   "127.0.0.1:0",
		TokenFile:    filepath.Join(t.TempDir(), ".monzo_token.json"),
	}
	return NewStore(cfg, logger.NewWithWriter(testWriter{t}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestToken_Expired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"fresh", time.Now().Add(6 * time.Hour), false},
		{"expired", time.Now().Add(-time.Hour), true},
		{"about to expire", time.Now().Add(30 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{ExpiresAt: tt.expires}
			if got := tok.Expired(); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToken_WithinSCAWindow(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		authAt time.Time
		want   bool
	}{
		{"just authenticated", now.Add(-time.Minute), true},
		{"window expired", now.Add(-10 * time.Minute), false},
		{"never authenticated", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{AuthenticatedAt: tt.authAt}
			if got := tok.WithinSCAWindow(now); got != tt.want {
				t.Errorf("WithinSCAWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t, "https://api.example.test")

	in := &Token{
		AccessToken:     "access_abc",
		RefreshToken:    "refresh_def",
		ExpiresAt:       time.Now().Add(6 * time.Hour).UTC().Truncate(time.Second),
		AuthenticatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.AccessToken != in.AccessToken || out.RefreshToken != in.RefreshToken {
		t.Errorf("round trip lost tokens: %+v", out)
	}
	if !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", out.ExpiresAt, in.ExpiresAt)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t, "https://api.example.test")

	_, err := s.Load()
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for missing token file, got %v", err)
	}
}

func TestStore_AcquireCached(t *testing.T) {
	// A valid cached token must be returned without any network traffic.
	s := newTestStore(t, "http://127.0.0.1:1") // unreachable on purpose

	cached := &Token{
		AccessToken: "access_cached",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := s.Save(cached); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Acquire(context.Background(), false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if got.AccessToken != "access_cached" {
		t.Errorf("AccessToken = %q, want access_cached", got.AccessToken)
	}
}

func TestStore_RefreshNoRefreshToken(t *testing.T) {
	s := newTestStore(t, "https://api.example.test")

	_, err := s.Refresh(context.Background(), &Token{AccessToken: "access_only"})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for missing refresh token, got %v", err)
	}
}

func TestStore_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh_old" {
			t.Errorf("refresh_token = %q, want refresh_old", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access_new","refresh_token":"refresh_new","token_type":"Bearer","expires_in":21600}`)
	}))
	defer srv.Close()

	s := newTestStore(t, srv.URL)

	authAt := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	old := &Token{
		AccessToken:     "access_old",
		RefreshToken:    "refresh_old",
		ExpiresAt:       time.Now().Add(-time.Minute),
		AuthenticatedAt: authAt,
	}
	if err := s.Save(old); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	refreshed, err := s.Refresh(context.Background(), old)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.AccessToken != "access_new" {
		t.Errorf("AccessToken = %q, want access_new", refreshed.AccessToken)
	}
	if refreshed.RefreshToken != "refresh_new" {
		t.Errorf("RefreshToken = %q, want refresh_new", refreshed.RefreshToken)
	}
	if !refreshed.AuthenticatedAt.Equal(authAt) {
		t.Errorf("AuthenticatedAt = %v, want unchanged %v (refresh must not renew SCA)", refreshed.AuthenticatedAt, authAt)
	}

	// The refreshed token must overwrite the persisted record.
	persisted, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if persisted.AccessToken != "access_new" {
		t.Errorf("persisted AccessToken = %q, want access_new", persisted.AccessToken)
	}
}

func TestStore_AccessTokenRefreshesExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access_new","token_type":"Bearer","expires_in":21600}`)
	}))
	defer srv.Close()

	s := newTestStore(t, srv.URL)
	if err := s.Save(&Token{
		AccessToken:  "access_stale",
		RefreshToken: "refresh_ok",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if got != "access_new" {
		t.Errorf("AccessToken = %q, want access_new", got)
	}
}
