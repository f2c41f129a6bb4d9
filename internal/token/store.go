package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/dvloznov/monzo-tracker/internal/config"
	"github.com/dvloznov/monzo-tracker/internal/domain"
)

// Store manages the token file and runs the OAuth2 flows against Monzo.
type Store struct {
	path        string
	oauth       *oauth2.Config
	listenAddr  string
	log         zerolog.Logger
	openBrowser func(url string) error
}

// NewStore creates a token store from the given configuration.
func NewStore(cfg config.Config, log zerolog.Logger) *Store {
	return &Store{
		path: cfg.TokenFile,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL + "/",
				TokenURL:  cfg.APIURL + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		listenAddr:  cfg.ListenAddr,
		log:         log,
		openBrowser: openBrowser,
	}
}

// Path returns the token file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted token. A missing file is an AuthError.
func (s *Store) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, &domain.AuthError{Reason: "no token found"}
	}
	if err != nil {
		return nil, fmt.Errorf("Load: reading token file: %w", err)
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("Load: parsing token file: %w", err)
	}
	return &t, nil
}

// Save overwrites the token file. Written atomically with 0600 permissions.
func (s *Store) Save(t *Token) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("Save: encoding token: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("Save: writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("Save: replacing token file: %w", err)
	}
	return nil
}

// Delete removes the token file. Missing files are not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// Acquire returns a usable token. A cached, non-expired token is returned
// as is unless force is true; an expired one is refreshed when possible.
// Otherwise the interactive authorization-code flow runs: a browser is
// opened and the redirect callback is captured on a local listener.
func (s *Store) Acquire(ctx context.Context, force bool) (*Token, error) {
	if !force {
		if t, err := s.Load(); err == nil {
			if !t.Expired() {
				return t, nil
			}
			if t.RefreshToken != "" {
				refreshed, err := s.Refresh(ctx, t)
				if err == nil {
					s.log.Info().Msg("token refreshed")
					return refreshed, nil
				}
				s.log.Warn().Err(err).Msg("refresh failed, starting interactive auth")
			}
		}
	}

	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" {
		return nil, &domain.AuthError{
			Reason: "MONZO_CLIENT_ID and MONZO_CLIENT_SECRET must be set (create a client at https://developers.monzo.com)",
		}
	}

	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("Acquire: generating state: %w", err)
	}
	authURL := s.oauth.AuthCodeURL(state)

	code, err := s.captureCallback(ctx, state, authURL)
	if err != nil {
		return nil, fmt.Errorf("Acquire: waiting for callback: %w", err)
	}

	exchanged, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &domain.AuthError{Reason: "code exchange failed", Err: err}
	}

	t := newToken(exchanged, time.Now().UTC())
	if err := s.Save(t); err != nil {
		return nil, err
	}
	s.log.Info().
		Time("expires_at", t.ExpiresAt).
		Bool("has_refresh_token", t.RefreshToken != "").
		Msg("token saved; approve the access request in the Monzo app")
	return t, nil
}

// Refresh exchanges the refresh token for a new access token without user
// interaction and overwrites the token file. Non-confidential clients have
// no refresh token and always fail with an AuthError.
func (s *Store) Refresh(ctx context.Context, t *Token) (*Token, error) {
	if t.RefreshToken == "" {
		return nil, &domain.AuthError{Reason: "no refresh token (non-confidential client)"}
	}

	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: t.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return nil, &domain.AuthError{Reason: "refresh token rejected", Err: err}
	}

	next := newToken(refreshed, time.Now().UTC())
	// Refreshing does not renew the SCA window.
	next.AuthenticatedAt = t.AuthenticatedAt
	if err := s.Save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// AccessToken returns a valid bearer token, refreshing a stale one when a
// refresh token is available. Satisfies the API client's auth source.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	t, err := s.Load()
	if err != nil {
		return "", err
	}
	if t.Expired() {
		t, err = s.Refresh(ctx, t)
		if err != nil {
			return "", err
		}
	}
	return t.AccessToken, nil
}

// ForceRefresh discards the current access token and refreshes
// unconditionally, returning the new bearer token.
func (s *Store) ForceRefresh(ctx context.Context) (string, error) {
	t, err := s.Load()
	if err != nil {
		return "", err
	}
	refreshed, err := s.Refresh(ctx, t)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
