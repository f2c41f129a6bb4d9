// Package token persists and refreshes the Monzo OAuth2 token.
package token

import (
	"time"

	"golang.org/x/oauth2"
)

// SCAWindow is how long full transaction history stays accessible after a
// fresh interactive authentication. Afterwards the API caps history at the
// most recent ~90 days.
const SCAWindow = 5 * time.Minute

// defaultLifetime is the provider's stated access-token lifetime, used when
// the token response carries no expiry. Expiry is tracked locally; the
// server is never probed speculatively.
const defaultLifetime = 6 * time.Hour

// Token is the persisted token record. A single active record exists per
// client and is overwritten on every refresh.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	UserID       string `json:"user_id,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`

	// AuthenticatedAt is when the user last completed the interactive
	// flow. Refreshes do not move it: a refresh renews the token, not the
	// strong-customer-authentication window.
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Expired reports whether the access token is expired or about to expire.
func (t *Token) Expired() bool {
	return time.Until(t.ExpiresAt) < time.Minute
}

// WithinSCAWindow reports whether full history is still accessible at now.
func (t *Token) WithinSCAWindow(now time.Time) bool {
	return !t.AuthenticatedAt.IsZero() && now.Sub(t.AuthenticatedAt) < SCAWindow
}

func newToken(src *oauth2.Token, now time.Time) *Token {
	exp := src.Expiry
	if exp.IsZero() {
		exp = now.Add(defaultLifetime)
	}
	userID, _ := src.Extra("user_id").(string)
	return &Token{
		AccessToken:     src.AccessToken,
		RefreshToken:    src.RefreshToken,
		TokenType:       src.TokenType,
		UserID:          userID,
		ExpiresAt:       exp,
		AuthenticatedAt: now,
	}
}
