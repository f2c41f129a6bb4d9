package domain

import (
	"fmt"
	"time"
)

// Error types for consistent error handling across the pipeline.

// AuthError indicates a missing, expired or rejected token. The fix is to
// re-run `monzo auth`.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v (run 'monzo auth')", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s (run 'monzo auth')", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates the API kept returning 429 after all backoff
// retries were exhausted.
type RateLimitError struct {
	Endpoint string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s after %d attempts", e.Endpoint, e.Attempts)
}

// AccessWindowError indicates a full-history export was attempted outside
// the 5-minute strong-customer-authentication window. Only the most recent
// ~90 days are reachable until the user re-authenticates.
type AccessWindowError struct {
	AuthenticatedAt time.Time
	AccountID       string
}

func (e *AccessWindowError) Error() string {
	msg := "full history unavailable: strong customer authentication window (5 minutes) has expired; " +
		"only the last 90 days are accessible. Run 'monzo auth --force' and retry immediately"
	if e.AccountID != "" {
		msg = fmt.Sprintf("account %s: %s", e.AccountID, msg)
	}
	return msg
}

// ReconciliationError indicates the balance computed from exported
// transactions does not match the balance reported by the API.
type ReconciliationError struct {
	AccountID string
	Computed  int64
	Reported  int64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("balance mismatch for account %s: computed %d, reported %d (diff %+d minor units)",
		e.AccountID, e.Computed, e.Reported, e.Reported-e.Computed)
}

// TransientHTTPError indicates a server-side (5xx) failure that persisted
// through all retries.
type TransientHTTPError struct {
	Endpoint string
	Status   int
	Attempts int
}

func (e *TransientHTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d after %d attempts", e.Endpoint, e.Status, e.Attempts)
}

// APIError is a terminal (non-retryable) API failure: 400, 403, 404 and
// other 4xx responses not handled via token refresh.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Status)
}
