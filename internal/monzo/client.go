// Package monzo is an authenticated client for the Monzo REST API with
// retry, rate-limit backoff and cursor pagination.
package monzo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

// AuthSource supplies bearer tokens. The token store satisfies it.
type AuthSource interface {
	AccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// RetryConfig bounds the retry policy for 429 and 5xx responses.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultRetryConfig is used when the zero value is passed to NewClient.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     4,
	InitialBackoff: 500 * time.Millisecond,
}

// Client issues authenticated requests against the Monzo API.
type Client struct {
	http    *http.Client
	baseURL string
	auth    AuthSource
	cb      *gobreaker.CircuitBreaker
	retry   RetryConfig
	log     zerolog.Logger
}

// NewClient creates an API client. A zero RetryConfig selects defaults.
func NewClient(httpClient *http.Client, baseURL string, auth AuthSource, retry RetryConfig, log zerolog.Logger) *Client {
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		auth:    auth,
		cb:      newCircuitBreaker("monzo-api"),
		retry:   retry,
		log:     log,
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, nil, out)
}

// Post issues a form-encoded POST request.
func (c *Client) Post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, form, nil, out)
}

// Put issues a form-encoded PUT request.
func (c *Client) Put(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, form, nil, out)
}

// Patch issues a form-encoded PATCH request.
func (c *Client) Patch(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, form, nil, out)
}

// PutJSON issues a PUT request with a JSON body (used by the receipts API).
func (c *Client) PutJSON(ctx context.Context, path string, payload any, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, nil, payload, out)
}

// serverError marks a 5xx response inside the circuit breaker so server
// failures count towards tripping it.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: status %d", e.status)
}

// do runs one logical API call: bearer auth on every attempt, a single
// refresh-and-retry on 401, bounded exponential backoff on 429 and 5xx,
// and terminal APIErrors for the remaining 4xx statuses.
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, jsonPayload any, out any) error {
	endpoint := method + " " + path

	var jsonBody []byte
	if jsonPayload != nil {
		encoded, err := json.Marshal(jsonPayload)
		if err != nil {
			return fmt.Errorf("%s: encoding request body: %w", endpoint, err)
		}
		jsonBody = encoded
	}

	bearer, err := c.auth.AccessToken(ctx)
	if err != nil {
		return err
	}

	var (
		attempts  int
		refreshed bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := c.newRequest(ctx, method, path, query, form, jsonBody, bearer)
		if err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}

		result, err := c.cb.Execute(func() (any, error) {
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, &serverError{status: resp.StatusCode}
			}
			return resp, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("%s: circuit breaker: %w", endpoint, err)
			}
			attempts++
			if attempts > c.retry.MaxRetries {
				var srvErr *serverError
				if errors.As(err, &srvErr) {
					return &domain.TransientHTTPError{Endpoint: endpoint, Status: srvErr.status, Attempts: attempts}
				}
				return fmt.Errorf("%s: %w", endpoint, err)
			}
			c.log.Debug().Err(err).Int("attempt", attempts).Str("endpoint", endpoint).Msg("retrying after transient failure")
			if err := c.backoff(ctx, attempts); err != nil {
				return err
			}
			continue
		}

		resp := result.(*http.Response)
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%s: reading response: %w", endpoint, readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%s: decoding response: %w", endpoint, err)
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return &domain.AuthError{Reason: "token rejected after refresh"}
			}
			refreshed = true
			c.log.Debug().Str("endpoint", endpoint).Msg("401, refreshing token and retrying once")
			bearer, err = c.auth.ForceRefresh(ctx)
			if err != nil {
				return err
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			attempts++
			if attempts > c.retry.MaxRetries {
				return &domain.RateLimitError{Endpoint: endpoint, Attempts: attempts}
			}
			c.log.Debug().Int("attempt", attempts).Str("endpoint", endpoint).Msg("rate limited, backing off")
			if err := c.backoff(ctx, attempts); err != nil {
				return err
			}
			continue

		default:
			return &domain.APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(string(body), 300)}
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query, form url.Values, jsonBody []byte, bearer string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	switch {
	case jsonBody != nil:
		body = bytes.NewReader(jsonBody)
	case form != nil:
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	} else if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

// backoff sleeps 2^(attempt-1) * initial plus jitter, honouring the context.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt-1))) * c.retry.InitialBackoff
	wait += time.Duration(rand.Int63n(int64(wait/2) + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
