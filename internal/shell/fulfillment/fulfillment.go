// Package fulfillment holds the HTTP clients for the two fulfillment
// partners. Both return raw decoded payloads; normalization and OOS detection
// live in internal/core/orders.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotConfigured means the partner's base URL or token is missing.
	ErrNotConfigured = errors.New("fulfillment client is not configured")

	ErrOrderNotFound = errors.New("order not found")
)

// APIError wraps a failed partner API call.
type APIError struct {
	Op      string
	Partner string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Partner, e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Partner, e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newAPIError(partner, op string, status int, message string, err error) *APIError {
	return &APIError{Op: op, Partner: partner, Status: status, Message: message, Err: err}
}

// =============================================================================
// Shared HTTP Plumbing
// =============================================================================

const defaultHTTPTimeout = 60 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// getJSON performs an authorized GET and decodes the body into out.
// Returns the HTTP status for non-2xx handling.
func getJSON(ctx context.Context, client *http.Client, url, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}
