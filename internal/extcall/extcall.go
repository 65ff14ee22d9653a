// Package extcall wraps outbound HTTP calls to external capability
// providers with a bounded timeout and maps every failure mode to a
// typed outcome. Pipeline stages compose it instead of hand-rolling
// per-call-site error handling.
package extcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTimeout reports that the call exceeded its deadline.
var ErrTimeout = errors.New("external call timed out")

// TransportError wraps connection-level failures (DNS, refused, reset).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response. Body is truncated to keep
// log lines bounded.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// MalformedError reports a response body that could not be decoded
// into the expected shape.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

const errBodyLimit = 1024

// Do executes the request under its own timeout and returns the
// response body on 2xx. Failures map to ErrTimeout, *TransportError,
// or *StatusError; callers never see a raw net/http error.
func Do(ctx context.Context, client *http.Client, req *http.Request, timeout time.Duration) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Do(req.WithContext(callCtx))
	if err != nil {
		if callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &TransportError{Err: err}
	}
	return body, nil
}

// PostJSON marshals payload, posts it with the given headers, and
// returns the raw response body via Do.
func PostJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	timeout time.Duration,
) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(ctx, client, req, timeout)
}

// Get issues a GET with the given headers and returns the body via Do.
func Get(
	ctx context.Context,
	client *http.Client,
	url string,
	headers map[string]string,
	timeout time.Duration,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(ctx, client, req, timeout)
}

// DecodeJSON unmarshals body into dest, mapping failures to
// *MalformedError so callers can treat bad payloads like any other
// degraded upstream response.
func DecodeJSON(body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return &MalformedError{Err: err}
	}
	return nil
}
