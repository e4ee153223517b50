// Package httpjson is the small JSON-over-HTTP client shared by the
// downstream adapters.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s %s returned status %d", e.Service, e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// BreakerFailure reports whether the response says the dependency itself is
// unhealthy. Client errors (4xx) are answers, not outages.
func (e *StatusError) BreakerFailure() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Client calls a single downstream service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
}

// New returns a Client for service rooted at baseURL. A nil httpClient gets a
// default one that opens a client span per call and propagates request and
// trace headers.
func New(service, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(interceptors.Transport(http.DefaultTransport)),
		}
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Service returns the downstream name used in errors.
func (c *Client) Service() string { return c.service }

// Post sends in as JSON and decodes a 2xx body into out when out is non-nil.
// idempotencyKey, when set, is sent as the X-Idempotency-Key header.
func (c *Client) Post(ctx context.Context, path, idempotencyKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal %s request: %w", c.service, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build %s request: %w", c.service, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(constants.HeaderXIdempotencyKey, idempotencyKey)
	}
	return c.do(req, path, out)
}

// Get decodes a 2xx body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build %s request: %w", c.service, path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: call %s: %w", c.service, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Service:    c.service,
			Method:     req.Method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s response: %w", c.service, path, err)
	}
	return nil
}
