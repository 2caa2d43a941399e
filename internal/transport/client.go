// Package transport implements the HTTP adapter for the backend field API.
// Submissions carry an idempotency key, so retrying a delivery is safe: the
// backend applies each captured operation at most once.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wasteops/fieldsync/internal/common"
	"github.com/wasteops/fieldsync/internal/logging"
)

// Client talks to the backend over HTTP/JSON. A circuit breaker wraps
// Submit so a hard-down backend fails fast instead of burning the full
// request timeout on every queued retry.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logging.Logger
}

// NewClient returns a Client for the API at base (scheme://host[:port]).
func NewClient(base string, log logging.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// Submit delivers one captured operation to the backend. Failures are
// returned wrapped in common.ErrTransport; the caller retries on its own
// schedule.
func (c *Client) Submit(ctx context.Context, kind string, idempotencyKey string, payload []byte) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.submit(ctx, kind, idempotencyKey, payload)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, kind string, idempotencyKey string, payload []byte) error {
	url := fmt.Sprintf("%s/api/v1/operations/%s", c.base, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.IdempotencyKeyHeader, idempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("submit failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// Ping probes backend reachability. It bypasses the breaker so the
// connectivity watcher observes recovery as soon as the backend is back.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s", resp.Status)
	}
	return nil
}
