package storeclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// Client is an HTTP client for one helper service.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a client for the helper called name listening at
// baseURL, e.g. http://127.0.0.1:7700.
func NewClient(name, baseURL string) *Client {
	metrics.HelperBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Missing records are answers, not helper failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperrors.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("Helper %s circuit breaker %s -> %s", name, stateToString(from), stateToString(to))
			metrics.HelperBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
		cb:      cb,
	}
}

// Name returns the helper name.
func (c *Client) Name() string { return c.name }

// BaseURL returns the helper address.
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	if len(segments) == 0 {
		b.WriteByte('/')
	}
	return b.String()
}

// do sends a JSON request and returns the response body. 404 maps to
// apperrors.ErrNotFound; other non-2xx statuses are errors.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	out, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, endpoint, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.HelperRequestsTotal.WithLabelValues(c.name, method, "rejected").Inc()
		return nil, fmt.Errorf("%s unavailable: %w", c.name, err)
	}
	return out, err
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.HelperRequestsTotal.WithLabelValues(c.name, method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	metrics.HelperRequestsTotal.WithLabelValues(c.name, method, statusClass(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, apperrors.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

type versionResponse struct {
	Version string `json:"version"`
}

// Version asks the helper for its version. It returns false when the
// helper cannot be reached.
func (c *Client) Version(ctx context.Context) (string, bool) {
	data, err := c.roundTrip(ctx, http.MethodGet, c.endpoint(), nil)
	if err != nil {
		logging.Debug("Helper %s version check failed: %v", c.name, err)
		return "", false
	}
	var v versionResponse
	if err := json.Unmarshal(data, &v); err != nil {
		logging.Debug("Helper %s sent unreadable version: %v", c.name, err)
		return "", true
	}
	return v.Version, true
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func decodeList(data []byte) ([][]byte, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	out := make([][]byte, len(raws))
	for i, r := range raws {
		out[i] = []byte(r)
	}
	return out, nil
}
