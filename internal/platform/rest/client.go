// Package rest is the retrying HTTP caller shared by every upstream client.
// Each request waits on the service's rate limiter, defers the whole service
// on 429, and backs off exponentially on 5xx and transport failures.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/ratelimit"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts       int
	Backoff           time.Duration // base delay, doubled per attempt
	DefaultRetryAfter time.Duration // used when a 429 carries no usable Retry-After
}

// DefaultPolicy is three attempts with a one second base backoff and a five
// second pause on unannotated 429s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		Backoff:           time.Second,
		DefaultRetryAfter: 5 * time.Second,
	}
}

// Client issues requests against one base URL.
type Client struct {
	baseURL      string
	service      string
	limiter      *ratelimit.Limiter
	policy       Policy
	bearerToken  string
	timeout      time.Duration
	newTransport func() http.RoundTripper
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy replaces the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		c.policy = p
	}
}

// WithBearerToken sends "Authorization: Bearer <token>" on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearerToken = token
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTransport sets the factory used to build the connection transport.
// Fork calls it again so every fork gets its own connection pool.
func WithTransport(newTransport func() http.RoundTripper) Option {
	return func(c *Client) {
		c.newTransport = newTransport
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a client for baseURL. service names the upstream in logs.
// The limiter is shared with every fork of the client and must not be nil.
func New(service, baseURL string, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		service: service,
		limiter: limiter,
		policy:  DefaultPolicy(),
		timeout: 30 * time.Second,
		newTransport: func() http.RoundTripper {
			return http.DefaultTransport.(*http.Transport).Clone()
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", service))
	c.httpClient = c.buildHTTPClient()
	return c
}

// Fork returns a client sharing configuration and rate limiter but owning a
// separate HTTP connection pool.
func (c *Client) Fork() *Client {
	f := *c
	f.httpClient = c.buildHTTPClient()
	return &f
}

// Limiter returns the shared rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// CloseIdle releases idle keep-alive connections.
func (c *Client) CloseIdle() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) buildHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   c.timeout,
		Transport: c.newTransport(),
	}
}

// Get performs a GET and returns the 2xx response body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// PostJSON marshals payload and POSTs it, returning the 2xx response body.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, path, nil, data)
}

// Do runs the retry loop. A non-retryable status returns *APIError at once;
// exhausting the attempt budget returns an error wrapping both
// domain.ErrRetriesExhausted and the last failure.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		status, header, respBody, err := c.send(ctx, method, fullURL, path, body, attempt)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.WarnContext(ctx, "request failed",
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
		case status >= 200 && status < 300:
			return respBody, nil
		case status == http.StatusTooManyRequests:
			wait := retryAfter(header.Get("Retry-After"), c.policy.DefaultRetryAfter)
			c.limiter.SetWaitUntil(wait)
			lastErr = newAPIError(status, respBody)
			c.logger.WarnContext(ctx, "rate limited",
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", wait),
			)
			continue
		case status >= 500:
			lastErr = newAPIError(status, respBody)
			c.logger.WarnContext(ctx, "server error",
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Int("status", status),
			)
		default:
			return nil, newAPIError(status, respBody)
		}

		if attempt < c.policy.MaxAttempts-1 {
			if err := sleep(ctx, c.policy.Backoff<<attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%s %s: %w after %d attempts: %w",
		method, path, domain.ErrRetriesExhausted, c.policy.MaxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, method, fullURL, path string, body []byte, attempt int) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()),
		slog.Int("bytes", len(respBody)),
		slog.Int("attempt", attempt+1),
	)
	return resp.StatusCode, resp.Header, respBody, nil
}

// maxRetryAfter caps a server-requested pause.
const maxRetryAfter = time.Hour

// retryAfter reads a Retry-After value given in (possibly fractional)
// seconds or as an HTTP date, capped at maxRetryAfter.
func retryAfter(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		if secs >= maxRetryAfter.Seconds() {
			return maxRetryAfter
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return min(d, maxRetryAfter)
		}
		return 0
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
