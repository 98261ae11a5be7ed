// Package backend is the HTTP client for the store's REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// IdempotencyKeyHeader carries the checkout attempt key on sale submission.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodySize caps how much of a response we read. Invoice PDFs are the largest payload.
const maxBodySize = 20 << 20

// TokenSource yields the bearer token for authenticated calls. Any error
// means the call goes out without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the backend. It never retries; callers decide.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func NewClient(cfg config.BackendConfig, tokens TokenSource, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: cfg.Timeout,
		tokens:  tokens,
		breaker: newBreaker(cfg.Resilience.CircuitBreaker, logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
	noAuth bool
	accept string
}

// do sends a request through the circuit breaker and returns the body of a 2xx
// response. Everything else comes back as an error from the taxonomy in errors.go.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, req)
	})
	if err != nil {
		if isBreakerRejection(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.accept != "" {
		httpReq.Header.Set("Accept", req.accept)
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if !req.noAuth && c.tokens != nil {
		if token, err := c.tokens.Token(ctx); err == nil && token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// the caller gave up; that says nothing about the backend
			return nil, ctx.Err()
		}
		c.logger.WarnContext(ctx, "backend request failed", "method", req.method, "path", req.path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnreachable, err)
	}
	c.logger.DebugContext(ctx, "backend request",
		"method", req.method,
		"path", req.path,
		"status", httpResp.StatusCode,
		"duration", time.Since(start),
	)
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, classify(httpResp.StatusCode, data)
	}
	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}

// doJSON sends req and decodes a JSON response body into out when out is not nil.
func (c *Client) doJSON(ctx context.Context, req request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// State reports the circuit breaker state for health checks.
func (c *Client) State() string {
	return c.breaker.State().String()
}

// Ping reports whether the backend answers at all. Any HTTP response, even an
// error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/categorias", noAuth: true})
	var apiErr *APIError
	if err == nil || (errors.As(err, &apiErr) && !errors.Is(err, ErrServer)) {
		return nil
	}
	return err
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}
