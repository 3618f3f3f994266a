// Package backend talks to the order/catalog service that owns carts, promo
// codes, places and orders for authenticated shoppers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"storefront-core/internal/domain"
)

const maxBodyBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *zap.Logger
	// Breaker trips after this many consecutive failures. Zero uses 5.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *zap.Logger
}

type response struct {
	status int
	body   []byte
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "order-backend",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller abandoning its request says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("backend circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// do performs one call. path is relative to the base URL; token, when set, is
// sent as a bearer credential; in is JSON-encoded; out receives the decoded
// body with any {"data": ...} envelope removed.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	target := c.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.breaker.Execute(func() (*response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		r := &response{status: resp.StatusCode, body: raw}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, fmt.Errorf("status %d", resp.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		c.logger.Debug("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: %w", domain.ErrNetworkFailure, method, path, err)
	}

	switch {
	case res.status == http.StatusUnauthorized || res.status == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrAuthRequired)
	case res.status == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
	case res.status < 200 || res.status > 299:
		return &StatusError{Method: method, Path: path, Status: res.status, Body: res.body}
	}

	if out == nil || len(bytes.TrimSpace(res.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(res.body), out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", domain.ErrNetworkFailure, method, path, err)
	}
	return nil
}

// StatusError is a non-2xx answer without a more specific sentinel. It counts
// as ErrNetworkFailure unless a caller knows how to read Body.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s %s returned %d", domain.ErrNetworkFailure, e.Method, e.Path, e.Status)
}

func (e *StatusError) Unwrap() error { return domain.ErrNetworkFailure }

// unwrapData strips a top-level {"data": ...} envelope when present.
func unwrapData(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if data, ok := envelope["data"]; ok {
		return data
	}
	return trimmed
}

// flexID accepts identifiers encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
