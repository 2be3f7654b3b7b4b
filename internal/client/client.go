package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	JSONContentType = "application/json"

	// DefaultRequestTimeout bounds the wait for response headers.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultResourceTimeout bounds the whole exchange, body included.
	DefaultResourceTimeout = 120 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client performs single JSON request/response round trips and reports
// failures as ErrInvalidURL, ErrNoData, *DecodeError, *StatusError or
// *TransportError. It never retries.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeouts sets the header wait and whole-exchange timeouts.
func WithTimeouts(request, resource time.Duration) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(request, resource)
	}
}

// WithRateLimit spaces outgoing requests to at most perMinute per minute.
// Zero or less disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: newHTTPClient(DefaultRequestTimeout, DefaultResourceTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(request, resource time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = request
	return &http.Client{
		Transport: transport,
		Timeout:   resource,
	}
}

// Request sends body (if non-nil) as JSON to rawURL and decodes the
// response into out (if non-nil).
func (c *Client) Request(ctx context.Context, method, rawURL string, headers map[string]string, body, out any) error {
	if !validURL(rawURL) {
		return ErrInvalidURL
	}

	var payload io.Reader
	if body != nil {
		reqBytes, err := json.Marshal(body)
		if err != nil {
			return &DecodeError{Detail: "encode request body", Err: err}
		}
		payload = bytes.NewReader(reqBytes)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		slog.Error("Failed to build request", "error", err)
		return ErrInvalidURL
	}
	req.Header.Set("Accept", JSONContentType)
	if body != nil {
		req.Header.Set("Content-Type", JSONContentType)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send request", "error", err)
		return &TransportError{Err: err}
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		slog.Error("Failed to read response body", "error", err)
		return &TransportError{Err: err}
	}

	slog.Debug("provider round trip",
		slog.String("method", method),
		slog.String("path", req.URL.Path),
		slog.Int("status", res.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Code: res.StatusCode, Body: resBody}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(resBody)) == 0 {
		return ErrNoData
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		slog.Error("Failed to unmarshal response body", "error", err)
		return &DecodeError{Detail: "decode response body", Err: err}
	}
	return nil
}

func validURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
