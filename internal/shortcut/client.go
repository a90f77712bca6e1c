// Package shortcut is a small typed client for the Shortcut REST API (v3).
//
// Every operation is a single request/response pair. Non-2xx responses are
// returned as UPSTREAM_ERROR carrying the status and body; nothing is retried.
package shortcut

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
)

const (
	// DefaultBaseURL is the Shortcut API root.
	DefaultBaseURL = "https://api.app.shortcut.com/api/v3"

	// TokenEnv names the environment variable holding the API token.
	TokenEnv = "SHORTCUT_API_TOKEN"

	requestTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Client talks to the Shortcut API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests use httptest).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for swallowed partial-fetch warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client. An empty token is accepted here; every request then
// fails with CONFIG_ERROR so callers that never touch Shortcut still work.
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: requestTimeout},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromEnv creates a client using SHORTCUT_API_TOKEN.
func NewFromEnv(opts ...Option) *Client {
	return New(os.Getenv(TokenEnv), opts...)
}

// do performs one request. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token == "" {
		return apperrors.NewConfig(TokenEnv + " is not set")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Shortcut-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.NewInterrupted()
		}
		return fmt.Errorf("Shortcut API %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.NewUpstream("Shortcut", method, path, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding Shortcut API %s %s: %w", method, path, err)
	}
	return nil
}
