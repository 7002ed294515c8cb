package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookfinder/internal/util"
)

const (
	// DefaultBaseURL is used when no catalog endpoint is configured.
	DefaultBaseURL = "http://localhost:5000"
	// DefaultTimeout bounds every catalog request.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 4 << 20
)

// Kind is the stable error taxonomy exposed above the transport.
type Kind string

const (
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindRequestFailed       Kind = "request_failed"
)

const (
	MessageUpstreamUnavailable = "Upstream service issue. Please try again shortly."
	MessageRequestFailed       = "Something went wrong. Check your connection and try again."
)

// Error is the normalized failure of a transport call. Callers show
// UserMessage and never look at Cause.
type Error struct {
	Kind        Kind
	UserMessage string
	Status      int
	Cause       error
}

func (e *Error) Error() string {
	return e.UserMessage
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Client performs JSON GETs against one base endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient uses a copy of hc for requests. A zero Timeout on the
// copy becomes DefaultTimeout; hc itself is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		own := *hc
		if own.Timeout == 0 {
			own.Timeout = DefaultTimeout
		}
		c.httpClient = &own
	}
}

// New builds a client; an empty baseURL falls back to DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON fetches path with query and decodes the body into out.
// Every failure comes back as *Error.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return normalize(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if id := util.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(util.RequestIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return normalize(0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return normalize(resp.StatusCode, fmt.Errorf("%s %s: %s", req.Method, path, resp.Status))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil && err != io.EOF {
		return normalize(resp.StatusCode, fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func normalize(status int, cause error) *Error {
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		return &Error{Kind: KindUpstreamUnavailable, UserMessage: MessageUpstreamUnavailable, Status: status, Cause: cause}
	}
	return &Error{Kind: KindRequestFailed, UserMessage: MessageRequestFailed, Status: status, Cause: cause}
}
