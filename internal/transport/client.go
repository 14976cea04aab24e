// Package transport sends JSON requests to the ATK HTTP bridge.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/logging"
)

const (
	// DefaultBaseURL is where the bridge listens unless configured otherwise.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of a non-2xx body ends up in the error.
	maxErrorBody = 512
)

// Bridge endpoint paths.
const (
	PathOpen    = "/atk/open"
	PathConnect = "/atk/connect"
	PathClose   = "/atk/close"
)

// Poster is the request surface the session and executor depend on.
type Poster interface {
	// Post sends payload as a JSON body to path and returns the raw
	// response body. Any failure is a *errors.TransportError.
	Post(ctx context.Context, path string, payload any) ([]byte, error)
}

// Client posts JSON to a bridge base URL. Calls are independent and are
// never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// New creates a Client for baseURL. Trailing slashes on baseURL are dropped
// so that joining with a path never produces "//".
func New(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logging.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Post sends payload as JSON to path. The request is bounded by both the
// client timeout and ctx. A 2xx response returns its body, which may be
// empty; everything else returns a *errors.TransportError.
func (c *Client) Post(ctx context.Context, path string, payload any) ([]byte, error) {
	url := c.URL(path)

	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewTransportError("marshal request", err).WithURL(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, errors.NewTransportError("create request", err).WithURL(url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("bridge request failed", "url", url, "error", err.Error())
		return nil, errors.NewTransportError("send request", err).
			WithURL(url).
			WithTimeout(isTimeout(ctx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError("read response", err).
			WithURL(url).
			WithStatusCode(resp.StatusCode).
			WithTimeout(isTimeout(ctx, err))
	}

	c.logger.Debug("bridge request",
		"url", url,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewTransportError(statusMessage(resp.StatusCode, body), errors.ErrHTTPStatus).
			WithURL(url).
			WithStatusCode(resp.StatusCode)
	}

	return body, nil
}

func statusMessage(code int, body []byte) string {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody] + "..."
	}
	if snippet == "" {
		return fmt.Sprintf("bridge returned %d %s", code, http.StatusText(code))
	}
	return fmt.Sprintf("bridge returned %d %s: %s", code, http.StatusText(code), snippet)
}

// isTimeout reports whether err came from an elapsed deadline, either the
// client timeout or the context's.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
