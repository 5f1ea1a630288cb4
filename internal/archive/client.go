// Package archive is the HTTP client for the video archive backend.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/archivist/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every call except media streaming. Image searches run
// through a hosted embedding model and can take a long time.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of a failed response is read for its detail.
const maxErrorBody = 1 << 20

// Client talks to one archive backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout should be
// zero; per-call deadlines are applied from WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
// A non-positive rps leaves requests unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the backend root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request is one call against the backend.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends r and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.requestError(r, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return &models.TimeoutError{Op: r.op, After: c.timeout}
		}
		return fmt.Errorf("%s: failed to decode response: %w", r.op, err)
	}
	return nil
}

// send issues the request without reading the response.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if isTimeout(ctx, err) {
				return nil, &models.TimeoutError{Op: r.op, After: c.timeout}
			}
			return nil, fmt.Errorf("%s: %w", r.op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", r.op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	c.logger.Debug("API request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.String("request_id", requestID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			c.logger.Warn("API request timed out",
				zap.String("op", r.op), zap.String("request_id", requestID), zap.Duration("after", c.timeout))
			return nil, &models.TimeoutError{Op: r.op, After: c.timeout}
		}
		c.logger.Warn("API request failed",
			zap.String("op", r.op), zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	c.logger.Debug("API response",
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// errorBody is the FastAPI error envelope.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// requestError builds a *RequestError from a non-2xx response.
// The caller owns resp.Body.
func (c *Client) requestError(r request, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	detail := ""
	if err := json.Unmarshal(data, &eb); err == nil {
		detail = models.FlattenDetail(eb.Detail)
	}
	c.logger.Warn("API error",
		zap.String("op", r.op),
		zap.Int("status", resp.StatusCode),
		zap.String("detail", detail))
	return &models.RequestError{Status: resp.StatusCode, Detail: detail}
}

// isTimeout reports whether err was caused by the call's own deadline rather
// than a caller cancellation.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// escapeName escapes a video name for use as one path segment.
func escapeName(name string) string {
	return url.PathEscape(name)
}

// Health calls the backend's status endpoint.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, request{op: "health check", method: http.MethodGet, path: "/status"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StorageInfo returns the backend's storage usage report.
func (c *Client) StorageInfo(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, request{op: "storage info", method: http.MethodGet, path: "/storage/info"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
