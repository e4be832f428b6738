// Package backend provides the REST client for the MemeIndex backend:
// registration, referrals and tasks.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/memeindex/memeindex/internal/metrics"
	"github.com/memeindex/memeindex/internal/retry"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

const (
	// DefaultTimeout bounds every backend request.
	DefaultTimeout = 10 * time.Second

	// MinTimeout and MaxTimeout clamp configured timeouts.
	MinTimeout = 5 * time.Second
	MaxTimeout = 15 * time.Second

	// maxResponseBody is the maximum response body size to read (1 MB).
	maxResponseBody = 1 << 20

	// InitDataHeader carries the signed launch parameters to the backend.
	InitDataHeader = "X-Telegram-Init-Data"
)

// Client is a MemeIndex backend client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	rateLimiter *retry.RateLimiter
	metrics     *metrics.Metrics
	initData    string
}

// ClientOptions configures the backend client.
type ClientOptions struct {
	// BaseURL overrides the backend URL (useful for testing).
	BaseURL string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	// Timeout overrides the per-request timeout. Values outside 5s..15s are clamped.
	Timeout time.Duration
	// RateLimiter overrides the default per-endpoint rate limiter.
	RateLimiter *retry.RateLimiter
	// Metrics overrides metrics.Global.
	Metrics *metrics.Metrics
	// InitData is the raw signed launch query sent with every request, if any.
	InitData string
}

// NewClient creates a new backend client for baseURL.
func NewClient(baseURL string, opts *ClientOptions) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		rateLimiter: retry.DefaultRateLimiter(),
		metrics:     metrics.Global,
	}

	if opts != nil {
		if opts.BaseURL != "" {
			c.baseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		if opts.Timeout > 0 {
			c.timeout = clampTimeout(opts.Timeout)
		}
		if opts.RateLimiter != nil {
			c.rateLimiter = opts.RateLimiter
		}
		if opts.Metrics != nil {
			c.metrics = opts.Metrics
		}
		c.initData = opts.InitData
	}

	if c.baseURL == "" {
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{"backend.url": "required"})
	}

	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func clampTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// response is a raw backend response. Transport failures never produce one.
type response struct {
	Status  int
	Body    []byte
	Message string
}

// OK reports a 2xx status.
func (r *response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// messageBody is the error/success envelope shared by all endpoints.
type messageBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do sends one request. It returns an error only for transport failures,
// timeouts and local rate limiting; any HTTP status comes back as a response.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body any) (*response, error) {
	start := time.Now()
	resp, err := c.send(ctx, endpoint, method, path, body)
	c.metrics.RecordBackendCall(endpoint, time.Since(start), callErr(resp, err))
	return resp, err
}

func (c *Client) send(ctx context.Context, endpoint, method, path string, body any) (*response, error) {
	if err := c.rateLimiter.Wait(ctx, endpoint); err != nil {
		return nil, apperr.WithCause(apperr.ErrRateLimited, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.initData != "" {
		httpReq.Header.Set(InitDataHeader, c.initData)
	}

	httpResp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL is constructed from validated config, not user input
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError(err)
	}

	resp := &response{Status: httpResp.StatusCode, Body: data}
	var env messageBody
	if json.Unmarshal(data, &env) == nil {
		resp.Message = env.Message
		if resp.Message == "" {
			resp.Message = env.Error
		}
	}
	return resp, nil
}

// decode unmarshals a 2xx body into v.
func decode(resp *response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return apperr.WithCause(apperr.ErrServerError, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

// transportError maps a failure below HTTP to the transient class.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.WithCause(apperr.ErrTimeout, err)
	}
	return apperr.WithCause(apperr.ErrNetworkError, err)
}

// statusError maps a non-2xx response to an error of the matching class.
func statusError(resp *response) error {
	details := map[string]string{"status": fmt.Sprintf("%d", resp.Status)}
	if resp.Message != "" {
		details["message"] = truncateBody(resp.Message, 256)
	}

	switch {
	case resp.Status == http.StatusBadRequest || resp.Status == http.StatusUnprocessableEntity:
		return apperr.WithDetails(apperr.ErrInvalidParameters, details)
	case resp.Status == http.StatusNotFound:
		return apperr.WithDetails(apperr.ErrNotFound, details)
	case resp.Status == http.StatusTooManyRequests:
		return apperr.WithDetails(apperr.ErrRateLimited, details)
	case resp.Status >= 500:
		return apperr.WithDetails(apperr.ErrServerError, details)
	default:
		return apperr.WithDetails(apperr.ErrRequestRejected, details)
	}
}

func callErr(resp *response, err error) error {
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError(resp)
	}
	return nil
}

// truncateBody truncates a string to maxLen characters.
func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
