// Package transport issues requests against the equipment API with a bounded
// timeout and folds every failure into a three-way taxonomy (see Kind).
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is where the API lives unless configured otherwise.
	DefaultBaseURL = "http://localhost:8000/api"
	// DefaultTimeout bounds every request that does not set its own.
	DefaultTimeout = 5 * time.Second
	// RequestIDHeader correlates client log lines with server logs.
	RequestIDHeader = "X-Request-ID"
)

// Request describes one call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   io.Reader
	Header http.Header
	// Timeout overrides the client default; negative disables it.
	Timeout time.Duration
}

// Response is a successful (2xx) answer with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v. A body that does not decode is
// reported as a ServerError.
func (r *Response) Decode(v any) error {
	if err := sonic.Unmarshal(r.Body, v); err != nil {
		return &Error{
			Kind:    ServerError,
			Status:  r.Status,
			Message: "unexpected response from server",
			Err:     err,
		}
	}
	return nil
}

// Client talks to one API base URL.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client for baseURL, which must be an absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(),
		timeout: DefaultTimeout,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ValidateBaseURL reports whether baseURL is an absolute http(s) URL.
func ValidateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", baseURL)
	}
	return nil
}

// NewHTTPClient returns the pooled client used for API calls. Timeouts are
// applied per request through the context, not here.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path (and an optional query) onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Do performs req. A nil error means a 2xx response; otherwise the error is a
// *Error, or the caller's own context error when ctx was cancelled.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hreq, err := http.NewRequestWithContext(callCtx, method, c.URL(req.Path, req.Query), req.Body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, req.Path, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}
	reqID := uuid.NewString()
	hreq.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("request failed", "method", method, "path", req.Path, "request_id", reqID, "err", err)
		return nil, c.unreachable(err, timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.unreachable(err, timeout)
	}
	c.logger.Debug("request done",
		"method", method,
		"path", req.Path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		msg := serverMessage(body)
		if msg == "" {
			msg = "unauthorized"
		}
		return nil, &Error{Kind: Unauthorized, Status: resp.StatusCode, Message: msg}
	default:
		if msg := serverMessage(body); msg != "" {
			return nil, &Error{Kind: ServerError, Status: resp.StatusCode, Message: msg, FromServer: true}
		}
		return nil, &Error{Kind: ServerError, Status: resp.StatusCode, Message: genericServerMessage(resp.StatusCode)}
	}
}

// unreachable classifies a failure where no usable response arrived.
func (c *Client) unreachable(err error, timeout time.Duration) *Error {
	if isTimeout(err) {
		return &Error{
			Kind:    NetworkUnreachable,
			Message: timeoutMessage(c.baseURL, timeout),
			Timeout: true,
			Err:     err,
		}
	}
	return &Error{
		Kind:    NetworkUnreachable,
		Message: UnreachableMessage(c.baseURL),
		Err:     err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
