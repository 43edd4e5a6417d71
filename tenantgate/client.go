// Package tenantgate is a tenant-aware HTTP client that manages an
// authenticated session.
//
// Every request is addressed to the active tenant's endpoint and tagged with
// its id. When a bearer token is held it is attached to the request. A 401
// triggers exactly one token refresh and one retry of the original request;
// if the refresh fails, the session is cleared and the caller is expected to
// log in again.
package tenantgate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/alexlup06-authgate/tenantgate-go/tenant"
)

// TenantSource supplies the tenant descriptor a request is built against.
//
// *tenant.Resolver and tenant.Fixed both satisfy it.
type TenantSource interface {
	CurrentTenant() *tenant.Descriptor
}

// ClientOption configures a Client.
//
// Client options are applied at construction time via NewClient and allow
// callers to customize transport and observability without changing Client
// semantics.
type ClientOption func(*Client)

// WithHTTPClient configures the Client to use a custom http.Client.
//
// This is useful for proxies, tracing, or test transports. Timeouts are
// applied per request from the tenant descriptor, so hc.Timeout should
// normally be left at zero.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the structured logger that receives request, refresh and
// session events. The default discards everything.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the client's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.metrics = newMetrics(reg)
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for request spans.
// The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithReporter installs an error reporter for unexpected failures.
func WithReporter(r Reporter) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithRefreshPath overrides RefreshPath.
func WithRefreshPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.refreshPath = path
		}
	}
}

// WithTenantHeader overrides TenantHeaderName.
func WithTenantHeader(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.tenantHeader = name
		}
	}
}

// WithProactiveRefresh makes the client refresh a JWT access token that is
// about to expire before sending, instead of waiting for a 401. The proactive
// refresh counts as the request's single refresh.
func WithProactiveRefresh() ClientOption {
	return func(c *Client) {
		c.proactiveRefresh = true
	}
}

// WithClock replaces time.Now for cache expiry and token expiry checks.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is the shared façade for all outbound calls of one session.
//
// The Client:
//   - resolves the tenant descriptor fresh for every logical request
//   - attaches the bearer token when one is held
//   - refreshes at most once per logical request, and only on 401
//   - clears the session when a refresh fails
//
// A Client is safe for concurrent use. Create one with NewClient and release
// it with Close.
type Client struct {
	tenants      TenantSource
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics
	tracer       trace.Tracer
	reporter     Reporter
	refreshPath  string
	tenantHeader string
	now          func() time.Time

	proactiveRefresh bool

	session      session
	refreshGroup singleflight.Group
	cache        *responseCache
	closed       atomic.Bool
}

// NewClient creates a client bound to the given tenant source.
//
// Pass a *tenant.Resolver to follow tenant switches on the next call, or a
// tenant.Fixed to pin the client to one tenant for its lifetime.
func NewClient(tenants TenantSource, opts ...ClientOption) *Client {
	if tenants == nil {
		tenants = tenant.NewFixed(nil)
	}

	c := &Client{
		tenants:      tenants,
		httpClient:   &http.Client{},
		logger:       slog.New(slog.DiscardHandler),
		reporter:     noopReporter{},
		refreshPath:  RefreshPath,
		tenantHeader: TenantHeaderName,
		now:          time.Now,
		cache:        newResponseCache(maxCacheEntries),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.metrics == nil {
		c.metrics = newMetrics(nil)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}

	return c
}

// SetCredentials installs a token pair, typically after login.
func (c *Client) SetCredentials(creds Credentials) {
	c.session.set(creds)
	c.cache.purge()
}

// ClearCredentials drops both tokens, typically on logout.
func (c *Client) ClearCredentials() {
	c.session.clear()
	c.cache.purge()
}

// Credentials returns the currently held token pair.
func (c *Client) Credentials() Credentials {
	creds, _ := c.session.snapshot()
	return creds
}

// AccessTokenExpiry returns the exp claim of the held access token when it is
// a JWT.
func (c *Client) AccessTokenExpiry() (time.Time, bool) {
	creds, _ := c.session.snapshot()
	return tokenExpiry(creds.AccessToken)
}

// Close ends the client's lifecycle: the session is cleared, cached
// responses are dropped and idle connections are closed. Requests issued
// after Close fail with ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.session.clear()
	c.cache.purge()
	c.httpClient.CloseIdleConnections()
	c.logger.Info("client closed")

	return nil
}

func (c *Client) currentTenant() *tenant.Descriptor {
	if d := c.tenants.CurrentTenant(); d != nil {
		return d
	}
	return tenant.Fallback()
}

// Result is the successful outcome of a typed call. Failures are returned as
// a *TransportError instead.
type Result[T any] struct {
	Data    T
	Success bool
}

// Get issues a GET request and decodes the JSON response into T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (*Result[T], error) {
	return call[T](ctx, c, http.MethodGet, path, nil, opts)
}

// Post issues a POST request with body encoded as JSON.
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (*Result[T], error) {
	return call[T](ctx, c, http.MethodPost, path, body, opts)
}

// Put issues a PUT request with body encoded as JSON.
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (*Result[T], error) {
	return call[T](ctx, c, http.MethodPut, path, body, opts)
}

// Patch issues a PATCH request with body encoded as JSON.
func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (*Result[T], error) {
	return call[T](ctx, c, http.MethodPatch, path, body, opts)
}

// Delete issues a DELETE request.
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (*Result[T], error) {
	return call[T](ctx, c, http.MethodDelete, path, nil, opts)
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, opts []RequestOption) (*Result[T], error) {
	var out T
	if err := c.Do(ctx, method, path, body, &out, opts...); err != nil {
		return nil, err
	}
	return &Result[T]{Data: out, Success: true}, nil
}

func joinURL(endpoint, path string, query url.Values) string {
	u := strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) == 0 {
		return u
	}

	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}
