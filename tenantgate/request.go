package tenantgate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexlup06-authgate/tenantgate-go/tenant"
)

// request is one logical call. It is built once and reused verbatim for the
// post-refresh retry.
type request struct {
	method    string
	path      string
	url       string
	body      []byte
	header    http.Header
	timeout   time.Duration
	tenant    *tenant.Descriptor
	requestID string
}

type response struct {
	status int
	header http.Header
	body   []byte

	// cacheKey is set when the response may be stored once it decodes.
	cacheKey string
}

// Do performs a request against the current tenant and decodes a successful
// JSON response into out.
//
// body is encoded as JSON unless it is nil, a []byte or a json.RawMessage,
// which are sent as-is. out may be nil to discard the response body.
//
// Do is the untyped form of Get, Post, Put, Patch and Delete. Every failure is
// returned as a *TransportError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	if c.closed.Load() {
		return ErrClosed
	}

	r, err := c.newRequest(ctx, method, path, body, opts)
	if err != nil {
		return err
	}

	ctx, span := c.startSpan(ctx, spanRequest,
		attribute.String("http.method", r.method),
		attribute.String("url.path", r.path),
		attribute.String("tenant.id", r.tenant.ID),
		attribute.String("request.id", r.requestID),
	)

	resp, err := c.execute(ctx, r)
	if err == nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.status))
		if out != nil && len(resp.body) > 0 {
			if uerr := json.Unmarshal(resp.body, out); uerr != nil {
				err = &TransportError{
					Code:       CodeDecode,
					Message:    "decode response",
					HTTPStatus: resp.status,
					Err:        uerr,
				}
			}
		}
		if err == nil && resp.cacheKey != "" {
			c.cache.put(resp.cacheKey, resp.status, resp.body, r.tenant.CacheTTL, c.now())
		}
	}

	endSpan(span, err)

	if err != nil && reportable(err) {
		c.reporter.Report(ctx, err, map[string]string{
			"method":     r.method,
			"path":       r.path,
			"tenant_id":  r.tenant.ID,
			"request_id": r.requestID,
		})
	}

	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, opts []RequestOption) (*request, error) {
	var cfg requestConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	raw, err := encodeBody(body)
	if err != nil {
		return nil, &TransportError{Code: CodeInvalidRequest, Message: "encode request body", Err: err}
	}

	d := c.currentTenant()

	timeout := d.RequestTimeout()
	if cfg.timeout > 0 {
		timeout = cfg.timeout
	}

	return &request{
		method:    method,
		path:      path,
		url:       joinURL(d.Endpoint, path, cfg.query),
		body:      raw,
		header:    cfg.header,
		timeout:   timeout,
		tenant:    d,
		requestID: requestIDFor(ctx),
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

// execute runs the logical request, serving GETs from the cache when the
// request's tenant allows it. Fresh cacheable responses are stored by Do
// after they decode.
func (c *Client) execute(ctx context.Context, r *request) (*response, error) {
	creds, generation := c.session.snapshot()

	key, cacheable := c.cacheKeyFor(r, generation)
	if cacheable {
		if e, ok := c.cache.get(key, c.now()); ok {
			c.metrics.cacheHits.Inc()
			trace.SpanFromContext(ctx).AddEvent(eventCacheHit)
			c.logger.DebugContext(ctx, "served from cache",
				"method", r.method,
				"path", r.path,
				"tenant_id", r.tenant.ID,
			)
			return &response{status: e.status, body: e.body}, nil
		}
	}

	resp, err := c.roundTrip(ctx, r, 0, creds)
	if err != nil {
		return nil, err
	}

	if cacheable && storable(resp.header) {
		resp.cacheKey = key
	}

	return resp, nil
}

// cacheKeyFor decides whether r may use the response cache. Only GETs for
// tenants with caching enabled qualify; calls with per-request headers are
// excluded since the cache key does not cover them.
func (c *Client) cacheKeyFor(r *request, generation uint64) (string, bool) {
	if r.method != http.MethodGet || !r.tenant.CachingEnabled || r.tenant.CacheTTL <= 0 || len(r.header) > 0 {
		return "", false
	}
	return cacheKey(r.tenant.ID, r.url, generation), true
}

// roundTrip sends r and applies the refresh policy. attempt counts the
// refreshes already spent on r: a 401 is only recovered from on attempt 0.
// A failed proactive refresh spends nothing and never ends the session.
func (c *Client) roundTrip(ctx context.Context, r *request, attempt int, creds Credentials) (*response, error) {
	if attempt == 0 && c.proactiveRefresh && creds.RefreshToken != "" && tokenExpiring(creds.AccessToken, c.now()) {
		fresh, err := c.refresh(ctx, r.tenant, r.requestID, creds)
		switch {
		case err == nil:
			creds.AccessToken = fresh
			attempt++
		case ctx.Err() != nil:
			return nil, err
		default:
			// The held token has not expired yet; a later 401 still gets its refresh.
			c.logger.WarnContext(ctx, "proactive refresh failed, sending current token",
				"tenant_id", r.tenant.ID,
				"request_id", r.requestID,
				"error", err,
			)
		}
	}

	resp, err := c.send(ctx, r, attempt, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	if resp.status < http.StatusBadRequest {
		return resp, nil
	}

	if resp.status != http.StatusUnauthorized || attempt > 0 {
		return nil, upstreamError(resp.status, resp.body)
	}

	return c.recoverUnauthorized(ctx, r, creds)
}

// recoverUnauthorized handles the first 401 of a logical request: it obtains
// a new access token and retries r exactly once with it.
func (c *Client) recoverUnauthorized(ctx context.Context, r *request, sent Credentials) (*response, error) {
	current, _ := c.session.snapshot()

	if current.AccessToken != "" && current.AccessToken != sent.AccessToken {
		c.logger.DebugContext(ctx, "access token changed since send, retrying",
			"method", r.method,
			"path", r.path,
			"request_id", r.requestID,
		)
		return c.roundTrip(ctx, r, 1, current)
	}

	stale := Credentials{AccessToken: sent.AccessToken, RefreshToken: current.RefreshToken}
	fresh, err := c.refresh(ctx, r.tenant, r.requestID, stale)
	if err != nil {
		return nil, c.refreshFailed(ctx, r, stale, err)
	}

	current.AccessToken = fresh
	return c.roundTrip(ctx, r, 1, current)
}

// refreshFailed ends the session after an unrecoverable refresh and returns
// the error describing the refresh failure. A caller that gave up while
// waiting for the refresh gets its own context error and leaves the session
// untouched.
func (c *Client) refreshFailed(ctx context.Context, r *request, creds Credentials, cause error) error {
	if ctx.Err() != nil {
		return cause
	}

	if c.session.clearIf(creds.RefreshToken) {
		c.cache.purge()
		c.metrics.sessionCleared.Inc()
		c.logger.WarnContext(ctx, "session cleared",
			"tenant_id", r.tenant.ID,
			"request_id", r.requestID,
			"error", cause,
		)
	}

	te := &TransportError{
		Code:    CodeSessionInvalid,
		Message: "session refresh failed",
		Err:     cause,
	}
	if creds.RefreshToken == "" {
		te.Message = "session expired"
		te.HTTPStatus = http.StatusUnauthorized
	} else if rte, ok := cause.(*TransportError); ok {
		te.HTTPStatus = rte.HTTPStatus
	}

	return te
}

// send performs a single HTTP attempt with token captured by the caller.
func (c *Client) send(ctx context.Context, r *request, attempt int, token string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader(r.body))
	if err != nil {
		return nil, &TransportError{Code: CodeInvalidRequest, Message: "build request", Err: err}
	}

	attachDefaults(req, c.tenantHeader, r.tenant.ID, r.requestID)
	AttachBearer(req, token)
	for k, vs := range r.header {
		req.Header[k] = append([]string(nil), vs...)
	}

	c.logger.DebugContext(ctx, "request started",
		"method", r.method,
		"path", r.path,
		"tenant_id", r.tenant.ID,
		"request_id", r.requestID,
		"attempt", attempt,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeAttempt(r.method, 0, start)
		te := classifyTransportError(ctx, err)
		c.logger.WarnContext(ctx, "request failed",
			"method", r.method,
			"path", r.path,
			"tenant_id", r.tenant.ID,
			"request_id", r.requestID,
			"code", te.Code,
			"error", err,
		)
		return nil, te
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.observeAttempt(r.method, resp.StatusCode, start)
	if err != nil {
		te := classifyTransportError(ctx, err)
		te.HTTPStatus = resp.StatusCode
		return nil, te
	}

	c.logger.InfoContext(ctx, "request completed",
		"method", r.method,
		"path", r.path,
		"tenant_id", r.tenant.ID,
		"request_id", r.requestID,
		"status", resp.StatusCode,
		"attempt", attempt,
		"duration", time.Since(start),
	)

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func bodyReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}
