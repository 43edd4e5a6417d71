package tenantgate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexlup06-authgate/tenantgate-go/tenant"
)

var errNoRefreshToken = errors.New("no refresh token held")

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse accepts the token either at the top level or inside a
// "data" envelope.
type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	Data        *struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

func (r refreshResponse) token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	if r.Data != nil {
		return r.Data.AccessToken
	}
	return ""
}

// RefreshAccessToken exchanges the held refresh token for a new access token
// against the current tenant and stores it.
//
// It reports ok=false on any failure, including when no refresh token is
// held. Unlike a refresh triggered by a 401, a failure here leaves the
// session untouched.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, bool) {
	if c.closed.Load() {
		return "", false
	}

	creds, _ := c.session.snapshot()
	token, err := c.refresh(ctx, c.currentTenant(), requestIDFor(ctx), creds)
	if err != nil {
		return "", false
	}
	return token, true
}

// refresh obtains a replacement for stale.AccessToken. Concurrent callers
// holding the same refresh token share one refresh call.
//
// The call itself is detached from ctx so one caller giving up does not fail
// the others; a caller whose ctx ends first stops waiting and gets its
// context error.
func (c *Client) refresh(ctx context.Context, d *tenant.Descriptor, requestID string, stale Credentials) (string, error) {
	if stale.RefreshToken == "" {
		return "", errNoRefreshToken
	}

	key := d.ID + "\x00" + stale.RefreshToken
	ch := c.refreshGroup.DoChan(key, func() (any, error) {
		// Another flight may already have rotated the token this caller saw rejected.
		current, _ := c.session.snapshot()
		if current.RefreshToken == stale.RefreshToken && current.AccessToken != "" && current.AccessToken != stale.AccessToken {
			return current.AccessToken, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.RequestTimeout())
		defer cancel()

		token, err := c.requestRefresh(fctx, d, requestID, stale.RefreshToken)
		c.metrics.observeRefresh(err == nil)
		if err != nil {
			c.logger.WarnContext(ctx, "refresh failed",
				"tenant_id", d.ID,
				"request_id", requestID,
				"error", err,
			)
			return nil, err
		}

		if !c.session.replaceAccess(stale.RefreshToken, token) {
			c.logger.DebugContext(ctx, "session changed during refresh, token not stored",
				"tenant_id", d.ID,
				"request_id", requestID,
			)
		}

		c.logger.InfoContext(ctx, "refresh succeeded",
			"tenant_id", d.ID,
			"request_id", requestID,
		)
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		trace.SpanFromContext(ctx).AddEvent(eventTokenRefreshed)
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", classifyTransportError(ctx, ctx.Err())
	}
}

// requestRefresh calls the refresh endpoint directly on the HTTP client, so
// its own 401 is never routed back into the refresh policy.
func (c *Client) requestRefresh(ctx context.Context, d *tenant.Descriptor, requestID, refreshToken string) (token string, err error) {
	ctx, span := c.startSpan(ctx, spanRefresh,
		attribute.String("tenant.id", d.ID),
		attribute.String("request.id", requestID),
	)
	defer func() { endSpan(span, err) }()

	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", &TransportError{Code: CodeInvalidRequest, Message: "encode refresh request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(d.Endpoint, c.refreshPath, nil), bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Code: CodeInvalidRequest, Message: "build refresh request", Err: err}
	}
	attachDefaults(req, c.tenantHeader, d.ID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		te := classifyTransportError(ctx, err)
		te.HTTPStatus = resp.StatusCode
		return "", te
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", upstreamError(resp.StatusCode, body)
	}

	var rr refreshResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", &TransportError{
			Code:       CodeDecode,
			Message:    "decode refresh response",
			HTTPStatus: resp.StatusCode,
			Err:        err,
		}
	}

	token = rr.token()
	if token == "" {
		return "", &TransportError{
			Code:       CodeUpstream,
			Message:    "refresh response carried no access token",
			HTTPStatus: resp.StatusCode,
		}
	}

	return token, nil
}
