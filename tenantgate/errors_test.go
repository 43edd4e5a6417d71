package tenantgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamError(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantCode     Code
		wantMessage  string
		wantUpstream string
		wantErrors   []string
	}{
		{
			name:        "flat envelope",
			status:      http.StatusBadRequest,
			body:        `{"message":"bad input","code":"E100","errors":["a","b"]}`,
			wantCode:    CodeUpstream,
			wantMessage: "bad input", wantUpstream: "E100",
			wantErrors: []string{"a", "b"},
		},
		{
			name:        "nested envelope",
			status:      http.StatusForbidden,
			body:        `{"error":{"code":"forbidden","message":"no access"}}`,
			wantCode:    CodeUpstream,
			wantMessage: "no access", wantUpstream: "forbidden",
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        ``,
			wantCode:    CodeUnauthorized,
			wantMessage: "unauthorized",
		},
		{
			name:        "non-json body",
			status:      http.StatusServiceUnavailable,
			body:        `<html>down</html>`,
			wantCode:    CodeUpstream,
			wantMessage: "service unavailable",
		},
		{
			name:        "unknown status",
			status:      599,
			wantCode:    CodeUpstream,
			wantMessage: "unexpected status",
		},
		{
			name:        "mixed error items",
			status:      http.StatusUnprocessableEntity,
			body:        `{"errors":[{"message":"x"},42]}`,
			wantCode:    CodeUpstream,
			wantMessage: "unprocessable entity",
			wantErrors:  []string{"x", "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := upstreamError(tt.status, []byte(tt.body))

			assert.Equal(t, tt.wantCode, te.Code)
			assert.Equal(t, tt.status, te.HTTPStatus)
			assert.Equal(t, tt.wantMessage, te.Message)
			assert.Equal(t, tt.wantUpstream, te.UpstreamCode)
			assert.Equal(t, tt.wantErrors, te.Errors)
		})
	}
}

func TestTransportError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("loading profile: %w", &TransportError{Code: CodeNetwork, Message: "request failed", Err: cause})

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.True(t, HasCode(err, CodeNetwork))
	assert.False(t, HasCode(cause, CodeNetwork))
	assert.Equal(t, "loading profile: tenantgate: request failed: dial tcp: connection refused", err.Error())
}

func TestTransportError_MessageDefaultsToCode(t *testing.T) {
	assert.Equal(t, "tenantgate: session_invalid", ErrSessionInvalid.Error())
	assert.Equal(t, "tenantgate: client is closed", ErrClosed.Error())
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-expired.Done()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want Code
	}{
		{"deadline", context.Background(), context.DeadlineExceeded, CodeTimeout},
		{"deadline from ctx", expired, errors.New("read: connection reset"), CodeTimeout},
		{"net timeout", context.Background(), timeoutError{}, CodeTimeout},
		{"canceled", context.Background(), fmt.Errorf("get: %w", context.Canceled), CodeCanceled},
		{"other", context.Background(), errors.New("connection refused"), CodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := classifyTransportError(tt.ctx, tt.err)
			require.NotNil(t, te)
			assert.Equal(t, tt.want, te.Code)
			assert.ErrorIs(t, te, tt.err)
		})
	}
}

func TestReportable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("plain"), true},
		{&TransportError{Code: CodeNetwork}, true},
		{&TransportError{Code: CodeTimeout}, true},
		{&TransportError{Code: CodeSessionInvalid}, true},
		{&TransportError{Code: CodeCanceled}, false},
		{ErrClosed, false},
		{&TransportError{Code: CodeInvalidRequest}, false},
		{&TransportError{Code: CodeUpstream, HTTPStatus: 404}, false},
		{&TransportError{Code: CodeUnauthorized, HTTPStatus: 401}, false},
		{&TransportError{Code: CodeUpstream, HTTPStatus: 503}, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, reportable(tt.err), "%v", tt.err)
	}
}
