package tenantgate

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Code classifies why a request failed. Codes are stable and safe to branch on.
type Code string

const (
	CodeNetwork        Code = "network_error"
	CodeTimeout        Code = "timeout"
	CodeCanceled       Code = "canceled"
	CodeDecode         Code = "decode_error"
	CodeInvalidRequest Code = "invalid_request"
	CodeUpstream       Code = "upstream_error"
	CodeUnauthorized   Code = "unauthorized"
	CodeSessionInvalid Code = "session_invalid"
	CodeClosed         Code = "client_closed"
)

// TransportError is the single failure shape returned by the client.
//
// Every failure kind (network, timeout, upstream status, session loss)
// surfaces as a TransportError; only Code and HTTPStatus tell them apart.
// errors.Is matches TransportErrors by Code, so the sentinels below can be
// used as targets.
type TransportError struct {
	Code    Code
	Message string

	// HTTPStatus is the upstream status code, or 0 when no response was received.
	HTTPStatus int

	// UpstreamCode is the application error code reported in the response body, if any.
	UpstreamCode string

	// Errors lists structured error messages reported in the response body.
	Errors []string

	Err error
}

var (
	ErrNetwork        = &TransportError{Code: CodeNetwork}
	ErrTimeout        = &TransportError{Code: CodeTimeout}
	ErrUpstream       = &TransportError{Code: CodeUpstream}
	ErrUnauthorized   = &TransportError{Code: CodeUnauthorized}
	ErrSessionInvalid = &TransportError{Code: CodeSessionInvalid}
	ErrClosed         = &TransportError{Code: CodeClosed, Message: "client is closed"}
)

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return "tenantgate: " + msg + ": " + e.Err.Error()
	}
	return "tenantgate: " + msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches by Code.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HasCode reports whether err is a TransportError with the given code.
func HasCode(err error, code Code) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// classifyTransportError maps a failed round trip to a TransportError.
// ctx is the per-attempt context so deadline expiry can be told apart from
// connection failures.
func classifyTransportError(ctx context.Context, err error) *TransportError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &TransportError{Code: CodeTimeout, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &TransportError{Code: CodeCanceled, Message: "request canceled", Err: err}
	default:
		return &TransportError{Code: CodeNetwork, Message: "request failed", Err: err}
	}
}

// errorBody covers the two error envelopes backends send:
//
//	{"message": "...", "code": "...", "errors": [...]}
//	{"error": {"code": "...", "message": "..."}}
type errorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Errors  []json.RawMessage `json:"errors"`
	Nested  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// upstreamError builds the error for a non-success HTTP status.
func upstreamError(status int, body []byte) *TransportError {
	code := CodeUpstream
	if status == http.StatusUnauthorized {
		code = CodeUnauthorized
	}

	te := &TransportError{Code: code, HTTPStatus: status}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		te.Message = eb.Message
		te.UpstreamCode = eb.Code
		if eb.Nested != nil {
			if te.Message == "" {
				te.Message = eb.Nested.Message
			}
			if te.UpstreamCode == "" {
				te.UpstreamCode = eb.Nested.Code
			}
		}
		te.Errors = errorMessages(eb.Errors)
	}

	if te.Message == "" {
		te.Message = strings.ToLower(http.StatusText(status))
		if te.Message == "" {
			te.Message = "unexpected status"
		}
	}

	return te
}

// errorMessages flattens an "errors" list whose items are either strings or
// objects carrying a "message" field.
func errorMessages(raw []json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
			continue
		}

		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(item, &obj) == nil && obj.Message != "" {
			out = append(out, obj.Message)
			continue
		}

		out = append(out, string(item))
	}
	return out
}
