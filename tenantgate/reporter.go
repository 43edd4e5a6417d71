package tenantgate

import (
	"context"
	"errors"
)

// Reporter receives failures worth surfacing to an error-reporting service.
//
// It is an optional capability supplied at construction; the client never
// looks one up at request time.
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]string)
}

type noopReporter struct{}

func (noopReporter) Report(context.Context, error, map[string]string) {}

// reportable filters out expected failures: client-side 4xx responses and
// cancellations are the caller's business, not an incident.
func reportable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return true
	}
	switch te.Code {
	case CodeCanceled, CodeClosed, CodeInvalidRequest:
		return false
	case CodeUpstream, CodeUnauthorized:
		return te.HTTPStatus >= 500
	default:
		return true
	}
}
