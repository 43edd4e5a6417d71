package tenantgate

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// WithRequestID returns a context whose requests carry id in the
// X-Request-ID header instead of a freshly generated one.
//
// This lets callers correlate outbound calls with an inbound request.
func WithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts a request id attached with WithRequestID.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requestIDKey).(uuid.UUID)
	return id, ok
}

func requestIDFor(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok && id != uuid.Nil {
		return id.String()
	}
	return uuid.NewString()
}
