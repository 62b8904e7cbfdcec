package logtrace

import (
	"context"
	"os"
)

type requestIdKeyType string

// RequestIdKey is the context key under which the request logger
// middleware stores the request identifier.
const RequestIdKey = requestIdKeyType("requestId")

// RequestIdFromContext extracts the request ID from the context, or
// returns an empty string if none is set.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(RequestIdKey).(string)
	if !ok {
		return ""
	}
	return r
}

// WithRequestId stores the request ID in the context.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIdKey, id)
}

// IsTraceEnabled reports whether verbose route tracing is enabled.
func IsTraceEnabled() bool {
	return os.Getenv("WORKDECK_TRACE") == "1"
}
