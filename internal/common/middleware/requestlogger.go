// Package middleware provides the HTTP middleware shared by the
// Workdeck services: request logging with request IDs, timeout
// enforcement, and panic recovery. Logging is structured via zerolog.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/logtrace"
	"github.com/workdeck/workdeck/internal/common/uuid"
)

// RequestIDHeader carries the request ID back to the client.
const RequestIDHeader = "X-Workdeck-Request-ID"

// RequestLogger assigns each request a unique ID, stores it in the
// context and response headers, and logs request start and completion
// with timing.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		requestID := newRequestId()
		ctx = logtrace.WithRequestId(ctx, requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)

		log.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", r.RemoteAddr).
			Str("proto", r.Proto).
			Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
				Msg("request completed")
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestId returns a UUIDv7, or a timestamp fallback if generation
// fails.
func newRequestId() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}
