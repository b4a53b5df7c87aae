// Package httpapi holds the HTTP surface of the gateway: request context
// plumbing, the JSON error envelope, and the authentication endpoints.
package httpapi

import (
	"context"
	"net/http"

	"queuegate/internal/authz"
)

// SessionFromContext extracts the resolved session from a request context.
func SessionFromContext(ctx context.Context) (authz.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(authz.Session)
	return s, ok
}

// ContextWithSession stores the resolved session in the context.
func ContextWithSession(ctx context.Context, s authz.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

type sessionKey struct{}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type requestIDKey struct{}

// StatusWriter wraps http.ResponseWriter to capture the status code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (sw *StatusWriter) WriteHeader(code int) {
	sw.Code = code
	sw.ResponseWriter.WriteHeader(code)
}
