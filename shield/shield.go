// Package shield holds the HTTP middleware every chirp endpoint runs behind:
// security headers, HEAD handling, request tracing and body limits.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
//	r.With(shield.MaxBody(1 << 20)).Post("/rpc", rpc.ServeHTTP)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware applied to every route, outermost
// first: HeadToGet → SecurityHeaders → TraceID.
func DefaultStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		TraceID,
	}
}
