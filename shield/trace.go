package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/leggettc18/chirp/idgen"
	"github.com/leggettc18/chirp/kit"
)

var (
	newTraceID   = idgen.NanoID(12)
	newRequestID = idgen.Prefixed("req_", idgen.NanoID(12))
)

// TraceID tags each request with a trace id (context, X-Trace-ID header),
// a request id unique to this hop (context, X-Request-ID header) and a
// per-request logger carrying both. An incoming X-Trace-ID is kept so a
// page fetch and the live /rpc calls it triggers can be correlated.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > 64 {
			traceID = newTraceID()
		}

		requestID := newRequestID()

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = kit.WithRequestID(ctx, requestID)
		ctx = kit.WithTransport(ctx, "http")
		w.Header().Set("X-Trace-ID", traceID)
		w.Header().Set("X-Request-ID", requestID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request", "remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
