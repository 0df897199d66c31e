// Package kit carries request-scoped identity through chirp: who is calling
// (an authenticated user, or nobody during page generation), over which
// transport, and under which trace id. It also adapts plain endpoints to MCP
// tools.
package kit

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "kit_user_id"
	TransportKey contextKey = "kit_transport" // "http", "jsonrpc", "mcp", "generate"
	RequestIDKey contextKey = "kit_request_id"
	TraceIDKey   contextKey = "kit_trace_id"
)

// TransportGenerate marks calls made while generating a static page.
const TransportGenerate = "generate"

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// Anonymous returns a context with no authenticated caller, tagged with the
// generate transport. Trace and request ids are kept for log correlation.
func Anonymous(ctx context.Context) context.Context {
	ctx = WithUserID(ctx, "")
	return WithTransport(ctx, TransportGenerate)
}

// IsAnonymous reports whether ctx carries no authenticated caller.
func IsAnonymous(ctx context.Context) bool {
	return GetUserID(ctx) == ""
}
