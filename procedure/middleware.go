package procedure

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/leggettc18/chirp/kit"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first is the outermost.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Wrap applies mws to every local handler registered so far.
func (r *Router) Wrap(mws ...HandlerMiddleware) {
	chain := Chain(mws...)
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, h := range r.localHandlers {
		r.localHandlers[name] = chain(h)
	}
}

// Logging logs every call of procedure with its duration, tagged with the
// trace and request ids found in ctx. NotFound results are logged at debug
// level.
func Logging(logger *slog.Logger, procedure string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, input)
			dur := time.Since(start)

			log := logger.With("procedure", procedure, "transport", kit.GetTransport(ctx))
			if id := kit.GetTraceID(ctx); id != "" {
				log = log.With("trace_id", id)
			}
			if id := kit.GetRequestID(ctx); id != "" {
				log = log.With("request_id", id)
			}
			switch {
			case err == nil:
				log.DebugContext(ctx, "procedure ok",
					"duration_ms", dur.Milliseconds(),
					"input_bytes", len(input),
					"result_bytes", len(resp))
			case IsNotFound(err):
				log.DebugContext(ctx, "procedure not found",
					"duration_ms", dur.Milliseconds())
			default:
				log.ErrorContext(ctx, "procedure failed",
					"duration_ms", dur.Milliseconds(),
					"input_bytes", len(input),
					"error", err)
			}
			return resp, err
		}
	}
}

// Timeout bounds every call. A zero duration disables it.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, input []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, input)
		}
	}
}

// Recovery converts panics in downstream handlers into *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, input []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "handler panic recovered",
						"panic", r,
						"stack", string(debug.Stack()))
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx, input)
		}
	}
}

// WithRetry retries failed calls with exponential backoff. NotFound results,
// open circuits and cancelled contexts are returned immediately.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, input)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil || IsNotFound(err) {
					return nil, err
				}
				var open *ErrCircuitOpen
				if errors.As(err, &open) {
					return nil, err
				}

				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "retrying call",
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					select {
					case <-ctx.Done():
						return nil, lastErr
					case <-time.After(wait):
					}
				}
			}
			return nil, lastErr
		}
	}
}
