package procedure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/leggettc18/chirp/kit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, input []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, input)
			}
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(echo)
	if _, err := h(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := len(order); got != 3 || order[0] != "a" || order[2] != "c" {
		t.Fatalf("order: got %v, want [a b c]", order)
	}
}

func TestLogging_TagsTraceAndRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := Logging(logger, "posts.getById")(echo)

	ctx := kit.WithRequestID(kit.WithTraceID(context.Background(), "trace-1"), "req_1")
	if _, err := h(ctx, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"procedure":"posts.getById"`, `"trace_id":"trace-1"`, `"request_id":"req_1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line lacks %s:\n%s", want, out)
		}
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(quiet)(func(ctx context.Context, input []byte) ([]byte, error) {
		panic("boom")
	})
	_, err := h(context.Background(), nil)
	var p *ErrPanic
	if !errors.As(err, &p) {
		t.Fatalf("got %v, want *ErrPanic", err)
	}
	if p.Value != "boom" {
		t.Fatalf("panic value: got %v", p.Value)
	}
}

func TestTimeout(t *testing.T) {
	h := Timeout(20 * time.Millisecond)(func(ctx context.Context, input []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if _, err := h(context.Background(), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestWithRetry_RetriesFailures(t *testing.T) {
	calls := 0
	h := WithRetry(2, time.Millisecond, quiet)(func(ctx context.Context, input []byte) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	})
	resp, err := h(context.Background(), nil)
	if err != nil || string(resp) != "ok" {
		t.Fatalf("got %q, %v", resp, err)
	}
	if calls != 3 {
		t.Fatalf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_NeverRetriesNotFound(t *testing.T) {
	calls := 0
	h := WithRetry(5, time.Millisecond, quiet)(func(ctx context.Context, input []byte) ([]byte, error) {
		calls++
		return nil, &NotFoundError{Procedure: "posts.getById"}
	})
	if _, err := h(context.Background(), nil); !IsNotFound(err) {
		t.Fatalf("got %v, want NotFound", err)
	}
	if calls != 1 {
		t.Fatalf("calls: got %d, want 1", calls)
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(
		WithBreakerThreshold(3),
		WithBreakerResetTimeout(100*time.Millisecond),
		WithBreakerHalfOpenMax(1),
		WithBreakerClock(func() time.Time { return now }),
	)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerOpen || cb.Allow() {
		t.Fatal("expected open after 3 failures")
	}
	now = now.Add(200 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatal("expected half-open after reset timeout")
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatal("expected closed after half-open success")
	}
}

func TestWithCircuitBreaker_NotFoundIsSuccess(t *testing.T) {
	cb := NewCircuitBreaker(WithBreakerThreshold(1))
	h := WithCircuitBreaker(cb, "posts.getById")(func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, &NotFoundError{Procedure: "posts.getById"}
	})
	for i := 0; i < 3; i++ {
		if _, err := h(context.Background(), nil); !IsNotFound(err) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	if cb.State() != BreakerClosed {
		t.Fatal("NotFound results opened the breaker")
	}

	failing := WithCircuitBreaker(cb, "posts.getById")(func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, errors.New("down")
	})
	_, _ = failing(context.Background(), nil)
	_, err := failing(context.Background(), nil)
	var open *ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("got %v, want *ErrCircuitOpen", err)
	}
}

func TestRouterWrap(t *testing.T) {
	r := New()
	r.RegisterLocal("a.b", func(ctx context.Context, input []byte) ([]byte, error) { panic("x") })
	r.Wrap(Recovery(quiet), Logging(quiet, "a.b"))

	_, err := r.Call(context.Background(), "a.b", nil)
	var p *ErrPanic
	if !errors.As(err, &p) {
		t.Fatalf("got %v, want *ErrPanic", err)
	}
}
