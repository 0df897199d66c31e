package prefetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leggettc18/chirp/kit"
	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/wire"
)

type userInput struct {
	Username string `json:"username"`
}

func newRouter(t *testing.T) (*procedure.Router, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	r := procedure.New()
	r.RegisterLocal("profile.getUserByUsername", procedure.Typed(func(ctx context.Context, in *userInput) (map[string]any, error) {
		calls.Add(1)
		if !kit.IsAnonymous(ctx) || kit.GetTransport(ctx) != kit.TransportGenerate {
			return nil, errors.New("prefetch ran with a caller identity")
		}
		if in.Username != "alice" {
			return nil, &procedure.NotFoundError{Procedure: "profile.getUserByUsername"}
		}
		return map[string]any{"id": "u1", "username": "alice", "createdAt": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
	}))
	r.RegisterLocal("posts.getById", func(ctx context.Context, input []byte) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("database unavailable")
	})
	return r, &calls
}

func TestPrefetch_Success(t *testing.T) {
	r, _ := newRouter(t)
	ctx := kit.WithUserID(context.Background(), "someone")
	h := New(r)

	e, err := h.Prefetch(ctx, Descriptor{Procedure: "profile.getUserByUsername", Input: userInput{Username: "alice"}})
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if e.Status != query.StatusSuccess {
		t.Fatalf("status: got %v, want success", e.Status)
	}
	key := querykey.MustFor("profile.getUserByUsername", map[string]any{"username": "alice"})
	if _, ok := h.Store().Get(key); !ok {
		t.Fatalf("entry not stored under %s", key)
	}
}

func TestPrefetch_NotFoundIsEntry(t *testing.T) {
	r, _ := newRouter(t)
	h := New(r)
	e, err := h.Prefetch(context.Background(), Descriptor{Procedure: "profile.getUserByUsername", Input: userInput{Username: "ghost"}})
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if e.Status != query.StatusNotFound {
		t.Fatalf("status: got %v, want notfound", e.Status)
	}
}

func TestPrefetch_FailureIsGenerationError(t *testing.T) {
	r, _ := newRouter(t)
	h := New(r)
	_, err := h.Prefetch(context.Background(), Descriptor{Procedure: "posts.getById", Input: map[string]any{"id": "p1"}})
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("got %v, want *GenerationError", err)
	}
	if ge.Procedure != "posts.getById" {
		t.Fatalf("procedure: got %q", ge.Procedure)
	}
	if h.Store().Len() != 0 {
		t.Fatal("failed prefetch installed an entry")
	}
}

func TestPrefetch_SerializationErrorIsFatal(t *testing.T) {
	r, _ := newRouter(t)
	h := New(r)
	_, err := h.Prefetch(context.Background(), Descriptor{Procedure: "posts.getById", Input: map[string]any{"f": func() {}}})
	var se *wire.SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want *wire.SerializationError", err)
	}
}

func TestPrefetch_SameDescriptorRunsOnce(t *testing.T) {
	r, calls := newRouter(t)
	h := New(r)
	d := Descriptor{Procedure: "profile.getUserByUsername", Input: map[string]any{"username": "alice"}}
	for i := 0; i < 3; i++ {
		if _, err := h.Prefetch(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls: got %d, want 1", n)
	}
}

func TestDehydrate_HydratesOnClient(t *testing.T) {
	r, _ := newRouter(t)
	h := New(r)
	if _, err := h.Prefetch(context.Background(), Descriptor{Procedure: "profile.getUserByUsername", Input: map[string]any{"username": "alice"}}); err != nil {
		t.Fatal(err)
	}
	payload, err := h.Dehydrate()
	if err != nil {
		t.Fatal(err)
	}
	client := query.NewStore()
	if n, err := query.Hydrate(client, payload); err != nil || n != 1 {
		t.Fatalf("Hydrate: %d, %v", n, err)
	}
	e, ok := client.Get(querykey.MustFor("profile.getUserByUsername", userInput{Username: "alice"}))
	if !ok || !e.Hydrated {
		t.Fatalf("client entry: %+v, %v", e, ok)
	}
	if _, ok := e.Data.(map[string]any)["createdAt"].(time.Time); !ok {
		t.Fatalf("createdAt lost its type: %T", e.Data.(map[string]any)["createdAt"])
	}
}
