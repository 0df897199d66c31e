// Package prefetch runs the queries a page needs on the server, ahead of
// rendering, and serializes the results for the client cache.
//
// Usage:
//
//	h := prefetch.New(router)
//	user, err := h.Prefetch(ctx, prefetch.Descriptor{
//		Procedure: "profile.getUserByUsername",
//		Input:     map[string]any{"username": "alice"},
//	})
//	payload, err := h.Dehydrate()
//
// Every call runs under an anonymous context: generated pages are shared by
// all visitors and must not depend on who triggered the generation.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leggettc18/chirp/kit"
	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/wire"
)

// Descriptor names one query to run before rendering.
type Descriptor struct {
	Procedure string
	Input     any
}

// GenerationError aborts a page generation: the procedure failed for a
// reason other than "not found".
type GenerationError struct {
	Procedure string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("prefetch %s: %v", e.Procedure, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Helper owns the query store of one generation.
type Helper struct {
	caller procedure.Caller
	store  *query.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Helper.
type Option func(*Helper)

func WithLogger(l *slog.Logger) Option {
	return func(h *Helper) { h.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Helper) { h.now = now }
}

// New returns a Helper with an empty store.
func New(caller procedure.Caller, opts ...Option) *Helper {
	h := &Helper{
		caller: caller,
		store:  query.NewStore(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Store returns the helper's query store.
func (h *Helper) Store() *query.Store { return h.store }

// Prefetch runs d and records the result. A not-found result is an entry
// with StatusNotFound and a nil error. Serialization failures come back as
// *wire.SerializationError; every other failure as *GenerationError.
func (h *Helper) Prefetch(ctx context.Context, d Descriptor) (query.Entry, error) {
	key, err := querykey.For(d.Procedure, d.Input)
	if err != nil {
		var serr *wire.SerializationError
		if errors.As(err, &serr) {
			return query.Entry{}, err
		}
		return query.Entry{}, &GenerationError{Procedure: d.Procedure, Err: err}
	}
	if e, ok := h.store.Get(key); ok && e.Resolved() {
		return e, nil
	}
	input, err := wire.Normalize(d.Input)
	if err != nil {
		return query.Entry{}, err
	}

	start := h.now()
	data, err := procedure.Invoke(kit.Anonymous(ctx), h.caller, d.Procedure, input)
	e := query.Entry{Key: key, Procedure: d.Procedure, Input: input, UpdatedAt: h.now()}

	var serr *wire.SerializationError
	switch {
	case err == nil:
		e.Status = query.StatusSuccess
		e.Data = data
	case procedure.IsNotFound(err):
		e.Status = query.StatusNotFound
		e.Err = err
	case errors.As(err, &serr):
		return query.Entry{}, err
	default:
		h.logger.WarnContext(ctx, "prefetch failed",
			"procedure", d.Procedure, "key", key.Hash(), "error", err)
		return query.Entry{}, &GenerationError{Procedure: d.Procedure, Err: err}
	}

	h.store.Set(e)
	h.logger.DebugContext(ctx, "prefetched",
		"procedure", d.Procedure,
		"status", e.Status.String(),
		"duration_ms", h.now().Sub(start).Milliseconds())
	return e, nil
}

// Dehydrate serializes the resolved entries for embedding in the page.
func (h *Helper) Dehydrate() ([]byte, error) {
	return h.store.Encode()
}
