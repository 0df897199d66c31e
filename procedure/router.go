// Package procedure dispatches named remote procedures ("profile.getUserByUsername",
// "posts.getById", ...) either in-process or to another chirp instance over
// JSON-RPC, based on a SQLite routes table reloaded at runtime.
//
// Inputs and results travel in the wire format, so a procedure served
// locally and one served remotely are indistinguishable to the caller.
//
//	router := procedure.New()
//	router.RegisterTransport("jsonrpc", procedure.JSONRPCFactory())
//	router.RegisterLocal("posts.getById", svc.GetPostByID)
//	go router.Watch(ctx, db, 200*time.Millisecond)
//
//	v, err := procedure.Invoke(ctx, router, "posts.getById", map[string]any{"id": id})
//
// A procedure that finds nothing returns *NotFoundError. That is a result,
// not a failure: retries, circuit breakers and loggers treat it as success.
package procedure

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Handler serves one procedure: wire-encoded input in, wire-encoded result out.
type Handler func(ctx context.Context, input []byte) ([]byte, error)

// Caller is anything that can run a procedure by name. *Router and
// *JSONRPCCaller both implement it.
type Caller interface {
	Call(ctx context.Context, procedure string, input []byte) ([]byte, error)
}

// TransportFactory creates a Handler that serves procedure from a remote
// endpoint. The returned
// close function is called when the route is removed or replaced during
// hot-reload; it may be nil.
type TransportFactory func(procedure, endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

const (
	StrategyLocal   = "local"
	StrategyJSONRPC = "jsonrpc"
	StrategyNoop    = "noop"
)

type route struct {
	Procedure string
	Strategy  string
	Endpoint  string
	Config    json.RawMessage
}

func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches procedure calls. Reads use RLock, reloads a full Lock.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routeSnap     map[string]route
	factories     map[string]TransportFactory
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routeSnap:     make(map[string]route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for a procedure.
func (r *Router) RegisterLocal(procedure string, h Handler) {
	r.mu.Lock()
	r.localHandlers[procedure] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a route strategy.
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Call dispatches a procedure call. Resolution order:
//  1. noop route: the procedure is disabled and reports NotFound.
//  2. remote route built from the routes table.
//  3. local handler.
//  4. *ErrProcedureNotFound.
func (r *Router) Call(ctx context.Context, procedure string, input []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[procedure]
	localH := r.localHandlers[procedure]
	snap, hasRoute := r.routeSnap[procedure]
	r.mu.RUnlock()

	if hasRoute && snap.Strategy == StrategyNoop {
		r.logger.DebugContext(ctx, "routing noop", "procedure", procedure)
		return nil, &NotFoundError{Procedure: procedure, Message: "procedure disabled"}
	}

	if hasRemote {
		r.logger.DebugContext(ctx, "routing remote",
			"procedure", procedure, "strategy", snap.Strategy, "endpoint", snap.Endpoint)
		return entry.handler(ctx, input)
	}

	if localH != nil {
		r.logger.DebugContext(ctx, "routing local", "procedure", procedure)
		return localH(ctx, input)
	}

	return nil, &ErrProcedureNotFound{Procedure: procedure}
}

// Reload reads the routes table and rebuilds the remote handler map. Only
// routes whose (strategy, endpoint, config) changed are rebuilt.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT procedure, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("procedure: query routes: %w", err)
	}
	defer rows.Close()

	newRoutes := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfgStr string
		if err := rows.Scan(&rt.Procedure, &rt.Strategy, &rt.Endpoint, &cfgStr); err != nil {
			return fmt.Errorf("procedure: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfgStr)
		newRoutes[rt.Procedure] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("procedure: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newEntries := make(map[string]remoteEntry, len(newRoutes))
	for name, rt := range newRoutes {
		if rt.Strategy == StrategyLocal || rt.Strategy == StrategyNoop {
			continue
		}
		if old, ok := r.routeSnap[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, exists := r.remoteEntries[name]; exists {
				newEntries[name] = existing
				continue
			}
		}

		factory, ok := r.factories[rt.Strategy]
		if !ok {
			r.logger.Warn("no transport factory for strategy",
				"procedure", name, "strategy", rt.Strategy)
			continue
		}
		h, closeFn, err := factory(name, rt.Endpoint, rt.Config)
		if err != nil {
			r.logger.Error("route build failed", "error", &ErrFactoryFailed{
				Procedure: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err,
			})
			continue
		}
		newEntries[name] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("route built",
			"procedure", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remoteEntries {
		if old.close == nil {
			continue
		}
		if _, stillExists := newEntries[name]; !stillExists {
			old.close()
			continue
		}
		if r.routeSnap[name].fingerprint() != newRoutes[name].fingerprint() {
			old.close()
		}
	}

	r.remoteEntries = newEntries
	r.routeSnap = newRoutes

	r.logger.Info("routes reloaded",
		"total", len(newRoutes),
		"remote", len(newEntries))
	return nil
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routeSnap = make(map[string]route)
	return nil
}
