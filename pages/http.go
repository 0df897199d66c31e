package pages

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leggettc18/chirp/prefetch"
	"github.com/leggettc18/chirp/render"
	"github.com/leggettc18/chirp/shield"
	"github.com/leggettc18/chirp/wire"
)

// HandlerConfig wires the non-page endpoints.
type HandlerConfig struct {
	// RPC serves live client fetches at POST /rpc.
	RPC http.Handler
	// MCP serves the admin tools at /mcp.
	MCP http.Handler
	// MaxRPCBody caps /rpc request bodies. Default 1 MiB.
	MaxRPCBody int64
}

// Handler routes every template pattern plus /rpc, /mcp and /healthz.
func (r *Registry) Handler(cfg HandlerConfig) http.Handler {
	if cfg.MaxRPCBody <= 0 {
		cfg.MaxRPCBody = 1 << 20
	}

	mux := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		mux.Use(mw)
	}

	notFound := func(w http.ResponseWriter, req *http.Request) {
		html, err := render.NotFoundPage().Render()
		if err != nil {
			http.NotFound(w, req)
			return
		}
		writeHTML(w, http.StatusNotFound, html)
	}

	// Endpoint paths are routed for every method so a GET never falls
	// through to the /{slug} profile template.
	mux.Handle("/healthz", allow(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}), http.MethodGet))
	if cfg.RPC != nil {
		mux.With(shield.MaxBody(cfg.MaxRPCBody)).Handle("/rpc", allow(cfg.RPC, http.MethodPost))
	} else {
		mux.HandleFunc("/rpc", notFound)
	}
	if cfg.MCP != nil {
		mux.Handle("/mcp", cfg.MCP)
	} else {
		mux.HandleFunc("/mcp", notFound)
	}
	for _, t := range r.templates {
		mux.Get(t.Pattern, r.servePage(t))
	}
	mux.NotFound(notFound)
	return mux
}

func (r *Registry) servePage(t *Template) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		params := make(map[string]any, 1)
		if v := chi.URLParam(req, t.Param); v != "" {
			params[t.Param] = v
		}

		page, err := r.Serve(req.Context(), t, params)
		if err != nil {
			status := HTTPStatus(err)
			shield.GetLogger(req.Context()).Error("pages: serve failed",
				"template", t.Name, "status", status, "error", err)
			http.Error(w, http.StatusText(status), status)
			return
		}
		if page.GenerationID != "" {
			w.Header().Set("X-Chirp-Generation", page.GenerationID)
		}
		writeHTML(w, page.Status, page.HTML)
	}
}

// HTTPStatus maps a Serve error to a response status. None of them carry
// page content.
func HTTPStatus(err error) int {
	var (
		cfgErr *ConfigurationError
		genErr *prefetch.GenerationError
		serErr *wire.SerializationError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &serErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// allow answers 405 to any method outside methods.
func allow(h http.Handler, methods ...string) http.Handler {
	allowed := strings.Join(methods, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !slices.Contains(methods, req.Method) {
			w.Header().Set("Allow", allowed)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, req)
	})
}

func writeHTML(w http.ResponseWriter, status int, html []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(html)
}
