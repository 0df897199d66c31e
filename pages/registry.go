// Package pages serves generated pages with an on-demand static policy:
// a path is generated the first time it is requested, then served as built
// until an admin invalidates it.
//
// Each concrete path is Unbuilt, Building or Built. Concurrent requests for
// a Building path wait for the one running generation and share its result.
// A failed generation leaves the path Unbuilt so the next request retries.
//
//	reg, err := pages.New(router, []*pages.Template{
//		pages.ProfileTemplate(),
//		pages.PostTemplate(),
//	}, pages.WithDB(db), pages.WithLogger(logger))
//	http.ListenAndServe(addr, reg.Handler(pages.HandlerConfig{RPC: rpc}))
package pages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/leggettc18/chirp/idgen"
	"github.com/leggettc18/chirp/pages/internal/store"
	"github.com/leggettc18/chirp/prefetch"
	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/render"
)

var (
	ErrNoTemplate = errors.New("pages: no template matches path")
	ErrBuilding   = errors.New("pages: generation in progress")
)

// Fallback decides what happens to a path that is not built yet.
type Fallback int

const (
	// FallbackBlocking generates the page for the first request.
	FallbackBlocking Fallback = iota
	// FallbackNone answers 404 for anything StaticPaths did not list.
	FallbackNone
)

// PathState is the build state of one concrete path.
type PathState int

const (
	Unbuilt PathState = iota
	Building
	Built
)

func (s PathState) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Building:
		return "building"
	case Built:
		return "built"
	}
	return "unknown"
}

// ConfigurationError reports a route parameter that is missing, empty or
// not a string. It is raised before any procedure call.
type ConfigurationError struct {
	Template string
	Param    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pages: template %s: route parameter %q %s", e.Template, e.Param, e.Reason)
}

// Template describes one kind of page.
type Template struct {
	Name string
	// Pattern is a chi route pattern with exactly one parameter, "/{slug}".
	Pattern   string
	Param     string
	Normalize func(string) string
	// StaticPaths lists parameter values built by Prebuild. May be nil.
	StaticPaths func(ctx context.Context) ([]string, error)
	Fallback    Fallback
	// Prefetch runs the page's queries. NotFound results are not errors.
	Prefetch func(ctx context.Context, h *prefetch.Helper, param string) error
	Render   func(store *query.Store, param string) (*render.Document, error)
}

// Path returns the concrete path for a normalized parameter value.
func (t *Template) Path(param string) string {
	return strings.Replace(t.Pattern, "{"+t.Param+"}", param, 1)
}

func (t *Template) resolve(params map[string]any) (string, error) {
	v, ok := params[t.Param]
	if !ok {
		return "", &ConfigurationError{Template: t.Name, Param: t.Param, Reason: "is missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigurationError{Template: t.Name, Param: t.Param, Reason: fmt.Sprintf("is %T, want string", v)}
	}
	if t.Normalize != nil {
		s = t.Normalize(s)
	}
	if s == "" || strings.Contains(s, "/") {
		return "", &ConfigurationError{Template: t.Name, Param: t.Param, Reason: fmt.Sprintf("%q is not a path segment", s)}
	}
	return s, nil
}

// match extracts the parameter from a concrete path.
func (t *Template) match(path string) (string, bool) {
	prefix, rest, ok := strings.Cut(t.Pattern, "{"+t.Param+"}")
	if !ok || !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, rest) {
		return "", false
	}
	v := path[len(prefix) : len(path)-len(rest)]
	if v == "" || strings.Contains(v, "/") {
		return "", false
	}
	return v, true
}

// Page is the output of one generation.
type Page struct {
	Path         string
	Template     string
	Status       int
	HTML         []byte
	Payload      []byte
	GenerationID string
	GeneratedAt  time.Time
}

// PathInfo describes a known path.
type PathInfo struct {
	Path     string    `json:"path"`
	Template string    `json:"template"`
	State    PathState `json:"-"`
	StateTag string    `json:"state"`
}

type build struct {
	template string
	state    PathState
	done     chan struct{} // closed when the generation ends
	page     *Page
	err      error
}

// Registry tracks the build state of every path.
type Registry struct {
	caller      procedure.Caller
	templates   []*Template
	store       *store.Store
	hot         *ttlcache.Cache[string, *Page]
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
	capacity    uint64
	db          *sql.DB
	newID       idgen.Generator
	now         func() time.Time

	mu    sync.Mutex
	paths map[string]*build
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithDB persists built pages in db and reloads them at start.
func WithDB(db *sql.DB) Option { return func(r *Registry) { r.db = db } }

// WithTimeout bounds one generation. Zero means no bound.
func WithTimeout(d time.Duration) Option { return func(r *Registry) { r.timeout = d } }

// WithConcurrency caps the generations Prebuild and GenerateAll run at
// once. Zero means no cap.
func WithConcurrency(n int) Option { return func(r *Registry) { r.concurrency = n } }

// WithCacheCapacity bounds the in-memory page cache when pages are
// persisted. Evicted pages are read back from the database.
func WithCacheCapacity(n uint64) Option { return func(r *Registry) { r.capacity = n } }

func WithIDGenerator(g idgen.Generator) Option { return func(r *Registry) { r.newID = g } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// New creates a registry serving templates through caller.
func New(caller procedure.Caller, templates []*Template, opts ...Option) (*Registry, error) {
	r := &Registry{
		caller:      caller,
		logger:      slog.Default(),
		timeout:     30 * time.Second,
		concurrency: 4,
		capacity:    1024,
		newID:       idgen.Prefixed("gen_", idgen.NanoID(12)),
		now:         func() time.Time { return time.Now().UTC() },
		paths:       make(map[string]*build),
	}
	for _, o := range opts {
		o(r)
	}

	seen := make(map[string]bool)
	for _, t := range templates {
		if t.Name == "" || seen[t.Name] {
			return nil, fmt.Errorf("pages: duplicate or empty template name %q", t.Name)
		}
		if !strings.Contains(t.Pattern, "{"+t.Param+"}") {
			return nil, fmt.Errorf("pages: template %s: pattern %q lacks {%s}", t.Name, t.Pattern, t.Param)
		}
		seen[t.Name] = true
	}
	r.templates = templates

	var cacheOpts []ttlcache.Option[string, *Page]
	if r.db != nil {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, *Page](r.capacity))
	}
	r.hot = ttlcache.New[string, *Page](cacheOpts...)

	if r.db != nil {
		s, err := store.New(r.db)
		if err != nil {
			return nil, err
		}
		r.store = s
		paths, err := s.Paths(context.Background())
		if err != nil {
			return nil, fmt.Errorf("pages: load built paths: %w", err)
		}
		for path, tmpl := range paths {
			r.paths[path] = &build{template: tmpl, state: Built}
		}
		r.logger.Info("pages: built paths loaded", "count", len(paths))
	}
	return r, nil
}

// Templates returns the registered templates in registration order.
func (r *Registry) Templates() []*Template { return slices.Clone(r.templates) }

// Match finds the template serving a concrete path and the raw parameter.
func (r *Registry) Match(path string) (*Template, map[string]any, bool) {
	for _, t := range r.templates {
		if v, ok := t.match(path); ok {
			return t, map[string]any{t.Param: v}, true
		}
	}
	return nil, nil, false
}

// Serve returns the page of t for params, generating it if needed.
func (r *Registry) Serve(ctx context.Context, t *Template, params map[string]any) (*Page, error) {
	return r.serve(ctx, t, params, false)
}

// Generate builds the page at path regardless of the template's fallback.
// An already built path is returned as is.
func (r *Registry) Generate(ctx context.Context, path string) (*Page, error) {
	t, params, ok := r.Match(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTemplate, path)
	}
	return r.serve(ctx, t, params, true)
}

// GenerateAll runs Generate for every path, at most WithConcurrency at a
// time. Pages and errors are returned in path order; one failure does not
// stop the others.
func (r *Registry) GenerateAll(ctx context.Context, paths ...string) ([]*Page, []error) {
	pages := make([]*Page, len(paths))
	errs := make([]error, len(paths))
	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, path := range paths {
		g.Go(func() error {
			pages[i], errs[i] = r.Generate(ctx, path)
			return nil
		})
	}
	g.Wait()
	return pages, errs
}

// Prebuild generates every StaticPaths entry, at most WithConcurrency at a
// time, and returns how many pages were built or already present. The
// first failure cancels the generations not yet started.
func (r *Registry) Prebuild(ctx context.Context) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	var n atomic.Int64
	for _, t := range r.templates {
		if t.StaticPaths == nil {
			continue
		}
		values, err := t.StaticPaths(ctx)
		if err != nil {
			g.Wait()
			return int(n.Load()), fmt.Errorf("pages: static paths of %s: %w", t.Name, err)
		}
		for _, v := range values {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if _, err := r.serve(gctx, t, map[string]any{t.Param: v}, true); err != nil {
					return err
				}
				n.Add(1)
				return nil
			})
		}
	}
	err := g.Wait()
	return int(n.Load()), err
}

func (r *Registry) serve(ctx context.Context, t *Template, params map[string]any, force bool) (*Page, error) {
	value, err := t.resolve(params)
	if err != nil {
		return nil, err
	}
	path := t.Path(value)

	for {
		r.mu.Lock()
		b := r.paths[path]
		if b != nil && b.state == Built {
			r.mu.Unlock()
			page, err := r.load(ctx, path)
			if err != nil || page != nil {
				return page, err
			}
			// Built but gone from both layers: build it again.
			r.forget(path, b)
			continue
		}
		if b != nil && b.state == Building {
			r.mu.Unlock()
			return wait(ctx, b)
		}
		if t.Fallback == FallbackNone && !force {
			r.mu.Unlock()
			return notBuilt(t, path)
		}

		b = &build{template: t.Name, state: Building, done: make(chan struct{})}
		r.paths[path] = b
		r.mu.Unlock()

		// The generation outlives the request that started it.
		gctx, cancel := context.WithoutCancel(ctx), context.CancelFunc(func() {})
		if r.timeout > 0 {
			gctx, cancel = context.WithTimeout(gctx, r.timeout)
		}
		go func() {
			defer cancel()
			r.generate(gctx, t, path, value, b)
		}()
		return wait(ctx, b)
	}
}

func wait(ctx context.Context, b *build) (*Page, error) {
	select {
	case <-b.done:
		if b.err != nil {
			return nil, b.err
		}
		return b.page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func notBuilt(t *Template, path string) (*Page, error) {
	html, err := render.NotFoundPage().Render()
	if err != nil {
		return nil, err
	}
	return &Page{Path: path, Template: t.Name, Status: 404, HTML: html}, nil
}

func (r *Registry) generate(ctx context.Context, t *Template, path, value string, b *build) {
	genID := r.newID()
	log := r.logger.With("path", path, "template", t.Name, "generation_id", genID)
	start := r.now()

	page, err := r.run(ctx, t, path, value, genID)

	r.mu.Lock()
	if err != nil {
		b.err = err
		if r.paths[path] == b {
			delete(r.paths, path)
		}
	} else {
		b.page = page
		b.state = Built
		r.hot.Set(path, page, ttlcache.NoTTL)
	}
	r.mu.Unlock()
	close(b.done)

	if err != nil {
		log.WarnContext(ctx, "pages: generation failed", "error", err)
		return
	}
	log.InfoContext(ctx, "pages: built",
		"status", page.Status,
		"bytes", len(page.HTML),
		"duration_ms", r.now().Sub(start).Milliseconds())
}

func (r *Registry) run(ctx context.Context, t *Template, path, value, genID string) (page *Page, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("pages: generation of %s panicked: %v", path, v)
		}
	}()

	h := prefetch.New(r.caller,
		prefetch.WithLogger(r.logger),
		prefetch.WithClock(r.now))
	if err := t.Prefetch(ctx, h, value); err != nil {
		return nil, err
	}
	doc, err := t.Render(h.Store(), value)
	if err != nil {
		return nil, err
	}
	payload, err := h.Dehydrate()
	if err != nil {
		return nil, err
	}
	doc.Data = render.NewPageData(t.Name, map[string]string{t.Param: value}, payload)
	html, err := doc.Render()
	if err != nil {
		return nil, err
	}

	page = &Page{
		Path:         path,
		Template:     t.Name,
		Status:       doc.Status,
		HTML:         html,
		Payload:      payload,
		GenerationID: genID,
		GeneratedAt:  r.now(),
	}
	if r.store != nil {
		if err := r.store.Put(ctx, &store.Row{
			Path:         page.Path,
			Template:     page.Template,
			Status:       page.Status,
			HTML:         page.HTML,
			Payload:      page.Payload,
			GenerationID: page.GenerationID,
			GeneratedAt:  page.GeneratedAt,
		}); err != nil {
			r.logger.WarnContext(ctx, "pages: persist failed", "path", path, "error", err)
		}
	}
	return page, nil
}

// load returns a built page from memory or the database, nil if neither
// has it.
func (r *Registry) load(ctx context.Context, path string) (*Page, error) {
	if item := r.hot.Get(path); item != nil {
		return item.Value(), nil
	}
	if r.store == nil {
		return nil, nil
	}
	row, err := r.store.Get(ctx, path)
	if err != nil || row == nil {
		return nil, err
	}
	page := &Page{
		Path:         row.Path,
		Template:     row.Template,
		Status:       row.Status,
		HTML:         row.HTML,
		Payload:      row.Payload,
		GenerationID: row.GenerationID,
		GeneratedAt:  row.GeneratedAt,
	}
	r.hot.Set(path, page, ttlcache.NoTTL)
	return page, nil
}

func (r *Registry) forget(path string, b *build) {
	r.mu.Lock()
	if r.paths[path] == b {
		delete(r.paths, path)
	}
	r.mu.Unlock()
}

// Invalidate returns a built path to Unbuilt. It reports whether the path
// was built.
func (r *Registry) Invalidate(ctx context.Context, path string) (bool, error) {
	r.mu.Lock()
	b := r.paths[path]
	switch {
	case b == nil:
		r.mu.Unlock()
		return false, nil
	case b.state == Building:
		r.mu.Unlock()
		return false, ErrBuilding
	}
	delete(r.paths, path)
	r.hot.Delete(path)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, path); err != nil {
			return true, fmt.Errorf("pages: invalidate %s: %w", path, err)
		}
	}
	r.logger.InfoContext(ctx, "pages: invalidated", "path", path)
	return true, nil
}

// State reports the build state of path.
func (r *Registry) State(path string) PathState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.paths[path]; b != nil {
		return b.state
	}
	return Unbuilt
}

// List returns every Building or Built path, sorted.
func (r *Registry) List() []PathInfo {
	r.mu.Lock()
	out := make([]PathInfo, 0, len(r.paths))
	for path, b := range r.paths {
		out = append(out, PathInfo{Path: path, Template: b.template, State: b.state, StateTag: b.state.String()})
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b PathInfo) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Close releases the in-memory cache.
func (r *Registry) Close() {
	r.hot.DeleteAll()
}
