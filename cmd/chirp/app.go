package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leggettc18/chirp/dbopen"
	"github.com/leggettc18/chirp/feed"
	"github.com/leggettc18/chirp/pages"
	"github.com/leggettc18/chirp/procedure"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	feed     *feed.Feed
	routesDB *sql.DB
	pagesDB  *sql.DB
	router   *procedure.Router
	pages    *pages.Registry
	mcp      *mcp.Server
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.logLevel()}))
	slog.SetDefault(logger)
	return logger
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.feed, err = feed.New(&feed.Config{
		DBPath:        cfg.FeedDB,
		FeedLimit:     cfg.FeedLimit,
		MaxPostLength: cfg.MaxPostLength,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.routesDB, err = dbopen.Open(cfg.RoutesDB, dbopen.WithMkdirAll(), dbopen.WithSchema(procedure.Schema))
	if err != nil {
		return nil, err
	}
	a.router = procedure.New(procedure.WithLogger(logger))
	a.router.RegisterTransport(procedure.StrategyJSONRPC, procedure.JSONRPCFactory(logger))
	a.feed.RegisterProcedures(a.router)
	a.router.Wrap(procedure.Recovery(logger), procedure.Timeout(cfg.ProcedureTimeout))
	if err := a.router.Reload(ctx, a.routesDB); err != nil {
		return nil, err
	}

	a.pagesDB, err = dbopen.Open(cfg.PagesDB, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	a.pages, err = pages.New(a.router, []*pages.Template{
		pages.ProfileTemplate(),
		pages.PostTemplate(),
	},
		pages.WithDB(a.pagesDB),
		pages.WithLogger(logger),
		pages.WithTimeout(cfg.GenerationTimeout),
		pages.WithCacheCapacity(cfg.PageCache),
		pages.WithConcurrency(cfg.Generations),
	)
	if err != nil {
		return nil, err
	}

	a.mcp = mcp.NewServer(&mcp.Implementation{Name: "chirp", Version: version}, nil)
	a.feed.RegisterMCP(a.mcp)
	a.pages.RegisterMCP(a.mcp)
	procedure.RegisterMCP(a.mcp, a.router, procedure.NewAdmin(a.routesDB))
	return a, nil
}

// handler builds the HTTP surface: pages, /rpc, /healthz and optionally /mcp.
func (a *app) handler() (http.Handler, error) {
	rpc, err := procedure.NewJSONRPCHandler(a.router, a.logger)
	if err != nil {
		return nil, err
	}
	cfg := pages.HandlerConfig{RPC: rpc, MaxRPCBody: a.cfg.MaxRPCBody}
	if a.cfg.MCP {
		cfg.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return a.mcp }, nil)
	}
	return a.pages.Handler(cfg), nil
}

func (a *app) Close() error {
	var errs []error
	if a.pages != nil {
		a.pages.Close()
	}
	if a.router != nil {
		errs = append(errs, a.router.Close())
	}
	for _, db := range []*sql.DB{a.pagesDB, a.routesDB} {
		if db != nil {
			errs = append(errs, db.Close())
		}
	}
	if a.feed != nil {
		errs = append(errs, a.feed.Close())
	}
	return errors.Join(errs...)
}
