package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the chirp process configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	// FeedDB holds users and posts.
	FeedDB string `yaml:"feed_db"`
	// RoutesDB holds the procedure routes table, watched for changes.
	RoutesDB string `yaml:"routes_db"`
	// PagesDB holds the built pages.
	PagesDB string `yaml:"pages_db"`

	FeedLimit     int `yaml:"feed_limit"`
	MaxPostLength int `yaml:"max_post_length"`

	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	ProcedureTimeout  time.Duration `yaml:"procedure_timeout"`
	RouteReload       time.Duration `yaml:"route_reload"`
	PageCache         uint64        `yaml:"page_cache"`
	// Generations bounds the pages built at once by prebuild and generate.
	Generations       int           `yaml:"generations"`
	MaxRPCBody        int64         `yaml:"max_rpc_body"`

	// MCP exposes the admin tools at /mcp.
	MCP bool `yaml:"mcp"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FeedDB == "" {
		c.FeedDB = "data/feed.db"
	}
	if c.RoutesDB == "" {
		c.RoutesDB = "data/routes.db"
	}
	if c.PagesDB == "" {
		c.PagesDB = "data/pages.db"
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	if c.ProcedureTimeout <= 0 {
		c.ProcedureTimeout = 10 * time.Second
	}
	if c.RouteReload <= 0 {
		c.RouteReload = 2 * time.Second
	}
	if c.PageCache == 0 {
		c.PageCache = 1024
	}
	if c.Generations <= 0 {
		c.Generations = 4
	}
	if c.MaxRPCBody <= 0 {
		c.MaxRPCBody = 1 << 20
	}
}

// loadConfig reads path (optional), applies CHIRP_* overrides, then fills
// defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	cfg.defaults()
	return &cfg, nil
}

func (c *Config) overlayEnv() error {
	c.Addr = env("CHIRP_ADDR", c.Addr)
	c.LogLevel = env("CHIRP_LOG_LEVEL", c.LogLevel)
	c.FeedDB = env("CHIRP_FEED_DB", c.FeedDB)
	c.RoutesDB = env("CHIRP_ROUTES_DB", c.RoutesDB)
	c.PagesDB = env("CHIRP_PAGES_DB", c.PagesDB)
	if v := os.Getenv("CHIRP_GENERATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CHIRP_GENERATION_TIMEOUT: %w", err)
		}
		c.GenerationTimeout = d
	}
	if v := os.Getenv("CHIRP_MCP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CHIRP_MCP: %w", err)
		}
		c.MCP = b
	}
	return nil
}

func (c *Config) logLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
