// Package feed is chirp's backing store: users, their posts, and the read
// procedures pages are generated from.
//
// Procedures:
//
//	profile.getUserByUsername {username} → User, or NotFound
//	posts.getPostsByUserId    {userId}   → []PostWithAuthor, newest first
//	posts.getById             {id}       → PostWithAuthor, or NotFound
//
// Usage:
//
//	f, err := feed.New(&feed.Config{DBPath: "chirp.db"}, logger)
//	defer f.Close()
//	f.RegisterProcedures(router)
//	f.RegisterMCP(mcpServer)
package feed

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/leggettc18/chirp/feed/internal/store"
	"github.com/leggettc18/chirp/idgen"
)

var (
	ErrInvalidUsername = errors.New("feed: invalid username")
	ErrUsernameTaken   = errors.New("feed: username taken")
	ErrInvalidContent  = errors.New("feed: invalid post content")
	ErrUnknownAuthor   = errors.New("feed: unknown author")
)

// Feed owns the users and posts database.
type Feed struct {
	store  *store.Store
	logger *slog.Logger
	config *Config
	policy *bluemonday.Policy
	newID  idgen.Generator
	now    func() time.Time
}

// New opens the database at cfg.DBPath and applies the schema.
func New(cfg *Config, logger *slog.Logger) (*Feed, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &Feed{
		store:  s,
		logger: logger,
		config: cfg,
		policy: bluemonday.StrictPolicy(),
		newID:  idgen.Default,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (f *Feed) Close() error {
	return f.store.Close()
}

// --- writes ---

// ReservedUsernames are path segments served by chirp itself. A profile
// under one of them would be shadowed by, or shadow, that endpoint.
var ReservedUsernames = []string{"rpc", "mcp", "healthz", "post"}

// CreateUser registers a username. A leading '@' is not part of it.
func (f *Feed) CreateUser(ctx context.Context, username, profileImageURL string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.HasPrefix(username, "@") || strings.ContainsAny(username, "/ \t\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	if slices.ContainsFunc(ReservedUsernames, func(r string) bool { return strings.EqualFold(r, username) }) {
		return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidUsername, username)
	}

	u := &User{ID: f.newID(), Username: username, ProfileImageURL: profileImageURL, CreatedAt: f.now()}
	created, err := f.store.CreateUser(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("feed: create user: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}
	f.logger.InfoContext(ctx, "feed: user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// CreatePost stores a post for authorID. Markup is stripped from content.
// A zero at uses the current time.
func (f *Feed) CreatePost(ctx context.Context, authorID, content string, at time.Time) (*PostWithAuthor, error) {
	content = strings.TrimSpace(f.sanitize(content))
	if content == "" || utf8.RuneCountInString(content) > f.config.MaxPostLength {
		return nil, fmt.Errorf("%w: length must be 1-%d", ErrInvalidContent, f.config.MaxPostLength)
	}
	if at.IsZero() {
		at = f.now()
	}

	p := Post{ID: f.newID(), AuthorID: authorID, Content: content, CreatedAt: at.UTC()}
	author, err := f.store.CreatePost(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("feed: create post: %w", err)
	}
	if author == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthor, authorID)
	}
	f.logger.InfoContext(ctx, "feed: post created", "post_id", p.ID, "author_id", authorID)
	return &PostWithAuthor{Post: p, Author: *author}, nil
}

// sanitize strips every tag and leaves plain text; html/template escapes
// it again at render time.
func (f *Feed) sanitize(s string) string {
	return html.UnescapeString(f.policy.Sanitize(s))
}

// --- reads ---

// GetUserByUsername returns nil, nil for an unknown username.
func (f *Feed) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return f.store.GetUserByUsername(ctx, username)
}

// GetPostByID returns nil, nil for an unknown post.
func (f *Feed) GetPostByID(ctx context.Context, id string) (*PostWithAuthor, error) {
	return f.store.GetPost(ctx, id)
}

// ListPostsByUserID returns the newest posts of userID, capped at
// Config.FeedLimit. An unknown user yields an empty list.
func (f *Feed) ListPostsByUserID(ctx context.Context, userID string) ([]*PostWithAuthor, error) {
	return f.store.ListPostsByAuthor(ctx, userID, f.config.FeedLimit)
}

// ListUsers returns every user ordered by username.
func (f *Feed) ListUsers(ctx context.Context) ([]*User, error) {
	return f.store.ListUsers(ctx)
}
