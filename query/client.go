package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/wire"
)

// ErrClosed is returned by Query after the page closed its client.
var ErrClosed = errors.New("query: client closed")

// Fetcher runs a live query. Results are values of the wire domain; a
// missing entity is reported as *procedure.NotFoundError.
type Fetcher interface {
	Fetch(ctx context.Context, procedure string, input any) (any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, procedure string, input any) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, procedure string, input any) (any, error) {
	return f(ctx, procedure, input)
}

// CallerFetcher fetches through a procedure.Caller, such as a JSON-RPC client.
func CallerFetcher(c procedure.Caller) Fetcher {
	return FetcherFunc(func(ctx context.Context, name string, input any) (any, error) {
		return procedure.Invoke(ctx, c, name, input)
	})
}

// Client reads through a Store, fetching live only on a miss. Concurrent
// queries for one key share a single fetch. Fetches run under the page's
// context: Close cancels them all, while a caller whose own context ends
// merely stops waiting.
type Client struct {
	store   *Store
	fetcher Fetcher
	group   singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	now     func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient returns a Client over store. The store should already be
// hydrated when the page carried a payload.
func NewClient(store *Store, fetcher Fetcher, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:   store,
		fetcher: fetcher,
		ctx:     ctx,
		cancel:  cancel,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store returns the client's cache.
func (c *Client) Store() *Store { return c.store }

// Query returns the entry for procedure and input. A resolved entry is
// returned without any fetch. A failed fetch yields an entry with
// StatusError and the error.
func (c *Client) Query(ctx context.Context, proc string, input any) (Entry, error) {
	key, err := querykey.For(proc, input)
	if err != nil {
		return Entry{}, err
	}
	if e, ok := c.store.Get(key); ok && e.Resolved() {
		return e, nil
	}
	if c.ctx.Err() != nil {
		return Entry{}, ErrClosed
	}
	norm, err := wire.Normalize(input)
	if err != nil {
		return Entry{}, err
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		e, err := c.fetch(key, proc, norm)
		return e, err
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		e := res.Val.(Entry)
		if e.Status == StatusError {
			return e, e.Err
		}
		return e, nil
	}
}

func (c *Client) fetch(key querykey.Key, proc string, input any) (Entry, error) {
	// Another flight may have resolved the key between the miss and now.
	if e, ok := c.store.Get(key); ok && e.Resolved() {
		return e, nil
	}
	base := Entry{Key: key, Procedure: proc, Input: input}
	pending := base
	pending.Status = StatusPending
	pending.UpdatedAt = c.now()
	c.store.Set(pending)

	data, err := c.fetcher.Fetch(c.ctx, proc, input)
	if c.ctx.Err() != nil {
		c.store.Delete(key)
		return Entry{}, ErrClosed
	}

	e := base
	e.UpdatedAt = c.now()
	switch {
	case err == nil:
		e.Status = StatusSuccess
		e.Data = data
	case procedure.IsNotFound(err):
		e.Status = StatusNotFound
		e.Err = err
	default:
		e.Status = StatusError
		e.Err = err
		c.logger.Warn("query fetch failed", "procedure", proc, "key", key.Hash(), "error", err)
	}
	c.store.Set(e)
	return e, nil
}

// Close cancels in-flight fetches. Later queries only see the cache.
func (c *Client) Close() {
	c.cancel()
}
