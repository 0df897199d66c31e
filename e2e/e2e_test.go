// Package e2e drives chirp end to end: a real feed database behind the
// procedure router, the page registry behind chi, and a client that reads
// generated pages, hydrates its cache and fetches the rest over /rpc.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/leggettc18/chirp/feed"
	"github.com/leggettc18/chirp/pages"
	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/render"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// countingCaller records which procedures page generation invoked.
type countingCaller struct {
	next  procedure.Caller
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingCaller) Call(ctx context.Context, proc string, input []byte) ([]byte, error) {
	c.mu.Lock()
	c.calls[proc]++
	c.mu.Unlock()
	return c.next.Call(ctx, proc, input)
}

func (c *countingCaller) count(proc string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[proc]
}

type env struct {
	srv      *httptest.Server
	feed     *feed.Feed
	registry *pages.Registry
	gen      *countingCaller
	rpcCalls atomic.Int32
	alice    *feed.User
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	f, err := feed.New(&feed.Config{DBPath: ":memory:"}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	router := procedure.New(procedure.WithLogger(quiet))
	f.RegisterProcedures(router)

	alice, err := f.CreateUser(ctx, "alice", "https://img/alice.png")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"hello", "world"} {
		if _, err := f.CreatePost(ctx, alice.ID, content, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.CreateUser(ctx, "bob", ""); err != nil {
		t.Fatal(err)
	}

	e := &env{feed: f, alice: alice, gen: &countingCaller{next: router, calls: map[string]int{}}}
	e.registry, err = pages.New(e.gen, []*pages.Template{pages.ProfileTemplate(), pages.PostTemplate()},
		pages.WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	rpc, err := procedure.NewJSONRPCHandler(router, quiet)
	if err != nil {
		t.Fatal(err)
	}
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.rpcCalls.Add(1)
		rpc.ServeHTTP(w, r)
	})
	e.srv = httptest.NewServer(e.registry.Handler(pages.HandlerConfig{RPC: counted}))
	t.Cleanup(e.srv.Close)
	return e
}

// visit is one page view on the client: the fetched document, a page-scoped
// store hydrated from it, and a client fetching over /rpc.
type visit struct {
	status int
	body   string
	data   *render.PageData
	store  *query.Store
	client *query.Client
}

func (e *env) open(t *testing.T, path string) *visit {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	data, err := render.ParsePageData(strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("ParsePageData(%s): %v", path, err)
	}
	v := &visit{status: resp.StatusCode, body: string(body), data: data}
	v.store = query.NewStore()
	if _, err := render.Hydrate(v.store, data); err != nil {
		t.Fatalf("Hydrate(%s): %v", path, err)
	}
	v.client = e.newClient(v.store)
	t.Cleanup(v.client.Close)
	return v
}

func (e *env) newClient(store *query.Store) *query.Client {
	caller := procedure.NewJSONRPCCaller(e.srv.URL+"/rpc", nil)
	return query.NewClient(store, query.CallerFetcher(caller), query.WithLogger(quiet))
}

func key(t *testing.T, proc string, input any) querykey.Key {
	t.Helper()
	k, err := querykey.For(proc, input)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestScenarioA_ProfileWithPosts(t *testing.T) {
	e := setup(t)
	v := e.open(t, "/@alice")

	if v.status != http.StatusOK {
		t.Fatalf("status: got %d, want 200", v.status)
	}
	if e.gen.count(feed.ProcGetUserByUsername) != 1 || e.gen.count(feed.ProcGetPostsByUserID) != 1 {
		t.Fatalf("generation calls: %v", e.gen.calls)
	}
	if got := v.store.Len(); got != 2 {
		t.Fatalf("hydrated entries: got %d, want 2", got)
	}

	user := render.NewMachine(v.store, key(t, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "alice"}))
	posts := render.NewMachine(v.store, key(t, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: e.alice.ID}))
	if diff := cmp.Diff([]render.State{render.Success}, user.History()); diff != "" {
		t.Fatalf("user history (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]render.State{render.Success}, posts.History()); diff != "" {
		t.Fatalf("posts history (-want +got):\n%s", diff)
	}

	doc, err := render.Profile(v.store, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(doc.Body), `class="post"`); n != 2 {
		t.Fatalf("client render: %d post views, want 2", n)
	}
	if !strings.Contains(v.body, string(doc.Body)) {
		t.Fatal("client render differs from the served page")
	}

	// The client's own queries hit the hydrated entries.
	ctx := context.Background()
	entry, err := v.client.Query(ctx, feed.ProcGetUserByUsername, map[string]any{"username": "alice"})
	if err != nil || entry.Status != query.StatusSuccess || !entry.Hydrated {
		t.Fatalf("user query: %+v, %v", entry, err)
	}
	if _, err := v.client.Query(ctx, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: e.alice.ID}); err != nil {
		t.Fatal(err)
	}
	if n := e.rpcCalls.Load(); n != 0 {
		t.Fatalf("/rpc calls after hydration: got %d, want 0", n)
	}
}

func TestScenarioB_UnknownUser(t *testing.T) {
	e := setup(t)
	v := e.open(t, "/@ghost")

	if v.status != http.StatusNotFound || !strings.Contains(v.body, "404") {
		t.Fatalf("status: got %d", v.status)
	}
	if e.gen.count(feed.ProcGetPostsByUserID) != 0 {
		t.Fatal("posts were fetched for a missing user")
	}
	m := render.NewMachine(v.store, key(t, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "ghost"}))
	if diff := cmp.Diff([]render.State{render.NotFound}, m.History()); diff != "" {
		t.Fatalf("history (-want +got):\n%s", diff)
	}
	if e.registry.State("/ghost") != pages.Built {
		t.Fatalf("state: %v", e.registry.State("/ghost"))
	}
}

func TestScenarioC_UnknownPost(t *testing.T) {
	e := setup(t)
	v := e.open(t, "/post/xyz")

	if v.status != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", v.status)
	}
	if e.registry.State("/post/xyz") != pages.Built {
		t.Fatalf("state: got %v, want built", e.registry.State("/post/xyz"))
	}
	m := render.NewMachine(v.store, key(t, feed.ProcGetPostByID, feed.PostIDInput{ID: "xyz"}))
	if m.State() != render.NotFound {
		t.Fatalf("machine: %v", m.State())
	}

	e.open(t, "/post/xyz")
	if got := e.gen.count(feed.ProcGetPostByID); got != 1 {
		t.Fatalf("getById calls: got %d, want 1", got)
	}
}

func TestPostPage_Hydrates(t *testing.T) {
	e := setup(t)
	posts, err := e.feed.ListPostsByUserID(context.Background(), e.alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	id := posts[0].Post.ID

	v := e.open(t, "/post/"+id)
	if v.status != http.StatusOK || !strings.Contains(v.body, "<title>world - @alice</title>") {
		t.Fatalf("status %d body:\n%s", v.status, v.body)
	}
	entry, err := v.client.Query(context.Background(), feed.ProcGetPostByID, feed.PostIDInput{ID: id})
	if err != nil || !entry.Hydrated {
		t.Fatalf("post query: %+v, %v", entry, err)
	}
	if e.rpcCalls.Load() != 0 {
		t.Fatal("hydrated post page fetched over /rpc")
	}
}

func TestDirectNavigation_LiveFetch(t *testing.T) {
	e := setup(t)
	store := query.NewStore()
	client := e.newClient(store)
	defer client.Close()
	ctx := context.Background()

	m := render.NewMachine(store, key(t, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "bob"}))
	if m.State() != render.Loading {
		t.Fatalf("initial: %v", m.State())
	}
	if _, err := client.Query(ctx, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "bob"}); err != nil {
		t.Fatalf("live query: %v", err)
	}
	m.Sync()
	if diff := cmp.Diff([]render.State{render.Loading, render.Success}, m.History()); diff != "" {
		t.Fatalf("history (-want +got):\n%s", diff)
	}

	// Same key from a map input: served from the cache.
	if _, err := client.Query(ctx, feed.ProcGetUserByUsername, map[string]any{"username": "bob"}); err != nil {
		t.Fatal(err)
	}
	if n := e.rpcCalls.Load(); n != 1 {
		t.Fatalf("/rpc calls: got %d, want 1", n)
	}

	ghost, err := client.Query(ctx, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "nobody"})
	if err != nil || ghost.Status != query.StatusNotFound {
		t.Fatalf("live not-found: %+v, %v", ghost, err)
	}
	nm := render.NewMachine(store, ghost.Key)
	if nm.State() != render.NotFound {
		t.Fatalf("not-found machine: %v", nm.State())
	}
}

func TestConcurrentFirstRequests(t *testing.T) {
	e := setup(t)

	const n = 12
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			resp, err := http.Get(e.srv.URL + "/@bob")
			if err != nil {
				t.Error(err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		})
	}
	wg.Wait()

	for i, s := range statuses {
		if s != http.StatusOK {
			t.Fatalf("request %d: status %d", i, s)
		}
	}
	if got := e.gen.count(feed.ProcGetUserByUsername); got != 1 {
		t.Fatalf("getUserByUsername calls: got %d, want 1", got)
	}
}
