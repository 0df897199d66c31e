package feed

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectMCP(t *testing.T, f *Feed) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "feed-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	f.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("%s: tool error: %s", name, res.Content[0].(*mcp.TextContent).Text)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), out); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
	}
}

func TestMCP_CreateAndGet(t *testing.T) {
	f := newTestFeed(t)
	session := connectMCP(t, f)

	var u User
	callTool(t, session, "feed_create_user", map[string]any{"username": "alice"}, &u)
	if u.Username != "alice" || u.ID == "" {
		t.Fatalf("created user: %+v", u)
	}

	var p PostWithAuthor
	callTool(t, session, "feed_create_post", map[string]any{"author_id": u.ID, "content": "hello <b>world</b>"}, &p)
	if p.Post.Content != "hello world" {
		t.Fatalf("post content: %q", p.Post.Content)
	}

	var got struct {
		User  *User            `json:"user"`
		Posts []PostWithAuthor `json:"posts"`
	}
	callTool(t, session, "feed_get_user", map[string]any{"username": "alice"}, &got)
	if got.User == nil || len(got.Posts) != 1 {
		t.Fatalf("feed_get_user: %+v", got)
	}

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "feed_create_user",
		Arguments: map[string]any{"username": "alice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("duplicate username should be a tool error")
	}
}
