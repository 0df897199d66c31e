package feed

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leggettc18/chirp/kit"
)

type createUserRequest struct {
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type createPostRequest struct {
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type getUserRequest struct {
	Username string `json:"username"`
}

type userWithPosts struct {
	User  *User             `json:"user"`
	Posts []*PostWithAuthor `json:"posts"`
}

// RegisterMCP registers the feed admin tools: feed_create_user,
// feed_create_post and feed_get_user.
func (f *Feed) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "feed_create_user",
		Description: "Create a user. Its profile page is served at /@<username>.",
		InputSchema: kit.InputSchema(map[string]any{
			"username":          map[string]any{"type": "string", "description": "Username without the leading @"},
			"profile_image_url": map[string]any{"type": "string"},
		}, "username"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*createUserRequest)
		return f.CreateUser(ctx, r.Username, r.ProfileImageURL)
	}, kit.DecodeJSON[createUserRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "feed_create_post",
		Description: "Create a post for an existing user. Markup is stripped. Already built pages are not refreshed; use pages_invalidate.",
		InputSchema: kit.InputSchema(map[string]any{
			"author_id":  map[string]any{"type": "string"},
			"content":    map[string]any{"type": "string"},
			"created_at": map[string]any{"type": "string", "format": "date-time", "description": "Defaults to now"},
		}, "author_id", "content"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*createPostRequest)
		return f.CreatePost(ctx, r.AuthorID, r.Content, r.CreatedAt)
	}, kit.DecodeJSON[createPostRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "feed_get_user",
		Description: "Look up a user by username with their newest posts.",
		InputSchema: kit.InputSchema(map[string]any{
			"username": map[string]any{"type": "string"},
		}, "username"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*getUserRequest)
		u, err := f.GetUserByUsername(ctx, r.Username)
		if err != nil || u == nil {
			return userWithPosts{}, err
		}
		posts, err := f.ListPostsByUserID(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		return userWithPosts{User: u, Posts: posts}, nil
	}, kit.DecodeJSON[getUserRequest]())
}
