package pages

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leggettc18/chirp/kit"
)

type pathRequest struct {
	Path string `json:"path"`
}

type pageSummary struct {
	Path         string    `json:"path"`
	Template     string    `json:"template"`
	State        string    `json:"state"`
	Status       int       `json:"status"`
	GenerationID string    `json:"generation_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Bytes        int       `json:"bytes"`
}

func summarize(p *Page, state PathState) pageSummary {
	return pageSummary{
		Path:         p.Path,
		Template:     p.Template,
		State:        state.String(),
		Status:       p.Status,
		GenerationID: p.GenerationID,
		GeneratedAt:  p.GeneratedAt,
		Bytes:        len(p.HTML),
	}
}

// RegisterMCP exposes the registry as MCP tools: pages_list, pages_status,
// pages_invalidate and pages_generate.
func (r *Registry) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pages_list",
		Description: "List every building or built page path.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ any) (any, error) {
		return r.List(), nil
	}, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pages_status",
		Description: "Build state of one path (unbuilt, building or built), with generation details when built.",
		InputSchema: kit.InputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Concrete path, e.g. /alice or /post/123"},
		}, "path"),
	}, func(ctx context.Context, req any) (any, error) {
		path := req.(*pathRequest).Path
		state := r.State(path)
		if state != Built {
			return map[string]string{"path": path, "state": state.String()}, nil
		}
		page, err := r.load(ctx, path)
		if err != nil || page == nil {
			return map[string]string{"path": path, "state": state.String()}, err
		}
		return summarize(page, state), nil
	}, kit.DecodeJSON[pathRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pages_invalidate",
		Description: "Return a built path to unbuilt; the next request regenerates it.",
		InputSchema: kit.InputSchema(map[string]any{
			"path": map[string]any{"type": "string"},
		}, "path"),
	}, func(ctx context.Context, req any) (any, error) {
		path := req.(*pathRequest).Path
		ok, err := r.Invalidate(ctx, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": path, "invalidated": ok}, nil
	}, kit.DecodeJSON[pathRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pages_generate",
		Description: "Generate the page at path now, whatever its template's fallback. Built pages are returned unchanged.",
		InputSchema: kit.InputSchema(map[string]any{
			"path": map[string]any{"type": "string"},
		}, "path"),
	}, func(ctx context.Context, req any) (any, error) {
		page, err := r.Generate(ctx, req.(*pathRequest).Path)
		if err != nil {
			return nil, err
		}
		return summarize(page, Built), nil
	}, kit.DecodeJSON[pathRequest]())
}
