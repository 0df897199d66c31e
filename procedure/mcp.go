package procedure

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leggettc18/chirp/kit"
)

type upsertRouteRequest struct {
	Procedure string          `json:"procedure"`
	Strategy  string          `json:"strategy"`
	Endpoint  string          `json:"endpoint"`
	Config    json.RawMessage `json:"config"`
}

type procedureRequest struct {
	Procedure string `json:"procedure"`
}

// RegisterMCP exposes route administration as MCP tools: routes_list,
// routes_inspect, routes_upsert and routes_delete.
func RegisterMCP(srv *mcp.Server, router *Router, admin *Admin) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "routes_list",
		Description: "List every procedure with its current routing strategy and the rows of the routes table.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ any) (any, error) {
		rows, err := admin.ListRoutes(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"procedures": slices.Collect(router.List()),
			"routes":     rows,
		}, nil
	}, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "routes_inspect",
		Description: "Show how one procedure is served right now, and its routes table row if any.",
		InputSchema: kit.InputSchema(map[string]any{
			"procedure": map[string]any{"type": "string"},
		}, "procedure"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*procedureRequest)
		info, ok := router.Inspect(r.Procedure)
		if !ok {
			return nil, &ErrProcedureNotFound{Procedure: r.Procedure}
		}
		row, err := admin.GetRoute(ctx, r.Procedure)
		if err != nil {
			return nil, err
		}
		return map[string]any{"procedure": info, "route": row}, nil
	}, kit.DecodeJSON[procedureRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "routes_upsert",
		Description: "Route a procedure locally, to another instance over JSON-RPC, or disable it (noop).",
		InputSchema: kit.InputSchema(map[string]any{
			"procedure": map[string]any{"type": "string"},
			"strategy":  map[string]any{"type": "string", "enum": []string{StrategyLocal, StrategyJSONRPC, StrategyNoop}},
			"endpoint":  map[string]any{"type": "string", "description": "JSON-RPC URL for the jsonrpc strategy"},
			"config":    map[string]any{"type": "object"},
		}, "procedure", "strategy"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*upsertRouteRequest)
		if err := admin.UpsertRoute(ctx, r.Procedure, r.Strategy, r.Endpoint, r.Config); err != nil {
			return nil, err
		}
		return admin.GetRoute(ctx, r.Procedure)
	}, kit.DecodeJSON[upsertRouteRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "routes_delete",
		Description: "Remove a procedure's route; it falls back to its local handler.",
		InputSchema: kit.InputSchema(map[string]any{
			"procedure": map[string]any{"type": "string"},
		}, "procedure"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*procedureRequest)
		if err := admin.DeleteRoute(ctx, r.Procedure); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": r.Procedure}, nil
	}, kit.DecodeJSON[procedureRequest]())
}
