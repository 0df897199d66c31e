package kit

import "context"

// Endpoint is a transport-agnostic operation: typed request in, typed
// response out. MCP tools and admin commands are built from Endpoints.
type Endpoint func(ctx context.Context, req any) (any, error)
