package procedure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Admin edits the routes table. Watch picks up every change, so there is no
// need to call Reload after a mutation.
type Admin struct {
	db *sql.DB
}

func NewAdmin(db *sql.DB) *Admin {
	return &Admin{db: db}
}

// RouteRow is one row of the routes table.
type RouteRow struct {
	Procedure string          `json:"procedure"`
	Strategy  string          `json:"strategy"`
	Endpoint  string          `json:"endpoint,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	UpdatedAt int64           `json:"updated_at"`
}

func (a *Admin) ListRoutes(ctx context.Context) ([]RouteRow, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT procedure, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at
		 FROM routes ORDER BY procedure`)
	if err != nil {
		return nil, fmt.Errorf("procedure: list routes: %w", err)
	}
	defer rows.Close()

	var out []RouteRow
	for rows.Next() {
		var r RouteRow
		var cfg string
		if err := rows.Scan(&r.Procedure, &r.Strategy, &r.Endpoint, &cfg, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("procedure: scan route: %w", err)
		}
		r.Config = json.RawMessage(cfg)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRoute returns nil, nil when procedure has no row.
func (a *Admin) GetRoute(ctx context.Context, procedure string) (*RouteRow, error) {
	var r RouteRow
	var cfg string
	err := a.db.QueryRowContext(ctx,
		`SELECT procedure, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at
		 FROM routes WHERE procedure = ?`, procedure).
		Scan(&r.Procedure, &r.Strategy, &r.Endpoint, &cfg, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("procedure: get route: %w", err)
	}
	r.Config = json.RawMessage(cfg)
	return &r, nil
}

// UpsertRoute inserts or replaces the route for procedure.
func (a *Admin) UpsertRoute(ctx context.Context, procedure, strategy, endpoint string, config json.RawMessage) error {
	switch strategy {
	case StrategyLocal, StrategyJSONRPC, StrategyNoop:
	default:
		return fmt.Errorf("procedure: unknown strategy %q", strategy)
	}
	if strategy == StrategyJSONRPC && endpoint == "" {
		return fmt.Errorf("procedure: strategy %s needs an endpoint", strategy)
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO routes (procedure, strategy, endpoint, config)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(procedure) DO UPDATE SET
		     strategy = excluded.strategy,
		     endpoint = excluded.endpoint,
		     config   = excluded.config`,
		procedure, strategy, endpoint, string(config))
	if err != nil {
		return fmt.Errorf("procedure: upsert route: %w", err)
	}
	return nil
}

func (a *Admin) DeleteRoute(ctx context.Context, procedure string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM routes WHERE procedure = ?`, procedure)
	if err != nil {
		return fmt.Errorf("procedure: delete route: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("procedure: route %q not found", procedure)
	}
	return nil
}
