package procedure

import (
	"context"
	"testing"
)

func TestAdmin_CRUD(t *testing.T) {
	ctx := context.Background()
	admin := NewAdmin(setupTestDB(t))

	if err := admin.UpsertRoute(ctx, "posts.getById", StrategyNoop, "", nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := admin.UpsertRoute(ctx, "posts.getById", StrategyJSONRPC, "http://peer/rpc", []byte(`{"timeout_ms":500}`)); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	row, err := admin.GetRoute(ctx, "posts.getById")
	if err != nil || row == nil {
		t.Fatalf("get: %v, %v", row, err)
	}
	if row.Strategy != StrategyJSONRPC || row.Endpoint != "http://peer/rpc" {
		t.Fatalf("row: %+v", row)
	}

	rows, err := admin.ListRoutes(ctx)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list: %v, %v", rows, err)
	}

	if err := admin.DeleteRoute(ctx, "posts.getById"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := admin.DeleteRoute(ctx, "posts.getById"); err == nil {
		t.Fatal("second delete should fail")
	}
	if row, _ := admin.GetRoute(ctx, "posts.getById"); row != nil {
		t.Fatalf("route still present: %+v", row)
	}
}

func TestAdmin_Validation(t *testing.T) {
	ctx := context.Background()
	admin := NewAdmin(setupTestDB(t))
	if err := admin.UpsertRoute(ctx, "a.b", "quic", "", nil); err == nil {
		t.Fatal("unknown strategy accepted")
	}
	if err := admin.UpsertRoute(ctx, "a.b", StrategyJSONRPC, "", nil); err == nil {
		t.Fatal("jsonrpc route without endpoint accepted")
	}
}
