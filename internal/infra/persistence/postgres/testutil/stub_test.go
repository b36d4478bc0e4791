package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBUpsertsFiltersAndDeletes(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	upsert := "INSERT INTO sessions(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload"
	for _, args := range [][]driver.NamedValue{
		{{Value: "s1"}, {Value: "a"}},
		{{Value: "s2"}, {Value: "b"}},
		{{Value: "s1"}, {Value: "c"}},
	} {
		if _, err := conn.ExecContext(ctx, upsert, args); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if len(conn.Tables["sessions"]) != 2 {
		t.Fatalf("expected upsert to replace s1, got %v", conn.Tables["sessions"])
	}

	rows, err := conn.QueryContext(ctx, "SELECT payload FROM sessions WHERE id = $1", []driver.NamedValue{{Value: "s1"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil || dest[0] != "c" {
		t.Fatalf("unexpected row %v %v", dest, err)
	}
	if err := rows.Next(dest); err == nil {
		t.Fatalf("expected a single filtered row")
	}

	res, err := conn.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", []driver.NamedValue{{Value: "s2"}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected one row deleted, got %d", n)
	}
	res, _ = conn.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", []driver.NamedValue{{Value: "s2"}})
	if n, _ := res.RowsAffected(); n != 0 {
		t.Fatalf("expected nothing deleted, got %d", n)
	}
}
