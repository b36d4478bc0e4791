package schema

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	got := SplitStatements("-- header\nCREATE TABLE a (\n  id TEXT\n);\n\nCREATE INDEX b ON a (id);\nSELECT 1")
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (\n  id TEXT\n);" || got[2] != "SELECT 1" {
		t.Fatalf("unexpected statements %q", got)
	}
}

func TestBundlesCreateSessionsTable(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		stmts := SplitStatements(ddl)
		if len(stmts) == 0 || !strings.Contains(stmts[0], "CREATE TABLE IF NOT EXISTS sessions") {
			t.Fatalf("%s: unexpected bundle %q", name, stmts)
		}
		for _, s := range stmts {
			if strings.Contains(s, "--") {
				t.Fatalf("%s: comment leaked into %q", name, s)
			}
		}
	}
}
