// Package schema embeds the session store DDL for each SQL driver.
package schema

import (
	"bufio"
	_ "embed"
	"strings"
)

//go:embed sqlite.sql
var sqlite string

//go:embed postgres.sql
var postgres string

// SQLite returns the SQLite DDL script.
func SQLite() string { return sqlite }

// Postgres returns the Postgres DDL script.
func Postgres() string { return postgres }

// SplitStatements splits a semicolon-terminated script into statements,
// dropping blank lines and "--" comment lines.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
