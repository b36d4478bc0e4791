package core

import (
	"context"
	"fmt"
	"strings"
)

// DedupMode selects the identity used by the Deduplicator.
type DedupMode string

const (
	// DedupBasic keys on case-normalized sequence content.
	DedupBasic DedupMode = "basic"
	// DedupAdvanced keys on sequence content plus the subtype field.
	DedupAdvanced DedupMode = "advanced"
)

// ParseDedupMode resolves a mode name.
func ParseDedupMode(s string) (DedupMode, error) {
	switch DedupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupBasic:
		return DedupBasic, nil
	case DedupAdvanced:
		return DedupAdvanced, nil
	}
	return "", fmt.Errorf("unknown dedup mode %q", s)
}

// Deduplicator keeps the first record per key in working-set order.
type Deduplicator struct {
	Mode    DedupMode
	Workers int
}

func (d Deduplicator) Name() string {
	if d.Mode == DedupAdvanced {
		return "dedup_advanced"
	}
	return "dedup_basic"
}

func (d Deduplicator) Parameters() map[string]any {
	mode := d.Mode
	if mode == "" {
		mode = DedupBasic
	}
	return map[string]any{"mode": string(mode)}
}

func (d Deduplicator) Apply(_ context.Context, in Dataset) (Outcome, error) {
	keys := cloneKeys(in, d.Mode == DedupAdvanced, d.Workers)
	seen := make(map[string]struct{}, len(keys))
	positions := make([]int, 0, len(keys))
	for i, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		positions = append(positions, i)
	}
	return Outcome{Dataset: in.Select(positions)}, nil
}
