package domain

import (
	"fmt"
	"strings"
)

// Host categories produced by the default keyword table.
const (
	HostAvian = "Avian"
	HostSwine = "Swine"
	HostHuman = "Human"
)

// HostRule maps a case-insensitive keyword found in an isolate name to a host.
type HostRule struct {
	Keyword string `json:"keyword" mapstructure:"keyword"`
	Host    string `json:"host" mapstructure:"host"`
}

// HostTable is an ordered keyword table; the first matching rule wins and
// Fallback applies when nothing matches.
type HostTable struct {
	Rules    []HostRule `json:"rules" mapstructure:"rules"`
	Fallback string     `json:"fallback" mapstructure:"fallback"`
}

// DefaultHostTable returns the built-in table: avian markers, then swine,
// then human, falling back to Human.
func DefaultHostTable() HostTable {
	avian := []string{"duck", "goose", "chicken", "swan", "gull", "teal", "quail", "pheasant", "turkey", "wild bird"}
	rules := make([]HostRule, 0, len(avian)+3)
	for _, kw := range avian {
		rules = append(rules, HostRule{Keyword: kw, Host: HostAvian})
	}
	rules = append(rules,
		HostRule{Keyword: "swine", Host: HostSwine},
		HostRule{Keyword: "pig", Host: HostSwine},
		HostRule{Keyword: "human", Host: HostHuman},
	)
	return HostTable{Rules: rules, Fallback: HostHuman}
}

// NewHostTable validates rules and returns a table. Keywords are stored
// lowercased and trimmed.
func NewHostTable(rules []HostRule, fallback string) (HostTable, error) {
	out := make([]HostRule, 0, len(rules))
	for i, rule := range rules {
		kw := strings.ToLower(strings.TrimSpace(rule.Keyword))
		host := strings.TrimSpace(rule.Host)
		if kw == "" {
			return HostTable{}, fmt.Errorf("host rule %d: keyword required", i)
		}
		if host == "" {
			return HostTable{}, fmt.Errorf("host rule %d (%s): host required", i, kw)
		}
		out = append(out, HostRule{Keyword: kw, Host: host})
	}
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = HostHuman
	}
	return HostTable{Rules: out, Fallback: fallback}, nil
}

// Infer scans name against the rules in order.
func (t HostTable) Infer(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range t.Rules {
		kw := strings.ToLower(rule.Keyword)
		if kw != "" && strings.Contains(lower, kw) {
			return rule.Host
		}
	}
	if t.Fallback == "" {
		return HostHuman
	}
	return t.Fallback
}
