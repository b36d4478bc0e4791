package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"virsift/pkg/domain"
)

// RuleOperator names a header comparison.
type RuleOperator string

const (
	OpEquals      RuleOperator = "equals"
	OpNotEquals   RuleOperator = "not_equals"
	OpContains    RuleOperator = "contains"
	OpNotContains RuleOperator = "not_contains"
	OpStartsWith  RuleOperator = "starts_with"
	OpRegex       RuleOperator = "regex"
	OpInList      RuleOperator = "in_list"
	OpDateRange   RuleOperator = "date_range"
)

// HeaderRule is one predicate over a record field. Text comparisons ignore
// case except for OpRegex. OpDateRange uses From and To (inclusive, zero
// means open) and excludes undated records.
type HeaderRule struct {
	Field    FieldKey
	Operator RuleOperator
	Value    string
	Values   []string
	From, To Date
}

// ParseHeaderRule parses "field:operator:value". in_list values are comma
// separated; date_range values are "FROM..TO" with either side optional.
func ParseHeaderRule(s string) (HeaderRule, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return HeaderRule{}, fmt.Errorf("rule %q: want field:operator:value", s)
	}
	field, err := domain.ParseFieldKey(parts[0])
	if err != nil {
		return HeaderRule{}, fmt.Errorf("rule %q: %w", s, err)
	}
	rule := HeaderRule{Field: field, Operator: RuleOperator(strings.ToLower(strings.TrimSpace(parts[1]))), Value: parts[2]}
	switch rule.Operator {
	case OpInList:
		for _, v := range strings.Split(parts[2], ",") {
			if v = strings.TrimSpace(v); v != "" {
				rule.Values = append(rule.Values, v)
			}
		}
	case OpDateRange:
		from, to, ok := strings.Cut(parts[2], "..")
		if !ok {
			return HeaderRule{}, fmt.Errorf("rule %q: date_range wants FROM..TO", s)
		}
		if from = strings.TrimSpace(from); from != "" {
			if rule.From, ok = domain.ParseDate(from); !ok {
				return HeaderRule{}, fmt.Errorf("rule %q: invalid date %q", s, from)
			}
		}
		if to = strings.TrimSpace(to); to != "" {
			if rule.To, ok = domain.ParseDate(to); !ok {
				return HeaderRule{}, fmt.Errorf("rule %q: invalid date %q", s, to)
			}
		}
	}
	return rule, nil
}

func (r HeaderRule) String() string {
	switch r.Operator {
	case OpInList:
		return fmt.Sprintf("%s %s [%s]", r.Field, r.Operator, strings.Join(r.Values, ","))
	case OpDateRange:
		return fmt.Sprintf("%s %s %s..%s", r.Field, r.Operator, r.From, r.To)
	}
	return fmt.Sprintf("%s %s %q", r.Field, r.Operator, r.Value)
}

type compiledRule struct {
	HeaderRule
	needle string
	set    map[string]struct{}
	re     *regexp.Regexp
}

func compileRule(r HeaderRule) (compiledRule, error) {
	if !r.Field.Valid() {
		return compiledRule{}, fmt.Errorf("%w: %d", domain.ErrUnknownField, int(r.Field))
	}
	c := compiledRule{HeaderRule: r, needle: strings.ToLower(strings.TrimSpace(r.Value))}
	switch r.Operator {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith:
	case OpRegex:
		re, err := regexp.Compile(r.Value)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %s: %w", r, err)
		}
		c.re = re
	case OpInList:
		c.set = make(map[string]struct{}, len(r.Values))
		for _, v := range r.Values {
			c.set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
		}
	case OpDateRange:
		if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
			return compiledRule{}, fmt.Errorf("rule %s: range end precedes start", r)
		}
	default:
		return compiledRule{}, fmt.Errorf("rule %s: unknown operator %q", r, r.Operator)
	}
	return c, nil
}

func (c compiledRule) match(rec Record) bool {
	if c.Operator == OpDateRange {
		d := rec.Fields.Date
		if d.IsZero() {
			return false
		}
		if !c.From.IsZero() && d.Before(c.From) {
			return false
		}
		return c.To.IsZero() || !c.To.Before(d)
	}
	value := c.Field.Value(rec)
	if c.Operator == OpRegex {
		return c.re.MatchString(value)
	}
	lower := strings.ToLower(value)
	switch c.Operator {
	case OpEquals:
		return lower == c.needle
	case OpNotEquals:
		return lower != c.needle
	case OpContains:
		return strings.Contains(lower, c.needle)
	case OpNotContains:
		return !strings.Contains(lower, c.needle)
	case OpStartsWith:
		return strings.HasPrefix(lower, c.needle)
	case OpInList:
		_, ok := c.set[lower]
		return ok
	}
	return false
}

// HeaderRuleFilter keeps records matching every rule.
type HeaderRuleFilter struct {
	rules []compiledRule
}

// NewHeaderRuleFilter compiles rules, rejecting unknown fields, operators
// and invalid patterns.
func NewHeaderRuleFilter(rules ...HeaderRule) (HeaderRuleFilter, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		c, err := compileRule(r)
		if err != nil {
			return HeaderRuleFilter{}, err
		}
		compiled = append(compiled, c)
	}
	return HeaderRuleFilter{rules: compiled}, nil
}

func (HeaderRuleFilter) Name() string { return "header_rules" }

func (f HeaderRuleFilter) Parameters() map[string]any {
	rules := make([]string, len(f.rules))
	for i, r := range f.rules {
		rules[i] = r.HeaderRule.String()
	}
	return map[string]any{"rules": rules}
}

func (f HeaderRuleFilter) Apply(_ context.Context, in Dataset) (Outcome, error) {
	return Outcome{Dataset: in.Filter(func(r Record) bool {
		for _, rule := range f.rules {
			if !rule.match(r) {
				return false
			}
		}
		return true
	})}, nil
}

// SubtypeFilter keeps records whose cleaned subtype is listed.
type SubtypeFilter struct {
	Subtypes []string
}

func (SubtypeFilter) Name() string { return "subtype_filter" }

func (f SubtypeFilter) Parameters() map[string]any {
	return map[string]any{"subtypes": strings.Join(f.Subtypes, ",")}
}

func (f SubtypeFilter) Apply(_ context.Context, in Dataset) (Outcome, error) {
	want := make(map[string]struct{}, len(f.Subtypes))
	for _, s := range f.Subtypes {
		want[strings.ToUpper(domain.SubtypeClean(strings.TrimSpace(s)))] = struct{}{}
	}
	return Outcome{Dataset: in.Filter(func(r Record) bool {
		_, ok := want[strings.ToUpper(r.SubtypeClean())]
		return ok
	})}, nil
}

// CladeFilter keeps records in the selected clades. With Level zero a
// selection includes its sub-clades; otherwise records are compared at that
// hierarchy level.
type CladeFilter struct {
	Clades []string
	Level  int
}

func (CladeFilter) Name() string { return "clade_filter" }

func (f CladeFilter) Parameters() map[string]any {
	return map[string]any{"clades": strings.Join(f.Clades, ","), "level": f.Level}
}

func (f CladeFilter) Apply(_ context.Context, in Dataset) (Outcome, error) {
	var adj []Adjustment
	level := clampMin(&adj, "level", f.Level, 0)
	return Outcome{Dataset: in.Filter(func(r Record) bool {
		for _, c := range f.Clades {
			if level > 0 {
				if r.CladeLevel(level) == c {
					return true
				}
				continue
			}
			if domain.CladeDescends(r.Fields.Clade, c) {
				return true
			}
		}
		return false
	}), Notes: adjustmentNotes(adj)}, nil
}
