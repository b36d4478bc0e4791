package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"virsift/pkg/domain"
)

// KeepPolicy selects which members of a sorted group survive.
type KeepPolicy string

const (
	KeepFirst KeepPolicy = "first"
	KeepLast  KeepPolicy = "last"
	KeepBoth  KeepPolicy = "both"
	KeepAll   KeepPolicy = "all"
)

// ParseKeepPolicy resolves a policy name (case-insensitive).
func ParseKeepPolicy(s string) (KeepPolicy, error) {
	switch p := KeepPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return KeepFirst, nil
	case KeepFirst, KeepLast, KeepBoth, KeepAll:
		return p, nil
	}
	return "", fmt.Errorf("unknown keep policy %q", s)
}

// GroupSpec configures the grouping engine. An empty GroupBy places every
// record in one group.
type GroupSpec struct {
	GroupBy     []FieldKey
	SortBy      FieldKey
	Keep        KeepPolicy
	RequireDate bool
	Label       string
}

// NewGroupSpec validates keys and policy. A zero sortBy sorts by date.
func NewGroupSpec(groupBy []FieldKey, sortBy FieldKey, keep KeepPolicy) (GroupSpec, error) {
	spec := GroupSpec{GroupBy: append([]FieldKey(nil), groupBy...), SortBy: sortBy, Keep: keep}
	if err := spec.Validate(); err != nil {
		return GroupSpec{}, err
	}
	return spec, nil
}

// ParseGroupSpec builds a spec from textual configuration, rejecting unknown
// field names up front.
func ParseGroupSpec(groupBy, sortBy, keep string) (GroupSpec, error) {
	keys, err := domain.ParseFieldKeys(groupBy)
	if err != nil {
		return GroupSpec{}, fmt.Errorf("group_by: %w", err)
	}
	var sortKey FieldKey
	if strings.TrimSpace(sortBy) != "" {
		if sortKey, err = domain.ParseFieldKey(sortBy); err != nil {
			return GroupSpec{}, fmt.Errorf("sort_by: %w", err)
		}
	}
	policy, err := ParseKeepPolicy(keep)
	if err != nil {
		return GroupSpec{}, err
	}
	return NewGroupSpec(keys, sortKey, policy)
}

// Validate rejects keys outside the supported set.
func (s GroupSpec) Validate() error {
	for _, k := range s.GroupBy {
		if !k.Valid() {
			return fmt.Errorf("group_by: %w: %d", domain.ErrUnknownField, int(k))
		}
	}
	if s.SortBy != 0 && !s.SortBy.Valid() {
		return fmt.Errorf("sort_by: %w: %d", domain.ErrUnknownField, int(s.SortBy))
	}
	if s.Keep != "" {
		if _, err := ParseKeepPolicy(string(s.Keep)); err != nil {
			return err
		}
	}
	return nil
}

func (s GroupSpec) sortKey() FieldKey {
	if s.SortBy == 0 {
		return domain.FieldDate
	}
	return s.SortBy
}

func (s GroupSpec) keep() KeepPolicy {
	if s.Keep == "" {
		return KeepFirst
	}
	return s.Keep
}

func (s GroupSpec) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "group_subsample"
}

func (s GroupSpec) Parameters() map[string]any {
	names := make([]string, len(s.GroupBy))
	for i, k := range s.GroupBy {
		names[i] = k.String()
	}
	groupBy := "none"
	if len(names) > 0 {
		groupBy = strings.Join(names, ",")
	}
	return map[string]any{
		"group_by":     groupBy,
		"sort_by":      s.sortKey().String(),
		"keep":         string(s.keep()),
		"require_date": s.RequireDate,
	}
}

func (s GroupSpec) Apply(_ context.Context, in Dataset) (Outcome, error) {
	if err := s.Validate(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Dataset: in.Select(s.retain(in, nil))}, nil
}

// retain runs the engine over the candidate positions of in (all positions
// when candidates is nil) and returns the kept positions in ascending order.
func (s GroupSpec) retain(in Dataset, candidates []int) []int {
	if candidates == nil {
		candidates = make([]int, in.Len())
		for i := range candidates {
			candidates[i] = i
		}
	}
	groups := make(map[string][]int)
	var order []string
	var key strings.Builder
	for _, pos := range candidates {
		r := in.At(pos)
		if s.RequireDate && r.Fields.Date.IsZero() {
			continue
		}
		key.Reset()
		for i, k := range s.GroupBy {
			if i > 0 {
				key.WriteByte(0x1f)
			}
			key.WriteString(k.Value(r))
		}
		g := key.String()
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], pos)
	}

	sortBy := s.sortKey()
	policy := s.keep()
	var kept []int
	for _, g := range order {
		members := groups[g]
		sort.SliceStable(members, func(i, j int) bool {
			return sortBy.Compare(in.At(members[i]), in.At(members[j])) < 0
		})
		kept = append(kept, pickMembers(members, policy)...)
	}
	sort.Ints(kept)
	return kept
}

func pickMembers(sorted []int, policy KeepPolicy) []int {
	if len(sorted) == 0 {
		return nil
	}
	switch policy {
	case KeepLast:
		return []int{sorted[len(sorted)-1]}
	case KeepBoth:
		if len(sorted) == 1 {
			return []int{sorted[0]}
		}
		return []int{sorted[0], sorted[len(sorted)-1]}
	case KeepAll:
		return append([]int(nil), sorted...)
	default:
		return []int{sorted[0]}
	}
}

// TemporalDiversity is the enhanced temporal diversity preset: any
// combination of location, host, month and clade, sorted by date.
func TemporalDiversity(location, host, month, clade bool, keep KeepPolicy) GroupSpec {
	var keys []FieldKey
	if location {
		keys = append(keys, domain.FieldLocation)
	}
	if host {
		keys = append(keys, domain.FieldHost)
	}
	if month {
		keys = append(keys, domain.FieldMonth)
	}
	if clade {
		keys = append(keys, domain.FieldClade)
	}
	return GroupSpec{GroupBy: keys, SortBy: domain.FieldDate, Keep: keep, Label: "temporal_diversity"}
}

// CladeMonthly is the clade-by-month preset. Selected clades include their
// sub-clades; an empty selection uses every observed clade exactly. With
// Independent set each clade is grouped by month on its own. Otherwise the
// union of selected records is grouped by month, so clades compete for the
// same monthly slots.
type CladeMonthly struct {
	Clades      []string
	Keep        KeepPolicy
	Independent bool
}

func (CladeMonthly) Name() string { return "clade_monthly" }

func (c CladeMonthly) Parameters() map[string]any {
	return map[string]any{
		"clades":      strings.Join(c.Clades, ","),
		"keep":        string(GroupSpec{Keep: c.Keep}.keep()),
		"independent": c.Independent,
	}
}

func (c CladeMonthly) Apply(_ context.Context, in Dataset) (Outcome, error) {
	if _, err := ParseKeepPolicy(string(c.Keep)); err != nil {
		return Outcome{}, err
	}
	selected := c.Clades
	if len(selected) == 0 {
		selected = distinctClades(in)
	}
	monthly := GroupSpec{GroupBy: []FieldKey{domain.FieldMonth}, SortBy: domain.FieldDate, Keep: c.Keep}

	if !c.Independent {
		var union []int
		for i := 0; i < in.Len(); i++ {
			if matchesAnyClade(in.At(i).Fields.Clade, selected) {
				union = append(union, i)
			}
		}
		if len(c.Clades) == 0 {
			monthly.GroupBy = []FieldKey{domain.FieldClade, domain.FieldMonth}
		}
		return Outcome{Dataset: in.Select(monthly.retain(in, nonNil(union)))}, nil
	}

	kept := make(map[int]struct{})
	for _, clade := range selected {
		var subset []int
		for i := 0; i < in.Len(); i++ {
			rc := in.At(i).Fields.Clade
			if rc == clade || (len(c.Clades) > 0 && domain.CladeDescends(rc, clade)) {
				subset = append(subset, i)
			}
		}
		for _, pos := range monthly.retain(in, nonNil(subset)) {
			kept[pos] = struct{}{}
		}
	}
	positions := make([]int, 0, len(kept))
	for pos := range kept {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return Outcome{Dataset: in.Select(positions)}, nil
}

func matchesAnyClade(clade string, selected []string) bool {
	for _, s := range selected {
		if domain.CladeDescends(clade, s) {
			return true
		}
	}
	return false
}

func distinctClades(in Dataset) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i < in.Len(); i++ {
		c := in.At(i).Fields.Clade
		if c == Unknown {
			continue
		}
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// nonNil distinguishes "no candidates" from "all candidates" for retain.
func nonNil(positions []int) []int {
	if positions == nil {
		return []int{}
	}
	return positions
}
