package core

import (
	"errors"
	"testing"

	"virsift/pkg/domain"
)

func monthlyFixture() Dataset {
	return dataset(
		rec(0, "A1", "H1N1", "2024-01-20", "jan-20", "6B"),
		rec(1, "A2", "H1N1", "2024-02-11", "feb-11", "6B"),
		rec(2, "A3", "H1N1", "2024-01-03", "jan-03", "6B"),
		rec(3, "A4", "H1N1", "2024-03-15", "mar-15", "6B"),
		rec(4, "A5", "H1N1", "2024-01-09", "jan-09", "6B"),
		rec(5, "A6", "H1N1", "2024-02-01", "feb-01", "6B"),
		rec(6, "A7", "H1N1", "2024-01-25", "jan-25", "6B"),
	)
}

func TestGroupByMonthKeepFirst(t *testing.T) {
	spec, err := ParseGroupSpec("month", "date", "first")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := apply(t, spec, monthlyFixture())
	if got := accessions(out.Dataset); !equalStrings(got, []string{"jan-03", "mar-15", "feb-01"}) {
		t.Fatalf("expected earliest per month in input order, got %v", got)
	}
}

func TestGroupKeepPolicies(t *testing.T) {
	cases := map[KeepPolicy][]string{
		KeepLast: {"feb-11", "mar-15", "jan-25"},
		KeepBoth: {"feb-11", "jan-03", "mar-15", "feb-01", "jan-25"},
		KeepAll:  {"jan-20", "feb-11", "jan-03", "mar-15", "jan-09", "feb-01", "jan-25"},
	}
	for policy, want := range cases {
		spec, err := NewGroupSpec([]FieldKey{domain.FieldMonth}, domain.FieldDate, policy)
		if err != nil {
			t.Fatalf("%s: %v", policy, err)
		}
		if got := accessions(apply(t, spec, monthlyFixture()).Dataset); !equalStrings(got, want) {
			t.Fatalf("%s: got %v want %v", policy, got, want)
		}
	}
}

func TestKeepBothYieldsGroupExtremes(t *testing.T) {
	in := monthlyFixture()
	spec := GroupSpec{GroupBy: []FieldKey{domain.FieldMonth}, Keep: KeepBoth}
	out := apply(t, spec, in).Dataset
	perMonth := map[Month][]Record{}
	for i := 0; i < out.Len(); i++ {
		r := out.At(i)
		perMonth[r.Fields.Date.Month()] = append(perMonth[r.Fields.Date.Month()], r)
	}
	for month, kept := range perMonth {
		if len(kept) > 2 {
			t.Fatalf("%s: more than two records kept", month)
		}
		var lo, hi Date
		for i := 0; i < in.Len(); i++ {
			d := in.At(i).Fields.Date
			if d.Month() != month {
				continue
			}
			if lo.IsZero() || d.Before(lo) {
				lo = d
			}
			if hi.IsZero() || hi.Before(d) {
				hi = d
			}
		}
		got := map[Date]bool{}
		for _, r := range kept {
			got[r.Fields.Date] = true
		}
		if !got[lo] || !got[hi] {
			t.Fatalf("%s: expected min %s and max %s, got %v", month, lo, hi, kept)
		}
	}
}

func TestGroupNoneIsSingleGroupAndTiesKeepInputOrder(t *testing.T) {
	in := dataset(
		rec(0, "A", "H1N1", "2024-05-01", "first-tie", ""),
		rec(1, "B", "H1N1", "", "undated", ""),
		rec(2, "C", "H1N1", "2024-05-01", "second-tie", ""),
	)
	spec, err := ParseGroupSpec("none", "", "both")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := accessions(apply(t, spec, in).Dataset)
	if !equalStrings(got, []string{"first-tie", "undated"}) {
		t.Fatalf("expected first dated and undated-last record, got %v", got)
	}
}

func TestGroupSpecRejectsUnknownFields(t *testing.T) {
	if _, err := ParseGroupSpec("month,color", "date", "first"); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := ParseGroupSpec("month", "weight", "first"); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField for sort key, got %v", err)
	}
	if _, err := ParseGroupSpec("month", "date", "middle"); err == nil {
		t.Fatalf("expected keep policy error")
	}
	if _, err := NewGroupSpec([]FieldKey{FieldKey(99)}, 0, KeepFirst); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected invalid key rejected, got %v", err)
	}
}

func TestGroupBySortByLength(t *testing.T) {
	in := dataset(
		rec(0, "AAAAAA", "H1N1", "", "long", ""),
		rec(1, "AA", "H1N1", "", "short", ""),
		rec(2, "AAAAAAAAAA", "H3N2", "", "longest", ""),
	)
	spec, _ := ParseGroupSpec("subtype", "length", "last")
	if got := accessions(apply(t, spec, in).Dataset); !equalStrings(got, []string{"long", "longest"}) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestTemporalDiversityPreset(t *testing.T) {
	in := dataset(
		rec(0, "A", "H5N1", "2024-01-05", "a", ""),
		rec(1, "B", "H5N1", "2024-01-02", "b", ""),
		rec(2, "C", "H5N1", "2024-02-02", "c", ""),
	)
	spec := TemporalDiversity(true, true, true, false, KeepFirst)
	if spec.Name() != "temporal_diversity" || len(spec.GroupBy) != 3 {
		t.Fatalf("unexpected preset %+v", spec)
	}
	if got := accessions(apply(t, spec, in).Dataset); !equalStrings(got, []string{"b", "c"}) {
		t.Fatalf("unexpected %v", got)
	}
}

func cladeFixture() Dataset {
	return dataset(
		rec(0, "A", "H5N1", "2024-01-10", "dominant-1", "2.3.4.4b"),
		rec(1, "B", "H5N1", "2024-01-05", "dominant-sub", "2.3.4.4b.1"),
		rec(2, "C", "H5N1", "2024-01-20", "rare", "2.3.2.1"),
		rec(3, "D", "H5N1", "2024-01-01", "other", "2.2"),
		rec(4, "E", "H5N1", "2024-02-03", "dominant-feb", "2.3.4.4b"),
	)
}

func TestCladeMonthlyUnionCompetesForMonth(t *testing.T) {
	op := CladeMonthly{Clades: []string{"2.3.4.4b", "2.3.2.1"}, Keep: KeepFirst}
	got := accessions(apply(t, op, cladeFixture()).Dataset)
	if !equalStrings(got, []string{"dominant-sub", "dominant-feb"}) {
		t.Fatalf("unexpected union result %v", got)
	}
}

func TestCladeMonthlyIndependentProtectsRareClade(t *testing.T) {
	op := CladeMonthly{Clades: []string{"2.3.4.4b", "2.3.2.1"}, Keep: KeepFirst, Independent: true}
	got := accessions(apply(t, op, cladeFixture()).Dataset)
	if !equalStrings(got, []string{"dominant-sub", "rare", "dominant-feb"}) {
		t.Fatalf("unexpected independent result %v", got)
	}
}

func TestCladeMonthlyWithoutSelectionUsesExactClades(t *testing.T) {
	got := accessions(apply(t, CladeMonthly{Keep: KeepFirst}, cladeFixture()).Dataset)
	if !equalStrings(got, []string{"dominant-1", "dominant-sub", "rare", "other", "dominant-feb"}) {
		t.Fatalf("unexpected result %v", got)
	}
}
