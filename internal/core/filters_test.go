package core

import (
	"errors"
	"strings"
	"testing"

	"virsift/pkg/domain"
)

func accessionFixture() Dataset {
	return dataset(
		rec(0, "A", "H1N1", "", "EPI_ISL_1", ""),
		rec(1, "C", "H1N1", "", "EPI_ISL_2", ""),
		rec(2, "G", "H1N1", "", "EPI_ISL_3", ""),
		rec(3, "T", "H1N1", "", "EPI_ISL_4", ""),
		rec(4, "N", "H1N1", "", Unknown, ""),
	)
}

func TestAccessionFilterReportsRatio(t *testing.T) {
	out, m := MatchAccessions(accessionFixture(), NewAccessionSet("EPI_ISL_1", "EPI_ISL_3"))
	if out.Len() != 2 || m.Matched != 2 || m.Requested != 2 || m.Ratio() != 1 {
		t.Fatalf("unexpected match %+v (%d records)", m, out.Len())
	}
	if m.String() != "matched 2/2 accessions (2 records, ratio 1.00)" {
		t.Fatalf("unexpected summary %q", m.String())
	}

	_, m = MatchAccessions(accessionFixture(), ParseAccessions("EPI_ISL_1 epi_isl_3 EPI_ISL_99"))
	if m.Matched != 1 || m.Requested != 3 || len(m.Missing) != 2 {
		t.Fatalf("expected case-sensitive partial match, got %+v", m)
	}
}

func TestAccessionRecordRatioCountsSharedAccessions(t *testing.T) {
	in := dataset(
		rec(0, "A", "", "", "EPI_ISL_1", ""),
		rec(1, "C", "", "", "EPI_ISL_1", ""),
		rec(2, "G", "", "", "EPI_ISL_2", ""),
	)
	out, m := MatchAccessions(in, NewAccessionSet("EPI_ISL_1", "EPI_ISL_9"))
	if out.Len() != 2 || m.Records != 2 || m.Matched != 1 {
		t.Fatalf("unexpected match %+v", m)
	}
	if m.Ratio() != 0.5 || m.RecordRatio() != 1 {
		t.Fatalf("expected id ratio 0.5 and record ratio 1, got %v/%v", m.Ratio(), m.RecordRatio())
	}
	if m := (AccessionMatch{}); m.RecordRatio() != 0 {
		t.Fatalf("empty request should have a zero ratio")
	}
	if set := ParseAccessions("# EPI_ISL_1"); set.Len() != 2 || !set.Contains("#") {
		t.Fatalf("inline text keeps '#' tokens, got %v", set.IDs())
	}
}

func TestParseAccessionsSeparatorsAndDuplicates(t *testing.T) {
	set := ParseAccessions("EPI_ISL_1,EPI_ISL_2\n\tEPI_ISL_1  EPI_ISL_3;EPI_ISL_2\r\n")
	if !equalStrings(set.IDs(), []string{"EPI_ISL_1", "EPI_ISL_2", "EPI_ISL_3"}) {
		t.Fatalf("unexpected ids %v", set.IDs())
	}
	read, err := ReadAccessions(strings.NewReader("# exported list\nEPI_ISL_5\n\nEPI_ISL_5, EPI_ISL_6\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if read.Len() != 2 || !read.Contains("EPI_ISL_6") {
		t.Fatalf("unexpected set %v", read.IDs())
	}
}

func TestExtractAccessionsSortedDistinct(t *testing.T) {
	in := dataset(
		rec(0, "A", "", "", "EPI_ISL_3", ""),
		rec(1, "A", "", "", "EPI_ISL_1", ""),
		rec(2, "A", "", "", "EPI_ISL_3", ""),
		rec(3, "A", "", "", Unknown, ""),
	)
	if got := ExtractAccessions(in); !equalStrings(got, []string{"EPI_ISL_1", "EPI_ISL_3"}) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestHeaderRuleFilter(t *testing.T) {
	in := dataset(
		rec(0, "A", "A_/_H5N1", "2023-03-01", "EPI_1", "2.3.4.4b"),
		rec(1, "C", "A_/_H3N2", "2023-08-01", "EPI_2", "3C.2a"),
		rec(2, "G", "A_/_H5N8", "", "EPI_3", "2.3.4.4b"),
	)
	cases := map[string][]string{
		"subtype_clean:equals:h5n1":              {"EPI_1"},
		"subtype:contains:H5":                    {"EPI_1", "EPI_3"},
		"clade:not_equals:2.3.4.4b":              {"EPI_2"},
		"accession:starts_with:epi_":             {"EPI_1", "EPI_2", "EPI_3"},
		"subtype_clean:in_list:H3N2, H5N8":       {"EPI_2", "EPI_3"},
		"accession:regex:^EPI_[12]$":             {"EPI_1", "EPI_2"},
		"collection_date:date_range:2023-06-01..": {"EPI_2"},
		"date:date_range:..2023-06-01":           {"EPI_1"},
		"subtype:not_contains:H5":                {"EPI_2"},
	}
	for raw, want := range cases {
		rule, err := ParseHeaderRule(raw)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		f, err := NewHeaderRuleFilter(rule)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got := accessions(apply(t, f, in).Dataset); !equalStrings(got, want) {
			t.Fatalf("%s: got %v want %v", raw, got, want)
		}
	}
}

func TestHeaderRuleErrors(t *testing.T) {
	if _, err := ParseHeaderRule("colour:equals:red"); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
	if _, err := ParseHeaderRule("subtype"); err == nil {
		t.Fatalf("expected malformed rule error")
	}
	if _, err := ParseHeaderRule("date:date_range:2023-13-01..2024-01-01"); err == nil {
		t.Fatalf("expected invalid date error")
	}
	if _, err := NewHeaderRuleFilter(HeaderRule{Field: domain.FieldName, Operator: "like", Value: "x"}); err == nil {
		t.Fatalf("expected unknown operator error")
	}
	if _, err := NewHeaderRuleFilter(HeaderRule{Field: domain.FieldName, Operator: OpRegex, Value: "("}); err == nil {
		t.Fatalf("expected regex compile error")
	}
	bad := HeaderRule{Field: domain.FieldDate, Operator: OpDateRange, From: domain.MustParseDate("2024-01-02"), To: domain.MustParseDate("2024-01-01")}
	if _, err := NewHeaderRuleFilter(bad); err == nil {
		t.Fatalf("expected inverted range error")
	}
}

func TestSubtypeAndCladeFilters(t *testing.T) {
	in := dataset(
		rec(0, "A", "A_/_H5N1", "", "E1", "2.3.4.4b.1"),
		rec(1, "C", "H3N2", "", "E2", "3C.2a1b"),
		rec(2, "G", "A_/_h5n1", "", "E3", Unknown),
	)
	if got := accessions(apply(t, SubtypeFilter{Subtypes: []string{"H5N1"}}, in).Dataset); !equalStrings(got, []string{"E1", "E3"}) {
		t.Fatalf("subtype filter: %v", got)
	}
	if got := accessions(apply(t, CladeFilter{Clades: []string{"2.3.4.4b"}}, in).Dataset); !equalStrings(got, []string{"E1"}) {
		t.Fatalf("clade descent: %v", got)
	}
	if got := accessions(apply(t, CladeFilter{Clades: []string{"3C"}, Level: 1}, in).Dataset); !equalStrings(got, []string{"E2"}) {
		t.Fatalf("clade level: %v", got)
	}
	out := apply(t, CladeFilter{Clades: []string{"3C.2a1b"}, Level: -2}, in)
	if out.Dataset.Len() != 1 || len(out.Notes) != 1 {
		t.Fatalf("expected clamped level note, got %v", out.Notes)
	}
}

func TestAdaptiveSamplerUsesDatasetLifespan(t *testing.T) {
	cases := []struct {
		name string
		in   Dataset
		want []string
	}{
		{
			name: "micro samples weekly",
			in: dataset(
				rec(0, "AAAA", "H5N1", "2024-01-01", "w1a", ""),
				rec(1, "AAAA", "H5N1", "2024-01-03", "w1b", ""),
				rec(2, "AAAA", "H5N1", "2024-01-20", "w3", ""),
				rec(3, "CCCC", "H5N1", "2024-01-02", "other-w1", ""),
				rec(4, "TTTT", "H5N1", "", "undated", ""),
			),
			want: []string{"w1a", "w3", "other-w1"},
		},
		{
			name: "seasonal samples monthly",
			in: dataset(
				rec(0, "CCCC", "H5N1", "2023-01-15", "jan-a", ""),
				rec(1, "CCCC", "H5N1", "2023-01-20", "jan-b", ""),
				rec(2, "CCCC", "H5N1", "2023-06-10", "jun", ""),
				rec(3, "GGGG", "H5N1", "2023-01-16", "other-jan", ""),
			),
			want: []string{"jan-a", "jun", "other-jan"},
		},
		{
			// A short-lived clone inside a long dataset follows the dataset's
			// quarterly resolution.
			name: "endemic without waves samples quarterly",
			in: dataset(
				rec(0, "AAAA", "H5N1", "2023-01-02", "a1", ""),
				rec(1, "AAAA", "H5N1", "2023-01-16", "a2", ""),
				rec(2, "CCCC", "H5N1", "2023-01-03", "b1", ""),
				rec(3, "CCCC", "H5N1", "2024-03-01", "b2", ""),
			),
			want: []string{"a1", "b1", "b2"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := apply(t, AdaptiveSampler{}, tc.in)
			if got := accessions(out.Dataset); !equalStrings(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestAdaptiveSamplerEndemicUsesWaves(t *testing.T) {
	out := apply(t, AdaptiveSampler{}, waveFixture())
	want := []string{"start", "p1-0", "p2-0", "end"}
	if got := accessions(out.Dataset); !equalStrings(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(out.Notes) == 0 || !strings.Contains(out.Notes[len(out.Notes)-1], "2 waves") {
		t.Fatalf("expected wave note, got %v", out.Notes)
	}
}

func TestDatasetLifespan(t *testing.T) {
	if got, _ := DatasetLifespan(dataset(rec(0, "A", "", "", "x", ""))); got != LifespanSeasonal {
		t.Fatalf("undated dataset: got %s", got)
	}
	in := dataset(rec(0, "A", "", "2023-01-01", "x", ""), rec(1, "C", "", "2023-12-31", "y", ""))
	if got, days := DatasetLifespan(in); got != LifespanEndemic || days != 364 {
		t.Fatalf("got %s over %d days", got, days)
	}
}

func TestClassifyLifespanBoundaries(t *testing.T) {
	cases := map[int]Lifespan{0: LifespanMicro, 89: LifespanMicro, 90: LifespanSeasonal, 270: LifespanSeasonal, 271: LifespanEndemic}
	for days, want := range cases {
		if got := ClassifyLifespan(days); got != want {
			t.Fatalf("%d days: got %s want %s", days, got, want)
		}
	}
}

func TestCheckpointSamplerTolerance(t *testing.T) {
	in := dataset(
		rec(0, "A", "", "2024-02-25", "edge-before", ""),
		rec(1, "A", "", "2024-02-24", "outside-before", ""),
		rec(2, "A", "", "2024-03-06", "edge-after", ""),
		rec(3, "A", "", "2024-03-07", "outside-after", ""),
		rec(4, "A", "", "", "undated", ""),
	)
	op := CheckpointSampler{Checkpoints: []Date{domain.MustParseDate("2024-03-01")}, ToleranceDays: 5}
	if got := accessions(apply(t, op, in).Dataset); !equalStrings(got, []string{"edge-before", "edge-after"}) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestCheckpointSamplerMonthsLockBoundaries(t *testing.T) {
	in := dataset(
		rec(0, "A", "", "2024-03-20", "mar-late", ""),
		rec(1, "A", "", "2024-03-05", "mar-early", ""),
		rec(2, "A", "", "2024-01-10", "first", ""),
		rec(3, "A", "", "2024-05-02", "may", ""),
		rec(4, "A", "", "2024-09-30", "last", ""),
		rec(5, "A", "", "", "undated", ""),
	)
	op := CheckpointSampler{Months: []Month{{Year: 2024, Month: 3}, {Year: 2024, Month: 7}}}
	out := apply(t, op, in)
	if got := accessions(out.Dataset); !equalStrings(got, []string{"mar-early", "first", "last"}) {
		t.Fatalf("unexpected %v", got)
	}
	if len(out.Notes) != 1 || !strings.Contains(out.Notes[0], "2024-07") {
		t.Fatalf("expected empty-month note, got %v", out.Notes)
	}
}
