package domain

import (
	"encoding/json"
	"testing"
)

func TestDateCompareNullsLast(t *testing.T) {
	a := MustParseDate("2024-01-02")
	b := MustParseDate("2024-03-01")
	var null Date
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 {
		t.Fatalf("expected chronological order")
	}
	if a.Compare(null) >= 0 || null.Compare(a) <= 0 || null.Compare(null) != 0 {
		t.Fatalf("expected null dates to sort last")
	}
}

func TestDateJSONRoundTripWithNull(t *testing.T) {
	in := Fields{Name: "x", Date: MustParseDate("2023-12-31")}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Fields
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Date.Compare(in.Date) != 0 {
		t.Fatalf("date lost in round trip: %s", out.Date)
	}
	if err := json.Unmarshal([]byte(`{"collection_date":null}`), &out); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !out.Date.IsZero() {
		t.Fatalf("expected null date")
	}
}

func TestMonthRangeAndSeasons(t *testing.T) {
	months := MonthRange(Month{Year: 2023, Month: 11}, Month{Year: 2024, Month: 2})
	if len(months) != 4 || months[0].String() != "2023-11" || months[3].String() != "2024-02" {
		t.Fatalf("unexpected range %v", months)
	}
	if MonthRange(Month{Year: 2024, Month: 2}, Month{Year: 2023, Month: 2}) != nil {
		t.Fatalf("expected empty range for inverted bounds")
	}
	dec := MustParseDate("2023-12-15").Season()
	jan := MustParseDate("2024-01-15").Season()
	if dec != jan || dec.String() != "2024-DJF" {
		t.Fatalf("december should join the following DJF window: %s %s", dec, jan)
	}
	if MustParseDate("2024-06-01").Season().String() != "2024-JJA" {
		t.Fatalf("unexpected summer window")
	}
}

func TestDateLabels(t *testing.T) {
	d := MustParseDate("2024-01-03")
	if d.Week() != "2024-W01" || d.Quarter() != "2024-Q1" || d.Month().String() != "2024-01" {
		t.Fatalf("unexpected labels %s %s %s", d.Week(), d.Quarter(), d.Month())
	}
}

func TestWeekStartIsMonday(t *testing.T) {
	cases := map[string]string{
		"2023-01-02": "2023-01-02",
		"2023-01-08": "2023-01-02",
		"2024-01-03": "2024-01-01",
		"2024-03-03": "2024-02-26",
	}
	for in, want := range cases {
		if got := MustParseDate(in).WeekStart().String(); got != want {
			t.Fatalf("%s: got %s want %s", in, got, want)
		}
	}
	if !(Date{}).WeekStart().IsZero() {
		t.Fatalf("null date should stay null")
	}
}
