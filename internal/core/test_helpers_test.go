package core

import (
	"context"
	"fmt"
	"testing"

	"virsift/pkg/domain"
)

// rec builds a parsed record; an empty date leaves it undated.
func rec(ordinal int, seq, subtype, date, accession, clade string) Record {
	r := Record{
		Ordinal:  ordinal,
		Sequence: seq,
		Fields: domain.Fields{
			Name:      fmt.Sprintf("A/duck/Omsk/%d/2024", ordinal),
			Subtype:   subtype,
			Segment:   "HA",
			Accession: accession,
			Clade:     clade,
		},
		Host:     domain.HostAvian,
		Location: "duck",
	}
	if date != "" {
		r.Fields.Date = domain.MustParseDate(date)
	}
	r.Header = fmt.Sprintf("%s|%s|HA|%s|%s|%s", r.Fields.Name, subtype, date, accession, clade)
	return r
}

func dataset(records ...Record) Dataset { return domain.NewDataset(records) }

func apply(t *testing.T, op Operation, in Dataset) Outcome {
	t.Helper()
	out, err := op.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("%s: %v", op.Name(), err)
	}
	return out
}

func accessions(d Dataset) []string {
	out := make([]string, d.Len())
	for i := range out {
		out[i] = d.At(i).Fields.Accession
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
