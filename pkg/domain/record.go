// Package domain defines the sequence record model, calendar value types,
// header parsing and the persistence contracts shared by virsift's engine,
// storage adapters and command line.
package domain

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Unknown is the sentinel stored in any header field that is absent or blank.
const Unknown = "Unknown"

// AmbiguousBase is the ambiguous nucleotide symbol counted by N-run checks.
const AmbiguousBase = 'N'

// Fields holds the positional header fields of a record.
type Fields struct {
	Name      string `json:"name"`
	Subtype   string `json:"subtype"`
	Segment   string `json:"segment"`
	Date      Date   `json:"collection_date"`
	Accession string `json:"accession"`
	Clade     string `json:"clade"`
}

// Record is a parsed sequence record. Records are values; nothing in the
// engine mutates one after parsing.
type Record struct {
	Ordinal  int    `json:"ordinal"`
	Header   string `json:"raw_header"`
	Sequence string `json:"sequence"`
	Fields   Fields `json:"fields"`
	Host     string `json:"host"`
	Location string `json:"location"`
}

// Length returns the sequence length.
func (r Record) Length() int { return len(r.Sequence) }

// Canonical returns the case-normalized sequence used for identity.
func (r Record) Canonical() string { return strings.ToUpper(r.Sequence) }

// SequenceHash is the 12 hex digit MD5 digest of the canonical sequence.
func (r Record) SequenceHash() string { return SequenceHash(r.Sequence) }

// SubtypeClean returns the HxNy component of the subtype field.
func (r Record) SubtypeClean() string { return SubtypeClean(r.Fields.Subtype) }

// CladeLevel returns the clade truncated to level dot components, or Unknown.
func (r Record) CladeLevel(level int) string { return CladeLevel(r.Fields.Clade, level) }

// LongestRun returns the longest consecutive run of symbol (case-insensitive).
func (r Record) LongestRun(symbol byte) int {
	lower := symbol | 0x20
	upper := symbol &^ 0x20
	longest, run := 0, 0
	for i := 0; i < len(r.Sequence); i++ {
		c := r.Sequence[i]
		if c == upper || c == lower {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}

// SequenceHash is the 12 hex digit MD5 digest of the uppercased sequence.
func SequenceHash(sequence string) string {
	sum := md5.Sum([]byte(strings.ToUpper(sequence)))
	return hex.EncodeToString(sum[:])[:12]
}

var subtypePattern = regexp.MustCompile(`(?i)H\d+N\d+`)

// SubtypeClean extracts the HxNy component (A_/_H3N2 -> H3N2). Values
// without one are returned unchanged.
func SubtypeClean(subtype string) string {
	if m := subtypePattern.FindString(subtype); m != "" {
		return strings.ToUpper(m)
	}
	return subtype
}

// CladeLevel truncates a dot-delimited clade to its first level components.
func CladeLevel(clade string, level int) string {
	if clade == "" || clade == Unknown || level < 1 {
		return Unknown
	}
	parts := strings.Split(clade, ".")
	if level > len(parts) {
		return Unknown
	}
	return strings.Join(parts[:level], ".")
}

// CladeDescends reports whether clade equals ancestor or lies beneath it.
func CladeDescends(clade, ancestor string) bool {
	if clade == "" || clade == Unknown || ancestor == "" {
		return false
	}
	return clade == ancestor || strings.HasPrefix(clade, ancestor+".")
}

// Dataset is an ordered, read-only sequence of records.
type Dataset struct {
	records []Record
}

// NewDataset copies records into a dataset, preserving order.
func NewDataset(records []Record) Dataset {
	cp := make([]Record, len(records))
	copy(cp, records)
	return Dataset{records: cp}
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d.records) }

// At returns the record at position i.
func (d Dataset) At(i int) Record { return d.records[i] }

// Records returns a copy of the records in order.
func (d Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Ordinals lists each record's ordinal in dataset order.
func (d Dataset) Ordinals() []int {
	out := make([]int, len(d.records))
	for i, r := range d.records {
		out[i] = r.Ordinal
	}
	return out
}

// Select returns the records at the given ascending positions.
func (d Dataset) Select(positions []int) Dataset {
	out := make([]Record, 0, len(positions))
	for _, p := range positions {
		out = append(out, d.records[p])
	}
	return Dataset{records: out}
}

// Filter returns the records for which keep reports true, in order.
func (d Dataset) Filter(keep func(Record) bool) Dataset {
	out := make([]Record, 0, len(d.records))
	for _, r := range d.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return Dataset{records: out}
}

// Pick resolves ordinals against d, which must be indexed by ordinal (an
// Original snapshot). Unknown ordinals are skipped.
func (d Dataset) Pick(ordinals []int) Dataset {
	out := make([]Record, 0, len(ordinals))
	for _, o := range ordinals {
		if o >= 0 && o < len(d.records) && d.records[o].Ordinal == o {
			out = append(out, d.records[o])
		}
	}
	return Dataset{records: out}
}

// Months returns the distinct collection months present in d.
func (d Dataset) Months() map[Month]struct{} {
	out := make(map[Month]struct{})
	for _, r := range d.records {
		if !r.Fields.Date.IsZero() {
			out[r.Fields.Date.Month()] = struct{}{}
		}
	}
	return out
}
