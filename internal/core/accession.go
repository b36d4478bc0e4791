package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"
)

// AccessionSet is an ordered set of accession identifiers.
type AccessionSet struct {
	ids  []string
	seen map[string]struct{}
}

// NewAccessionSet de-duplicates ids, keeping first-seen order and dropping
// blanks.
func NewAccessionSet(ids ...string) AccessionSet {
	s := AccessionSet{seen: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *AccessionSet) add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// ParseAccessions splits text on newlines, commas, semicolons and
// whitespace. Comment lines are only recognised by ReadAccessions.
func ParseAccessions(text string) AccessionSet {
	return NewAccessionSet(strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})...)
}

// ReadAccessions reads an accession list. Lines starting with '#' are
// skipped.
func ReadAccessions(r io.Reader) (AccessionSet, error) {
	set := NewAccessionSet()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, id := range ParseAccessions(line).ids {
			set.add(id)
		}
	}
	if err := sc.Err(); err != nil {
		return AccessionSet{}, fmt.Errorf("read accessions: %w", err)
	}
	return set, nil
}

// Len returns the number of distinct identifiers.
func (s AccessionSet) Len() int { return len(s.ids) }

// IDs returns the identifiers in first-seen order.
func (s AccessionSet) IDs() []string { return append([]string(nil), s.ids...) }

// Contains reports membership.
func (s AccessionSet) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// AccessionMatch summarizes a filter run against a requested list.
type AccessionMatch struct {
	Requested int      `json:"requested"`
	Matched   int      `json:"matched"`
	Records   int      `json:"records"`
	Missing   []string `json:"missing,omitempty"`
}

// Ratio is the matched share of requested identifiers.
func (m AccessionMatch) Ratio() float64 {
	if m.Requested == 0 {
		return 0
	}
	return float64(m.Matched) / float64(m.Requested)
}

// RecordRatio is the number of returned records over requested
// identifiers. It exceeds 1 when an accession is shared by several records.
func (m AccessionMatch) RecordRatio() float64 {
	if m.Requested == 0 {
		return 0
	}
	return float64(m.Records) / float64(m.Requested)
}

func (m AccessionMatch) String() string {
	return fmt.Sprintf("matched %d/%d accessions (%d records, ratio %.2f)", m.Matched, m.Requested, m.Records, m.RecordRatio())
}

// MatchAccessions returns the records whose accession is in set, in
// working-set order, and the match summary.
func MatchAccessions(in Dataset, set AccessionSet) (Dataset, AccessionMatch) {
	found := make(map[string]struct{})
	out := in.Filter(func(r Record) bool {
		if set.Contains(r.Fields.Accession) {
			found[r.Fields.Accession] = struct{}{}
			return true
		}
		return false
	})
	m := AccessionMatch{Requested: set.Len(), Matched: len(found), Records: out.Len()}
	for _, id := range set.ids {
		if _, ok := found[id]; !ok {
			m.Missing = append(m.Missing, id)
		}
	}
	return out, m
}

// AccessionFilter keeps records whose accession is listed.
type AccessionFilter struct {
	Set AccessionSet
}

func (AccessionFilter) Name() string { return "accession_filter" }

func (f AccessionFilter) Parameters() map[string]any {
	return map[string]any{"requested": f.Set.Len()}
}

func (f AccessionFilter) Apply(_ context.Context, in Dataset) (Outcome, error) {
	out, m := MatchAccessions(in, f.Set)
	return Outcome{Dataset: out, Notes: []string{m.String()}}, nil
}

// ExtractAccessions returns the distinct known accessions of in, sorted.
func ExtractAccessions(in Dataset) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i < in.Len(); i++ {
		a := in.At(i).Fields.Accession
		if a == "" || a == Unknown {
			continue
		}
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}
