package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Header field names used in parse issues and field coverage reports.
const (
	FieldNameName      = "name"
	FieldNameSubtype   = "subtype"
	FieldNameSegment   = "segment"
	FieldNameDate      = "collection_date"
	FieldNameAccession = "accession"
	FieldNameClade     = "clade"
)

// IssueKind classifies a non-fatal header problem.
type IssueKind string

const (
	IssueMissing   IssueKind = "missing"
	IssueMalformed IssueKind = "malformed"
)

// FieldIssue reports a header field that degraded to Unknown or null.
type FieldIssue struct {
	Field string    `json:"field"`
	Kind  IssueKind `json:"kind"`
	Value string    `json:"value,omitempty"`
}

func (i FieldIssue) String() string {
	if i.Value == "" {
		return fmt.Sprintf("%s %s", i.Field, i.Kind)
	}
	return fmt.Sprintf("%s %s (%q)", i.Field, i.Kind, i.Value)
}

// normalizedWidth is the field count of the extended header layout
// name|type|subtype|segment|location|host|date|clade|accession.
const normalizedWidth = 9

// HeaderParser turns FASTA identifier lines into structured fields.
type HeaderParser struct {
	hosts HostTable
}

// NewHeaderParser returns a parser that infers hosts with the given table.
func NewHeaderParser(hosts HostTable) *HeaderParser {
	return &HeaderParser{hosts: hosts}
}

// Hosts returns the parser's host table.
func (p *HeaderParser) Hosts() HostTable { return p.hosts }

// ParsedHeader is the outcome of parsing one header.
type ParsedHeader struct {
	Fields   Fields
	Host     string
	Location string
	Issues   []FieldIssue
}

// Parse splits header on '|'. Only invalid UTF-8 is an error; every other
// problem degrades to Unknown or a null date and is listed in Issues.
func (p *HeaderParser) Parse(header string) (ParsedHeader, error) {
	if !utf8.ValidString(header) {
		return ParsedHeader{}, ErrInvalidEncoding
	}
	header = strings.TrimPrefix(header, ">")
	parts := strings.Split(header, "|")
	at := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	var out ParsedHeader
	text := func(field, raw string) string {
		v := norm.NFC.String(strings.TrimSpace(raw))
		if v == "" {
			out.Issues = append(out.Issues, FieldIssue{Field: field, Kind: IssueMissing})
			return Unknown
		}
		return v
	}

	var rawDate, rawLocation, rawHost string
	if len(parts) >= normalizedWidth {
		out.Fields.Name = text(FieldNameName, at(0))
		out.Fields.Subtype = text(FieldNameSubtype, at(2))
		out.Fields.Segment = text(FieldNameSegment, at(3))
		rawLocation = norm.NFC.String(strings.TrimSpace(at(4)))
		rawHost = strings.TrimSpace(at(5))
		rawDate = at(6)
		out.Fields.Clade = text(FieldNameClade, at(7))
		out.Fields.Accession = text(FieldNameAccession, at(8))
	} else {
		out.Fields.Name = text(FieldNameName, at(0))
		out.Fields.Subtype = text(FieldNameSubtype, at(1))
		out.Fields.Segment = text(FieldNameSegment, at(2))
		rawDate = at(3)
		out.Fields.Accession = text(FieldNameAccession, at(4))
		out.Fields.Clade = text(FieldNameClade, at(5))
	}

	rawDate = strings.TrimSpace(rawDate)
	switch {
	case rawDate == "" || rawDate == Unknown:
		out.Issues = append(out.Issues, FieldIssue{Field: FieldNameDate, Kind: IssueMissing})
	default:
		d, ok := ParseDate(rawDate)
		if !ok {
			out.Issues = append(out.Issues, FieldIssue{Field: FieldNameDate, Kind: IssueMalformed, Value: rawDate})
		}
		out.Fields.Date = d
	}

	out.Location = rawLocation
	if out.Location == "" || out.Location == Unknown {
		out.Location = LocationFromName(out.Fields.Name)
	}
	out.Host = rawHost
	if out.Host == "" || out.Host == Unknown {
		out.Host = p.hosts.Infer(out.Fields.Name)
	}
	return out, nil
}

// Record parses header and assembles a record at the given ordinal.
func (p *HeaderParser) Record(ordinal int, header, sequence string) (Record, []FieldIssue, error) {
	parsed, err := p.Parse(header)
	if err != nil {
		return Record{}, nil, err
	}
	return Record{
		Ordinal:  ordinal,
		Header:   strings.TrimPrefix(header, ">"),
		Sequence: sequence,
		Fields:   parsed.Fields,
		Host:     parsed.Host,
		Location: parsed.Location,
	}, parsed.Issues, nil
}

// LocationFromName returns the second '/'-delimited token of an isolate name.
func LocationFromName(name string) string {
	if name == Unknown {
		return Unknown
	}
	tokens := strings.Split(name, "/")
	if len(tokens) < 2 {
		return Unknown
	}
	loc := strings.TrimSpace(tokens[1])
	if loc == "" {
		return Unknown
	}
	return loc
}

// ParseReport aggregates header issues across a batch.
type ParseReport struct {
	Records  int            `json:"records"`
	Degraded int            `json:"degraded"`
	Issues   map[string]int `json:"issues"`
}

// Add folds one record's issues into the report.
func (r *ParseReport) Add(issues []FieldIssue) {
	r.Records++
	if len(issues) == 0 {
		return
	}
	r.Degraded++
	if r.Issues == nil {
		r.Issues = make(map[string]int)
	}
	for _, issue := range issues {
		r.Issues[issue.Field+":"+string(issue.Kind)]++
	}
}

// Merge adds other into r.
func (r *ParseReport) Merge(other ParseReport) {
	r.Records += other.Records
	r.Degraded += other.Degraded
	for k, v := range other.Issues {
		if r.Issues == nil {
			r.Issues = make(map[string]int)
		}
		r.Issues[k] += v
	}
}
