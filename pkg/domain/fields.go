package domain

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// FieldKey is the closed set of record attributes usable for grouping,
// sorting, rule filters and split exports.
type FieldKey int

const (
	FieldName FieldKey = iota + 1
	FieldSubtype
	FieldSubtypeClean
	FieldSegment
	FieldDate
	FieldAccession
	FieldClade
	FieldLocation
	FieldHost
	FieldYear
	FieldQuarter
	FieldMonth
	FieldWeek
	FieldSequenceHash
	FieldLength
)

var fieldKeyNames = map[FieldKey]string{
	FieldName:         "name",
	FieldSubtype:      "subtype",
	FieldSubtypeClean: "subtype_clean",
	FieldSegment:      "segment",
	FieldDate:         "date",
	FieldAccession:    "accession",
	FieldClade:        "clade",
	FieldLocation:     "location",
	FieldHost:         "host",
	FieldYear:         "year",
	FieldQuarter:      "quarter",
	FieldMonth:        "month",
	FieldWeek:         "week",
	FieldSequenceHash: "sequence_hash",
	FieldLength:       "length",
}

var fieldKeyAliases = map[string]FieldKey{
	"isolate":         FieldName,
	"collection_date": FieldDate,
	"hash":            FieldSequenceHash,
	"clone":           FieldSequenceHash,
}

// ParseFieldKey resolves a field name (case-insensitive).
func ParseFieldKey(s string) (FieldKey, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, v := range fieldKeyNames {
		if v == name {
			return k, nil
		}
	}
	if k, ok := fieldKeyAliases[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// ParseFieldKeys parses a comma separated list. "none" and the empty string
// yield an empty list.
func ParseFieldKeys(s string) ([]FieldKey, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	var keys []FieldKey
	seen := make(map[FieldKey]struct{})
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseFieldKey(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

// Valid reports whether k is a supported key.
func (k FieldKey) Valid() bool {
	_, ok := fieldKeyNames[k]
	return ok
}

func (k FieldKey) String() string {
	if name, ok := fieldKeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(k))
}

// MarshalText encodes the key by name.
func (k FieldKey) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a key name.
func (k *FieldKey) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Temporal reports whether the key is derived from the collection date.
func (k FieldKey) Temporal() bool {
	switch k {
	case FieldDate, FieldYear, FieldQuarter, FieldMonth, FieldWeek:
		return true
	}
	return false
}

// Value renders the record's value for k. Temporal keys of undated records
// and absent text fields render as Unknown.
func (k FieldKey) Value(r Record) string {
	d := r.Fields.Date
	switch k {
	case FieldName:
		return r.Fields.Name
	case FieldSubtype:
		return r.Fields.Subtype
	case FieldSubtypeClean:
		return r.SubtypeClean()
	case FieldSegment:
		return r.Fields.Segment
	case FieldAccession:
		return r.Fields.Accession
	case FieldClade:
		return r.Fields.Clade
	case FieldLocation:
		return r.Location
	case FieldHost:
		return r.Host
	case FieldSequenceHash:
		return r.SequenceHash()
	case FieldLength:
		return strconv.Itoa(r.Length())
	}
	if d.IsZero() {
		return Unknown
	}
	switch k {
	case FieldDate:
		return d.String()
	case FieldYear:
		return strconv.Itoa(d.Time().Year())
	case FieldQuarter:
		return d.Quarter()
	case FieldMonth:
		return d.Month().String()
	case FieldWeek:
		return d.Week()
	}
	return Unknown
}

// Compare orders a and b by k ascending. Dates compare chronologically and
// length numerically; other temporal keys compare at their own granularity.
// Undated records sort after dated ones.
func (k FieldKey) Compare(a, b Record) int {
	switch k {
	case FieldDate:
		return a.Fields.Date.Compare(b.Fields.Date)
	case FieldLength:
		return cmp.Compare(a.Length(), b.Length())
	}
	av, bv := k.Value(a), k.Value(b)
	if k.Temporal() {
		switch {
		case av == Unknown && bv == Unknown:
			return 0
		case av == Unknown:
			return 1
		case bv == Unknown:
			return -1
		}
	}
	return strings.Compare(av, bv)
}
