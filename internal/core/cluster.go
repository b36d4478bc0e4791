package core

import (
	"cmp"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
)

// ErrEmptyClone marks a clone without members. It only surfaces through a
// panic because no valid input can produce one.
var ErrEmptyClone = errors.New("clone has no members")

// ClusterOptions controls clone identity.
type ClusterOptions struct {
	QualifyBySubtype bool
	Workers          int
}

// Clone is a set of records sharing sequence content (and subtype when
// qualified). Members are dataset positions in ascending order.
type Clone struct {
	ID        string
	Subtype   string
	Members   []int
	FirstDate Date
	LastDate  Date
}

// Size returns the member count.
func (c Clone) Size() int { return len(c.Members) }

// Partition is the clone partition of a dataset.
type Partition struct {
	dataset Dataset
	options ClusterOptions
	clones  []Clone
	byPos   []int
	byID    map[string]int
}

// Cluster partitions in by content. Membership depends only on record
// content; clones are ordered by size descending, then first date, then ID.
func Cluster(in Dataset, opts ClusterOptions) Partition {
	keys := cloneKeys(in, opts.QualifyBySubtype, opts.Workers)
	index := make(map[string]int)
	var clones []Clone
	for pos, k := range keys {
		ci, ok := index[k]
		if !ok {
			ci = len(clones)
			index[k] = ci
			r := in.At(pos)
			c := Clone{ID: cloneID(r, opts.QualifyBySubtype)}
			if opts.QualifyBySubtype {
				c.Subtype = r.Fields.Subtype
			}
			clones = append(clones, c)
		}
		c := &clones[ci]
		c.Members = append(c.Members, pos)
		d := in.At(pos).Fields.Date
		if d.IsZero() {
			continue
		}
		if c.FirstDate.IsZero() || d.Before(c.FirstDate) {
			c.FirstDate = d
		}
		if c.LastDate.IsZero() || c.LastDate.Before(d) {
			c.LastDate = d
		}
	}

	slices.SortFunc(clones, func(a, b Clone) int {
		if c := cmp.Compare(b.Size(), a.Size()); c != 0 {
			return c
		}
		if c := a.FirstDate.Compare(b.FirstDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	p := Partition{dataset: in, options: opts, clones: clones, byPos: make([]int, in.Len()), byID: make(map[string]int, len(clones))}
	for ci, c := range clones {
		p.byID[c.ID] = ci
		for _, pos := range c.Members {
			p.byPos[pos] = ci
		}
	}
	return p
}

// cloneID is the 12 hex digit digest of the canonical sequence, with the
// subtype appended when qualified.
func cloneID(r Record, qualify bool) string {
	content := r.Canonical()
	if qualify {
		content += "|" + r.Fields.Subtype
	}
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// Dataset returns the clustered records.
func (p Partition) Dataset() Dataset { return p.dataset }

// Options returns the options the partition was built with.
func (p Partition) Options() ClusterOptions { return p.options }

// Len returns the number of clones.
func (p Partition) Len() int { return len(p.clones) }

// Clones returns the clones in partition order.
func (p Partition) Clones() []Clone { return slices.Clone(p.clones) }

// Clone returns the clone at index i.
func (p Partition) Clone(i int) Clone { return p.clones[i] }

// Lookup finds a clone by ID.
func (p Partition) Lookup(id string) (Clone, bool) {
	ci, ok := p.byID[id]
	if !ok {
		return Clone{}, false
	}
	return p.clones[ci], true
}

// CloneOf returns the clone index of the record at pos.
func (p Partition) CloneOf(pos int) int { return p.byPos[pos] }

// Members returns the member records of c in dataset order.
func (p Partition) Members(c Clone) []Record {
	out := make([]Record, len(c.Members))
	for i, pos := range c.Members {
		out[i] = p.dataset.At(pos)
	}
	return out
}

// MemberOrdinals returns the ordinals of c's members.
func (p Partition) MemberOrdinals(c Clone) []int {
	out := make([]int, len(c.Members))
	for i, pos := range c.Members {
		out[i] = p.dataset.At(pos).Ordinal
	}
	return out
}

// Representative picks c's representative position under policy.
func (p Partition) Representative(c Clone, policy RepresentativePolicy) int {
	return policy.pick(p.dataset, c.Members)
}

// Label names a record in reports: its accession when known, else its name.
func Label(r Record) string {
	if r.Fields.Accession != "" && r.Fields.Accession != Unknown {
		return r.Fields.Accession
	}
	return r.Fields.Name
}

// boundaryMembers returns c's first and last member by date, nulls last,
// ties in dataset order. A single-member clone yields one position.
func (p Partition) boundaryMembers(c Clone) []int {
	if len(c.Members) == 0 {
		panic(fmt.Errorf("clone %s: %w", c.ID, ErrEmptyClone))
	}
	sorted := slices.Clone(c.Members)
	slices.SortStableFunc(sorted, func(a, b int) int {
		return p.dataset.At(a).Fields.Date.Compare(p.dataset.At(b).Fields.Date)
	})
	if len(sorted) == 1 {
		return sorted[:1]
	}
	return []int{sorted[0], sorted[len(sorted)-1]}
}
