package core

import (
	"fmt"
	"strings"
)

// RepresentativePolicy chooses one member to stand for a clone or a cell.
type RepresentativePolicy string

const (
	// HighestQuality prefers the longest sequence, then the earliest date.
	HighestQuality RepresentativePolicy = "highest_quality"
	// Earliest prefers the earliest collection date.
	Earliest RepresentativePolicy = "earliest"
	// Latest prefers the latest collection date. Undated members lose.
	Latest RepresentativePolicy = "latest"
)

// ParseRepresentativePolicy accepts identifiers and display labels
// ("Highest Quality").
func ParseRepresentativePolicy(s string) (RepresentativePolicy, error) {
	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "", "highest_quality", "quality":
		return HighestQuality, nil
	case "earliest":
		return Earliest, nil
	case "latest":
		return Latest, nil
	}
	return "", fmt.Errorf("unknown representative policy %q", s)
}

// Label is the display name recorded in methodology snapshots.
func (p RepresentativePolicy) Label() string {
	switch p {
	case Earliest:
		return "Earliest"
	case Latest:
		return "Latest"
	}
	return "Highest Quality"
}

// pick returns the preferred position among candidates. Remaining ties go
// to the earliest position.
func (p RepresentativePolicy) pick(in Dataset, candidates []int) int {
	if len(candidates) == 0 {
		panic(fmt.Errorf("representative: %w", ErrEmptyClone))
	}
	best := candidates[0]
	for _, pos := range candidates[1:] {
		if p.better(in.At(pos), in.At(best)) || (!p.better(in.At(best), in.At(pos)) && pos < best) {
			best = pos
		}
	}
	return best
}

// better reports whether a is strictly preferred over b.
func (p RepresentativePolicy) better(a, b Record) bool {
	switch p {
	case Earliest:
		return a.Fields.Date.Compare(b.Fields.Date) < 0
	case Latest:
		ad, bd := a.Fields.Date, b.Fields.Date
		if ad.IsZero() || bd.IsZero() {
			return !ad.IsZero() && bd.IsZero()
		}
		return bd.Before(ad)
	default:
		if a.Length() != b.Length() {
			return a.Length() > b.Length()
		}
		return a.Fields.Date.Compare(b.Fields.Date) < 0
	}
}
