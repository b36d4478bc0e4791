package core

import (
	"sort"

	"virsift/pkg/domain"
)

// Persistence describes how one clone recurs across seasonal windows.
type Persistence struct {
	CloneID      string   `json:"clone_id"`
	Label        string   `json:"label"`
	Size         int      `json:"cluster_size"`
	FirstDate    Date     `json:"first_date"`
	LastDate     Date     `json:"last_date"`
	SpanDays     int      `json:"span_days"`
	MonthsActive int      `json:"months_active"`
	Windows      []string `json:"windows"`
	LargestGap   int      `json:"largest_gap"`
	Overwinters  bool     `json:"overwinters"`
	Lifespan     Lifespan `json:"lifespan"`
}

// PersistenceReport summarizes clones of at least minSize members that have
// dated observations. Overwintering clones come first, then larger clones.
func PersistenceReport(p Partition, minSize int, policy RepresentativePolicy) []Persistence {
	minSize = max(minSize, 1)
	var out []Persistence
	for _, c := range p.clones {
		if c.Size() < minSize || c.FirstDate.IsZero() {
			continue
		}
		months := make(map[Month]struct{})
		seasons := make(map[int]domain.Season)
		for _, pos := range c.Members {
			d := p.dataset.At(pos).Fields.Date
			if d.IsZero() {
				continue
			}
			months[d.Month()] = struct{}{}
			s := d.Season()
			seasons[s.Index()] = s
		}
		idx := make([]int, 0, len(seasons))
		for i := range seasons {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		entry := Persistence{
			CloneID:      c.ID,
			Label:        Label(p.dataset.At(p.Representative(c, policy))),
			Size:         c.Size(),
			FirstDate:    c.FirstDate,
			LastDate:     c.LastDate,
			SpanDays:     c.FirstDate.DaysUntil(c.LastDate),
			MonthsActive: len(months),
		}
		entry.Lifespan = ClassifyLifespan(entry.SpanDays)
		for i, w := range idx {
			entry.Windows = append(entry.Windows, seasons[w].String())
			if i > 0 {
				entry.LargestGap = max(entry.LargestGap, w-idx[i-1]-1)
			}
		}
		entry.Overwinters = entry.LargestGap >= 1
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Overwinters != out[j].Overwinters {
			return out[i].Overwinters
		}
		return out[i].Size > out[j].Size
	})
	return out
}
