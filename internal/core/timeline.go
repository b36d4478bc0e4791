package core

import (
	"fmt"
	"sort"
	"strings"

	"virsift/pkg/domain"
)

// TimelineOptions configures the timeline matrix. Zero From/To leave the
// column span open on that side.
type TimelineOptions struct {
	MinClusterSize int
	Policy         RepresentativePolicy
	From, To       Month
}

// TimelineRow is one clone at or above the size threshold.
type TimelineRow struct {
	Clone          Clone
	Label          string
	Representative int
	Active         []bool
}

// MonthsActive counts the active cells.
func (r TimelineRow) MonthsActive() int {
	n := 0
	for _, a := range r.Active {
		if a {
			n++
		}
	}
	return n
}

// TimelineMatrix is the clone-by-month presence matrix over a partition.
type TimelineMatrix struct {
	Partition   Partition
	Options     TimelineOptions
	Months      []Month
	Rows        []TimelineRow
	Excluded    []Clone
	Adjustments []Adjustment

	cells map[Cell][]int
}

// Cell addresses one clone-month intersection.
type Cell struct {
	CloneID string
	Month   Month
}

func (c Cell) String() string { return c.CloneID + "@" + c.Month.String() }

// ParseCell parses "CLONEID@YYYY-MM".
func ParseCell(s string) (Cell, error) {
	id, month, ok := strings.Cut(s, "@")
	if !ok || id == "" {
		return Cell{}, fmt.Errorf("cell %q: want CLONE@YYYY-MM", s)
	}
	m, err := domain.ParseMonth(month)
	if err != nil {
		return Cell{}, fmt.Errorf("cell %q: %w", s, err)
	}
	return Cell{CloneID: id, Month: m}, nil
}

// Selection is a set of chosen cells.
type Selection map[Cell]struct{}

// Cells returns the selection sorted by clone then month.
func (s Selection) Cells() []Cell {
	out := make([]Cell, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CloneID != out[j].CloneID {
			return out[i].CloneID < out[j].CloneID
		}
		return out[i].Month.Index() < out[j].Month.Index()
	})
	return out
}

// Strings renders the sorted selection.
func (s Selection) Strings() []string {
	cells := s.Cells()
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}

// ParseSelection parses cell strings.
func ParseSelection(cells []string) (Selection, error) {
	sel := make(Selection, len(cells))
	for _, s := range cells {
		c, err := ParseCell(s)
		if err != nil {
			return nil, err
		}
		sel[c] = struct{}{}
	}
	return sel, nil
}

// BuildTimeline lays out the clones of p with size >= MinClusterSize as rows
// over the months from the earliest first date to the latest last date of
// those rows, clipped to From/To. A threshold below one is clamped to one.
func BuildTimeline(p Partition, opts TimelineOptions) TimelineMatrix {
	var adj []Adjustment
	opts.MinClusterSize = clampMin(&adj, "min_cluster_size", opts.MinClusterSize, 1)
	if opts.Policy == "" {
		opts.Policy = HighestQuality
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Index() < opts.From.Index() {
		adj = append(adj, Adjustment{
			Parameter: "date_range",
			Detail:    fmt.Sprintf("date range %s..%s swapped to %s..%s", opts.From, opts.To, opts.To, opts.From),
		})
		opts.From, opts.To = opts.To, opts.From
	}
	m := TimelineMatrix{Partition: p, Options: opts, Adjustments: adj, cells: make(map[Cell][]int)}

	var included []Clone
	var first, last Month
	for _, c := range p.clones {
		if c.Size() < opts.MinClusterSize {
			m.Excluded = append(m.Excluded, c)
			continue
		}
		included = append(included, c)
		if c.FirstDate.IsZero() {
			continue
		}
		if f := c.FirstDate.Month(); first.IsZero() || f.Index() < first.Index() {
			first = f
		}
		if l := c.LastDate.Month(); last.IsZero() || l.Index() > last.Index() {
			last = l
		}
	}
	if !opts.From.IsZero() && (first.IsZero() || opts.From.Index() > first.Index()) {
		first = opts.From
	}
	if !opts.To.IsZero() && (last.IsZero() || opts.To.Index() < last.Index()) {
		last = opts.To
	}
	m.Months = domain.MonthRange(first, last)
	column := make(map[Month]int, len(m.Months))
	for i, month := range m.Months {
		column[month] = i
	}

	for _, c := range included {
		row := TimelineRow{
			Clone:          c,
			Representative: p.Representative(c, opts.Policy),
			Active:         make([]bool, len(m.Months)),
		}
		row.Label = Label(p.dataset.At(row.Representative))
		for _, pos := range c.Members {
			d := p.dataset.At(pos).Fields.Date
			if d.IsZero() {
				continue
			}
			col, ok := column[d.Month()]
			if !ok {
				continue
			}
			row.Active[col] = true
			cell := Cell{CloneID: c.ID, Month: d.Month()}
			m.cells[cell] = append(m.cells[cell], pos)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// Members returns the positions of a clone's members in an active cell.
func (m TimelineMatrix) Members(c Cell) []int {
	return append([]int(nil), m.cells[c]...)
}

// CellRepresentative returns the policy's choice among an active cell's
// members.
func (m TimelineMatrix) CellRepresentative(c Cell) (int, bool) {
	members := m.cells[c]
	if len(members) == 0 {
		return 0, false
	}
	return m.Options.Policy.pick(m.Partition.dataset, members), true
}

// ActiveCells counts all active cells in the matrix.
func (m TimelineMatrix) ActiveCells() int { return len(m.cells) }

// AnchorSelection selects each row's first and last active month.
func AnchorSelection(m TimelineMatrix) Selection {
	sel := make(Selection)
	for _, row := range m.Rows {
		firstCol, lastCol := -1, -1
		for i, a := range row.Active {
			if !a {
				continue
			}
			if firstCol < 0 {
				firstCol = i
			}
			lastCol = i
		}
		if firstCol < 0 {
			continue
		}
		sel[Cell{CloneID: row.Clone.ID, Month: m.Months[firstCol]}] = struct{}{}
		sel[Cell{CloneID: row.Clone.ID, Month: m.Months[lastCol]}] = struct{}{}
	}
	return sel
}

// FullSelection selects every active cell.
func FullSelection(m TimelineMatrix) Selection {
	sel := make(Selection, len(m.cells))
	for c := range m.cells {
		sel[c] = struct{}{}
	}
	return sel
}
