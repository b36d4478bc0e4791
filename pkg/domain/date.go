package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a calendar date without a time of day. The zero value is the null
// date used for missing or malformed collection dates.
type Date struct {
	t time.Time
}

// NewDate returns the date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a strict YYYY-MM-DD value.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if len(s) != len(dateLayout) {
		return Date{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, false
	}
	return Date{t: t}, true
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, ok := ParseDate(s)
	if !ok {
		panic(fmt.Sprintf("domain: invalid date literal %q", s))
	}
	return d
}

// IsZero reports whether d is the null date.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// Compare orders dates ascending with null dates after every real date.
func (d Date) Compare(o Date) int {
	switch {
	case d.IsZero() && o.IsZero():
		return 0
	case d.IsZero():
		return 1
	case o.IsZero():
		return -1
	}
	return d.t.Compare(o.t)
}

// Before reports whether d sorts strictly before o (nulls last).
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// AddDays returns the date shifted by n days. The null date stays null.
func (d Date) AddDays(n int) Date {
	if d.IsZero() {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to o.
func (d Date) DaysUntil(o Date) int {
	if d.IsZero() || o.IsZero() {
		return 0
	}
	return int(o.t.Sub(d.t).Hours() / 24)
}

// Month returns the calendar month containing d, or the zero Month for null.
func (d Date) Month() Month {
	if d.IsZero() {
		return Month{}
	}
	return Month{Year: d.t.Year(), Month: d.t.Month()}
}

// Week returns the ISO week label (e.g. 2024-W03), empty for null.
func (d Date) Week() string {
	if d.IsZero() {
		return ""
	}
	y, w := d.t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// WeekStart returns the Monday opening d's ISO week. The null date stays null.
func (d Date) WeekStart() Date {
	if d.IsZero() {
		return d
	}
	return d.AddDays(-((int(d.t.Weekday()) + 6) % 7))
}

// Quarter returns the calendar quarter label (e.g. 2024-Q1), empty for null.
func (d Date) Quarter() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-Q%d", d.t.Year(), (int(d.t.Month())-1)/3+1)
}

// MarshalJSON encodes the null date as JSON null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null, "" or a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, ok := ParseDate(s)
	if !ok {
		return fmt.Errorf("invalid date %q", s)
	}
	*d = parsed
	return nil
}

// Month identifies a calendar month. The zero value means "no month".
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a YYYY-MM value.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthFromIndex is the inverse of Month.Index.
func MonthFromIndex(i int) Month {
	return Month{Year: i / 12, Month: time.Month(i%12 + 1)}
}

// IsZero reports whether m is unset.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Index returns a monotonically increasing month number.
func (m Month) Index() int { return m.Year*12 + int(m.Month) - 1 }

// Next returns the following calendar month.
func (m Month) Next() Month { return MonthFromIndex(m.Index() + 1) }

// Contains reports whether d falls inside m.
func (m Month) Contains(d Date) bool { return !d.IsZero() && d.Month() == m }

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MarshalText lets months serve as JSON strings and map keys.
func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText parses the YYYY-MM form written by MarshalText.
func (m *Month) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MonthRange returns every month from from to to inclusive. It returns nil
// when either bound is zero or to precedes from.
func MonthRange(from, to Month) []Month {
	if from.IsZero() || to.IsZero() || to.Index() < from.Index() {
		return nil
	}
	out := make([]Month, 0, to.Index()-from.Index()+1)
	for i := from.Index(); i <= to.Index(); i++ {
		out = append(out, MonthFromIndex(i))
	}
	return out
}

// Season is a meteorological window (DJF, MAM, JJA, SON). December belongs
// to the DJF window of the following year.
type Season struct {
	Year   int
	Window int // 0=DJF 1=MAM 2=JJA 3=SON
}

var seasonNames = [4]string{"DJF", "MAM", "JJA", "SON"}

// Season returns the meteorological window containing d.
func (d Date) Season() Season {
	if d.IsZero() {
		return Season{}
	}
	m := int(d.t.Month())
	year := d.t.Year()
	if m == 12 {
		return Season{Year: year + 1, Window: 0}
	}
	return Season{Year: year, Window: (m % 12) / 3}
}

// Index returns a monotonically increasing window number.
func (s Season) Index() int { return s.Year*4 + s.Window }

func (s Season) String() string {
	if s.Year == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%s", s.Year, seasonNames[s.Window])
}
