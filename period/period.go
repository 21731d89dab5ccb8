// Package period defines the calendar-month bucket used as the snapshot and
// grouping key, and a period-indexed lookup over snapshot files on disk.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognized is returned when a string carries no month/year.
var ErrUnrecognized = errors.New("unrecognized period")

// Period is a calendar month. The zero value is not a valid period.
type Period struct {
	Year  int
	Month time.Month
}

// New returns the period for year/month, validating the month.
func New(year int, month time.Month) (Period, error) {
	if month < time.January || month > time.December {
		return Period{}, fmt.Errorf("%w: month %d out of range", ErrUnrecognized, month)
	}
	if year < 1970 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d out of range", ErrUnrecognized, year)
	}
	return Period{Year: year, Month: month}, nil
}

// Of returns the period containing t (in UTC).
func Of(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// IsZero reports whether p is the zero value.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Compare returns -1, 0 or +1 ordering p against o chronologically.
func (p Period) Compare(o Period) int {
	switch {
	case p.Year < o.Year:
		return -1
	case p.Year > o.Year:
		return 1
	case p.Month < o.Month:
		return -1
	case p.Month > o.Month:
		return 1
	}
	return 0
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool { return p.Compare(o) < 0 }

// Start is the first instant of the month in UTC.
func (p Period) Start() time.Time { return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC) }

// End is the first instant of the following month in UTC (exclusive bound).
func (p Period) End() time.Time { return p.Start().AddDate(0, 1, 0) }

// Contains reports whether t falls inside the month.
func (p Period) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(p.Start()) && t.Before(p.End())
}

// Prev returns the preceding calendar month.
func (p Period) Prev() Period { return Of(p.Start().AddDate(0, -1, 0)) }

// String renders the canonical YYYY-MM form.
func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// FileStamp renders the MM-YYYY form the extractor uses in filenames.
func (p Period) FileStamp() string { return fmt.Sprintf("%02d-%04d", int(p.Month), p.Year) }

// Label renders a short chart label such as "Jul 25".
func (p Period) Label() string { return p.Start().Format("Jan 06") }

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

var (
	monthYear = regexp.MustCompile(`^(\d{1,2})[-_](\d{4})$`)
	yearMonth = regexp.MustCompile(`^(\d{4})[-_](\d{1,2})$`)
	compact   = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})?$`)
)

// Parse accepts MM-YYYY, M-YYYY, YYYY-MM, YYYY-M, YYYYMM and YYYYMMDD (day ignored).
func Parse(s string) (Period, error) {
	s = strings.TrimSpace(s)
	var ys, ms string
	switch {
	case monthYear.MatchString(s):
		m := monthYear.FindStringSubmatch(s)
		ms, ys = m[1], m[2]
	case yearMonth.MatchString(s):
		m := yearMonth.FindStringSubmatch(s)
		ys, ms = m[1], m[2]
	case compact.MatchString(s):
		m := compact.FindStringSubmatch(s)
		ys, ms = m[1], m[2]
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	y, _ := strconv.Atoi(ys)
	mo, _ := strconv.Atoi(ms)
	return New(y, time.Month(mo))
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromFilename extracts the period from a name like "report_07-2025.csv"
// given the prefix ("report_"). Directory components are ignored.
func FromFilename(name, prefix string) (Period, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if !strings.HasPrefix(name, prefix) {
		return Period{}, fmt.Errorf("%w: %q lacks prefix %q", ErrUnrecognized, name, prefix)
	}
	stem := strings.TrimPrefix(name, prefix)
	if i := strings.LastIndex(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	return Parse(stem)
}

// Now returns the period containing the current time.
func Now() Period { return Of(time.Now()) }
