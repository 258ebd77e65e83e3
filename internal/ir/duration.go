package ir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone database for LoadTimezone on minimal hosts
)

// Duration is an ISO-8601 calendar duration such as P1D, PT1H or P1Y2M.
//
// Calendar durations are not fixed lengths of time: P1M is 28 to 31 days
// and P1D may be 23 or 25 hours across a DST change, so arithmetic is
// always performed in wall time of a timezone.
type Duration struct {
	Years   int
	Months  int
	Weeks   int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

var durationRE = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration parses an ISO-8601 duration.
func ParseDuration(s string) (Duration, error) {
	m := durationRE.FindStringSubmatch(s)
	if m == nil || strings.HasSuffix(s, "T") {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	var parts [7]int
	for i := range parts {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parts[i] = n
	}
	d := Duration{parts[0], parts[1], parts[2], parts[3], parts[4], parts[5], parts[6]}
	if d.IsZero() {
		return Duration{}, fmt.Errorf("invalid duration %q: zero length", s)
	}
	return d, nil
}

// MustParseDuration is like ParseDuration but panics on error.
// Use only in tests or with constant inputs.
func MustParseDuration(s string) Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether every component is zero.
func (d Duration) IsZero() bool {
	return d == Duration{}
}

func (d Duration) String() string {
	if d.IsZero() {
		return "P0D"
	}
	var b strings.Builder
	b.WriteByte('P')
	writePart(&b, d.Years, 'Y')
	writePart(&b, d.Months, 'M')
	writePart(&b, d.Weeks, 'W')
	writePart(&b, d.Days, 'D')
	if d.Hours != 0 || d.Minutes != 0 || d.Seconds != 0 {
		b.WriteByte('T')
		writePart(&b, d.Hours, 'H')
		writePart(&b, d.Minutes, 'M')
		writePart(&b, d.Seconds, 'S')
	}
	return b.String()
}

func writePart(b *strings.Builder, n int, unit byte) {
	if n != 0 {
		b.WriteString(strconv.Itoa(n))
		b.WriteByte(unit)
	}
}

// Span returns the single unit the duration is expressed in and its
// multiple. ok is false for compound durations such as P1DT2H.
func (d Duration) Span() (unit string, n int, ok bool) {
	parts := []struct {
		unit string
		n    int
	}{
		{"year", d.Years}, {"month", d.Months}, {"week", d.Weeks}, {"day", d.Days},
		{"hour", d.Hours}, {"minute", d.Minutes}, {"second", d.Seconds},
	}
	for _, p := range parts {
		if p.n == 0 {
			continue
		}
		if ok {
			return "", 0, false
		}
		unit, n, ok = p.unit, p.n, true
	}
	return unit, n, ok
}

// IsFloorable reports whether buckets of this duration tile the calendar,
// i.e. whether Floor is well defined.
func (d Duration) IsFloorable() bool {
	unit, n, ok := d.Span()
	if !ok {
		return false
	}
	switch unit {
	case "second", "minute":
		return 60%n == 0
	case "hour":
		return 24%n == 0
	case "day", "week":
		return n == 1
	case "month":
		return 12%n == 0
	case "year":
		return true
	}
	return false
}

// Floor returns the start of the bucket containing t, computed in wall time
// of loc.
func (d Duration) Floor(t time.Time, loc *time.Location) (time.Time, error) {
	if !d.IsFloorable() {
		return time.Time{}, NewUnsupportedError(d.String(), "duration is not floorable")
	}
	unit, n, _ := d.Span()
	w := t.In(loc)
	y, mo, day := w.Date()
	h, mi, s := w.Clock()
	var out time.Time
	switch unit {
	case "second":
		out = time.Date(y, mo, day, h, mi, s-s%n, 0, loc)
	case "minute":
		out = time.Date(y, mo, day, h, mi-mi%n, 0, 0, loc)
	case "hour":
		out = time.Date(y, mo, day, h-h%n, 0, 0, 0, loc)
	case "day":
		out = time.Date(y, mo, day, 0, 0, 0, 0, loc)
	case "week":
		sinceMonday := (int(w.Weekday()) + 6) % 7
		out = time.Date(y, mo, day-sinceMonday, 0, 0, 0, 0, loc)
	case "month":
		m0 := int(mo) - 1
		out = time.Date(y, time.Month(m0-m0%n+1), 1, 0, 0, 0, 0, loc)
	case "year":
		out = time.Date(y-y%n, time.January, 1, 0, 0, 0, 0, loc)
	}
	return out.UTC(), nil
}

// Shift moves t by step multiples of the duration in wall time of loc.
// A negative step moves backwards.
func (d Duration) Shift(t time.Time, loc *time.Location, step int) time.Time {
	w := t.In(loc).AddDate(d.Years*step, d.Months*step, (d.Weeks*7+d.Days)*step)
	w = w.Add(time.Duration(d.Hours*step)*time.Hour +
		time.Duration(d.Minutes*step)*time.Minute +
		time.Duration(d.Seconds*step)*time.Second)
	return w.UTC()
}

// CanonicalLength approximates the duration as a fixed length, counting
// a month as 30 days and a year as 365 days.
func (d Duration) CanonicalLength() time.Duration {
	days := d.Years*365 + d.Months*30 + d.Weeks*7 + d.Days
	return time.Duration(days)*24*time.Hour +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
}

// LoadTimezone resolves an IANA timezone name; the empty name is UTC.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Etc/UTC" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, NewUnsupportedError(name, "unknown timezone")
	}
	return loc, nil
}
