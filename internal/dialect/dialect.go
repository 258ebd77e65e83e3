// Package dialect renders the SQL fragments that differ between SQL
// engines.
//
// A Dialect is pure and stateless: every method maps already-rendered
// operand SQL to a new fragment. Operations that an engine cannot express
// return an UNSUPPORTED_OPERATION ir.Error naming the exact duration, time
// part or timezone that failed, so the caller never emits a query that
// silently means something else.
package dialect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// Dialect renders engine-specific SQL.
type Dialect interface {
	// Name is the engine name, e.g. "mysql".
	Name() string

	// EscapeName quotes an identifier.
	EscapeName(name string) string
	// EscapeString quotes a string literal.
	EscapeString(s string) string
	// Bool renders a boolean literal.
	Bool(b bool) string
	// Number renders a numeric literal. Non-finite numbers render as NULL.
	Number(f float64) string
	// Time renders a UTC timestamp literal.
	Time(t time.Time) string
	// Null renders the null literal.
	Null() string

	// Conditional renders CASE WHEN cond THEN then [ELSE otherwise] END.
	// An empty otherwise omits the ELSE branch.
	Conditional(cond, then, otherwise string) string
	Concat(a, b string) string
	// Contains reports whether sub occurs in s.
	Contains(s, sub string) string
	// Regexp renders a regular expression match; pattern is raw.
	Regexp(s, pattern string) string
	// Extract renders the first capture group (or whole match) of pattern.
	Extract(s, pattern string) (string, error)
	// Substr takes length characters starting at the zero-based position.
	Substr(s string, position, length int) string
	Length(s string) string
	Power(base, exp string) string
	// NumberBucket renders the start of the size-wide bucket holding x.
	NumberBucket(x string, size, offset float64) string

	// WalltimeToUTC reads a wall-clock timestamp in tz as UTC.
	WalltimeToUTC(x, tz string) (string, error)
	// UTCToWalltime renders a UTC timestamp as wall-clock time in tz.
	UTCToWalltime(x, tz string) (string, error)
	// TimeFloor truncates x to the start of its d bucket in tz.
	TimeFloor(x string, d ir.Duration, tz string) (string, error)
	// TimeBucket renders the bucket start; the bucket end is restored when
	// the result is post-processed.
	TimeBucket(x string, d ir.Duration, tz string) (string, error)
	// TimePart extracts a calendar component of x in tz.
	TimePart(x, part, tz string) (string, error)
	// TimeShift moves x by step multiples of d in tz.
	TimeShift(x string, d ir.Duration, step int, tz string) (string, error)

	CountDistinct(x string) string
	// Quantile renders an exact (or engine-approximate) quantile of x.
	Quantile(x string, q float64) (string, error)
	// IsNotDistinctFrom renders a null-safe equality.
	IsNotDistinctFrom(a, b string) string
	// ConstantGroupBy renders a GROUP BY clause producing a single group.
	ConstantGroupBy() string

	// DescribeTable renders a query yielding one row per column of table
	// with the columns "name" and "sqlType".
	DescribeTable(table string) string
	// ParseColumnType maps a native column type to a strata type, or
	// TypeUnknown when the column cannot be used.
	ParseColumnType(native string) ir.Type
}

// Engine names.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// ForEngine returns the dialect for a SQL engine name.
func ForEngine(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case EngineMySQL:
		return MySQL{}, nil
	case EnginePostgres, "postgresql":
		return Postgres{}, nil
	case EngineSQLite, "sqlite3":
		return SQLite{}, nil
	}
	return nil, ir.NewUnsupportedError(name, "no SQL dialect for engine")
}

// IsSQLEngine reports whether name has a SQL dialect.
func IsSQLEngine(name string) bool {
	_, err := ForEngine(name)
	return err == nil
}

// TimeLayout is the textual timestamp form used in SQL literals.
const TimeLayout = "2006-01-02 15:04:05.999999"

// base holds the renderings shared by every dialect.
type base struct{}

func (base) EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (base) Bool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (base) Number(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (base) Null() string { return "NULL" }

func (base) Conditional(cond, then, otherwise string) string {
	if otherwise == "" {
		return fmt.Sprintf("CASE WHEN %s THEN %s END", cond, then)
	}
	return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", cond, then, otherwise)
}

func (base) Power(b, exp string) string {
	return fmt.Sprintf("POWER(%s,%s)", b, exp)
}

func (b base) NumberBucket(x string, size, offset float64) string {
	if offset == 0 {
		return fmt.Sprintf("FLOOR(%s / %s) * %s", x, b.Number(size), b.Number(size))
	}
	off := b.Number(offset)
	return fmt.Sprintf("FLOOR((%s - %s) / %s) * %s + %s", x, off, b.Number(size), b.Number(size), off)
}

func (base) CountDistinct(x string) string {
	return fmt.Sprintf("COUNT(DISTINCT %s)", x)
}

func (base) IsNotDistinctFrom(a, b string) string {
	return fmt.Sprintf("%s IS NOT DISTINCT FROM %s", a, b)
}

func (base) ConstantGroupBy() string {
	return "GROUP BY ''"
}

// quoteIdent wraps name in q, doubling any embedded q.
func quoteIdent(name string, q string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// isUTC reports whether tz names UTC.
func isUTC(tz string) bool {
	return tz == "" || tz == "UTC" || tz == "Etc/UTC"
}

// checkTimezone rejects names that are not IANA timezones so they are never
// spliced into SQL.
func checkTimezone(tz string) error {
	_, err := ir.LoadTimezone(tz)
	return err
}

// floorable returns the single unit and multiple of d, or an
// UNSUPPORTED_OPERATION error naming d.
func floorable(d ir.Duration) (string, int, error) {
	if !d.IsFloorable() {
		return "", 0, ir.NewUnsupportedError(d.String(), "duration cannot be floored")
	}
	unit, n, _ := d.Span()
	return unit, n, nil
}

// unitSeconds is the fixed length of the sub-day units.
var unitSeconds = map[string]int{
	"second": 1,
	"minute": 60,
	"hour":   3600,
}

// inWalltime applies fn to x converted into the wall time of tz and
// converts the result back to UTC.
func inWalltime(d Dialect, x, tz string, fn func(string) (string, error)) (string, error) {
	if isUTC(tz) {
		return fn(x)
	}
	wall, err := d.UTCToWalltime(x, tz)
	if err != nil {
		return "", err
	}
	out, err := fn(wall)
	if err != nil {
		return "", err
	}
	return d.WalltimeToUTC(out, tz)
}

// durationParts lists the non-zero components of d scaled by step, largest
// unit first. Weeks are expressed as days.
func durationParts(d ir.Duration, step int) []durationPart {
	var out []durationPart
	add := func(unit string, n int) {
		if n != 0 {
			out = append(out, durationPart{unit: unit, n: n * step})
		}
	}
	add("year", d.Years)
	add("month", d.Months)
	add("day", d.Weeks*7+d.Days)
	add("hour", d.Hours)
	add("minute", d.Minutes)
	add("second", d.Seconds)
	return out
}

type durationPart struct {
	unit string
	n    int
}

func unsupportedPart(part string, engine string) error {
	return ir.NewUnsupportedError(part, "time part not supported by %s", engine)
}

// parseNativeType maps the common SQL type names shared by the engines.
func parseNativeType(native string) ir.Type {
	t := strings.ToUpper(strings.TrimSpace(native))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.TrimSuffix(t, " UNSIGNED"))
	switch {
	case t == "":
		return ir.TypeUnknown
	case strings.Contains(t, "INT"), t == "REAL", t == "FLOAT", t == "DOUBLE",
		t == "DOUBLE PRECISION", t == "DECIMAL", t == "NUMERIC", t == "NUMBER":
		return ir.TypeNumber
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), t == "CLOB", t == "ENUM", t == "UUID":
		return ir.TypeString
	case strings.HasPrefix(t, "TIMESTAMP"), strings.HasPrefix(t, "DATETIME"), t == "DATE":
		return ir.TypeTime
	case t == "BOOLEAN", t == "BOOL", t == "BIT":
		return ir.TypeBoolean
	}
	return ir.TypeUnknown
}
