package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// SQLite renders SQL for SQLite. TIME columns hold TimeLayout text in UTC;
// SQLite has no timezone database so only UTC is accepted. REGEXP, POWER
// and FLOOR are expected to be registered on the connection.
type SQLite struct{ base }

var _ Dialect = SQLite{}

func (SQLite) Name() string { return EngineSQLite }

func (SQLite) EscapeName(name string) string { return quoteIdent(name, `"`) }

func (SQLite) Bool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s SQLite) Time(t time.Time) string {
	return s.EscapeString(t.UTC().Format(TimeLayout))
}

func (SQLite) Concat(a, b string) string {
	return fmt.Sprintf("(%s||%s)", a, b)
}

func (SQLite) Contains(s, sub string) string {
	return fmt.Sprintf("INSTR(%s,%s)>0", s, sub)
}

func (q SQLite) Regexp(s, pattern string) string {
	return fmt.Sprintf("%s REGEXP %s", s, q.EscapeString(pattern))
}

func (SQLite) Extract(s, pattern string) (string, error) {
	return "", ir.NewUnsupportedError("extract", "not supported by sqlite")
}

func (SQLite) Substr(s string, position, length int) string {
	return fmt.Sprintf("SUBSTR(%s,%d,%d)", s, position+1, length)
}

func (SQLite) Length(s string) string {
	return fmt.Sprintf("LENGTH(%s)", s)
}

func (SQLite) WalltimeToUTC(x, tz string) (string, error) {
	if !isUTC(tz) {
		return "", ir.NewUnsupportedError(tz, "sqlite only supports UTC")
	}
	return x, nil
}

func (SQLite) UTCToWalltime(x, tz string) (string, error) {
	if !isUTC(tz) {
		return "", ir.NewUnsupportedError(tz, "sqlite only supports UTC")
	}
	return x, nil
}

var sqliteFloorFormats = map[string]string{
	"second": "%Y-%m-%d %H:%M:%S",
	"minute": "%Y-%m-%d %H:%M:00",
	"hour":   "%Y-%m-%d %H:00:00",
	"day":    "%Y-%m-%d 00:00:00",
	"month":  "%Y-%m-01 00:00:00",
	"year":   "%Y-01-01 00:00:00",
}

func (q SQLite) TimeFloor(x string, d ir.Duration, tz string) (string, error) {
	unit, n, err := floorable(d)
	if err != nil {
		return "", err
	}
	return inWalltime(q, x, tz, func(w string) (string, error) {
		switch {
		case unit == "week":
			return fmt.Sprintf("STRFTIME('%%Y-%%m-%%d 00:00:00',%s,'weekday 0','-6 days')", w), nil
		case n == 1:
			return fmt.Sprintf("STRFTIME('%s',%s)", sqliteFloorFormats[unit], w), nil
		case unit == "month":
			return fmt.Sprintf("PRINTF('%%04d-%%02d-01 00:00:00',CAST(STRFTIME('%%Y',%s) AS INTEGER),((CAST(STRFTIME('%%m',%s) AS INTEGER)-1)/%d)*%d+1)", w, w, n, n), nil
		case unit == "year":
			return fmt.Sprintf("PRINTF('%%04d-01-01 00:00:00',(CAST(STRFTIME('%%Y',%s) AS INTEGER)/%d)*%d)", w, n, n), nil
		}
		s := unitSeconds[unit] * n
		return fmt.Sprintf("DATETIME((CAST(STRFTIME('%%s',%s) AS INTEGER)/%d)*%d,'unixepoch')", w, s, s), nil
	})
}

func (q SQLite) TimeBucket(x string, d ir.Duration, tz string) (string, error) {
	return q.TimeFloor(x, d, tz)
}

var sqliteParts = map[string]string{
	ir.PartSecondOfMinute: "CAST(STRFTIME('%%S',%s) AS INTEGER)",
	ir.PartMinuteOfHour:   "CAST(STRFTIME('%%M',%s) AS INTEGER)",
	ir.PartHourOfDay:      "CAST(STRFTIME('%%H',%s) AS INTEGER)",
	ir.PartDayOfWeek:      "((CAST(STRFTIME('%%w',%s) AS INTEGER)+6)%%7+1)",
	ir.PartDayOfMonth:     "CAST(STRFTIME('%%d',%s) AS INTEGER)",
	ir.PartDayOfYear:      "CAST(STRFTIME('%%j',%s) AS INTEGER)",
	ir.PartMonthOfYear:    "CAST(STRFTIME('%%m',%s) AS INTEGER)",
	ir.PartQuarter:        "((CAST(STRFTIME('%%m',%s) AS INTEGER)-1)/3+1)",
	ir.PartYear:           "CAST(STRFTIME('%%Y',%s) AS INTEGER)",
}

func (q SQLite) TimePart(x, part, tz string) (string, error) {
	format, ok := sqliteParts[part]
	if !ok {
		return "", unsupportedPart(part, EngineSQLite)
	}
	w, err := q.UTCToWalltime(x, tz)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, w), nil
}

func (q SQLite) TimeShift(x string, d ir.Duration, step int, tz string) (string, error) {
	return inWalltime(q, x, tz, func(w string) (string, error) {
		mods := []string{w}
		for _, p := range durationParts(d, step) {
			mods = append(mods, fmt.Sprintf("'%+d %ss'", p.n, p.unit))
		}
		return "DATETIME(" + strings.Join(mods, ",") + ")", nil
	})
}

func (SQLite) Quantile(x string, q float64) (string, error) {
	return "", ir.NewUnsupportedError("quantile", "not supported by sqlite")
}

func (SQLite) IsNotDistinctFrom(a, b string) string {
	return fmt.Sprintf("%s IS %s", a, b)
}

func (q SQLite) DescribeTable(table string) string {
	return `SELECT name AS "name", type AS "sqlType" FROM pragma_table_info(` + q.EscapeString(table) + `) ORDER BY cid`
}

func (SQLite) ParseColumnType(native string) ir.Type {
	return parseNativeType(native)
}
