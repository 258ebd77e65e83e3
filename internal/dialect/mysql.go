package dialect

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// MySQL renders SQL for MySQL 8. Timestamps are assumed to be stored in
// UTC and the session time_zone to be UTC.
type MySQL struct{ base }

var _ Dialect = MySQL{}

func (MySQL) Name() string { return EngineMySQL }

func (MySQL) EscapeName(name string) string { return quoteIdent(name, "`") }

// EscapeString doubles quotes and escapes backslashes, which MySQL treats
// as escape characters inside literals.
func (MySQL) EscapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (m MySQL) Time(t time.Time) string {
	return "TIMESTAMP(" + m.EscapeString(t.UTC().Format(TimeLayout)) + ")"
}

func (MySQL) Concat(a, b string) string {
	return fmt.Sprintf("CONCAT(%s,%s)", a, b)
}

func (MySQL) Contains(s, sub string) string {
	return fmt.Sprintf("LOCATE(%s,%s)>0", sub, s)
}

func (m MySQL) Regexp(s, pattern string) string {
	return fmt.Sprintf("%s REGEXP %s", s, m.EscapeString(pattern))
}

// Extract uses REGEXP_SUBSTR, which only returns the whole match.
func (m MySQL) Extract(s, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", ir.NewTypeError(pattern, "invalid pattern: %v", err)
	}
	if re.NumSubexp() > 0 {
		return "", ir.NewUnsupportedError(pattern, "capture groups not supported by mysql")
	}
	return fmt.Sprintf("REGEXP_SUBSTR(%s,%s)", s, m.EscapeString(pattern)), nil
}

func (MySQL) Substr(s string, position, length int) string {
	return fmt.Sprintf("SUBSTR(%s,%d,%d)", s, position+1, length)
}

func (MySQL) Length(s string) string {
	return fmt.Sprintf("CHAR_LENGTH(%s)", s)
}

func (m MySQL) WalltimeToUTC(x, tz string) (string, error) {
	if isUTC(tz) {
		return x, nil
	}
	if err := checkTimezone(tz); err != nil {
		return "", err
	}
	return fmt.Sprintf("CONVERT_TZ(%s,%s,'+0:00')", x, m.EscapeString(tz)), nil
}

func (m MySQL) UTCToWalltime(x, tz string) (string, error) {
	if isUTC(tz) {
		return x, nil
	}
	if err := checkTimezone(tz); err != nil {
		return "", err
	}
	return fmt.Sprintf("CONVERT_TZ(%s,'+0:00',%s)", x, m.EscapeString(tz)), nil
}

var mysqlFloorFormats = map[string]string{
	"second": "%Y-%m-%d %H:%i:%s",
	"minute": "%Y-%m-%d %H:%i:00",
	"hour":   "%Y-%m-%d %H:00:00",
	"day":    "%Y-%m-%d 00:00:00",
	"month":  "%Y-%m-01 00:00:00",
	"year":   "%Y-01-01 00:00:00",
}

func (m MySQL) TimeFloor(x string, d ir.Duration, tz string) (string, error) {
	unit, n, err := floorable(d)
	if err != nil {
		return "", err
	}
	return inWalltime(m, x, tz, func(w string) (string, error) {
		switch {
		case unit == "week":
			return fmt.Sprintf("DATE_FORMAT(DATE_SUB(%s, INTERVAL WEEKDAY(%s) DAY),'%%Y-%%m-%%d 00:00:00')", w, w), nil
		case n == 1:
			return fmt.Sprintf("DATE_FORMAT(%s,'%s')", w, mysqlFloorFormats[unit]), nil
		case unit == "month":
			return fmt.Sprintf("CONCAT(YEAR(%s),'-',LPAD(FLOOR((MONTH(%s)-1)/%d)*%d+1,2,'0'),'-01 00:00:00')", w, w, n, n), nil
		case unit == "year":
			return fmt.Sprintf("CONCAT(FLOOR(YEAR(%s)/%d)*%d,'-01-01 00:00:00')", w, n, n), nil
		}
		s := unitSeconds[unit] * n
		return fmt.Sprintf("FROM_UNIXTIME(FLOOR(UNIX_TIMESTAMP(%s) / %d) * %d)", w, s, s), nil
	})
}

func (m MySQL) TimeBucket(x string, d ir.Duration, tz string) (string, error) {
	return m.TimeFloor(x, d, tz)
}

var mysqlParts = map[string]string{
	ir.PartSecondOfMinute: "SECOND(%s)",
	ir.PartMinuteOfHour:   "MINUTE(%s)",
	ir.PartHourOfDay:      "HOUR(%s)",
	ir.PartDayOfWeek:      "(WEEKDAY(%s)+1)",
	ir.PartDayOfMonth:     "DAYOFMONTH(%s)",
	ir.PartDayOfYear:      "DAYOFYEAR(%s)",
	ir.PartWeekOfYear:     "WEEK(%s,3)",
	ir.PartMonthOfYear:    "MONTH(%s)",
	ir.PartQuarter:        "QUARTER(%s)",
	ir.PartYear:           "YEAR(%s)",
}

func (m MySQL) TimePart(x, part, tz string) (string, error) {
	format, ok := mysqlParts[part]
	if !ok {
		return "", unsupportedPart(part, EngineMySQL)
	}
	w, err := m.UTCToWalltime(x, tz)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, w), nil
}

func (m MySQL) TimeShift(x string, d ir.Duration, step int, tz string) (string, error) {
	return inWalltime(m, x, tz, func(w string) (string, error) {
		for _, p := range durationParts(d, step) {
			w = fmt.Sprintf("DATE_ADD(%s, INTERVAL %d %s)", w, p.n, strings.ToUpper(p.unit))
		}
		return w, nil
	})
}

func (MySQL) Quantile(x string, q float64) (string, error) {
	return "", ir.NewUnsupportedError("quantile", "not supported by mysql")
}

func (MySQL) IsNotDistinctFrom(a, b string) string {
	return fmt.Sprintf("%s<=>%s", a, b)
}

func (m MySQL) DescribeTable(table string) string {
	return "SELECT COLUMN_NAME AS `name`, DATA_TYPE AS `sqlType` FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = " +
		m.EscapeString(table) + " ORDER BY ORDINAL_POSITION"
}

// ParseColumnType treats TINYINT(1) as the conventional MySQL boolean.
func (MySQL) ParseColumnType(native string) ir.Type {
	if strings.EqualFold(strings.TrimSpace(native), "tinyint(1)") {
		return ir.TypeBoolean
	}
	return parseNativeType(native)
}
