package dialect

import (
	"fmt"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// Postgres renders SQL for PostgreSQL. TIME columns are expected to be
// "timestamp without time zone" holding UTC.
type Postgres struct{ base }

var _ Dialect = Postgres{}

func (Postgres) Name() string { return EnginePostgres }

func (Postgres) EscapeName(name string) string { return quoteIdent(name, `"`) }

func (p Postgres) Time(t time.Time) string {
	return "TIMESTAMP " + p.EscapeString(t.UTC().Format(TimeLayout))
}

func (Postgres) Concat(a, b string) string {
	return fmt.Sprintf("(%s||%s)", a, b)
}

func (Postgres) Contains(s, sub string) string {
	return fmt.Sprintf("POSITION(%s IN %s)>0", sub, s)
}

func (p Postgres) Regexp(s, pattern string) string {
	return fmt.Sprintf("%s ~ %s", s, p.EscapeString(pattern))
}

// Extract uses SUBSTRING ... FROM, which yields the first parenthesised
// group when the pattern has one and the whole match otherwise.
func (p Postgres) Extract(s, pattern string) (string, error) {
	return fmt.Sprintf("SUBSTRING(%s FROM %s)", s, p.EscapeString(pattern)), nil
}

func (Postgres) Substr(s string, position, length int) string {
	return fmt.Sprintf("SUBSTRING(%s FROM %d FOR %d)", s, position+1, length)
}

func (Postgres) Length(s string) string {
	return fmt.Sprintf("CHAR_LENGTH(%s)", s)
}

func (p Postgres) WalltimeToUTC(x, tz string) (string, error) {
	if isUTC(tz) {
		return x, nil
	}
	if err := checkTimezone(tz); err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s AT TIME ZONE %s AT TIME ZONE 'UTC')", x, p.EscapeString(tz)), nil
}

func (p Postgres) UTCToWalltime(x, tz string) (string, error) {
	if isUTC(tz) {
		return x, nil
	}
	if err := checkTimezone(tz); err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s AT TIME ZONE 'UTC' AT TIME ZONE %s)", x, p.EscapeString(tz)), nil
}

func (p Postgres) TimeFloor(x string, d ir.Duration, tz string) (string, error) {
	unit, n, err := floorable(d)
	if err != nil {
		return "", err
	}
	return inWalltime(p, x, tz, func(w string) (string, error) {
		switch {
		case n == 1:
			return fmt.Sprintf("DATE_TRUNC('%s',%s)", unit, w), nil
		case unit == "month":
			return fmt.Sprintf("MAKE_DATE(EXTRACT(YEAR FROM %s)::int,(FLOOR((EXTRACT(MONTH FROM %s)-1)/%d)*%d+1)::int,1)::timestamp", w, w, n, n), nil
		case unit == "year":
			return fmt.Sprintf("MAKE_DATE((FLOOR(EXTRACT(YEAR FROM %s)/%d)*%d)::int,1,1)::timestamp", w, n, n), nil
		}
		s := unitSeconds[unit] * n
		return fmt.Sprintf("(TO_TIMESTAMP(FLOOR(EXTRACT(EPOCH FROM %s) / %d) * %d) AT TIME ZONE 'UTC')", w, s, s), nil
	})
}

func (p Postgres) TimeBucket(x string, d ir.Duration, tz string) (string, error) {
	return p.TimeFloor(x, d, tz)
}

var postgresParts = map[string]string{
	ir.PartSecondOfMinute: "FLOOR(EXTRACT(SECOND FROM %s))",
	ir.PartMinuteOfHour:   "EXTRACT(MINUTE FROM %s)",
	ir.PartHourOfDay:      "EXTRACT(HOUR FROM %s)",
	ir.PartDayOfWeek:      "EXTRACT(ISODOW FROM %s)",
	ir.PartDayOfMonth:     "EXTRACT(DAY FROM %s)",
	ir.PartDayOfYear:      "EXTRACT(DOY FROM %s)",
	ir.PartWeekOfYear:     "EXTRACT(WEEK FROM %s)",
	ir.PartMonthOfYear:    "EXTRACT(MONTH FROM %s)",
	ir.PartQuarter:        "EXTRACT(QUARTER FROM %s)",
	ir.PartYear:           "EXTRACT(YEAR FROM %s)",
}

func (p Postgres) TimePart(x, part, tz string) (string, error) {
	format, ok := postgresParts[part]
	if !ok {
		return "", unsupportedPart(part, EnginePostgres)
	}
	w, err := p.UTCToWalltime(x, tz)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, w), nil
}

func (p Postgres) TimeShift(x string, d ir.Duration, step int, tz string) (string, error) {
	return inWalltime(p, x, tz, func(w string) (string, error) {
		return fmt.Sprintf("(%s + INTERVAL '%s' * %d)", w, d.String(), step), nil
	})
}

// Quantile uses PERCENTILE_DISC, which picks the first value whose
// cumulative distribution reaches q: the nearest-rank definition.
func (p Postgres) Quantile(x string, q float64) (string, error) {
	return fmt.Sprintf("PERCENTILE_DISC(%s) WITHIN GROUP (ORDER BY %s)", p.Number(q), x), nil
}

func (Postgres) ConstantGroupBy() string {
	return "GROUP BY ''=''"
}

func (p Postgres) DescribeTable(table string) string {
	return `SELECT column_name AS "name", data_type AS "sqlType" FROM information_schema.columns WHERE table_name = ` +
		p.EscapeString(table) + " ORDER BY ordinal_position"
}

func (Postgres) ParseColumnType(native string) ir.Type {
	return parseNativeType(native)
}
