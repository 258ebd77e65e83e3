package ir

import (
	"slices"
	"time"
)

// Time parts understood by TimePart and the dialects.
const (
	PartSecondOfMinute = "SECOND_OF_MINUTE"
	PartMinuteOfHour   = "MINUTE_OF_HOUR"
	PartHourOfDay      = "HOUR_OF_DAY"
	PartDayOfWeek      = "DAY_OF_WEEK"
	PartDayOfMonth     = "DAY_OF_MONTH"
	PartDayOfYear      = "DAY_OF_YEAR"
	PartWeekOfYear     = "WEEK_OF_YEAR"
	PartMonthOfYear    = "MONTH_OF_YEAR"
	PartQuarter        = "QUARTER"
	PartYear           = "YEAR"
)

var timeParts = []string{
	PartSecondOfMinute, PartMinuteOfHour, PartHourOfDay, PartDayOfWeek,
	PartDayOfMonth, PartDayOfYear, PartWeekOfYear, PartMonthOfYear,
	PartQuarter, PartYear,
}

// IsTimePart reports whether part names a known time part.
func IsTimePart(part string) bool {
	return slices.Contains(timeParts, part)
}

// TimePart extracts a calendar component of t in wall time of loc.
// DAY_OF_WEEK is ISO numbered: Monday is 1 and Sunday is 7.
func TimePart(t time.Time, loc *time.Location, part string) (float64, error) {
	w := t.In(loc)
	switch part {
	case PartSecondOfMinute:
		return float64(w.Second()), nil
	case PartMinuteOfHour:
		return float64(w.Minute()), nil
	case PartHourOfDay:
		return float64(w.Hour()), nil
	case PartDayOfWeek:
		return float64((int(w.Weekday())+6)%7 + 1), nil
	case PartDayOfMonth:
		return float64(w.Day()), nil
	case PartDayOfYear:
		return float64(w.YearDay()), nil
	case PartWeekOfYear:
		_, week := w.ISOWeek()
		return float64(week), nil
	case PartMonthOfYear:
		return float64(w.Month()), nil
	case PartQuarter:
		return float64((int(w.Month())-1)/3 + 1), nil
	case PartYear:
		return float64(w.Year()), nil
	}
	return 0, NewUnsupportedError(part, "unknown time part")
}
