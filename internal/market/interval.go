package market

import (
	"fmt"
	"time"
)

type Interval string

const (
	IntervalMinute   Interval = "minute"
	Interval5Minute  Interval = "5min"
	Interval15Minute Interval = "15min"
	Interval30Minute Interval = "30min"
	Interval60Minute Interval = "60min"
	IntervalDay      Interval = "day"
	IntervalWeek     Interval = "week"
	IntervalMonth    Interval = "month"
	IntervalYear     Interval = "year"
)

const (
	dayKeyLayout    = "2006-01-02"
	minuteKeyLayout = "2006-01-02 15:04"
)

func ParseInterval(s string) (Interval, error) {
	switch iv := Interval(s); iv {
	case IntervalMinute, Interval5Minute, Interval15Minute, Interval30Minute, Interval60Minute,
		IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return iv, nil
	default:
		return "", fmt.Errorf("unknown interval: %q", s)
	}
}

func (iv Interval) IsIntraday() bool {
	switch iv {
	case IntervalMinute, Interval5Minute, Interval15Minute, Interval30Minute, Interval60Minute:
		return true
	default:
		return false
	}
}

// Minutes returns the fixed bucket length for intraday intervals and 0 otherwise.
func (iv Interval) Minutes() int {
	switch iv {
	case IntervalMinute:
		return 1
	case Interval5Minute:
		return 5
	case Interval15Minute:
		return 15
	case Interval30Minute:
		return 30
	case Interval60Minute:
		return 60
	default:
		return 0
	}
}

// DefaultLimit is the number of bars requested per window for the interval.
func (iv Interval) DefaultLimit() int {
	switch iv {
	case IntervalMinute, Interval5Minute:
		return 240
	case Interval15Minute, Interval30Minute, Interval60Minute:
		return 200
	case IntervalDay:
		return 500
	case IntervalWeek:
		return 300
	case IntervalMonth:
		return 200
	case IntervalYear:
		return 50
	default:
		return 100
	}
}

// Bucket returns the start of the interval bucket containing t.
func (iv Interval) Bucket(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()

	switch iv {
	case IntervalDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case IntervalWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case IntervalMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case IntervalYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}

	n := iv.Minutes()
	if n == 0 {
		return t
	}
	minutes := t.Hour()*60 + t.Minute()
	minutes -= minutes % n
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}

// FormatKey formats t as a bar key for the interval.
func FormatKey(t time.Time, iv Interval) string {
	if iv.IsIntraday() {
		return t.Format(minuteKeyLayout)
	}
	return t.Format(dayKeyLayout)
}

// ParseKey parses a bar key produced by FormatKey in the given location.
func ParseKey(key string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(minuteKeyLayout, key, loc); err == nil {
		return t, nil
	}

	t, err := time.ParseInLocation(dayKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid bar key %q: %w", key, err)
	}
	return t, nil
}

// DateKey normalizes a date or timestamp string to YYYY-MM-DD.
func DateKey(s string, loc *time.Location) (string, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		minuteKeyLayout,
		dayKeyLayout,
		"2006/01/02",
		"20060102",
	}

	for _, l := range layouts {
		t, err := time.ParseInLocation(l, s, loc)
		if err == nil {
			return t.In(loc).Format(dayKeyLayout), nil
		}
	}

	return "", fmt.Errorf("unsupported date format: %q", s)
}

type Adjustment string

const (
	AdjustNone     Adjustment = "none"
	AdjustForward  Adjustment = "forward"
	AdjustBackward Adjustment = "backward"
)

func ParseAdjustment(s string) (Adjustment, error) {
	switch a := Adjustment(s); a {
	case AdjustNone, AdjustForward, AdjustBackward:
		return a, nil
	default:
		return "", fmt.Errorf("unknown adjustment: %q", s)
	}
}

type ChartType string

const (
	ChartCandlestick ChartType = "candlestick"
	ChartLine        ChartType = "line"
)

func ParseChartType(s string) (ChartType, error) {
	switch c := ChartType(s); c {
	case ChartCandlestick, ChartLine:
		return c, nil
	default:
		return "", fmt.Errorf("unknown chart type: %q", s)
	}
}
