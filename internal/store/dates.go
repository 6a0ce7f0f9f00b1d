package store

import (
	"fmt"
	"math"
	"time"
)

const dayFormat = "2006-01-02"

func parseDay(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dayFormat, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", value, err)
	}
	return t, nil
}

func dayUTC(t time.Time) string {
	return t.UTC().Format(dayFormat)
}

// enumerateDays lists every calendar day of the inclusive range [from, to].
// An inverted range yields an empty slice.
func enumerateDays(from, to string) ([]string, error) {
	start, err := parseDay(from)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(to)
	if err != nil {
		return nil, err
	}

	var days []string
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, 1) {
		days = append(days, cursor.Format(dayFormat))
	}
	return days, nil
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

// ratio is numerator/denominator rounded to four decimals, 0 when the
// denominator is zero.
func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return round4(float64(numerator) / float64(denominator))
}
