package model

import "time"

// DateLayout is the calendar date format used by the source API and storage.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date in t's own location.
// All dates handled by the pipeline are normalized this way so they compare
// equal regardless of the zone they were derived in.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a normalized day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// TrailingDays returns n consecutive days ending at end, newest first.
func TrailingDays(end time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	end = Day(end)
	days := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, end.AddDate(0, 0, -i))
	}
	return days
}
