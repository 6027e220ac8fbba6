package recurrence

import (
	"fmt"
	"time"

	"github.com/go-taskpulse/internal/domain"
)

// Advance returns the due date one period after t, in t's location.
// Monthly steps clamp to the last day of the target month, so Jan 31 becomes
// Feb 29 in a leap year. The wall-clock time of day is kept.
func Advance(t time.Time, f domain.Frequency) (time.Time, error) {
	switch f {
	case domain.FrequencyDaily:
		return t.AddDate(0, 0, 1), nil
	case domain.FrequencyWeekly:
		return t.AddDate(0, 0, 7), nil
	case domain.FrequencyMonthly:
		y, m, d := t.Date()
		target := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
		day := min(d, daysInMonth(target.Month(), target.Year()))
		return time.Date(target.Year(), target.Month(), day,
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q: %w", f, domain.ErrBadRequest)
}

func daysInMonth(month time.Month, year int) int {
	// First of the next month minus one day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
