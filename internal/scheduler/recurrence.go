// Package scheduler turns inspection templates into dated instances: it
// computes recurrences, guards against duplicate occurrences and rolls
// template schedules forward.
package scheduler

import (
	"fmt"
	"time"

	"github.com/watzon/maintrack/internal/inspections"
)

// PreCreationWindow is how far ahead of its due date an instance is created.
const PreCreationWindow = 4 * 24 * time.Hour

// Advance returns the occurrence that follows from for template t, or nil when
// the recurrence is not configured or the next occurrence would fall after the
// template's end date.
//
// Monthly and yearly recurrences keep the day of month of the start date,
// clamped to the last day of shorter months.
func Advance(t *inspections.Template, from *time.Time) *time.Time {
	if t == nil || from == nil || t.StartDate == nil || t.Interval <= 0 {
		return nil
	}

	var next time.Time
	switch t.Frequency {
	case inspections.FrequencyDaily:
		next = from.AddDate(0, 0, t.Interval)
	case inspections.FrequencyWeekly:
		next = from.AddDate(0, 0, 7*t.Interval)
	case inspections.FrequencyMonthly:
		next = addMonths(*from, t.Interval, t.StartDate.Day())
	case inspections.FrequencyYearly:
		next = addMonths(*from, 12*t.Interval, t.StartDate.Day())
	case inspections.FrequencyMinute:
		next = from.Add(time.Duration(t.Interval) * time.Minute)
	default:
		return nil
	}

	if t.EndDate != nil && next.After(*t.EndDate) {
		return nil
	}

	return &next
}

func addMonths(from time.Time, months, anchorDay int) time.Time {
	target := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).AddDate(0, months, 0)

	d := anchorDay
	if last := daysInMonth(target.Month(), target.Year()); d > last {
		d = last
	}

	return time.Date(target.Year(), target.Month(), d,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysInMonth(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

const minuteKeyLayout = "2006-01-02T15:04"

// OccurrenceKey names the occurrence due at due: the calendar day, or the day
// and minute for minute-frequency templates.
func OccurrenceKey(freq inspections.Frequency, due time.Time) string {
	due = due.UTC()
	if freq == inspections.FrequencyMinute {
		return due.Format(minuteKeyLayout)
	}
	return due.Format(time.DateOnly)
}

// OccursAfter reports whether the occurrence of freq due at due comes after
// the occurrence named lastKey. When the two keys differ in granularity they
// are compared by calendar day.
func OccursAfter(freq inspections.Frequency, due time.Time, lastKey string) (bool, error) {
	due = due.UTC()

	if last, err := time.Parse(minuteKeyLayout, lastKey); err == nil {
		if freq == inspections.FrequencyMinute {
			return due.Truncate(time.Minute).After(last), nil
		}
		return due.Format(time.DateOnly) > last.Format(time.DateOnly), nil
	}

	if _, err := time.Parse(time.DateOnly, lastKey); err != nil {
		return false, fmt.Errorf("unrecognised occurrence key %q", lastKey)
	}
	return due.Format(time.DateOnly) > lastKey, nil
}

// period approximates the spacing between two occurrences of t.
func period(t *inspections.Template) time.Duration {
	n := time.Duration(max(t.Interval, 1))
	switch t.Frequency {
	case inspections.FrequencyMinute:
		return n * time.Minute
	case inspections.FrequencyDaily:
		return n * 24 * time.Hour
	case inspections.FrequencyWeekly:
		return n * 7 * 24 * time.Hour
	case inspections.FrequencyMonthly:
		return n * 28 * 24 * time.Hour
	default:
		return n * 365 * 24 * time.Hour
	}
}
