package report

import (
	"fmt"
	"math"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
)

// isoMillis is the lower-bound format the analytics search API expects.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Window is the reporting time frame.
type Window struct {
	Start time.Time
	End   time.Time
	Label string // caller supplied, e.g. "Q1 2024"
}

// ParseWindow builds a Window from two dates in YYYY-MM-DD or RFC3339 form.
// Date-only values are midnight UTC. An empty label defaults to Period().
func ParseWindow(start, end, label string) (Window, error) {
	if start == "" || end == "" {
		return Window{}, apperr.Configuration("A report start date and end date are required.")
	}
	s, err := ParseDate(start)
	if err != nil {
		return Window{}, apperr.Configuration(err.Error())
	}
	e, err := ParseDate(end)
	if err != nil {
		return Window{}, apperr.Configuration(err.Error())
	}

	w := Window{Start: s, End: e, Label: label}
	if w.Label == "" {
		w.Label = w.Period()
	}
	return w, nil
}

// LastDays returns a window of n days ending at end.
func LastDays(n int, end time.Time) Window {
	if n < 1 {
		n = 1
	}
	w := Window{Start: end.Add(-time.Duration(n) * 24 * time.Hour), End: end}
	w.Label = w.Period()
	return w
}

// ParseDate parses a date string in YYYY-MM-DD or RFC3339 format.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date format: %q (expected YYYY-MM-DD or RFC3339)", s)
}

// IsZero reports whether either bound is unset.
func (w Window) IsZero() bool {
	return w.Start.IsZero() || w.End.IsZero()
}

// Days is the window length in whole days, rounded up and never below 1.
// Reversed bounds count the same as ordered ones.
func (w Window) Days() int {
	d := w.End.Sub(w.Start)
	if d < 0 {
		d = -d
	}
	days := int(math.Ceil(d.Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// StartISO is the lower bound for createdAt searches, in UTC with milliseconds.
func (w Window) StartISO() string {
	return w.Start.UTC().Format(isoMillis)
}

// Period is the standard "Last N Days" label.
func (w Window) Period() string {
	return fmt.Sprintf("Last %d Days", w.Days())
}
