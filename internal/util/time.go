package util

import (
	"math"
	"sync"
	"time"
)

const (
	// DateFormat is the standard date format for park records.
	DateFormat = "2006-01-02"

	// DateTimeFormat is the standard datetime format for park records.
	DateTimeFormat = "2006-01-02 15:04:05"

	hoursPerDay = 24
)

// Clock supplies the current time to services so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a manually driven clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t.UTC()}
}

// Now returns the frozen time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the fractional number of days from a to b.
func DaysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / hoursPerDay
}

// AddDays adds a fractional day count to a calendar date, rounding to the
// nearest whole day. The time of day of t is ignored.
func AddDays(t time.Time, days float64) time.Time {
	return DateOnly(t).AddDate(0, 0, int(math.Round(days)))
}

// CalendarDaysUntil counts whole calendar days from a to b (negative when b
// is before a).
func CalendarDaysUntil(a, b time.Time) int {
	return int(math.Round(DateOnly(b).Sub(DateOnly(a)).Hours() / hoursPerDay))
}

// FormatDate formats a time as a date string.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// FormatDatePtr formats an optional date, returning "-" for nil.
func FormatDatePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(DateFormat)
}
