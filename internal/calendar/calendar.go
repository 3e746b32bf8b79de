package calendar

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DateLayout is the wire format of every date crossing a package boundary.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrNoWorkingWeekday = errors.New("calendar has no working weekday")
)

// Exception overrides the weekday rule for a single date.
type Exception struct {
	Working bool   `yaml:"working" json:"working" toml:"working"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`
}

// Calendar decides which days count as work days.
// Exceptions are keyed by ISO date (YYYY-MM-DD).
type Calendar struct {
	WorkingDays []time.Weekday       `yaml:"working_days" json:"workingDays" toml:"working_days"`
	Exceptions  map[string]Exception `yaml:"exceptions,omitempty" json:"exceptions,omitempty" toml:"exceptions,omitempty"`
}

// Default returns a Monday to Friday calendar without exceptions.
func Default() *Calendar {
	return &Calendar{
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// Validate reports whether AddWorkDays is guaranteed to terminate.
func (c *Calendar) Validate() error {
	if c == nil || len(c.WorkingDays) == 0 {
		return ErrNoWorkingWeekday
	}
	for _, wd := range c.WorkingDays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("weekday %d out of range", wd)
		}
	}
	for key := range c.Exceptions {
		if _, err := ParseDate(key); err != nil {
			return fmt.Errorf("exception %q: %w", key, err)
		}
	}
	return nil
}

// Clone returns a copy that shares no maps or slices with c.
func (c *Calendar) Clone() *Calendar {
	if c == nil {
		return nil
	}
	out := &Calendar{WorkingDays: slices.Clone(c.WorkingDays)}
	if c.Exceptions != nil {
		out.Exceptions = make(map[string]Exception, len(c.Exceptions))
		for k, v := range c.Exceptions {
			out.Exceptions[k] = v
		}
	}
	return out
}

// IsWorkingDay reports whether d is a work day. An exception for the date
// wins over the weekday rule in both directions.
func (c *Calendar) IsWorkingDay(d time.Time) bool {
	if exc, ok := c.Exceptions[FormatDate(d)]; ok {
		return exc.Working
	}
	return slices.Contains(c.WorkingDays, d.Weekday())
}

// AddWorkDays moves n work days away from d, skipping non-working days.
// With n == 0 it returns the first work day on or after d.
func (c *Calendar) AddWorkDays(d time.Time, n int) time.Time {
	d = Truncate(d)
	if n == 0 {
		for !c.IsWorkingDay(d) {
			d = d.AddDate(0, 0, 1)
		}
		return d
	}
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	for n > 0 {
		d = d.AddDate(0, 0, step)
		if c.IsWorkingDay(d) {
			n--
		}
	}
	return d
}

// CalcWorkDays counts work days between start and end, both inclusive.
// When end is before start the result is zero or negative and callers must
// treat it as an invalid range.
func (c *Calendar) CalcWorkDays(start, end time.Time) int {
	start, end = Truncate(start), Truncate(end)
	if end.Before(start) {
		return -c.countBetween(end, start)
	}
	return c.countBetween(start, end)
}

func (c *Calendar) countBetween(from, to time.Time) int {
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			n++
		}
	}
	return n
}

// WorkDaysBetween is the signed number of work days needed to move from a to b:
// zero when they coincide, positive when b is later.
func (c *Calendar) WorkDaysBetween(a, b time.Time) int {
	a, b = Truncate(a), Truncate(b)
	switch {
	case a.Equal(b):
		return 0
	case a.Before(b):
		return c.countBetween(a.AddDate(0, 0, 1), b)
	default:
		return -c.countBetween(b.AddDate(0, 0, 1), a)
	}
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrInvalidDate)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrInvalidDate)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Truncate drops the time of day, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
