package cpm

import (
	"time"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/task"
)

// constraintDate returns the parsed constraint date, or false when the task
// has no usable bound.
func constraintDate(t *task.Task) (time.Time, bool) {
	if t.Constraint() == task.ConstraintASAP || t.ConstraintDate == "" {
		return time.Time{}, false
	}
	d, err := calendar.ParseDate(t.ConstraintDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// resolveForward tightens the dependency-derived earliest start.
func resolveForward(t *task.Task, es time.Time, dur int, cal *calendar.Calendar) time.Time {
	cd, ok := constraintDate(t)
	if !ok {
		return es
	}
	switch t.Constraint() {
	case task.ConstraintSNET:
		return maxDate(es, cal.AddWorkDays(cd, 0))
	case task.ConstraintFNET:
		return maxDate(es, backSolve(cal, cal.AddWorkDays(cd, 0), dur))
	case task.ConstraintMFO:
		return backSolve(cal, cal.AddWorkDays(cd, 0), dur)
	}
	return es
}

// resolveBackward tightens the successor-derived latest finish.
func resolveBackward(t *task.Task, lf time.Time, dur int, cal *calendar.Calendar) time.Time {
	cd, ok := constraintDate(t)
	if !ok {
		return lf
	}
	switch t.Constraint() {
	case task.ConstraintSNLT:
		return minDate(lf, cal.AddWorkDays(prevWorkDay(cal, cd), dur-1))
	case task.ConstraintFNLT:
		return minDate(lf, prevWorkDay(cal, cd))
	case task.ConstraintMFO:
		return cal.AddWorkDays(cd, 0)
	}
	return lf
}

// prevWorkDay returns the last work day on or before d.
func prevWorkDay(cal *calendar.Calendar, d time.Time) time.Time {
	if cal.IsWorkingDay(d) {
		return d
	}
	return cal.AddWorkDays(d, -1)
}

// backSolve returns the start that makes a dur-day task finish on finish.
func backSolve(cal *calendar.Calendar, finish time.Time, dur int) time.Time {
	return cal.AddWorkDays(finish, -(dur - 1))
}

func maxDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func minDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
