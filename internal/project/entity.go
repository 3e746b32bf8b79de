package project

import (
	"time"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/cpm"
)

type Project struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// StartDate anchors root tasks. Empty means the earliest root start.
	StartDate string             `yaml:"start_date,omitempty" json:"startDate,omitempty"`
	Calendar  *calendar.Calendar `yaml:"calendar,omitempty" json:"calendar,omitempty"`
	CreatedAt time.Time          `yaml:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `yaml:"updated_at" json:"updatedAt"`
}

// WorkCalendar returns the project calendar, or the Monday to Friday default.
func (p *Project) WorkCalendar() *calendar.Calendar {
	if p == nil || p.Calendar == nil {
		return calendar.Default()
	}
	return p.Calendar
}

// ScheduleOptions builds the engine options for a pass run on today.
func (p *Project) ScheduleOptions(today time.Time) cpm.Options {
	opts := cpm.Options{Today: calendar.Truncate(today)}
	if p == nil || p.StartDate == "" {
		return opts
	}
	if d, err := calendar.ParseDate(p.StartDate); err == nil {
		opts.ProjectStart = d
	}
	return opts
}

// DefaultTaskStart is the start a new task gets when none is given.
func (p *Project) DefaultTaskStart(today time.Time) string {
	if p != nil && p.StartDate != "" {
		return p.StartDate
	}
	return calendar.FormatDate(p.WorkCalendar().AddWorkDays(today, 0))
}
