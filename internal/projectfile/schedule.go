package projectfile

import (
	"fmt"
	"time"

	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/project"
	"github.com/kazz187/ganttguild/internal/rollup"
	"github.com/kazz187/ganttguild/internal/scheduling"
	"github.com/kazz187/ganttguild/internal/task"
)

// Project returns the project settings of the file.
func (f *File) Project() *project.Project {
	return &project.Project{Name: f.Name, StartDate: f.StartDate, Calendar: f.Calendar}
}

// Calculate schedules every task of the file in place, the same way the
// server does on a recalculation pass, and returns the pass result.
func (f *File) Calculate(today time.Time) (*cpm.Result, error) {
	for _, t := range f.Tasks {
		t.ApplyDefaults()
	}
	p := f.Project()
	cal := p.WorkCalendar()
	snap := task.NewSnapshot(f.Tasks)
	res, err := cpm.Calculate(f.Tasks, cal, snap, p.ScheduleOptions(today))
	if err != nil {
		return nil, err
	}
	rollup.Apply(res.Tasks, cal, snap)
	f.Tasks = res.Tasks
	return res, nil
}

// Edit applies one field edit and recalculates when the edit asks for it.
// A rejected edit leaves the file untouched and is returned as an error.
func (f *File) Edit(taskID, field string, value any, today time.Time) (scheduling.Result, error) {
	snap := task.NewSnapshot(f.Tasks)
	res := scheduling.NewService().ApplyEdit(taskID, field, value, scheduling.EditContext{
		Store:    snap,
		Calendar: f.Project().WorkCalendar(),
	})
	if !res.Success {
		return res, fmt.Errorf("edit %s.%s: %s", taskID, field, res.Message)
	}
	f.Tasks = snap.Tasks()
	if res.NeedsRecalc {
		if _, err := f.Calculate(today); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Task returns the task with id, or nil.
func (f *File) Task(id string) *task.Task {
	for _, t := range f.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
