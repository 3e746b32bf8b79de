// Package rollup aggregates child schedules into their summary (parent) tasks.
package rollup

import (
	"math"
	"slices"
	"time"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/task"
)

// Apply updates every parent in tasks from its direct children, deepest
// parents first so one call settles a whole hierarchy. Parents without a
// scheduled child keep their previous values. It returns the number of
// parents rolled up.
func Apply(tasks []*task.Task, cal *calendar.Calendar, h cpm.Hierarchy) int {
	if cal == nil {
		cal = calendar.Default()
	}
	if h == nil {
		h = task.NewSnapshot(tasks)
	}
	byID := make(map[string]*task.Task, len(tasks))
	position := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := byID[t.ID]; !dup {
			byID[t.ID] = t
			position[t.ID] = i
		}
	}

	children := make(map[string][]*task.Task)
	var parents []string
	for _, t := range tasks {
		if t.ParentID == "" || byID[t.ParentID] == nil || t.ParentID == t.ID {
			continue
		}
		if _, seen := children[t.ParentID]; !seen {
			parents = append(parents, t.ParentID)
		}
		children[t.ParentID] = append(children[t.ParentID], t)
	}

	slices.SortStableFunc(parents, func(a, b string) int {
		if da, db := h.Depth(a), h.Depth(b); da != db {
			return db - da
		}
		return position[a] - position[b]
	})

	rolled := 0
	for _, id := range parents {
		if summarize(byID[id], children[id], cal) {
			rolled++
		}
	}
	return rolled
}

func summarize(parent *task.Task, children []*task.Task, cal *calendar.Calendar) bool {
	var (
		start, end        time.Time
		scheduled         int
		totalFloat        = math.MaxInt
		freeFloat         = math.MaxInt
		negativeFloat     int
		weighted, weights int
	)
	for _, c := range children {
		s, errS := calendar.ParseDate(c.Start)
		e, errE := calendar.ParseDate(c.End)
		if errS != nil || errE != nil {
			continue
		}
		scheduled++
		if start.IsZero() || s.Before(start) {
			start = s
		}
		if end.IsZero() || e.After(end) {
			end = e
		}
		totalFloat = min(totalFloat, c.TotalFloat)
		freeFloat = min(freeFloat, c.FreeFloat)
		negativeFloat = min(negativeFloat, c.NegativeFloat)

		w := max(c.Duration, 1)
		weighted += c.Progress * w
		weights += w
	}
	if scheduled == 0 {
		return false
	}

	parent.Start = calendar.FormatDate(start)
	parent.End = calendar.FormatDate(end)
	parent.Duration = max(cal.CalcWorkDays(start, end), 1)
	parent.SchedulingMode = task.SchedulingAuto
	parent.TotalFloat = totalFloat
	parent.FreeFloat = min(freeFloat, totalFloat)
	parent.NegativeFloat = negativeFloat
	parent.IsCritical = totalFloat == 0
	parent.Progress = int(math.Round(float64(weighted) / float64(weights)))
	return true
}
