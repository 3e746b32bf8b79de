package cpm

import (
	"fmt"
	"time"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/task"
)

// Result is the outcome of one pass. Tasks are fresh copies in input order.
type Result struct {
	Tasks     []*task.Task
	Schedules []TaskSchedule // schedulable tasks in topological order
	Stats     Stats
}

type node struct {
	t              *task.Task
	dur            int
	es, ef, ls, lf time.Time
	pinnedStart    bool
}

// Calculate runs the forward and backward passes over tasks and returns the
// scheduled copies. The input is never modified. A dependency or parent cycle
// fails the whole pass with a *CycleError and no tasks.
func Calculate(tasks []*task.Task, cal *calendar.Calendar, h Hierarchy, opts Options) (*Result, error) {
	if cal == nil {
		cal = calendar.Default()
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	if err := checkHierarchy(tasks); err != nil {
		return nil, err
	}
	if h == nil {
		h = task.NewSnapshot(tasks)
	}

	g := buildGraph(tasks, h)
	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}

	out := task.CloneAll(tasks)
	nodes := make(map[string]*node, len(order))
	for _, t := range out {
		if _, ok := g.index[t.ID]; ok && nodes[t.ID] == nil {
			nodes[t.ID] = &node{t: t, dur: max(t.Duration, 1)}
		}
	}

	anchor := projectAnchor(nodes, g, cal, opts)

	// Forward pass.
	for _, id := range order {
		n := nodes[id]
		forward(n, g.preds[id], nodes, anchor, cal)
	}

	var projectFinish time.Time
	for _, n := range nodes {
		projectFinish = maxDate(projectFinish, n.ef)
	}

	// Backward pass.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		n := nodes[id]
		backward(n, g.succs[id], nodes, projectFinish, cal)
	}

	stats := Stats{
		TaskCount:           len(out),
		ScheduledCount:      len(order),
		ParentCount:         len(out) - len(order),
		DroppedDependencies: g.dropped,
	}
	if len(order) > 0 {
		stats.ProjectStart = calendar.FormatDate(anchor)
		stats.EarliestFinish = calendar.FormatDate(projectFinish)
	}

	latest := projectFinish
	schedules := make([]TaskSchedule, 0, len(order))
	for _, id := range order {
		n := nodes[id]
		latest = maxDate(latest, n.lf)
		floats(n, g.succs[id], nodes, cal)
		apply(n)

		if n.t.IsCritical {
			stats.CriticalCount++
			stats.CriticalPath = append(stats.CriticalPath, id)
		}
		if n.t.HasConflict() {
			stats.ConflictCount++
		}
		schedules = append(schedules, TaskSchedule{
			TaskID:      id,
			EarlyStart:  calendar.FormatDate(n.es),
			EarlyFinish: calendar.FormatDate(n.ef),
			LateStart:   calendar.FormatDate(n.ls),
			LateFinish:  calendar.FormatDate(n.lf),
			TotalFloat:  n.t.TotalFloat,
			FreeFloat:   n.t.FreeFloat,
			IsCritical:  n.t.IsCritical,
		})
	}
	if len(order) > 0 {
		stats.LatestFinish = calendar.FormatDate(latest)
	}

	for _, t := range out {
		if _, ok := nodes[t.ID]; ok {
			continue
		}
		t.IsCritical = false
		t.TotalFloat, t.FreeFloat, t.NegativeFloat = 0, 0, 0
	}

	return &Result{Tasks: out, Schedules: schedules, Stats: stats}, nil
}

// projectAnchor picks the date tasks without predecessors start on.
// Roots whose start is dictated by a finish constraint do not vote.
func projectAnchor(nodes map[string]*node, g *graph, cal *calendar.Calendar, opts Options) time.Time {
	if !opts.ProjectStart.IsZero() {
		return cal.AddWorkDays(opts.ProjectStart, 0)
	}
	var anchor time.Time
	for _, id := range g.ids {
		if len(g.preds[id]) > 0 {
			continue
		}
		d, ok := rootStart(nodes[id], cal)
		if !ok {
			continue
		}
		if anchor.IsZero() || d.Before(anchor) {
			anchor = d
		}
	}
	if anchor.IsZero() {
		anchor = opts.Today
		if anchor.IsZero() {
			anchor = time.Now()
		}
	}
	return cal.AddWorkDays(anchor, 0)
}

func rootStart(n *node, cal *calendar.Calendar) (time.Time, bool) {
	t := n.t
	if t.IsManual() {
		return parseOptional(t.Start)
	}
	if d, ok := parseOptional(t.ActualStart); ok {
		return d, true
	}
	if d, ok := parseOptional(t.ActualFinish); ok {
		return backSolve(cal, cal.AddWorkDays(d, 0), n.dur), true
	}
	switch t.Constraint() {
	case task.ConstraintFNET, task.ConstraintMFO:
		return time.Time{}, false
	}
	return parseOptional(t.Start)
}

func forward(n *node, preds []edge, nodes map[string]*node, anchor time.Time, cal *calendar.Calendar) {
	t := n.t

	if t.IsManual() {
		if start, ok := parseOptional(t.Start); ok {
			n.es, n.pinnedStart = start, true
			// A start pinned on a non-working day counts from the next work day.
			n.ef = cal.AddWorkDays(cal.AddWorkDays(start, 0), n.dur-1)
			if end, ok := parseOptional(t.End); ok && !end.Before(start) {
				n.ef = end
				if d := cal.CalcWorkDays(start, end); d >= 1 {
					n.dur = d
				}
			}
			return
		}
	}

	es := anchor
	if len(preds) > 0 {
		es = time.Time{}
		for _, e := range preds {
			if d := impliedStart(e, nodes[e.from], n.dur, cal); es.IsZero() || d.After(es) {
				es = d
			}
		}
	}
	if !t.IsManual() {
		es = resolveForward(t, es, n.dur, cal)
	}
	es = cal.AddWorkDays(es, 0)

	actualStart, hasStart := parseOptional(t.ActualStart)
	actualFinish, hasFinish := parseOptional(t.ActualFinish)
	if hasStart {
		es = cal.AddWorkDays(actualStart, 0)
	}
	if hasFinish {
		finish := cal.AddWorkDays(actualFinish, 0)
		if hasStart {
			if d := cal.CalcWorkDays(es, finish); d >= 1 {
				n.dur = d
			}
		} else {
			es = backSolve(cal, finish, n.dur)
		}
	}

	n.es = es
	n.ef = cal.AddWorkDays(es, n.dur-1)
}

// impliedStart is the earliest start a single dependency allows.
func impliedStart(e edge, pred *node, dur int, cal *calendar.Calendar) time.Time {
	switch e.typ {
	case task.DependencySS:
		return cal.AddWorkDays(pred.es, e.lag)
	case task.DependencyFF:
		return backSolve(cal, cal.AddWorkDays(pred.ef, e.lag), dur)
	case task.DependencySF:
		return backSolve(cal, cal.AddWorkDays(pred.es, e.lag), dur)
	default:
		return cal.AddWorkDays(pred.ef, 1+e.lag)
	}
}

func backward(n *node, succs []edge, nodes map[string]*node, projectFinish time.Time, cal *calendar.Calendar) {
	lf := projectFinish
	for _, e := range succs {
		lf = minDate(lf, impliedFinish(e, nodes[e.to], n.dur, cal))
	}
	if !n.t.IsManual() {
		lf = resolveBackward(n.t, lf, n.dur, cal)
	}
	n.lf = lf
	n.ls = backSolve(cal, lf, n.dur)
}

// impliedFinish is the latest finish a single successor allows.
func impliedFinish(e edge, succ *node, dur int, cal *calendar.Calendar) time.Time {
	switch e.typ {
	case task.DependencySS:
		return cal.AddWorkDays(cal.AddWorkDays(succ.ls, -e.lag), dur-1)
	case task.DependencyFF:
		return cal.AddWorkDays(succ.lf, -e.lag)
	case task.DependencySF:
		return cal.AddWorkDays(cal.AddWorkDays(succ.lf, -e.lag), dur-1)
	default:
		return cal.AddWorkDays(succ.ls, -(1 + e.lag))
	}
}

// floats derives total and free float. Negative total float is kept apart as
// the conflict marker; the reported floats never go below zero.
func floats(n *node, succs []edge, nodes map[string]*node, cal *calendar.Calendar) {
	total := cal.WorkDaysBetween(n.ef, n.lf)

	free := total
	for _, e := range succs {
		free = min(free, slack(e, n, nodes[e.to], cal))
	}

	t := n.t
	t.TotalFloat = max(total, 0)
	t.NegativeFloat = min(total, 0)
	t.FreeFloat = min(max(free, 0), t.TotalFloat)
	t.IsCritical = t.TotalFloat == 0
}

// slack is how far pred may slip before succ's early dates move.
func slack(e edge, pred, succ *node, cal *calendar.Calendar) int {
	switch e.typ {
	case task.DependencySS:
		return cal.WorkDaysBetween(pred.es, succ.es) - e.lag
	case task.DependencyFF:
		return cal.WorkDaysBetween(pred.ef, succ.ef) - e.lag
	case task.DependencySF:
		return cal.WorkDaysBetween(pred.es, succ.ef) - e.lag
	default:
		return cal.WorkDaysBetween(pred.ef, succ.es) - 1 - e.lag
	}
}

// apply writes the computed dates back. Manual tasks keep their pinned dates.
func apply(n *node) {
	t := n.t
	t.Duration = n.dur
	if n.pinnedStart {
		if t.End == "" {
			t.End = calendar.FormatDate(n.ef)
		}
		return
	}
	t.Start = calendar.FormatDate(n.es)
	t.End = calendar.FormatDate(n.ef)
}

func parseOptional(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
