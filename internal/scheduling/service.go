// Package scheduling turns a single field edit into one consistent task patch
// and reports whether the schedule has to be recalculated.
package scheduling

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/task"
)

const (
	FieldName            = "name"
	FieldNotes           = "notes"
	FieldDuration        = "duration"
	FieldStart           = "start"
	FieldEnd             = "end"
	FieldActualStart     = "actualStart"
	FieldActualFinish    = "actualFinish"
	FieldConstraintType  = "constraintType"
	FieldConstraintDate  = "constraintDate"
	FieldSchedulingMode  = "schedulingMode"
	FieldProgress        = "progress"
	FieldTradePartnerIDs = "tradePartnerIds"
)

// Service is stateless; the zero value is ready to use.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

type edit struct {
	t     *task.Task
	cal   *calendar.Calendar
	value string
}

// ApplyEdit validates one edit of field on taskID and commits at most one
// patch to ec.Store. It never recalculates; the Result says whether the
// caller must.
func (s *Service) ApplyEdit(taskID, field string, value any, ec EditContext) Result {
	t, ok := ec.Store.GetTaskByID(taskID)
	if !ok {
		return rejected(MessageError, fmt.Sprintf("task %s not found", taskID))
	}
	cal := ec.Calendar
	if cal == nil {
		cal = calendar.Default()
	}
	e := edit{t: t, cal: cal, value: stringValue(value)}
	parent := ec.Store.IsParent(taskID)

	var (
		patch task.Patch
		res   Result
	)
	switch field {
	case FieldDuration:
		patch, res = e.duration(parent)
	case FieldStart:
		patch, res = e.start(parent)
	case FieldEnd:
		patch, res = e.end(parent)
	case FieldActualStart:
		patch, res = e.actualStart(parent)
	case FieldActualFinish:
		patch, res = e.actualFinish(parent)
	case FieldConstraintType:
		patch, res = e.constraintType()
	case FieldConstraintDate:
		patch, res = e.constraintDate()
	case FieldSchedulingMode:
		patch, res = e.schedulingMode(parent)
	case FieldProgress:
		patch, res = e.progress()
	case FieldTradePartnerIDs:
		ids := stringsValue(value)
		patch, res = task.Patch{TradePartnerIDs: &ids}, render()
	case FieldName:
		patch, res = task.Patch{Name: &e.value}, render()
	case FieldNotes:
		patch, res = task.Patch{Notes: &e.value}, render()
	default:
		if field == "" {
			return rejected(MessageError, "field name is required")
		}
		patch, res = task.Patch{Fields: map[string]string{field: e.value}}, render()
	}

	if !res.Success || patch.IsEmpty() {
		return res
	}
	if err := ec.Store.UpdateTask(taskID, patch); err != nil {
		return rejected(MessageError, fmt.Sprintf("update task: %v", err))
	}
	return res
}

func (e edit) duration(parent bool) (task.Patch, Result) {
	if parent {
		return task.Patch{}, rejected(MessageWarning, "summary task duration is derived from its children")
	}
	n, err := strconv.Atoi(e.value)
	if err != nil {
		// Partial input while typing; nothing to commit yet.
		return task.Patch{}, noop()
	}
	if n < 1 {
		return task.Patch{}, rejected(MessageError, "duration must be at least 1 day")
	}
	p := task.Patch{Duration: &n}
	if e.t.ActualFinish == "" {
		p.RemainingDuration = &n
	}
	return p, recalc()
}

func (e edit) start(parent bool) (task.Patch, Result) {
	if parent {
		return task.Patch{}, rejected(MessageWarning, "summary task dates are derived from its children")
	}
	d, err := calendar.ParseDate(e.value)
	if err != nil {
		return task.Patch{}, rejected(MessageError, "start must be a YYYY-MM-DD date")
	}
	p := task.Patch{
		Start:          &e.value,
		ConstraintType: task.Ptr(task.ConstraintSNET),
		ConstraintDate: &e.value,
	}
	if e.t.IsManual() && e.t.End != "" {
		first := e.cal.AddWorkDays(d, 0)
		p.End = task.Ptr(calendar.FormatDate(e.cal.AddWorkDays(first, max(e.t.Duration, 1)-1)))
	}
	return p, recalc()
}

func (e edit) end(parent bool) (task.Patch, Result) {
	if parent {
		return task.Patch{}, rejected(MessageWarning, "summary task dates are derived from its children")
	}
	d, err := calendar.ParseDate(e.value)
	if err != nil {
		return task.Patch{}, rejected(MessageError, "end must be a YYYY-MM-DD date")
	}
	p := task.Patch{
		End:            &e.value,
		ConstraintType: task.Ptr(task.ConstraintFNLT),
		ConstraintDate: &e.value,
	}
	if start, ok := parseOptional(e.t.Start); ok {
		n := e.cal.CalcWorkDays(start, d)
		if n < 1 {
			return task.Patch{}, rejected(MessageError, "end must not be before start")
		}
		p.Duration = &n
	}
	return p, recalc()
}

func (e edit) actualStart(parent bool) (task.Patch, Result) {
	if parent {
		return task.Patch{}, rejected(MessageWarning, "actual dates cannot be recorded on a summary task")
	}
	if e.value == "" {
		// The snet constraint created by anchoring stays in place.
		return task.Patch{ActualStart: task.Ptr("")}, recalc()
	}
	d, err := calendar.ParseDate(e.value)
	if err != nil {
		return task.Patch{}, rejected(MessageError, "actual start must be a YYYY-MM-DD date")
	}
	p := anchorStart(e.value)
	p.ActualStart = &e.value
	if finish, ok := parseOptional(e.t.ActualFinish); ok {
		n := e.cal.CalcWorkDays(d, finish)
		if n < 1 {
			return task.Patch{}, rejected(MessageError, "actual start must not be after actual finish")
		}
		p.Duration = &n
	}
	return p, recalc()
}

func (e edit) actualFinish(parent bool) (task.Patch, Result) {
	if parent {
		return task.Patch{}, rejected(MessageWarning, "actual dates cannot be recorded on a summary task")
	}
	if e.value == "" {
		return task.Patch{
			ActualFinish:      task.Ptr(""),
			Progress:          task.Ptr(0),
			RemainingDuration: task.Ptr(max(e.t.Duration, 1)),
		}, recalc()
	}
	finish, err := calendar.ParseDate(e.value)
	if err != nil {
		return task.Patch{}, rejected(MessageError, "actual finish must be a YYYY-MM-DD date")
	}

	startValue := e.t.ActualStart
	if startValue == "" {
		startValue = e.t.Start
	}
	start, ok := parseOptional(startValue)
	if !ok {
		return task.Patch{}, rejected(MessageWarning, "set a start date before recording an actual finish")
	}
	if finish.Before(start) {
		return task.Patch{}, rejected(MessageError, "actual finish must not be before the start")
	}

	p := task.Patch{
		ActualFinish:      &e.value,
		End:               &e.value,
		Progress:          task.Ptr(100),
		RemainingDuration: task.Ptr(0),
		Duration:          task.Ptr(max(e.cal.CalcWorkDays(start, finish), 1)),
	}
	if e.t.ActualStart == "" {
		anchor := anchorStart(startValue)
		p.ActualStart = &startValue
		p.Start, p.ConstraintType, p.ConstraintDate = anchor.Start, anchor.ConstraintType, anchor.ConstraintDate
	}
	return p, recalc()
}

// anchorStart pins a start date with a start-no-earlier-than constraint.
func anchorStart(date string) task.Patch {
	return task.Patch{
		Start:          &date,
		ConstraintType: task.Ptr(task.ConstraintSNET),
		ConstraintDate: &date,
	}
}

func (e edit) constraintType() (task.Patch, Result) {
	ct := task.ConstraintType(strings.ToLower(e.value))
	if !ct.Valid() {
		return task.Patch{}, rejected(MessageError, fmt.Sprintf("unknown constraint type %q", e.value))
	}
	p := task.Patch{ConstraintType: &ct}
	if ct == task.ConstraintASAP {
		p.ConstraintDate = task.Ptr("")
	}
	return p, recalc()
}

func (e edit) constraintDate() (task.Patch, Result) {
	return task.Patch{ConstraintDate: &e.value}, recalc()
}

func (e edit) schedulingMode(parent bool) (task.Patch, Result) {
	var mode task.SchedulingMode
	switch {
	case strings.EqualFold(e.value, string(task.SchedulingAuto)):
		mode = task.SchedulingAuto
	case strings.EqualFold(e.value, string(task.SchedulingManual)):
		mode = task.SchedulingManual
	default:
		return task.Patch{}, rejected(MessageError, fmt.Sprintf("unknown scheduling mode %q", e.value))
	}
	if parent && mode == task.SchedulingManual {
		return task.Patch{}, rejected(MessageWarning, "summary tasks are always auto scheduled")
	}

	current := e.t.SchedulingMode
	if current == "" {
		current = task.SchedulingAuto
	}
	if current == mode {
		return task.Patch{}, noop()
	}

	if mode == task.SchedulingManual {
		return task.Patch{SchedulingMode: &mode}, recalc().withMessage(MessageInfo, "task dates are now pinned")
	}
	p := task.Patch{SchedulingMode: &mode}
	if e.t.Start != "" {
		anchor := anchorStart(e.t.Start)
		p.ConstraintType, p.ConstraintDate = anchor.ConstraintType, anchor.ConstraintDate
	}
	return p, recalc().withMessage(MessageInfo, "task is auto scheduled from its current start")
}

func (e edit) progress() (task.Patch, Result) {
	f, err := strconv.ParseFloat(e.value, 64)
	if err != nil || math.IsNaN(f) {
		return task.Patch{}, rejected(MessageError, "progress must be a number")
	}
	n := int(math.Round(min(max(f, 0), 100)))
	return task.Patch{Progress: &n}, render()
}

func parseOptional(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	d, err := calendar.ParseDate(s)
	return d, err == nil
}
