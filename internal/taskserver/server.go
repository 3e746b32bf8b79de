// Package taskserver serves the task RPCs. Structural changes go through a
// snapshot of the project so hierarchy and dependency rules are checked
// against the whole task list before anything is written.
package taskserver

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/internal/project"
	"github.com/kazz187/ganttguild/internal/schedule"
	"github.com/kazz187/ganttguild/internal/scheduling"
	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/connectjson"
)

const ServiceName = "ganttguild.v1.TaskService"

type Server struct {
	repo     task.Repository
	projects project.Repository
	eventBus *eventbus.Bus
	edits    *scheduling.Service
	recalc   schedule.Recalculator
	now      func() time.Time
}

// NewServer builds the task service. recalc may be nil, in which case
// EditTask ignores Wait.
func NewServer(repo task.Repository, projects project.Repository, eventBus *eventbus.Bus, recalc schedule.Recalculator) *Server {
	return &Server{
		repo:     repo,
		projects: projects,
		eventBus: eventBus,
		edits:    scheduling.NewService(),
		recalc:   recalc,
		now:      time.Now,
	}
}

func (s *Server) Procedures(opts ...connect.HandlerOption) []connectjson.Procedure {
	read := append([]connect.HandlerOption{connect.WithIdempotency(connect.IdempotencyNoSideEffects)}, opts...)
	return []connectjson.Procedure{
		connectjson.Unary(ServiceName, "CreateTask", s.CreateTask, opts...),
		connectjson.Unary(ServiceName, "GetTask", s.GetTask, read...),
		connectjson.Unary(ServiceName, "ListTasks", s.ListTasks, read...),
		connectjson.Unary(ServiceName, "DeleteTask", s.DeleteTask, opts...),
		connectjson.Unary(ServiceName, "MoveTask", s.MoveTask, opts...),
		connectjson.Unary(ServiceName, "SetDependencies", s.SetDependencies, opts...),
		connectjson.Unary(ServiceName, "EditTask", s.EditTask, opts...),
		connectjson.Unary(ServiceName, "ImportTasks", s.ImportTasks, opts...),
	}
}

// load returns the project and a snapshot of its tasks.
func (s *Server) load(ctx context.Context, projectID string) (*project.Project, *task.Snapshot, error) {
	if projectID == "" {
		return nil, nil, invalid("projectId", "required", "project id is required")
	}
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.repo.List(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return p, task.NewSnapshot(tasks), nil
}

func lookup(snap *task.Snapshot, id string) (*task.Task, error) {
	t, ok := snap.GetTaskByID(id)
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found", id), nil)
	}
	return t, nil
}

func (s *Server) CreateTask(ctx context.Context, req *connect.Request[CreateTaskRequest]) (*connect.Response[TaskResponse], error) {
	m := req.Msg
	p, snap, err := s.load(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}

	switch {
	case m.Name == "":
		return nil, invalid("name", "required", "name is required")
	case m.Duration < 0:
		return nil, invalid("duration", "min", "duration must be at least 1 day")
	case m.ConstraintType != "" && !m.ConstraintType.Valid():
		return nil, invalid("constraintType", "enum", fmt.Sprintf("unknown constraint type %q", m.ConstraintType))
	case m.SchedulingMode != "" && !m.SchedulingMode.Valid():
		return nil, invalid("schedulingMode", "enum", fmt.Sprintf("unknown scheduling mode %q", m.SchedulingMode))
	}
	if err := validateDate("start", m.Start); err != nil {
		return nil, err
	}
	if err := validateDate("constraintDate", m.ConstraintDate); err != nil {
		return nil, err
	}
	if m.ParentID != "" {
		if _, err := lookup(snap, m.ParentID); err != nil {
			return nil, err
		}
	}

	t := &task.Task{
		ID:              ulid.Make().String(),
		ProjectID:       m.ProjectID,
		ParentID:        m.ParentID,
		Name:            m.Name,
		Notes:           m.Notes,
		Start:           m.Start,
		Duration:        m.Duration,
		ConstraintType:  m.ConstraintType,
		ConstraintDate:  m.ConstraintDate,
		SchedulingMode:  m.SchedulingMode,
		TradePartnerIDs: m.TradePartnerIDs,
		Fields:          m.Fields,
	}
	t.ApplyDefaults()
	if t.Start == "" {
		t.Start = p.DefaultTaskStart(s.now())
	}
	start, _ := calendar.ParseDate(t.Start)
	t.End = calendar.FormatDate(p.WorkCalendar().AddWorkDays(start, t.Duration-1))

	if t.Dependencies, err = normalizeDependencies(snap, t.ID, m.Dependencies); err != nil {
		return nil, err
	}
	snap.Put(t)
	write := []*task.Task{t}
	if parent := promoteParent(snap, t.ParentID); parent != nil {
		write = append(write, parent)
	}
	if err := checkCycles(snap); err != nil {
		return nil, err
	}

	if err := s.repo.Apply(ctx, t.ProjectID, write, nil); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.EventTaskChanged, t.ProjectID, t.ID, map[string]string{"op": "create"})

	return connect.NewResponse(&TaskResponse{Task: t}), nil
}

func (s *Server) GetTask(ctx context.Context, req *connect.Request[GetTaskRequest]) (*connect.Response[TaskResponse], error) {
	t, err := s.repo.Get(ctx, req.Msg.ProjectID, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TaskResponse{Task: t}), nil
}

func (s *Server) ListTasks(ctx context.Context, req *connect.Request[ListTasksRequest]) (*connect.Response[ListTasksResponse], error) {
	if _, err := s.projects.Get(ctx, req.Msg.ProjectID); err != nil {
		return nil, err
	}
	tasks, err := s.repo.List(ctx, req.Msg.ProjectID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListTasksResponse{Tasks: tasks}), nil
}

// DeleteTask removes the task with all its descendants and strips the
// dependencies other tasks had on any of them, in one write.
func (s *Server) DeleteTask(ctx context.Context, req *connect.Request[DeleteTaskRequest]) (*connect.Response[DeleteTaskResponse], error) {
	m := req.Msg
	_, snap, err := s.load(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, err := lookup(snap, m.ID); err != nil {
		return nil, err
	}

	removed := append([]string{m.ID}, snap.Descendants(m.ID)...)
	gone := make(map[string]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}

	var write []*task.Task
	res := &DeleteTaskResponse{Deleted: removed, Updated: []string{}}
	for _, t := range snap.Tasks() {
		if gone[t.ID] {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(t.Dependencies), func(d task.Dependency) bool { return gone[d.ID] })
		if len(kept) == len(t.Dependencies) {
			continue
		}
		t.Dependencies = kept
		write = append(write, t)
		res.Updated = append(res.Updated, t.ID)
	}

	if err := s.repo.Apply(ctx, m.ProjectID, write, removed); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.EventTaskDeleted, m.ProjectID, m.ID, map[string]string{
		"deleted": strconv.Itoa(len(removed)),
	})
	return connect.NewResponse(res), nil
}

func (s *Server) MoveTask(ctx context.Context, req *connect.Request[MoveTaskRequest]) (*connect.Response[TaskResponse], error) {
	m := req.Msg
	_, snap, err := s.load(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	t, err := lookup(snap, m.ID)
	if err != nil {
		return nil, err
	}
	if t.ParentID == m.ParentID {
		return connect.NewResponse(&TaskResponse{Task: t}), nil
	}
	if m.ParentID != "" {
		if m.ParentID == m.ID {
			return nil, invalid("parentId", "self", "a task cannot be its own parent")
		}
		if _, err := lookup(snap, m.ParentID); err != nil {
			return nil, err
		}
		if snap.IsDescendant(m.ParentID, m.ID) {
			return nil, invalid("parentId", "descendant", "a task cannot move below its own subtask")
		}
	}

	t.ParentID = m.ParentID
	snap.Put(t)
	write := []*task.Task{t}
	if parent := promoteParent(snap, m.ParentID); parent != nil {
		write = append(write, parent)
	}
	if err := checkCycles(snap); err != nil {
		return nil, err
	}

	if err := s.repo.Apply(ctx, m.ProjectID, write, nil); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.EventTaskChanged, m.ProjectID, m.ID, map[string]string{"op": "move"})
	return connect.NewResponse(&TaskResponse{Task: t}), nil
}

func (s *Server) SetDependencies(ctx context.Context, req *connect.Request[SetDependenciesRequest]) (*connect.Response[TaskResponse], error) {
	m := req.Msg
	_, snap, err := s.load(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	t, err := lookup(snap, m.ID)
	if err != nil {
		return nil, err
	}
	if t.Dependencies, err = normalizeDependencies(snap, t.ID, m.Dependencies); err != nil {
		return nil, err
	}
	snap.Put(t)
	if err := checkCycles(snap); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.EventTaskChanged, m.ProjectID, m.ID, map[string]string{"op": "dependencies"})
	return connect.NewResponse(&TaskResponse{Task: t}), nil
}

// EditTask applies one field edit through the scheduling rules. A rejected
// edit writes nothing and is returned as a validation error on the field.
func (s *Server) EditTask(ctx context.Context, req *connect.Request[EditTaskRequest]) (*connect.Response[EditTaskResponse], error) {
	m := req.Msg
	p, snap, err := s.load(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, err := lookup(snap, m.ID); err != nil {
		return nil, err
	}

	result := s.edits.ApplyEdit(m.ID, m.Field, m.Value, scheduling.EditContext{Store: snap, Calendar: p.WorkCalendar()})
	if !result.Success {
		e := cerr.NewValidationError(m.Field, "ganttguild.edit."+m.Field, result.Message)
		if result.MessageType == scheduling.MessageWarning {
			e.Code = cerr.FailedPrecondition
		}
		return nil, e
	}

	res := &EditTaskResponse{Result: result}
	for _, t := range snap.Updated() {
		if err := s.repo.Update(ctx, t); err != nil {
			return nil, err
		}
		res.Task = t
	}
	if res.Task == nil {
		// Nothing to commit, such as a partial number while typing.
		res.Task, _ = snap.GetTaskByID(m.ID)
		return connect.NewResponse(res), nil
	}

	eventType := eventbus.EventTaskUpdated
	if result.NeedsRecalc {
		eventType = eventbus.EventTaskChanged
	}
	s.eventBus.PublishNew(eventType, m.ProjectID, m.ID, map[string]string{"field": m.Field})

	if m.Wait && result.NeedsRecalc && s.recalc != nil {
		run, err := s.recalc.RecalculateAndWait(ctx, m.ProjectID, string(eventbus.EventTaskChanged))
		if err != nil {
			return nil, err
		}
		res.Run = run
		if res.Task, err = s.repo.Get(ctx, m.ProjectID, m.ID); err != nil {
			return nil, err
		}
	}
	return connect.NewResponse(res), nil
}

func (s *Server) ImportTasks(ctx context.Context, req *connect.Request[ImportTasksRequest]) (*connect.Response[ImportTasksResponse], error) {
	m := req.Msg
	_, snap, err := s.load(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}

	var remove []string
	if m.Replace {
		for _, t := range snap.Tasks() {
			remove = append(remove, t.ID)
		}
		snap = task.NewSnapshot(nil)
	}

	res := &ImportTasksResponse{IDs: make(map[string]string, len(m.Tasks))}
	for i, t := range m.Tasks {
		if t == nil || t.Name == "" {
			return nil, invalid(fmt.Sprintf("tasks[%d].name", i), "required", "name is required")
		}
		key := t.ID
		if key == "" {
			key = strconv.Itoa(i)
		}
		if _, dup := res.IDs[key]; dup {
			return nil, invalid(fmt.Sprintf("tasks[%d].id", i), "unique", fmt.Sprintf("duplicate task id %q", key))
		}
		res.IDs[key] = ulid.Make().String()
	}

	resolve := func(ref string) (string, bool) {
		if id, ok := res.IDs[ref]; ok {
			return id, true
		}
		if _, ok := snap.GetTaskByID(ref); ok {
			return ref, true
		}
		return "", false
	}

	imported := make([]*task.Task, 0, len(m.Tasks))
	for i, in := range m.Tasks {
		t := in.Clone()
		key := t.ID
		if key == "" {
			key = strconv.Itoa(i)
		}
		t.ID = res.IDs[key]
		t.ProjectID = m.ProjectID
		t.CreatedAt, t.UpdatedAt = time.Time{}, time.Time{}
		if t.ParentID != "" {
			parentID, ok := resolve(t.ParentID)
			if !ok {
				res.DroppedReferences++
			}
			t.ParentID = parentID
		}
		deps := make([]task.Dependency, 0, len(t.Dependencies))
		for _, d := range t.Dependencies {
			id, ok := resolve(d.ID)
			if !ok {
				res.DroppedReferences++
				continue
			}
			d.ID = id
			if d.Type == "" {
				d.Type = task.DependencyFS
			}
			if !d.Type.Valid() {
				return nil, invalid(fmt.Sprintf("tasks[%d].dependencies", i), "type", fmt.Sprintf("unknown dependency type %q", d.Type))
			}
			deps = append(deps, d)
		}
		t.Dependencies = deps
		t.ApplyDefaults()
		imported = append(imported, t)
	}

	for _, t := range imported {
		snap.Put(t)
	}
	write := slices.Clone(imported)
	importedIDs := make(map[string]bool, len(imported))
	for _, t := range imported {
		importedIDs[t.ID] = true
		if snap.IsParent(t.ID) && t.IsManual() {
			t.SchedulingMode = task.SchedulingAuto
			snap.Put(t)
		}
	}
	for _, t := range imported {
		if importedIDs[t.ParentID] {
			continue
		}
		if parent := promoteParent(snap, t.ParentID); parent != nil {
			write = append(write, parent)
		}
	}
	if err := checkCycles(snap); err != nil {
		return nil, err
	}

	if err := s.repo.Apply(ctx, m.ProjectID, write, remove); err != nil {
		return nil, err
	}
	res.Tasks = imported
	s.eventBus.PublishNew(eventbus.EventTasksImported, m.ProjectID, "", map[string]string{
		"imported": strconv.Itoa(len(imported)),
		"replaced": strconv.FormatBool(m.Replace),
	})
	return connect.NewResponse(res), nil
}
