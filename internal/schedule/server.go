package schedule

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/project"
	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/connectjson"
)

const ServiceName = "ganttguild.v1.ScheduleService"

// TriggerManual marks passes requested through the API.
const TriggerManual = "manual"

// Recalculator runs a pass and waits for its outcome.
type Recalculator interface {
	RecalculateAndWait(ctx context.Context, projectID, trigger string) (*Run, error)
}

type ProjectRequest struct {
	ProjectID string `json:"projectId"`
}

// View is a project's current schedule. When the newest pass failed, Tasks
// still carry the dates of the last successful pass and Stale is set.
type View struct {
	ProjectID    string             `json:"projectId"`
	Tasks        []*task.Task       `json:"tasks"`
	Schedules    []cpm.TaskSchedule `json:"schedules,omitempty"`
	CriticalPath []string           `json:"criticalPath"`
	LastRun      *Run               `json:"lastRun,omitempty"`
	Stale        bool               `json:"stale"`
}

type CriticalPathResponse struct {
	ProjectID string       `json:"projectId"`
	Tasks     []*task.Task `json:"tasks"`
}

type ListRunsRequest struct {
	ProjectID string `json:"projectId"`
	Limit     int    `json:"limit"`
}

type ListRunsResponse struct {
	Runs []*Run `json:"runs"`
}

type RunResponse struct {
	Run *Run `json:"run"`
}

type Server struct {
	tasks    task.Repository
	projects project.Repository
	runs     Repository
	recalc   Recalculator
}

func NewServer(tasks task.Repository, projects project.Repository, runs Repository, recalc Recalculator) *Server {
	return &Server{tasks: tasks, projects: projects, runs: runs, recalc: recalc}
}

func (s *Server) Procedures(opts ...connect.HandlerOption) []connectjson.Procedure {
	read := append([]connect.HandlerOption{connect.WithIdempotency(connect.IdempotencyNoSideEffects)}, opts...)
	return []connectjson.Procedure{
		connectjson.Unary(ServiceName, "GetSchedule", s.GetSchedule, read...),
		connectjson.Unary(ServiceName, "GetCriticalPath", s.GetCriticalPath, read...),
		connectjson.Unary(ServiceName, "ListRuns", s.ListRuns, read...),
		connectjson.Unary(ServiceName, "Recalculate", s.Recalculate, opts...),
	}
}

// Routes mounts the read-only REST view below /api.
func (s *Server) Routes(r chi.Router) {
	r.Get("/projects/{projectID}/schedule", s.handleGetSchedule)
	r.Get("/projects/{projectID}/critical-path", s.handleGetCriticalPath)
}

func (s *Server) view(ctx context.Context, projectID string) (*View, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	v := &View{ProjectID: projectID, Tasks: tasks, CriticalPath: []string{}}

	last, err := s.runs.Latest(ctx, projectID)
	switch {
	case cerr.IsCode(err, cerr.NotFound):
		return v, nil
	case err != nil:
		return nil, err
	}
	v.LastRun = last

	ok := last
	if !last.OK() {
		v.Stale = true
		ok, err = s.runs.LatestOK(ctx, projectID)
		if cerr.IsCode(err, cerr.NotFound) {
			return v, nil
		}
		if err != nil {
			return nil, err
		}
	}
	v.Schedules = ok.Schedules
	if ok.Stats.CriticalPath != nil {
		v.CriticalPath = ok.Stats.CriticalPath
	}
	return v, nil
}

func (s *Server) criticalTasks(ctx context.Context, projectID string) (*CriticalPathResponse, error) {
	v, err := s.view(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*task.Task, len(v.Tasks))
	for _, t := range v.Tasks {
		byID[t.ID] = t
	}
	res := &CriticalPathResponse{ProjectID: projectID, Tasks: []*task.Task{}}
	for _, id := range v.CriticalPath {
		if t, ok := byID[id]; ok {
			res.Tasks = append(res.Tasks, t)
		}
	}
	return res, nil
}

func (s *Server) GetSchedule(ctx context.Context, req *connect.Request[ProjectRequest]) (*connect.Response[View], error) {
	v, err := s.view(ctx, req.Msg.ProjectID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(v), nil
}

func (s *Server) GetCriticalPath(ctx context.Context, req *connect.Request[ProjectRequest]) (*connect.Response[CriticalPathResponse], error) {
	res, err := s.criticalTasks(ctx, req.Msg.ProjectID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

func (s *Server) ListRuns(ctx context.Context, req *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error) {
	limit := req.Msg.Limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.runs.List(ctx, req.Msg.ProjectID, limit)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListRunsResponse{Runs: runs}), nil
}

// Recalculate runs a pass now. A structural failure is reported as
// FailedPrecondition naming the cycle.
func (s *Server) Recalculate(ctx context.Context, req *connect.Request[ProjectRequest]) (*connect.Response[RunResponse], error) {
	if _, err := s.projects.Get(ctx, req.Msg.ProjectID); err != nil {
		return nil, err
	}
	run, err := s.recalc.RecalculateAndWait(ctx, req.Msg.ProjectID, TriggerManual)
	if err != nil {
		return nil, err
	}
	if !run.OK() {
		return nil, cerr.NewError(cerr.FailedPrecondition, run.Error, nil)
	}
	return connect.NewResponse(&RunResponse{Run: run}), nil
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	v, err := s.view(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), v)
}

func (s *Server) handleGetCriticalPath(w http.ResponseWriter, r *http.Request) {
	res, err := s.criticalTasks(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), res)
}
