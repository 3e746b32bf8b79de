package project

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/connectjson"
)

const ServiceName = "ganttguild.v1.ProjectService"

type CreateProjectRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	StartDate   string             `json:"startDate"`
	Calendar    *calendar.Calendar `json:"calendar"`
}

type ProjectResponse struct {
	Project *Project `json:"project"`
}

type GetProjectRequest struct {
	ID string `json:"id"`
}

type ListProjectsRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListProjectsResponse struct {
	Projects []*Project `json:"projects"`
	Total    int        `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

// UpdateProjectRequest leaves nil fields unchanged. An empty StartDate
// clears the explicit anchor.
type UpdateProjectRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	StartDate   *string `json:"startDate"`
}

type UpdateCalendarRequest struct {
	ID       string             `json:"id"`
	Calendar *calendar.Calendar `json:"calendar"`
}

type DeleteProjectRequest struct {
	ID string `json:"id"`
}

type DeleteProjectResponse struct{}

// Purger removes data other packages keep per project.
type Purger interface {
	DeleteProject(ctx context.Context, projectID string) error
}

type Server struct {
	repo     Repository
	eventBus *eventbus.Bus
	purgers  []Purger
}

func NewServer(repo Repository, eventBus *eventbus.Bus, purgers ...Purger) *Server {
	return &Server{repo: repo, eventBus: eventBus, purgers: purgers}
}

func (s *Server) Procedures(opts ...connect.HandlerOption) []connectjson.Procedure {
	return []connectjson.Procedure{
		connectjson.Unary(ServiceName, "CreateProject", s.CreateProject, opts...),
		connectjson.Unary(ServiceName, "GetProject", s.GetProject, opts...),
		connectjson.Unary(ServiceName, "ListProjects", s.ListProjects, opts...),
		connectjson.Unary(ServiceName, "UpdateProject", s.UpdateProject, opts...),
		connectjson.Unary(ServiceName, "UpdateCalendar", s.UpdateCalendar, opts...),
		connectjson.Unary(ServiceName, "DeleteProject", s.DeleteProject, opts...),
	}
}

func validateStartDate(v string) error {
	if v == "" {
		return nil
	}
	if _, err := calendar.ParseDate(v); err != nil {
		return cerr.NewValidationError("startDate", "date.format", "start date must be a YYYY-MM-DD date")
	}
	return nil
}

func validateCalendar(c *calendar.Calendar) error {
	if c == nil {
		return nil
	}
	if err := c.Validate(); err != nil {
		msg := "invalid calendar: " + err.Error()
		if errors.Is(err, calendar.ErrNoWorkingWeekday) {
			return cerr.NewValidationError("calendar.workingDays", "calendar.working_days", msg)
		}
		return cerr.NewValidationError("calendar", "calendar.valid", msg)
	}
	return nil
}

func (s *Server) CreateProject(ctx context.Context, req *connect.Request[CreateProjectRequest]) (*connect.Response[ProjectResponse], error) {
	if req.Msg.Name == "" {
		return nil, cerr.NewValidationError("name", "string.min_len", "name is required")
	}
	if err := validateStartDate(req.Msg.StartDate); err != nil {
		return nil, err
	}
	if err := validateCalendar(req.Msg.Calendar); err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Project{
		ID:          ulid.Make().String(),
		Name:        req.Msg.Name,
		Description: req.Msg.Description,
		StartDate:   req.Msg.StartDate,
		Calendar:    req.Msg.Calendar.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return connect.NewResponse(&ProjectResponse{Project: p}), nil
}

func (s *Server) GetProject(ctx context.Context, req *connect.Request[GetProjectRequest]) (*connect.Response[ProjectResponse], error) {
	p, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ProjectResponse{Project: p}), nil
}

func (s *Server) ListProjects(ctx context.Context, req *connect.Request[ListProjectsRequest]) (*connect.Response[ListProjectsResponse], error) {
	limit, offset := 50, max(req.Msg.Offset, 0)
	if req.Msg.Limit > 0 {
		limit = req.Msg.Limit
	}
	projects, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListProjectsResponse{
		Projects: projects,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}), nil
}

func (s *Server) UpdateProject(ctx context.Context, req *connect.Request[UpdateProjectRequest]) (*connect.Response[ProjectResponse], error) {
	p, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	if req.Msg.Name != nil {
		if *req.Msg.Name == "" {
			return nil, cerr.NewValidationError("name", "string.min_len", "name is required")
		}
		p.Name = *req.Msg.Name
	}
	if req.Msg.Description != nil {
		p.Description = *req.Msg.Description
	}
	anchorChanged := false
	if req.Msg.StartDate != nil {
		if err := validateStartDate(*req.Msg.StartDate); err != nil {
			return nil, err
		}
		anchorChanged = p.StartDate != *req.Msg.StartDate
		p.StartDate = *req.Msg.StartDate
	}
	p.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	if anchorChanged {
		s.eventBus.PublishNew(eventbus.EventProjectChanged, p.ID, p.ID, map[string]string{"field": "startDate"})
	}
	return connect.NewResponse(&ProjectResponse{Project: p}), nil
}

// UpdateCalendar replaces the working calendar. A nil calendar restores the
// Monday to Friday default.
func (s *Server) UpdateCalendar(ctx context.Context, req *connect.Request[UpdateCalendarRequest]) (*connect.Response[ProjectResponse], error) {
	if err := validateCalendar(req.Msg.Calendar); err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	p.Calendar = req.Msg.Calendar.Clone()
	p.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.EventCalendarChanged, p.ID, p.ID, nil)
	return connect.NewResponse(&ProjectResponse{Project: p}), nil
}

func (s *Server) DeleteProject(ctx context.Context, req *connect.Request[DeleteProjectRequest]) (*connect.Response[DeleteProjectResponse], error) {
	if err := s.repo.Delete(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	for _, p := range s.purgers {
		if err := p.DeleteProject(ctx, req.Msg.ID); err != nil {
			return nil, err
		}
	}
	return connect.NewResponse(&DeleteProjectResponse{}), nil
}
