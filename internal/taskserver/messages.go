package taskserver

import (
	"github.com/kazz187/ganttguild/internal/schedule"
	"github.com/kazz187/ganttguild/internal/scheduling"
	"github.com/kazz187/ganttguild/internal/task"
)

type CreateTaskRequest struct {
	ProjectID       string              `json:"projectId"`
	ParentID        string              `json:"parentId"`
	Name            string              `json:"name"`
	Notes           string              `json:"notes"`
	Start           string              `json:"start"`
	Duration        int                 `json:"duration"`
	ConstraintType  task.ConstraintType `json:"constraintType"`
	ConstraintDate  string              `json:"constraintDate"`
	SchedulingMode  task.SchedulingMode `json:"schedulingMode"`
	Dependencies    []task.Dependency   `json:"dependencies"`
	TradePartnerIDs []string            `json:"tradePartnerIds"`
	Fields          map[string]string   `json:"fields"`
}

type TaskResponse struct {
	Task *task.Task `json:"task"`
}

type GetTaskRequest struct {
	ProjectID string `json:"projectId"`
	ID        string `json:"id"`
}

type ListTasksRequest struct {
	ProjectID string `json:"projectId"`
}

type ListTasksResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

type DeleteTaskRequest struct {
	ProjectID string `json:"projectId"`
	ID        string `json:"id"`
}

// DeleteTaskResponse lists every removed task, descendants included, and the
// tasks that lost a dependency on one of them.
type DeleteTaskResponse struct {
	Deleted []string `json:"deleted"`
	Updated []string `json:"updated"`
}

// MoveTaskRequest reparents a task. An empty ParentID makes it a root task.
type MoveTaskRequest struct {
	ProjectID string `json:"projectId"`
	ID        string `json:"id"`
	ParentID  string `json:"parentId"`
}

type SetDependenciesRequest struct {
	ProjectID    string            `json:"projectId"`
	ID           string            `json:"id"`
	Dependencies []task.Dependency `json:"dependencies"`
}

// EditTaskRequest changes one field. Value is a string, a number or, for
// tradePartnerIds, a list. Wait blocks until the resulting pass finished.
type EditTaskRequest struct {
	ProjectID string `json:"projectId"`
	ID        string `json:"id"`
	Field     string `json:"field"`
	Value     any    `json:"value"`
	Wait      bool   `json:"wait"`
}

type EditTaskResponse struct {
	Result scheduling.Result `json:"result"`
	Task   *task.Task        `json:"task"`
	// Run is set when the request waited for a pass.
	Run *schedule.Run `json:"run,omitempty"`
}

// ImportTasksRequest adds tasks in bulk. Ids in Tasks only need to be unique
// within the request; they are replaced with fresh ids and every parent and
// dependency reference is rewritten. Replace removes the existing tasks first.
type ImportTasksRequest struct {
	ProjectID string       `json:"projectId"`
	Tasks     []*task.Task `json:"tasks"`
	Replace   bool         `json:"replace"`
}

type ImportTasksResponse struct {
	Tasks []*task.Task `json:"tasks"`
	// IDs maps request ids to the stored ids.
	IDs map[string]string `json:"ids"`
	// DroppedReferences counts parent and dependency references that named
	// neither an imported nor an existing task.
	DroppedReferences int `json:"droppedReferences"`
}
