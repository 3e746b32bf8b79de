package cpm

import (
	"errors"
	"strings"
	"time"
)

// ErrCycle matches every *CycleError through errors.Is.
var ErrCycle = errors.New("cycle detected")

type CycleKind string

const (
	CycleDependency CycleKind = "dependency"
	CycleParent     CycleKind = "parent"
)

// CycleError is the structural failure of a pass. Path lists the task ids on
// the cycle with the first id repeated at the end.
type CycleError struct {
	Kind CycleKind
	Path []string
}

func (e *CycleError) Error() string {
	return string(e.Kind) + " cycle detected: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// Hierarchy answers the parent/child questions the engine needs without
// owning the task tree.
type Hierarchy interface {
	IsParent(id string) bool
	Depth(id string) int
}

// Options tune the project anchor. ProjectStart wins when set; otherwise the
// earliest start among root tasks is used, then Today.
type Options struct {
	ProjectStart time.Time
	Today        time.Time
}

type DropReason string

const (
	DropMissing     DropReason = "missing"
	DropSelf        DropReason = "self"
	DropParent      DropReason = "parent"
	DropSummaryTask DropReason = "summary_task"
	DropInvalidType DropReason = "invalid_type"
)

// DroppedDependency is a dependency the pass ignored.
type DroppedDependency struct {
	TaskID        string     `json:"taskId" yaml:"task_id"`
	PredecessorID string     `json:"predecessorId" yaml:"predecessor_id"`
	Reason        DropReason `json:"reason" yaml:"reason"`
}

type Stats struct {
	TaskCount           int                 `json:"taskCount" yaml:"task_count"`
	ScheduledCount      int                 `json:"scheduledCount" yaml:"scheduled_count"`
	ParentCount         int                 `json:"parentCount" yaml:"parent_count"`
	CriticalCount       int                 `json:"criticalCount" yaml:"critical_count"`
	ConflictCount       int                 `json:"conflictCount" yaml:"conflict_count"`
	ProjectStart        string              `json:"projectStart,omitempty" yaml:"project_start,omitempty"`
	EarliestFinish      string              `json:"earliestFinish,omitempty" yaml:"earliest_finish,omitempty"`
	LatestFinish        string              `json:"latestFinish,omitempty" yaml:"latest_finish,omitempty"`
	CriticalPath        []string            `json:"criticalPath,omitempty" yaml:"critical_path,omitempty"`
	DroppedDependencies []DroppedDependency `json:"droppedDependencies,omitempty" yaml:"dropped_dependencies,omitempty"`
}

// TaskSchedule holds the early and late dates of one schedulable task.
type TaskSchedule struct {
	TaskID      string `json:"taskId" yaml:"task_id"`
	EarlyStart  string `json:"earlyStart" yaml:"early_start"`
	EarlyFinish string `json:"earlyFinish" yaml:"early_finish"`
	LateStart   string `json:"lateStart" yaml:"late_start"`
	LateFinish  string `json:"lateFinish" yaml:"late_finish"`
	TotalFloat  int    `json:"totalFloat" yaml:"total_float"`
	FreeFloat   int    `json:"freeFloat" yaml:"free_float"`
	IsCritical  bool   `json:"isCritical" yaml:"is_critical"`
}
