// Package schedule records scheduler passes and serves the computed
// schedule of a project.
package schedule

import (
	"time"

	"github.com/kazz187/ganttguild/internal/cpm"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Run is one scheduler pass over a project. A failed run wrote no tasks, so
// the schedule of the last ok run stays in effect.
type Run struct {
	ID        string `yaml:"id" json:"id"`
	ProjectID string `yaml:"project_id" json:"projectId"`
	Status    Status `yaml:"status" json:"status"`
	// Trigger names what requested the pass, an event type or "manual".
	Trigger   string             `yaml:"trigger" json:"trigger"`
	Stats     cpm.Stats          `yaml:"stats" json:"stats"`
	Schedules []cpm.TaskSchedule `yaml:"schedules,omitempty" json:"schedules,omitempty"`
	// RolledUp is the number of summary tasks whose dates were derived.
	RolledUp int `yaml:"rolled_up" json:"rolledUp"`
	// Skipped counts tasks edited while the pass ran; their results were
	// discarded and a follow-up pass was requested.
	Skipped   int           `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	Error     string        `yaml:"error,omitempty" json:"error,omitempty"`
	CycleKind cpm.CycleKind `yaml:"cycle_kind,omitempty" json:"cycleKind,omitempty"`
	CyclePath []string      `yaml:"cycle_path,omitempty" json:"cyclePath,omitempty"`
	StartedAt time.Time     `yaml:"started_at" json:"startedAt"`
	Elapsed   time.Duration `yaml:"elapsed" json:"elapsed"`
}

func (r *Run) OK() bool {
	return r != nil && r.Status == StatusOK
}
