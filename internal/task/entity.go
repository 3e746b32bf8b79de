package task

import (
	"maps"
	"slices"
	"time"
)

type DependencyType string

const (
	DependencyFS DependencyType = "FS"
	DependencySS DependencyType = "SS"
	DependencyFF DependencyType = "FF"
	DependencySF DependencyType = "SF"
)

func (t DependencyType) Valid() bool {
	switch t {
	case DependencyFS, DependencySS, DependencyFF, DependencySF:
		return true
	}
	return false
}

type ConstraintType string

const (
	ConstraintASAP ConstraintType = "asap"
	ConstraintSNET ConstraintType = "snet"
	ConstraintSNLT ConstraintType = "snlt"
	ConstraintFNET ConstraintType = "fnet"
	ConstraintFNLT ConstraintType = "fnlt"
	ConstraintMFO  ConstraintType = "mfo"
)

func (c ConstraintType) Valid() bool {
	switch c {
	case ConstraintASAP, ConstraintSNET, ConstraintSNLT, ConstraintFNET, ConstraintFNLT, ConstraintMFO:
		return true
	}
	return false
}

type SchedulingMode string

const (
	SchedulingAuto   SchedulingMode = "Auto"
	SchedulingManual SchedulingMode = "Manual"
)

func (m SchedulingMode) Valid() bool {
	return m == SchedulingAuto || m == SchedulingManual
}

// Dependency links a task to one of its predecessors.
type Dependency struct {
	ID   string         `yaml:"id" json:"id" toml:"id"`
	Type DependencyType `yaml:"type" json:"type" toml:"type"`
	Lag  int            `yaml:"lag,omitempty" json:"lag,omitempty" toml:"lag,omitempty"`
}

// Task is a schedulable row or a summary row when other tasks point at it
// through ParentID. Dates are YYYY-MM-DD strings, empty when unset.
type Task struct {
	ID        string `yaml:"id" json:"id" toml:"id"`
	ProjectID string `yaml:"project_id" json:"projectId" toml:"project_id"`
	ParentID  string `yaml:"parent_id,omitempty" json:"parentId,omitempty" toml:"parent_id,omitempty"`
	Name      string `yaml:"name" json:"name" toml:"name"`
	Notes     string `yaml:"notes,omitempty" json:"notes,omitempty" toml:"notes,omitempty"`

	Start    string `yaml:"start,omitempty" json:"start,omitempty" toml:"start,omitempty"`
	End      string `yaml:"end,omitempty" json:"end,omitempty" toml:"end,omitempty"`
	Duration int    `yaml:"duration" json:"duration" toml:"duration"`

	Dependencies   []Dependency   `yaml:"dependencies,omitempty" json:"dependencies,omitempty" toml:"dependencies,omitempty"`
	ConstraintType ConstraintType `yaml:"constraint_type,omitempty" json:"constraintType,omitempty" toml:"constraint_type,omitempty"`
	ConstraintDate string         `yaml:"constraint_date,omitempty" json:"constraintDate,omitempty" toml:"constraint_date,omitempty"`
	SchedulingMode SchedulingMode `yaml:"scheduling_mode,omitempty" json:"schedulingMode,omitempty" toml:"scheduling_mode,omitempty"`

	ActualStart       string `yaml:"actual_start,omitempty" json:"actualStart,omitempty" toml:"actual_start,omitempty"`
	ActualFinish      string `yaml:"actual_finish,omitempty" json:"actualFinish,omitempty" toml:"actual_finish,omitempty"`
	Progress          int    `yaml:"progress" json:"progress" toml:"progress"`
	RemainingDuration int    `yaml:"remaining_duration" json:"remainingDuration" toml:"remaining_duration"`

	TradePartnerIDs []string          `yaml:"trade_partner_ids,omitempty" json:"tradePartnerIds,omitempty" toml:"trade_partner_ids,omitempty"`
	Fields          map[string]string `yaml:"fields,omitempty" json:"fields,omitempty" toml:"fields,omitempty"`

	// Computed by the scheduler on every pass.
	IsCritical    bool `yaml:"is_critical" json:"isCritical" toml:"is_critical"`
	TotalFloat    int  `yaml:"total_float" json:"totalFloat" toml:"total_float"`
	FreeFloat     int  `yaml:"free_float" json:"freeFloat" toml:"free_float"`
	NegativeFloat int  `yaml:"negative_float,omitempty" json:"negativeFloat,omitempty" toml:"negative_float,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"createdAt" toml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updatedAt" toml:"updated_at"`
}

// IsManual reports whether the scheduler must keep the task's dates.
func (t *Task) IsManual() bool {
	return t.SchedulingMode == SchedulingManual
}

// Constraint returns the effective constraint, treating an empty type as asap.
func (t *Task) Constraint() ConstraintType {
	if t.ConstraintType == "" {
		return ConstraintASAP
	}
	return t.ConstraintType
}

// HasConflict reports whether the last pass found the task's constraints
// incompatible with its predecessors.
func (t *Task) HasConflict() bool {
	return t.NegativeFloat < 0
}

// ScheduleChanged reports whether o differs from t in a field the scheduler
// writes.
func (t *Task) ScheduleChanged(o *Task) bool {
	return t.Start != o.Start ||
		t.End != o.End ||
		t.Duration != o.Duration ||
		t.SchedulingMode != o.SchedulingMode ||
		t.Progress != o.Progress ||
		t.IsCritical != o.IsCritical ||
		t.TotalFloat != o.TotalFloat ||
		t.FreeFloat != o.FreeFloat ||
		t.NegativeFloat != o.NegativeFloat
}

// Clone returns a deep copy sharing no slices or maps with t.
func (t *Task) Clone() *Task {
	out := *t
	out.Dependencies = slices.Clone(t.Dependencies)
	out.TradePartnerIDs = slices.Clone(t.TradePartnerIDs)
	out.Fields = maps.Clone(t.Fields)
	return &out
}

// ApplyDefaults fills the fields a freshly created or imported task must carry.
func (t *Task) ApplyDefaults() {
	if t.Duration < 1 {
		t.Duration = 1
	}
	if t.ConstraintType == "" {
		t.ConstraintType = ConstraintASAP
	}
	if t.SchedulingMode == "" {
		t.SchedulingMode = SchedulingAuto
	}
	if t.ActualFinish == "" && t.RemainingDuration == 0 && t.Progress < 100 {
		t.RemainingDuration = t.Duration
	}
}

// CloneAll deep-copies a task list.
func CloneAll(tasks []*Task) []*Task {
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
