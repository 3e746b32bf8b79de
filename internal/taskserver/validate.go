package taskserver

import (
	"errors"
	"fmt"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/cerr"
)

const rulePrefix = "ganttguild.task."

func invalid(field, rule, msg string) error {
	return cerr.NewValidationError(field, rulePrefix+rule, msg)
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := calendar.ParseDate(value); err != nil {
		return invalid(field, "date", field+" must be a YYYY-MM-DD date")
	}
	return nil
}

// normalizeDependencies checks the predecessors of id against snap and
// returns them with an empty type read as FS.
func normalizeDependencies(snap *task.Snapshot, id string, deps []task.Dependency) ([]task.Dependency, error) {
	out := make([]task.Dependency, 0, len(deps))
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if d.Type == "" {
			d.Type = task.DependencyFS
		}
		switch {
		case !d.Type.Valid():
			return nil, invalid("dependencies", "type", fmt.Sprintf("unknown dependency type %q", d.Type))
		case d.ID == "":
			return nil, invalid("dependencies", "id", "dependency id is required")
		case d.ID == id:
			return nil, invalid("dependencies", "self", "a task cannot depend on itself")
		case seen[d.ID]:
			return nil, invalid("dependencies", "duplicate", fmt.Sprintf("duplicate dependency on %s", d.ID))
		}
		if _, ok := snap.GetTaskByID(d.ID); !ok {
			return nil, invalid("dependencies", "exists", fmt.Sprintf("predecessor %s not found", d.ID))
		}
		if snap.IsDescendant(d.ID, id) {
			return nil, invalid("dependencies", "descendant", fmt.Sprintf("%s is a subtask and cannot be a predecessor", d.ID))
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out, nil
}

// checkCycles fails with FailedPrecondition naming the loop when the
// snapshot can no longer be scheduled.
func checkCycles(snap *task.Snapshot) error {
	err := cpm.DetectCycle(snap.Tasks(), snap)
	if err == nil {
		return nil
	}
	var cycle *cpm.CycleError
	if errors.As(err, &cycle) {
		return cerr.NewError(cerr.FailedPrecondition, cycle.Error(), err)
	}
	return cerr.NewError(cerr.Internal, "cycle check failed", err)
}

// promoteParent forces a task that now has children to auto scheduling and
// returns the changed copy, or nil when nothing changed.
func promoteParent(snap *task.Snapshot, parentID string) *task.Task {
	if parentID == "" {
		return nil
	}
	p, ok := snap.GetTaskByID(parentID)
	if !ok || !p.IsManual() {
		return nil
	}
	p.SchedulingMode = task.SchedulingAuto
	snap.Put(p)
	return p
}
