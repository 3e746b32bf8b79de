package report

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kazz187/ganttguild/internal/task"
)

// Diff returns a unified diff of the scheduled fields of two task lists, or
// an empty string when the schedules match.
func Diff(before, after []*task.Task) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        scheduleLines(before),
		B:        scheduleLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
}

func scheduleLines(tasks []*task.Task) []string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		line := fmt.Sprintf("%s %s..%s dur=%d tf=%d ff=%d", t.ID, t.Start, t.End, t.Duration, t.TotalFloat, t.FreeFloat)
		if t.IsCritical {
			line += " critical"
		}
		if t.HasConflict() {
			line += fmt.Sprintf(" conflict=%d", t.NegativeFloat)
		}
		lines = append(lines, line+"\n")
	}
	return lines
}
