// Package report renders computed schedules for a terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/task"
)

var (
	critical = color.New(color.FgRed, color.Bold).SprintFunc()
	conflict = color.New(color.FgYellow).SprintFunc()
	summary  = color.New(color.Bold).SprintFunc()
	faint    = color.New(color.Faint).SprintFunc()

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var headers = []string{"ID", "NAME", "START", "END", "DUR", "TF", "FF", "%", ""}

// Table writes one row per task in file order, children indented under
// their parent. Critical rows are red and conflicting rows yellow.
func Table(w io.Writer, tasks []*task.Task) error {
	snap := task.NewSnapshot(tasks)
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		paint := rowPaint(t, snap.IsParent(t.ID))
		name := strings.Repeat("  ", snap.Depth(t.ID)) + t.Name
		rows = append(rows, []string{
			paint(t.ID),
			paint(name),
			paint(t.Start),
			paint(t.End),
			paint(strconv.Itoa(t.Duration)),
			paint(strconv.Itoa(t.TotalFloat)),
			paint(strconv.Itoa(t.FreeFloat)),
			paint(strconv.Itoa(t.Progress)),
			paint(flags(t)),
		})
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, tbl.String())
	return err
}

func rowPaint(t *task.Task, parent bool) func(a ...any) string {
	switch {
	case t.HasConflict():
		return conflict
	case t.IsCritical:
		return critical
	case parent:
		return summary
	}
	return fmt.Sprint
}

func flags(t *task.Task) string {
	var out []string
	if t.IsCritical {
		out = append(out, "critical")
	}
	if t.HasConflict() {
		out = append(out, fmt.Sprintf("conflict(%d)", t.NegativeFloat))
	}
	if t.IsManual() {
		out = append(out, "manual")
	}
	if c := t.Constraint(); c != task.ConstraintASAP {
		out = append(out, string(c)+" "+t.ConstraintDate)
	}
	return strings.Join(out, " ")
}

// Summary writes the one line overview printed under the table.
func Summary(w io.Writer, stats cpm.Stats) error {
	line := fmt.Sprintf("%d tasks, %s to %s, %d critical",
		stats.TaskCount, stats.ProjectStart, stats.EarliestFinish, stats.CriticalCount)
	if stats.ConflictCount > 0 {
		line += ", " + conflict(fmt.Sprintf("%d conflicts", stats.ConflictCount))
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	for _, d := range stats.DroppedDependencies {
		if _, err := fmt.Fprintln(w, faint(fmt.Sprintf("ignored dependency %s -> %s (%s)", d.PredecessorID, d.TaskID, d.Reason))); err != nil {
			return err
		}
	}
	return nil
}

type jsonReport struct {
	Stats     cpm.Stats          `json:"stats"`
	Schedules []cpm.TaskSchedule `json:"schedules"`
	Tasks     []*task.Task       `json:"tasks"`
}

// JSON writes the full pass result for scripts.
func JSON(w io.Writer, res *cpm.Result, tasks []*task.Task) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Stats: res.Stats, Schedules: res.Schedules, Tasks: tasks})
}
