package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/task"
)

func init() {
	color.NoColor = true
}

func scheduled() []*task.Task {
	return []*task.Task{
		{ID: "p", Name: "phase"},
		{ID: "a", ParentID: "p", Name: "dig", Start: "2024-01-01", End: "2024-01-03", Duration: 3, IsCritical: true},
		{ID: "b", ParentID: "p", Name: "pour", Start: "2024-01-04", End: "2024-01-05", Duration: 2, NegativeFloat: -2,
			ConstraintType: task.ConstraintFNLT, ConstraintDate: "2024-01-03"},
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, scheduled()))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "  dig")
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "conflict(-2)")
	assert.Contains(t, out, "fnlt 2024-01-03")
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, cpm.Stats{
		TaskCount:      3,
		ProjectStart:   "2024-01-01",
		EarliestFinish: "2024-01-05",
		CriticalCount:  1,
		ConflictCount:  1,
		DroppedDependencies: []cpm.DroppedDependency{
			{TaskID: "a", PredecessorID: "zz", Reason: cpm.DropMissing},
		},
	}))
	assert.Equal(t,
		"3 tasks, 2024-01-01 to 2024-01-05, 1 critical, 1 conflicts\nignored dependency zz -> a (missing)\n",
		buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	res := &cpm.Result{Stats: cpm.Stats{TaskCount: 3}}
	require.NoError(t, JSON(&buf, res, scheduled()))

	var got struct {
		Stats cpm.Stats    `json:"stats"`
		Tasks []*task.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got.Stats.TaskCount)
	assert.Len(t, got.Tasks, 3)
}

func TestDiff(t *testing.T) {
	before := scheduled()
	after := task.CloneAll(before)
	after[2].End = "2024-01-08"
	after[2].Duration = 3

	out, err := Diff(before, after)
	require.NoError(t, err)
	assert.Contains(t, out, "--- before")
	assert.Contains(t, out, "-b 2024-01-04..2024-01-05 dur=2")
	assert.Contains(t, out, "+b 2024-01-04..2024-01-08 dur=3")
	assert.NotContains(t, out, "-a ")

	same, err := Diff(before, task.CloneAll(before))
	require.NoError(t, err)
	assert.Empty(t, same)
}
