package scheduling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/task"
)

type countingStore struct {
	*task.Snapshot
	updates int
	fail    error
}

func (s *countingStore) UpdateTask(id string, p task.Patch) error {
	s.updates++
	if s.fail != nil {
		return s.fail
	}
	return s.Snapshot.UpdateTask(id, p)
}

func newStore(tasks ...*task.Task) *countingStore {
	return &countingStore{Snapshot: task.NewSnapshot(tasks)}
}

func ctx(s Store) EditContext {
	return EditContext{Store: s, Calendar: calendar.Default()}
}

func get(t *testing.T, s *countingStore, id string) *task.Task {
	t.Helper()
	tk, ok := s.GetTaskByID(id)
	require.True(t, ok)
	return tk
}

func baseTask() *task.Task {
	return &task.Task{
		ID:                "t1",
		Name:              "Pour foundation",
		Start:             "2024-01-01",
		End:               "2024-01-03",
		Duration:          3,
		RemainingDuration: 3,
		ConstraintType:    task.ConstraintASAP,
		SchedulingMode:    task.SchedulingAuto,
	}
}

func TestApplyEdit_UnknownTask(t *testing.T) {
	s := newStore()
	res := NewService().ApplyEdit("missing", FieldName, "x", ctx(s))
	assert.False(t, res.Success)
	assert.Equal(t, MessageError, res.MessageType)
	assert.Zero(t, s.updates)
}

func TestApplyEdit_Duration(t *testing.T) {
	tests := []struct {
		name        string
		value       any
		wantSuccess bool
		wantRecalc  bool
		wantDur     int
	}{
		{"valid string", "5", true, true, 5},
		{"valid json number", float64(7), true, true, 7},
		{"partial input is a no-op", "5.", true, false, 3},
		{"empty input is a no-op", "", true, false, 3},
		{"zero is rejected", "0", false, false, 3},
		{"negative is rejected", -2, false, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(baseTask())
			res := NewService().ApplyEdit("t1", FieldDuration, tt.value, ctx(s))

			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantRecalc, res.NeedsRecalc)
			got := get(t, s, "t1")
			assert.Equal(t, tt.wantDur, got.Duration)
			assert.Equal(t, "2024-01-01", got.Start, "start is never touched by a duration edit")
		})
	}
}

func TestApplyEdit_DurationOnParentRejected(t *testing.T) {
	s := newStore(&task.Task{ID: "p", Duration: 4}, &task.Task{ID: "c", ParentID: "p", Duration: 4})
	res := NewService().ApplyEdit("p", FieldDuration, "2", ctx(s))
	assert.False(t, res.Success)
	assert.Zero(t, s.updates)
}

func TestApplyEdit_StartSetsSNET(t *testing.T) {
	s := newStore(baseTask())
	res := NewService().ApplyEdit("t1", FieldStart, "2024-02-01", ctx(s))

	require.True(t, res.Success)
	assert.True(t, res.NeedsRecalc)
	got := get(t, s, "t1")
	assert.Equal(t, "2024-02-01", got.Start)
	assert.Equal(t, task.ConstraintSNET, got.ConstraintType)
	assert.Equal(t, "2024-02-01", got.ConstraintDate)
	assert.Equal(t, 1, s.updates)
}

func TestApplyEdit_StartOnManualTaskKeepsDuration(t *testing.T) {
	tk := baseTask()
	tk.SchedulingMode = task.SchedulingManual
	s := newStore(tk)
	res := NewService().ApplyEdit("t1", FieldStart, "2024-01-05", ctx(s))

	require.True(t, res.Success)
	got := get(t, s, "t1")
	assert.Equal(t, "2024-01-05", got.Start)
	assert.Equal(t, "2024-01-09", got.End)
}

func TestApplyEdit_WeekendStartOnManualTaskKeepsDuration(t *testing.T) {
	tk := baseTask()
	tk.SchedulingMode = task.SchedulingManual
	s := newStore(tk)
	res := NewService().ApplyEdit("t1", FieldStart, "2024-01-06", ctx(s))

	require.True(t, res.Success)
	got := get(t, s, "t1")
	assert.Equal(t, "2024-01-06", got.Start)
	assert.Equal(t, "2024-01-10", got.End)

	out, err := cpm.Calculate(s.Tasks(), calendar.Default(), s.Snapshot, cpm.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Tasks[0].Duration)
	assert.Equal(t, "2024-01-10", out.Tasks[0].End)
}

func TestApplyEdit_DateValidation(t *testing.T) {
	for _, field := range []string{FieldStart, FieldEnd, FieldActualStart, FieldActualFinish} {
		for _, value := range []string{"2024-13-01", "01/02/2024", "2024-1-1"} {
			t.Run(field+" "+value, func(t *testing.T) {
				s := newStore(baseTask())
				res := NewService().ApplyEdit("t1", field, value, ctx(s))
				assert.False(t, res.Success)
				assert.Equal(t, baseTask(), get(t, s, "t1"))
				assert.Zero(t, s.updates)
			})
		}
	}
}

func TestApplyEdit_DatesOnParentRejected(t *testing.T) {
	for _, field := range []string{FieldStart, FieldEnd, FieldActualStart, FieldActualFinish} {
		t.Run(field, func(t *testing.T) {
			s := newStore(&task.Task{ID: "p"}, &task.Task{ID: "c", ParentID: "p"})
			res := NewService().ApplyEdit("p", field, "2024-01-02", ctx(s))
			assert.False(t, res.Success)
			assert.Equal(t, MessageWarning, res.MessageType)
			assert.Zero(t, s.updates)
		})
	}
}

func TestApplyEdit_EndSetsFNLTAndDuration(t *testing.T) {
	s := newStore(baseTask())
	res := NewService().ApplyEdit("t1", FieldEnd, "2024-01-09", ctx(s))

	require.True(t, res.Success)
	assert.True(t, res.NeedsRecalc)
	got := get(t, s, "t1")
	assert.Equal(t, "2024-01-09", got.End)
	assert.Equal(t, task.ConstraintFNLT, got.ConstraintType)
	assert.Equal(t, "2024-01-09", got.ConstraintDate)
	assert.Equal(t, 7, got.Duration)
}

func TestApplyEdit_EndBeforeStartRejected(t *testing.T) {
	tk := baseTask()
	tk.Start = "2024-01-10"
	s := newStore(tk)
	res := NewService().ApplyEdit("t1", FieldEnd, "2024-01-05", ctx(s))
	assert.False(t, res.Success)
	assert.Zero(t, s.updates)
}

func TestApplyEdit_ActualStart(t *testing.T) {
	s := newStore(baseTask())
	res := NewService().ApplyEdit("t1", FieldActualStart, "2024-01-02", ctx(s))

	require.True(t, res.Success)
	assert.True(t, res.NeedsRecalc)
	got := get(t, s, "t1")
	assert.Equal(t, "2024-01-02", got.ActualStart)
	assert.Equal(t, "2024-01-02", got.Start)
	assert.Equal(t, task.ConstraintSNET, got.ConstraintType)
	assert.Equal(t, "2024-01-02", got.ConstraintDate)
	assert.Equal(t, 3, got.Duration)
}

func TestApplyEdit_ActualStartRecomputesDurationWhenFinished(t *testing.T) {
	tk := baseTask()
	tk.ActualStart, tk.ActualFinish = "2024-01-01", "2024-01-05"
	s := newStore(tk)

	res := NewService().ApplyEdit("t1", FieldActualStart, "2024-01-03", ctx(s))
	require.True(t, res.Success)
	assert.Equal(t, 3, get(t, s, "t1").Duration)

	res = NewService().ApplyEdit("t1", FieldActualStart, "2024-01-08", ctx(s))
	assert.False(t, res.Success)
}

func TestApplyEdit_ClearActualStartKeepsConstraint(t *testing.T) {
	s := newStore(baseTask())
	svc := NewService()
	require.True(t, svc.ApplyEdit("t1", FieldActualStart, "2024-01-02", ctx(s)).Success)

	res := svc.ApplyEdit("t1", FieldActualStart, "", ctx(s))
	require.True(t, res.Success)
	assert.True(t, res.NeedsRecalc)

	got := get(t, s, "t1")
	assert.Empty(t, got.ActualStart)
	assert.Equal(t, task.ConstraintSNET, got.ConstraintType)
	assert.Equal(t, "2024-01-02", got.ConstraintDate)
}

func TestApplyEdit_ActualFinish(t *testing.T) {
	s := newStore(baseTask())
	res := NewService().ApplyEdit("t1", FieldActualFinish, "2024-01-04", ctx(s))

	require.True(t, res.Success)
	assert.True(t, res.NeedsRecalc)
	got := get(t, s, "t1")
	assert.Equal(t, "2024-01-04", got.ActualFinish)
	assert.Equal(t, "2024-01-04", got.End)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 0, got.RemainingDuration)
	assert.Equal(t, 4, got.Duration)
	assert.Equal(t, "2024-01-01", got.ActualStart, "actual start is filled from start")
	assert.Equal(t, task.ConstraintSNET, got.ConstraintType)
	assert.Equal(t, "2024-01-01", got.ConstraintDate)
	assert.Equal(t, 1, s.updates)
}

func TestApplyEdit_ActualFinishUsesActualStart(t *testing.T) {
	tk := baseTask()
	tk.ActualStart = "2024-01-02"
	tk.ConstraintType, tk.ConstraintDate = task.ConstraintSNET, "2024-01-02"
	s := newStore(tk)

	res := NewService().ApplyEdit("t1", FieldActualFinish, "2024-01-02", ctx(s))
	require.True(t, res.Success)
	got := get(t, s, "t1")
	assert.Equal(t, 1, got.Duration)
	assert.Equal(t, "2024-01-02", got.ActualStart)
}

func TestApplyEdit_ActualFinishWithoutStartRejected(t *testing.T) {
	tk := baseTask()
	tk.Start = ""
	s := newStore(tk)
	before := get(t, s, "t1")

	res := NewService().ApplyEdit("t1", FieldActualFinish, "2024-01-04", ctx(s))
	assert.False(t, res.Success)
	assert.Equal(t, MessageWarning, res.MessageType)
	assert.Equal(t, before, get(t, s, "t1"))
	assert.Zero(t, s.updates)
}

func TestApplyEdit_ActualFinishBeforeStartRejected(t *testing.T) {
	s := newStore(baseTask())
	res := NewService().ApplyEdit("t1", FieldActualFinish, "2023-12-29", ctx(s))
	assert.False(t, res.Success)
	assert.Zero(t, s.updates)
}

func TestApplyEdit_ClearActualFinish(t *testing.T) {
	tk := baseTask()
	tk.ActualStart, tk.ActualFinish = "2024-01-01", "2024-01-03"
	tk.Progress, tk.RemainingDuration = 100, 0
	s := newStore(tk)

	res := NewService().ApplyEdit("t1", FieldActualFinish, nil, ctx(s))
	require.True(t, res.Success)
	got := get(t, s, "t1")
	assert.Empty(t, got.ActualFinish)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, 3, got.RemainingDuration)
	assert.Equal(t, "2024-01-01", got.ActualStart)
}

func TestApplyEdit_ConstraintType(t *testing.T) {
	tk := baseTask()
	tk.ConstraintType, tk.ConstraintDate = task.ConstraintSNET, "2024-01-05"

	t.Run("asap clears date", func(t *testing.T) {
		s := newStore(tk)
		res := NewService().ApplyEdit("t1", FieldConstraintType, "asap", ctx(s))
		require.True(t, res.Success)
		assert.True(t, res.NeedsRecalc)
		got := get(t, s, "t1")
		assert.Equal(t, task.ConstraintASAP, got.ConstraintType)
		assert.Empty(t, got.ConstraintDate)
	})
	t.Run("other keeps date", func(t *testing.T) {
		s := newStore(tk)
		res := NewService().ApplyEdit("t1", FieldConstraintType, "FNLT", ctx(s))
		require.True(t, res.Success)
		got := get(t, s, "t1")
		assert.Equal(t, task.ConstraintFNLT, got.ConstraintType)
		assert.Equal(t, "2024-01-05", got.ConstraintDate)
	})
	t.Run("unknown rejected", func(t *testing.T) {
		s := newStore(tk)
		res := NewService().ApplyEdit("t1", FieldConstraintType, "alap", ctx(s))
		assert.False(t, res.Success)
	})
}

func TestApplyEdit_ConstraintDateVerbatim(t *testing.T) {
	s := newStore(baseTask())
	res := NewService().ApplyEdit("t1", FieldConstraintDate, "2024-03-04", ctx(s))
	require.True(t, res.Success)
	assert.True(t, res.NeedsRecalc)
	assert.Equal(t, "2024-03-04", get(t, s, "t1").ConstraintDate)

	res = NewService().ApplyEdit("t1", FieldConstraintDate, nil, ctx(s))
	require.True(t, res.Success)
	assert.Empty(t, get(t, s, "t1").ConstraintDate)
}

func TestApplyEdit_SchedulingMode(t *testing.T) {
	t.Run("manual on parent rejected", func(t *testing.T) {
		s := newStore(&task.Task{ID: "p"}, &task.Task{ID: "c", ParentID: "p"})
		res := NewService().ApplyEdit("p", FieldSchedulingMode, "Manual", ctx(s))
		assert.False(t, res.Success)
		assert.Equal(t, MessageWarning, res.MessageType)
	})
	t.Run("unchanged is a no-op", func(t *testing.T) {
		s := newStore(baseTask())
		res := NewService().ApplyEdit("t1", FieldSchedulingMode, "Auto", ctx(s))
		assert.True(t, res.Success)
		assert.False(t, res.NeedsRecalc)
		assert.Zero(t, s.updates)
	})
	t.Run("auto to manual pins dates", func(t *testing.T) {
		s := newStore(baseTask())
		res := NewService().ApplyEdit("t1", FieldSchedulingMode, "Manual", ctx(s))
		require.True(t, res.Success)
		assert.True(t, res.NeedsRecalc)
		got := get(t, s, "t1")
		assert.Equal(t, task.SchedulingManual, got.SchedulingMode)
		assert.Equal(t, "2024-01-01", got.Start)
		assert.Equal(t, "2024-01-03", got.End)
		assert.Equal(t, task.ConstraintASAP, got.ConstraintType)
	})
	t.Run("manual to auto anchors start", func(t *testing.T) {
		tk := baseTask()
		tk.SchedulingMode = task.SchedulingManual
		tk.Start = "2024-01-08"
		s := newStore(tk)
		res := NewService().ApplyEdit("t1", FieldSchedulingMode, "Auto", ctx(s))
		require.True(t, res.Success)
		got := get(t, s, "t1")
		assert.Equal(t, task.SchedulingAuto, got.SchedulingMode)
		assert.Equal(t, task.ConstraintSNET, got.ConstraintType)
		assert.Equal(t, "2024-01-08", got.ConstraintDate)
	})
	t.Run("unknown rejected", func(t *testing.T) {
		s := newStore(baseTask())
		assert.False(t, NewService().ApplyEdit("t1", FieldSchedulingMode, "Later", ctx(s)).Success)
	})
}

func TestApplyEdit_Progress(t *testing.T) {
	tests := []struct {
		value any
		want  int
	}{
		{"50", 50},
		{float64(120), 100},
		{"-5", 0},
		{"33.6", 34},
	}
	for _, tt := range tests {
		s := newStore(baseTask())
		res := NewService().ApplyEdit("t1", FieldProgress, tt.value, ctx(s))
		require.True(t, res.Success)
		assert.False(t, res.NeedsRecalc)
		assert.True(t, res.NeedsRender)
		assert.Equal(t, tt.want, get(t, s, "t1").Progress)
	}

	s := newStore(baseTask())
	assert.False(t, NewService().ApplyEdit("t1", FieldProgress, "half", ctx(s)).Success)
}

func TestApplyEdit_CosmeticFields(t *testing.T) {
	s := newStore(baseTask())
	svc := NewService()

	res := svc.ApplyEdit("t1", FieldTradePartnerIDs, []any{"tp1", " tp2 ", ""}, ctx(s))
	require.True(t, res.Success)
	assert.False(t, res.NeedsRecalc)
	assert.Equal(t, []string{"tp1", "tp2"}, get(t, s, "t1").TradePartnerIDs)

	res = svc.ApplyEdit("t1", FieldTradePartnerIDs, "a, b", ctx(s))
	require.True(t, res.Success)
	assert.Equal(t, []string{"a", "b"}, get(t, s, "t1").TradePartnerIDs)

	res = svc.ApplyEdit("t1", "wbs", "1.2.3", ctx(s))
	require.True(t, res.Success)
	assert.False(t, res.NeedsRecalc)
	assert.True(t, res.NeedsRender)
	assert.Equal(t, "1.2.3", get(t, s, "t1").Fields["wbs"])

	res = svc.ApplyEdit("t1", FieldName, "Pour slab", ctx(s))
	require.True(t, res.Success)
	assert.Equal(t, "Pour slab", get(t, s, "t1").Name)
}

func TestApplyEdit_StoreFailure(t *testing.T) {
	s := newStore(baseTask())
	s.fail = errors.New("disk full")
	res := NewService().ApplyEdit("t1", FieldStart, "2024-02-01", ctx(s))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "disk full")
}

// Pinning a task and then changing its duration keeps its dates while its
// float still follows the rest of the network.
func TestApplyEdit_ManualThenDurationThenRecalculate(t *testing.T) {
	cal := calendar.Default()
	s := newStore(
		&task.Task{ID: "long", Duration: 5, Start: "2024-01-01", End: "2024-01-05"},
		&task.Task{ID: "m", Duration: 2, Start: "2024-01-01", End: "2024-01-02"},
	)
	svc := NewService()
	require.True(t, svc.ApplyEdit("m", FieldSchedulingMode, "Manual", ctx(s)).Success)
	res := svc.ApplyEdit("m", FieldDuration, "4", ctx(s))
	require.True(t, res.NeedsRecalc)

	out, err := cpm.Calculate(s.Tasks(), cal, s.Snapshot, cpm.Options{})
	require.NoError(t, err)
	for _, tk := range out.Tasks {
		if tk.ID != "m" {
			continue
		}
		assert.Equal(t, "2024-01-01", tk.Start)
		assert.Equal(t, "2024-01-02", tk.End)
		assert.Equal(t, 3, tk.TotalFloat)
		assert.False(t, tk.IsCritical)
	}
}
