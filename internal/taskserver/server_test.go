package taskserver_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/internal/project"
	projectrepo "github.com/kazz187/ganttguild/internal/project/repositoryimpl"
	"github.com/kazz187/ganttguild/internal/schedule"
	"github.com/kazz187/ganttguild/internal/task"
	taskrepo "github.com/kazz187/ganttguild/internal/task/repositoryimpl"
	"github.com/kazz187/ganttguild/internal/taskserver"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/storage"
)

const projectID = "p1"

type fakeRecalculator struct{ calls int }

func (f *fakeRecalculator) RecalculateAndWait(context.Context, string, string) (*schedule.Run, error) {
	f.calls++
	return &schedule.Run{ID: "run", Status: schedule.StatusOK}, nil
}

type fixture struct {
	s      *taskserver.Server
	repo   task.Repository
	events <-chan *eventbus.Event
	recalc *fakeRecalculator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemoryStorage()
	projects := projectrepo.NewYAMLRepository(st)
	require.NoError(t, projects.Create(context.Background(), &project.Project{ID: projectID, Name: "Tower", StartDate: "2024-01-01"}))

	bus := eventbus.New()
	_, events := bus.Subscribe(64)
	f := &fixture{repo: taskrepo.NewYAMLRepository(st), events: events, recalc: &fakeRecalculator{}}
	f.s = taskserver.NewServer(f.repo, projects, bus, f.recalc)
	return f
}

func (f *fixture) create(t *testing.T, req *taskserver.CreateTaskRequest) *task.Task {
	t.Helper()
	req.ProjectID = projectID
	res, err := f.s.CreateTask(context.Background(), connect.NewRequest(req))
	require.NoError(t, err)
	return res.Msg.Task
}

func (f *fixture) get(t *testing.T, id string) *task.Task {
	t.Helper()
	tk, err := f.repo.Get(context.Background(), projectID, id)
	require.NoError(t, err)
	return tk
}

func (f *fixture) drain() []*eventbus.Event {
	var out []*eventbus.Event
	for {
		select {
		case ev := <-f.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestServer_CreateTask(t *testing.T) {
	f := setup(t)

	a := f.create(t, &taskserver.CreateTaskRequest{Name: "Excavate"})
	assert.Equal(t, 1, a.Duration)
	assert.Equal(t, task.SchedulingAuto, a.SchedulingMode)
	assert.Equal(t, task.ConstraintASAP, a.ConstraintType)
	assert.Equal(t, "2024-01-01", a.Start)
	assert.Equal(t, "2024-01-01", a.End)
	assert.False(t, a.CreatedAt.IsZero())

	b := f.create(t, &taskserver.CreateTaskRequest{
		Name:         "Pour",
		Duration:     3,
		Dependencies: []task.Dependency{{ID: a.ID}},
	})
	require.Len(t, b.Dependencies, 1)
	assert.Equal(t, task.DependencyFS, b.Dependencies[0].Type)
	assert.Equal(t, "2024-01-03", b.End)

	evs := f.drain()
	require.Len(t, evs, 2)
	assert.Equal(t, eventbus.EventTaskChanged, evs[0].Type)
	assert.Equal(t, projectID, evs[0].ProjectID)
}

func TestServer_CreateTask_ManualParentBecomesAuto(t *testing.T) {
	f := setup(t)
	parent := f.create(t, &taskserver.CreateTaskRequest{Name: "Phase", SchedulingMode: task.SchedulingManual})
	f.create(t, &taskserver.CreateTaskRequest{Name: "Step", ParentID: parent.ID})

	assert.Equal(t, task.SchedulingAuto, f.get(t, parent.ID).SchedulingMode)
}

func TestServer_CreateTask_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  *taskserver.CreateTaskRequest
		code cerr.Code
	}{
		{"missing name", &taskserver.CreateTaskRequest{}, cerr.InvalidArgument},
		{"bad constraint", &taskserver.CreateTaskRequest{Name: "x", ConstraintType: "later"}, cerr.InvalidArgument},
		{"bad start", &taskserver.CreateTaskRequest{Name: "x", Start: "01/02/2024"}, cerr.InvalidArgument},
		{"unknown parent", &taskserver.CreateTaskRequest{Name: "x", ParentID: "nope"}, cerr.NotFound},
		{"unknown predecessor", &taskserver.CreateTaskRequest{Name: "x", Dependencies: []task.Dependency{{ID: "nope"}}}, cerr.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			tt.req.ProjectID = projectID
			_, err := f.s.CreateTask(context.Background(), connect.NewRequest(tt.req))
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, tt.code), err.Error())
		})
	}
}

func TestServer_DeleteTask_Cascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	phase := f.create(t, &taskserver.CreateTaskRequest{Name: "Phase"})
	child := f.create(t, &taskserver.CreateTaskRequest{Name: "Child", ParentID: phase.ID})
	grandchild := f.create(t, &taskserver.CreateTaskRequest{Name: "Grandchild", ParentID: child.ID})
	other := f.create(t, &taskserver.CreateTaskRequest{
		Name:         "Other",
		Dependencies: []task.Dependency{{ID: grandchild.ID}},
	})
	f.drain()

	res, err := f.s.DeleteTask(ctx, connect.NewRequest(&taskserver.DeleteTaskRequest{ProjectID: projectID, ID: phase.ID}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{phase.ID, child.ID, grandchild.ID}, res.Msg.Deleted)
	assert.Equal(t, []string{other.ID}, res.Msg.Updated)

	tasks, err := f.repo.List(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].Dependencies)

	evs := f.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, eventbus.EventTaskDeleted, evs[0].Type)
	assert.Equal(t, "3", evs[0].Metadata["deleted"])
}

func TestServer_MoveTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.create(t, &taskserver.CreateTaskRequest{Name: "A", SchedulingMode: task.SchedulingManual})
	b := f.create(t, &taskserver.CreateTaskRequest{Name: "B", ParentID: a.ID})
	c := f.create(t, &taskserver.CreateTaskRequest{Name: "C", SchedulingMode: task.SchedulingManual})

	move := func(id, parentID string) error {
		_, err := f.s.MoveTask(ctx, connect.NewRequest(&taskserver.MoveTaskRequest{ProjectID: projectID, ID: id, ParentID: parentID}))
		return err
	}

	t.Run("self", func(t *testing.T) {
		assert.True(t, cerr.IsCode(move(a.ID, a.ID), cerr.InvalidArgument))
	})
	t.Run("below own descendant", func(t *testing.T) {
		assert.True(t, cerr.IsCode(move(a.ID, b.ID), cerr.InvalidArgument))
	})
	t.Run("new parent becomes auto", func(t *testing.T) {
		require.NoError(t, move(b.ID, c.ID))
		assert.Equal(t, c.ID, f.get(t, b.ID).ParentID)
		assert.Equal(t, task.SchedulingAuto, f.get(t, c.ID).SchedulingMode)
	})
	t.Run("to root", func(t *testing.T) {
		require.NoError(t, move(b.ID, ""))
		assert.Empty(t, f.get(t, b.ID).ParentID)
	})
}

func TestServer_SetDependencies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.create(t, &taskserver.CreateTaskRequest{Name: "A"})
	b := f.create(t, &taskserver.CreateTaskRequest{Name: "B", Dependencies: []task.Dependency{{ID: a.ID}}})
	parent := f.create(t, &taskserver.CreateTaskRequest{Name: "Parent"})
	child := f.create(t, &taskserver.CreateTaskRequest{Name: "Child", ParentID: parent.ID})

	set := func(id string, deps ...task.Dependency) error {
		_, err := f.s.SetDependencies(ctx, connect.NewRequest(&taskserver.SetDependenciesRequest{
			ProjectID: projectID, ID: id, Dependencies: deps,
		}))
		return err
	}

	tests := []struct {
		name string
		id   string
		deps []task.Dependency
		code cerr.Code
	}{
		{"unknown type", a.ID, []task.Dependency{{ID: b.ID, Type: "XX"}}, cerr.InvalidArgument},
		{"self", a.ID, []task.Dependency{{ID: a.ID}}, cerr.InvalidArgument},
		{"descendant", parent.ID, []task.Dependency{{ID: child.ID}}, cerr.InvalidArgument},
		{"cycle", a.ID, []task.Dependency{{ID: b.ID, Type: task.DependencySS}}, cerr.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := set(tt.id, tt.deps...)
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, tt.code), err.Error())
		})
	}

	t.Run("replaces the list", func(t *testing.T) {
		require.NoError(t, set(b.ID, task.Dependency{ID: a.ID, Type: task.DependencyFF, Lag: 2}))
		deps := f.get(t, b.ID).Dependencies
		require.Len(t, deps, 1)
		assert.Equal(t, task.DependencyFF, deps[0].Type)
		assert.Equal(t, 2, deps[0].Lag)
	})
}

func TestServer_EditTask(t *testing.T) {
	ctx := context.Background()

	t.Run("duration needs a pass", func(t *testing.T) {
		f := setup(t)
		a := f.create(t, &taskserver.CreateTaskRequest{Name: "A"})
		f.drain()

		res, err := f.s.EditTask(ctx, connect.NewRequest(&taskserver.EditTaskRequest{
			ProjectID: projectID, ID: a.ID, Field: "duration", Value: 4,
		}))
		require.NoError(t, err)
		assert.True(t, res.Msg.Result.NeedsRecalc)
		assert.Equal(t, 4, f.get(t, a.ID).Duration)
		assert.Equal(t, 4, f.get(t, a.ID).RemainingDuration)

		evs := f.drain()
		require.Len(t, evs, 1)
		assert.Equal(t, eventbus.EventTaskChanged, evs[0].Type)
		assert.Zero(t, f.recalc.calls)
	})

	t.Run("progress only re-renders", func(t *testing.T) {
		f := setup(t)
		a := f.create(t, &taskserver.CreateTaskRequest{Name: "A"})
		f.drain()

		res, err := f.s.EditTask(ctx, connect.NewRequest(&taskserver.EditTaskRequest{
			ProjectID: projectID, ID: a.ID, Field: "progress", Value: "40",
		}))
		require.NoError(t, err)
		assert.False(t, res.Msg.Result.NeedsRecalc)
		assert.Equal(t, 40, res.Msg.Task.Progress)

		evs := f.drain()
		require.Len(t, evs, 1)
		assert.Equal(t, eventbus.EventTaskUpdated, evs[0].Type)
	})

	t.Run("partial input writes nothing", func(t *testing.T) {
		f := setup(t)
		a := f.create(t, &taskserver.CreateTaskRequest{Name: "A"})
		f.drain()

		res, err := f.s.EditTask(ctx, connect.NewRequest(&taskserver.EditTaskRequest{
			ProjectID: projectID, ID: a.ID, Field: "duration", Value: "1-",
		}))
		require.NoError(t, err)
		assert.True(t, res.Msg.Result.Success)
		assert.True(t, a.UpdatedAt.Equal(f.get(t, a.ID).UpdatedAt))
		assert.Empty(t, f.drain())
	})

	t.Run("rejected on a summary task", func(t *testing.T) {
		f := setup(t)
		parent := f.create(t, &taskserver.CreateTaskRequest{Name: "Phase"})
		f.create(t, &taskserver.CreateTaskRequest{Name: "Step", ParentID: parent.ID})

		_, err := f.s.EditTask(ctx, connect.NewRequest(&taskserver.EditTaskRequest{
			ProjectID: projectID, ID: parent.ID, Field: "duration", Value: 5,
		}))
		require.Error(t, err)
		assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	})

	t.Run("rejected value", func(t *testing.T) {
		f := setup(t)
		a := f.create(t, &taskserver.CreateTaskRequest{Name: "A"})
		_, err := f.s.EditTask(ctx, connect.NewRequest(&taskserver.EditTaskRequest{
			ProjectID: projectID, ID: a.ID, Field: "start", Value: "soon",
		}))
		require.Error(t, err)
		assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

		var e *cerr.Error
		require.ErrorAs(t, err, &e)
		assert.Len(t, e.Details, 1)
	})

	t.Run("wait runs a pass", func(t *testing.T) {
		f := setup(t)
		a := f.create(t, &taskserver.CreateTaskRequest{Name: "A"})
		res, err := f.s.EditTask(ctx, connect.NewRequest(&taskserver.EditTaskRequest{
			ProjectID: projectID, ID: a.ID, Field: "start", Value: "2024-01-08", Wait: true,
		}))
		require.NoError(t, err)
		assert.Equal(t, 1, f.recalc.calls)
		require.NotNil(t, res.Msg.Run)
		assert.Equal(t, task.ConstraintSNET, res.Msg.Task.ConstraintType)
		assert.Equal(t, "2024-01-08", res.Msg.Task.ConstraintDate)
	})
}

func TestServer_ImportTasks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	existing := f.create(t, &taskserver.CreateTaskRequest{Name: "Existing"})
	f.drain()

	req := &taskserver.ImportTasksRequest{
		ProjectID: projectID,
		Tasks: []*task.Task{
			{ID: "1", Name: "Phase", SchedulingMode: task.SchedulingManual},
			{ID: "2", Name: "Dig", ParentID: "1", Duration: 2, Dependencies: []task.Dependency{{ID: existing.ID}}},
			{ID: "3", Name: "Pour", ParentID: "1", Dependencies: []task.Dependency{{ID: "2"}, {ID: "ghost"}}},
		},
	}
	res, err := f.s.ImportTasks(ctx, connect.NewRequest(req))
	require.NoError(t, err)
	require.Len(t, res.Msg.Tasks, 3)
	assert.Equal(t, 1, res.Msg.DroppedReferences)

	phaseID, digID := res.Msg.IDs["1"], res.Msg.IDs["2"]
	assert.NotEqual(t, "1", phaseID)
	pour := f.get(t, res.Msg.IDs["3"])
	assert.Equal(t, phaseID, pour.ParentID)
	assert.Equal(t, []task.Dependency{{ID: digID, Type: task.DependencyFS}}, pour.Dependencies)
	assert.Equal(t, existing.ID, f.get(t, digID).Dependencies[0].ID)
	assert.Equal(t, task.SchedulingAuto, f.get(t, phaseID).SchedulingMode)

	evs := f.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, eventbus.EventTasksImported, evs[0].Type)
	assert.Equal(t, "3", evs[0].Metadata["imported"])

	t.Run("replace", func(t *testing.T) {
		_, err := f.s.ImportTasks(ctx, connect.NewRequest(&taskserver.ImportTasksRequest{
			ProjectID: projectID,
			Replace:   true,
			Tasks:     []*task.Task{{Name: "Only"}},
		}))
		require.NoError(t, err)
		tasks, err := f.repo.List(ctx, projectID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "Only", tasks[0].Name)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := f.s.ImportTasks(ctx, connect.NewRequest(&taskserver.ImportTasksRequest{
			ProjectID: projectID,
			Tasks: []*task.Task{
				{ID: "a", Name: "A", Dependencies: []task.Dependency{{ID: "b"}}},
				{ID: "b", Name: "B", Dependencies: []task.Dependency{{ID: "a"}}},
			},
		}))
		require.Error(t, err)
		assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	})
}
