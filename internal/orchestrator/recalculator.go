// Package orchestrator keeps every project's computed schedule current. It
// runs at most one scheduler pass per project and coalesces requests that
// arrive while a pass is running into a single follow-up pass.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/ganttguild/internal/cpm"
	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/internal/project"
	"github.com/kazz187/ganttguild/internal/rollup"
	"github.com/kazz187/ganttguild/internal/schedule"
	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/clog"
	"github.com/kazz187/ganttguild/pkg/panicerr"
)

const (
	// TriggerRetry marks the pass requested because tasks changed under the
	// previous one.
	TriggerRetry = "retry"

	defaultKeepRuns = 50
)

type state int

const (
	stateIdle state = iota
	stateRecalculating
)

type projectState struct {
	state   state
	pending bool
	trigger string
	// started and finished count passes; a waiter needs finished to reach
	// the number of the first pass that began after its request.
	started  uint64
	finished uint64
	lastRun  *schedule.Run
}

type Recalculator struct {
	tasks    task.Repository
	projects project.Repository
	runs     schedule.Repository
	bus      *eventbus.Bus
	now      func() time.Time
	keepRuns int

	// passTimeout bounds the repository I/O of one pass; zero means none.
	passTimeout time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	states map[string]*projectState
	wg     conc.WaitGroup
}

var _ schedule.Recalculator = (*Recalculator)(nil)

type RecalculatorOption func(*Recalculator)

// WithPassTimeout puts a deadline on the storage calls of every pass. The
// computation itself is never interrupted; a pass whose reads or writes time
// out is recorded as failed.
func WithPassTimeout(d time.Duration) RecalculatorOption {
	return func(r *Recalculator) {
		r.passTimeout = d
	}
}

func NewRecalculator(tasks task.Repository, projects project.Repository, runs schedule.Repository, bus *eventbus.Bus, opts ...RecalculatorOption) *Recalculator {
	r := &Recalculator{
		tasks:    tasks,
		projects: projects,
		runs:     runs,
		bus:      bus,
		now:      time.Now,
		keepRuns: defaultKeepRuns,
		states:   make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Recalculator) stateOf(projectID string) *projectState {
	ps, ok := r.states[projectID]
	if !ok {
		ps = &projectState{}
		r.states[projectID] = ps
	}
	return ps
}

// request starts a pass or marks one pending and returns the number of the
// pass that will serve it. r.mu must be held.
func (r *Recalculator) request(projectID, trigger string) uint64 {
	ps := r.stateOf(projectID)
	if ps.state == stateRecalculating {
		if !ps.pending {
			ps.pending = true
			ps.trigger = trigger
		}
		return ps.started + 1
	}
	ps.state = stateRecalculating
	ps.started++
	r.wg.Go(func() { r.loop(projectID, trigger) })
	return ps.started
}

// Request schedules a pass without waiting for it.
func (r *Recalculator) Request(projectID, trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.request(projectID, trigger)
}

// RecalculateAndWait blocks until a pass that started after the call has
// finished and returns that pass's run.
func (r *Recalculator) RecalculateAndWait(ctx context.Context, projectID, trigger string) (*schedule.Run, error) {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cond.Broadcast()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.request(projectID, trigger)
	ps := r.states[projectID]
	for ps.finished < target {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.cond.Wait()
	}
	return ps.lastRun, nil
}

func (r *Recalculator) loop(projectID, trigger string) {
	for {
		run := r.pass(projectID, trigger)

		r.mu.Lock()
		ps := r.states[projectID]
		ps.finished = ps.started
		ps.lastRun = run
		if run.Skipped > 0 && !ps.pending {
			ps.pending, ps.trigger = true, TriggerRetry
		}
		if ps.pending {
			trigger = ps.trigger
			ps.pending, ps.trigger = false, ""
			ps.started++
			r.cond.Broadcast()
			r.mu.Unlock()
			continue
		}
		ps.state = stateIdle
		r.cond.Broadcast()
		r.mu.Unlock()
		return
	}
}

// Wait blocks until no pass is running.
func (r *Recalculator) Wait() {
	r.wg.Wait()
}

func (r *Recalculator) pass(projectID, trigger string) *schedule.Run {
	ctx := clog.ContextWithSlog(context.Background())
	if r.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.passTimeout)
		defer cancel()
	}
	clog.AddAttributes(ctx, map[string]any{"project_id": projectID, "trigger": trigger})

	started := r.now()
	run := &schedule.Run{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		Trigger:   trigger,
		StartedAt: started,
	}
	var prevConflicts int
	if prev, err := r.runs.LatestOK(ctx, projectID); err == nil {
		prevConflicts = prev.Stats.ConflictCount
	}

	err := panicerr.SafeContext(func(ctx context.Context) error {
		return r.calculate(ctx, run)
	})(ctx)
	run.Elapsed = time.Since(started)

	if err != nil {
		run.Status = schedule.StatusFailed
		run.Error = err.Error()
		var cycle *cpm.CycleError
		if errors.As(err, &cycle) {
			run.CycleKind, run.CyclePath = cycle.Kind, cycle.Path
		}
		if cerr.IsCode(err, cerr.NotFound) {
			// The project is gone; there is nothing to record.
			slog.InfoContext(ctx, "skipped pass for deleted project")
			return run
		}
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "schedule pass failed", "elapsed", run.Elapsed)
	} else {
		run.Status = schedule.StatusOK
		for _, d := range run.Stats.DroppedDependencies {
			slog.WarnContext(ctx, "dropped dependency",
				"task_id", d.TaskID, "predecessor_id", d.PredecessorID, "reason", d.Reason)
		}
		slog.InfoContext(ctx, "schedule recalculated",
			"elapsed", run.Elapsed,
			"tasks", run.Stats.TaskCount,
			"critical", run.Stats.CriticalCount,
			"conflicts", run.Stats.ConflictCount,
			"skipped", run.Skipped,
		)
	}

	r.record(ctx, run)
	r.publish(run, prevConflicts)
	return run
}

func (r *Recalculator) calculate(ctx context.Context, run *schedule.Run) error {
	p, err := r.projects.Get(ctx, run.ProjectID)
	if err != nil {
		return err
	}
	tasks, err := r.tasks.List(ctx, run.ProjectID)
	if err != nil {
		return err
	}

	cal := p.WorkCalendar()
	snap := task.NewSnapshot(tasks)
	res, err := cpm.Calculate(tasks, cal, snap, p.ScheduleOptions(r.now()))
	if err != nil {
		return err
	}
	run.RolledUp = rollup.Apply(res.Tasks, cal, snap)
	run.Stats = res.Stats
	run.Schedules = res.Schedules

	skipped, err := r.tasks.SaveComputed(ctx, run.ProjectID, res.Tasks)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	run.Skipped = skipped
	return nil
}

func (r *Recalculator) record(ctx context.Context, run *schedule.Run) {
	if err := r.runs.Create(ctx, run); err != nil {
		slog.ErrorContext(ctx, "failed to record schedule run", clog.ErrorAttributeKey, err)
		return
	}
	if err := r.runs.Prune(ctx, run.ProjectID, r.keepRuns); err != nil {
		slog.WarnContext(ctx, "failed to prune schedule runs", clog.ErrorAttributeKey, err)
	}
}

// publish announces the outcome. Computed task writes never publish change
// events, so this cannot trigger another pass.
func (r *Recalculator) publish(run *schedule.Run, prevConflicts int) {
	metadata := map[string]string{
		"run_id":             run.ID,
		"trigger":            run.Trigger,
		"conflicts":          strconv.Itoa(run.Stats.ConflictCount),
		"previous_conflicts": strconv.Itoa(prevConflicts),
		"critical":           strconv.Itoa(run.Stats.CriticalCount),
	}
	eventType := eventbus.EventScheduleCalculated
	if !run.OK() {
		eventType = eventbus.EventScheduleFailed
		metadata["error"] = run.Error
	}
	r.bus.PublishNew(eventType, run.ProjectID, run.ID, metadata)
}
