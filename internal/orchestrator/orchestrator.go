package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kazz187/ganttguild/internal/eventbus"
)

// Orchestrator turns change events into recalculation requests.
type Orchestrator struct {
	eventBus *eventbus.Bus
	recalc   *Recalculator
	debounce time.Duration
	bufSize  int

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(eventBus *eventbus.Bus, recalc *Recalculator, debounce time.Duration, bufSize int) *Orchestrator {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Orchestrator{
		eventBus: eventBus,
		recalc:   recalc,
		debounce: debounce,
		bufSize:  bufSize,
		timers:   make(map[string]*time.Timer),
	}
}

// Start subscribes to the event bus and requests passes for schedule
// affecting events. It blocks until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	// Lossless: a dropped change event would leave the schedule stale.
	subID, ch := o.eventBus.SubscribeLossless(o.bufSize)
	defer o.eventBus.Unsubscribe(subID)
	defer o.stopTimers()

	slog.Info("orchestrator started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("orchestrator stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.ProjectID == "" || !event.Type.TriggersRecalc() {
				continue
			}
			o.schedule(event.ProjectID, string(event.Type))
		}
	}
}

// schedule requests a pass once events for the project stop arriving for the
// debounce window.
func (o *Orchestrator) schedule(projectID, trigger string) {
	if o.debounce <= 0 {
		o.recalc.Request(projectID, trigger)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[projectID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		self := timer
		o.mu.Unlock()
		o.fire(projectID, trigger, self)
	})
	o.timers[projectID] = timer
}

// fire runs when a debounce timer expires. A timer that was replaced after
// it fired must not remove its successor.
func (o *Orchestrator) fire(projectID, trigger string, timer *time.Timer) {
	o.mu.Lock()
	if o.timers[projectID] == timer {
		delete(o.timers, projectID)
	}
	o.mu.Unlock()
	o.recalc.Request(projectID, trigger)
}

func (o *Orchestrator) stopTimers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
}
