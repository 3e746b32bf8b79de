package pushnotification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/internal/project"
)

type Dispatcher struct {
	eventBus *eventbus.Bus
	projects project.Repository
	sender   *Sender
	bufSize  int
}

func NewDispatcher(eventBus *eventbus.Bus, projects project.Repository, sender *Sender, bufSize int) *Dispatcher {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Dispatcher{
		eventBus: eventBus,
		projects: projects,
		sender:   sender,
		bufSize:  bufSize,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(d.bufSize)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if payload := d.payloadFor(ctx, event); payload != nil {
				d.sender.Send(ctx, event.ProjectID, payload)
			}
		}
	}
}

// payloadFor returns the notification an event deserves, or nil.
func (d *Dispatcher) payloadFor(ctx context.Context, event *eventbus.Event) *NotificationPayload {
	var payload *NotificationPayload
	switch event.Type {
	case eventbus.EventScheduleFailed:
		payload = &NotificationPayload{
			Title:  "Schedule failed",
			Body:   event.Metadata["error"],
			Urgent: true,
		}
	case eventbus.EventScheduleCalculated:
		conflicts, _ := strconv.Atoi(event.Metadata["conflicts"])
		previous, _ := strconv.Atoi(event.Metadata["previous_conflicts"])
		if conflicts <= previous {
			return nil
		}
		payload = &NotificationPayload{
			Title: "New schedule conflicts",
			Body:  fmt.Sprintf("%d tasks now miss their constraints (was %d)", conflicts, previous),
		}
	default:
		return nil
	}

	payload.URL = fmt.Sprintf("/projects/%s/schedule", event.ProjectID)
	payload.Tag = event.ProjectID + ":schedule"
	if p, err := d.projects.Get(ctx, event.ProjectID); err == nil {
		payload.Title = p.Name + ": " + payload.Title
	}
	return payload
}
