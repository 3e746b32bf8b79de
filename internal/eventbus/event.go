package eventbus

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	// TaskChanged is published for edits that affect dates, duration,
	// dependencies or hierarchy. It is what triggers recalculation.
	EventTaskChanged EventType = "task.changed"
	// TaskUpdated is published for render only edits such as name or progress.
	EventTaskUpdated        EventType = "task.updated"
	EventTaskDeleted        EventType = "task.deleted"
	EventTasksImported      EventType = "tasks.imported"
	EventCalendarChanged    EventType = "project.calendar_changed"
	EventProjectChanged     EventType = "project.changed"
	EventScheduleCalculated EventType = "schedule.calculated"
	EventScheduleFailed     EventType = "schedule.failed"
)

// TriggersRecalc reports whether subscribers should schedule a pass.
func (t EventType) TriggersRecalc() bool {
	switch t {
	case EventTaskChanged, EventTaskDeleted, EventTasksImported, EventCalendarChanged, EventProjectChanged:
		return true
	}
	return false
}

type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	ProjectID  string            `json:"projectId"`
	ResourceID string            `json:"resourceId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func NewEvent(eventType EventType, projectID, resourceID string, metadata map[string]string) *Event {
	return &Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		ProjectID:  projectID,
		ResourceID: resourceID,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
}
