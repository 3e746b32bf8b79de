package scheduling

import (
	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/task"
)

type MessageType string

const (
	MessageSuccess MessageType = "success"
	MessageInfo    MessageType = "info"
	MessageWarning MessageType = "warning"
	MessageError   MessageType = "error"
)

// Result tells the caller what an edit owes: a full recalculation, a plain
// re-render, or nothing. Message and MessageType are advisory.
type Result struct {
	Success     bool        `json:"success"`
	NeedsRecalc bool        `json:"needsRecalc"`
	NeedsRender bool        `json:"needsRender"`
	Message     string      `json:"message,omitempty"`
	MessageType MessageType `json:"messageType,omitempty"`
}

// Store is the task store an edit reads from and commits to.
type Store interface {
	GetTaskByID(id string) (*task.Task, bool)
	UpdateTask(id string, patch task.Patch) error
	IsParent(id string) bool
}

type EditContext struct {
	Store    Store
	Calendar *calendar.Calendar
}

func recalc() Result {
	return Result{Success: true, NeedsRecalc: true, NeedsRender: true}
}

func render() Result {
	return Result{Success: true, NeedsRender: true}
}

func noop() Result {
	return Result{Success: true}
}

func rejected(msgType MessageType, msg string) Result {
	return Result{Success: false, Message: msg, MessageType: msgType}
}

func (r Result) withMessage(msgType MessageType, msg string) Result {
	r.Message, r.MessageType = msg, msgType
	return r
}
