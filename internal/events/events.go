// Package events publishes task lifecycle events so other processes can
// follow a run without polling the HTTP API.
package events

import (
	"context"
	"time"

	"github.com/maauso/promptstudio/internal/task"
)

// Kind identifies an event.
type Kind string

// Event kinds.
const (
	KindTaskCreated        Kind = "task.created"
	KindTaskProgress       Kind = "task.progress"
	KindTaskCompleted      Kind = "task.completed"
	KindTaskFailed         Kind = "task.failed"
	KindCredentialRequired Kind = "credential.required"
	KindRunStarted         Kind = "run.started"
	KindRunFinished        Kind = "run.finished"
	// KindFrameDrawn reports one key frame of an image batch. RunID carries
	// the batch ID and Message the prompt line.
	KindFrameDrawn Kind = "frame.drawn"
)

// Event is a single lifecycle notification.
type Event struct {
	Kind      Kind       `json:"kind"`
	RunID     string     `json:"run_id,omitempty"`
	Task      *task.Task `json:"task,omitempty"`
	Message   string     `json:"message,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// NewTaskEvent builds an event carrying a copy of t.
func NewTaskEvent(kind Kind, runID string, t task.Task) Event {
	return Event{Kind: kind, RunID: runID, Task: &t, Message: t.Message, Timestamp: time.Now().Unix()}
}

// NewRunEvent builds an event about a whole run.
func NewRunEvent(kind Kind, runID, message string) Event {
	return Event{Kind: kind, RunID: runID, Message: message, Timestamp: time.Now().Unix()}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
