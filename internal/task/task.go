// Package task provides the Task record tracked for every dispatched prompt
// and the Board that holds the current task list and the completed history.
package task

import (
	"errors"
	"slices"
	"time"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/task/id"
)

// Status represents the current state of a Task.
type Status string

const (
	// StatusRunning indicates the prompt was dispatched and has not resolved.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the clip was generated.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates generation failed; Error holds the reason.
	StatusFailed Status = "FAILED"
)

// Progress milestones.
const (
	ProgressStart = 5
	ProgressStep  = 3
	ProgressCap   = 99
	ProgressDone  = 100
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("task: invalid state transition")

var validTransitions = map[Status][]Status{
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Task is the progress record of one generation request.
// Tasks are values; the Board replaces them instead of mutating shared copies.
type Task struct {
	ID     string         `json:"id"`
	Prompt string         `json:"prompt"`
	Mode   generator.Mode `json:"mode"`
	// Lane labels the parallel lane ("1".."n"), "seamless" for chained runs
	// or "" for sequential runs.
	Lane        string    `json:"lane"`
	Index       int       `json:"index"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	ResultURL   string    `json:"result_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// New creates a running task for the prompt at index within lane.
func New(prompt string, mode generator.Mode, lane string, index int) Task {
	return NewWithID(id.Generate(lane, index), prompt, mode, lane, index)
}

// NewWithID creates a running task with the given ID.
func NewWithID(taskID, prompt string, mode generator.Mode, lane string, index int) Task {
	now := time.Now()
	return Task{
		ID:        taskID,
		Prompt:    prompt,
		Mode:      mode,
		Lane:      lane,
		Index:     index,
		Status:    StatusRunning,
		Progress:  ProgressStart,
		Message:   "Generating",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the status, returning ErrInvalidTransition when not allowed.
func (t *Task) TransitionTo(status Status) error {
	if !canTransition(t.Status, status) {
		return ErrInvalidTransition
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	if status == StatusCompleted || status == StatusFailed {
		t.CompletedAt = t.UpdatedAt
	}
	return nil
}

// Advance records a progress message and bumps progress, never reaching 100.
func (t *Task) Advance(msg string) {
	if t.IsTerminal() {
		return
	}
	t.Message = msg
	t.Progress = min(t.Progress+ProgressStep, ProgressCap)
	t.UpdatedAt = time.Now()
}

// Complete marks the task as finished with the result URL.
func (t *Task) Complete(resultURL string) error {
	if err := t.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	t.ResultURL = resultURL
	t.Progress = ProgressDone
	t.Message = "Completed"
	return nil
}

// Fail marks the task as failed with the error message.
func (t *Task) Fail(errMsg string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	t.Error = errMsg
	t.Progress = 0
	t.Message = "Failed"
	return nil
}

// IsTerminal returns true if the task is in a terminal state.
func (t Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
