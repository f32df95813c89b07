package task

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Board errors.
var (
	// ErrTaskNotFound is returned when a task cannot be found by ID.
	ErrTaskNotFound = errors.New("task: not found")
	// ErrEmptyPrompt is returned when a prompt edit would leave the task blank.
	ErrEmptyPrompt = errors.New("task: prompt is empty")
)

const defaultHistoryLimit = 200

// Board holds the task list newest first plus the history of completed tasks.
// Writers replace the whole list, so readers never observe a partial update.
type Board struct {
	mu           sync.Mutex // serialises writers
	tasks        atomic.Pointer[[]Task]
	history      atomic.Pointer[[]Task]
	historyLimit int
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithHistoryLimit caps how many completed tasks are kept in history.
func WithHistoryLimit(n int) BoardOption {
	return func(b *Board) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

// NewBoard creates an empty board.
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{historyLimit: defaultHistoryLimit}
	for _, opt := range opts {
		opt(b)
	}
	empty := []Task{}
	b.tasks.Store(&empty)
	hist := []Task{}
	b.history.Store(&hist)
	return b
}

// Add puts a task at the top of the list.
func (b *Board) Add(t Task) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.tasks.Load()
	next := make([]Task, 0, len(cur)+1)
	next = append(next, t)
	next = append(next, cur...)
	b.tasks.Store(&next)
}

// Update applies fn to a copy of the task and stores the result.
// A task that becomes COMPLETED is also reported to the history.
func (b *Board) Update(taskID string, fn func(*Task) error) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.tasks.Load()
	i := indexOf(cur, taskID)
	if i < 0 {
		return Task{}, ErrTaskNotFound
	}

	updated := cur[i]
	wasTerminal := updated.IsTerminal()
	if err := fn(&updated); err != nil {
		return cur[i], err
	}

	next := make([]Task, len(cur))
	copy(next, cur)
	next[i] = updated
	b.tasks.Store(&next)

	if !wasTerminal && updated.Status == StatusCompleted {
		b.record(updated)
	}
	return updated, nil
}

// EditPrompt replaces the prompt text of a task.
func (b *Board) EditPrompt(taskID, prompt string) (Task, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Task{}, ErrEmptyPrompt
	}
	return b.Update(taskID, func(t *Task) error {
		t.Prompt = prompt
		t.UpdatedAt = time.Now()
		return nil
	})
}

// Delete removes a task from the list. History is not affected.
func (b *Board) Delete(taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.tasks.Load()
	i := indexOf(cur, taskID)
	if i < 0 {
		return ErrTaskNotFound
	}

	next := make([]Task, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	b.tasks.Store(&next)
	return nil
}

// Get returns the task with the given ID.
func (b *Board) Get(taskID string) (Task, error) {
	cur := *b.tasks.Load()
	if i := indexOf(cur, taskID); i >= 0 {
		return cur[i], nil
	}
	return Task{}, ErrTaskNotFound
}

// List returns the tasks newest first.
func (b *Board) List() []Task {
	cur := *b.tasks.Load()
	out := make([]Task, len(cur))
	copy(out, cur)
	return out
}

// History returns completed tasks, most recent first.
func (b *Board) History() []Task {
	cur := *b.history.Load()
	out := make([]Task, len(cur))
	copy(out, cur)
	return out
}

// record must be called with mu held.
func (b *Board) record(t Task) {
	cur := *b.history.Load()
	n := min(len(cur)+1, b.historyLimit)
	next := make([]Task, 0, n)
	next = append(next, t)
	next = append(next, cur[:n-1]...)
	b.history.Store(&next)
}

func indexOf(tasks []Task, taskID string) int {
	for i := range tasks {
		if tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}
