package task

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/promptstudio/internal/generator"
)

func newTask(taskID string) Task {
	return NewWithID(taskID, "prompt "+taskID, generator.ModeTextToVideo, "", 0)
}

func TestBoard_AddNewestFirst(t *testing.T) {
	b := NewBoard()
	b.Add(newTask("a"))
	b.Add(newTask("b"))
	b.Add(newTask("c"))

	list := b.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[2].ID)
}

func TestBoard_ListIsSnapshot(t *testing.T) {
	b := NewBoard()
	b.Add(newTask("a"))

	before := b.List()
	_, err := b.Update("a", func(tk *Task) error { tk.Advance("Rendering"); return nil })
	require.NoError(t, err)

	assert.Equal(t, ProgressStart, before[0].Progress)
	got, err := b.Get("a")
	require.NoError(t, err)
	assert.Equal(t, ProgressStart+ProgressStep, got.Progress)
}

func TestBoard_Update(t *testing.T) {
	b := NewBoard()
	b.Add(newTask("a"))

	t.Run("not found", func(t *testing.T) {
		_, err := b.Update("missing", func(*Task) error { return nil })
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("rejected update leaves task unchanged", func(t *testing.T) {
		_, err := b.Update("a", func(tk *Task) error {
			tk.Prompt = "changed"
			return ErrInvalidTransition
		})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		got, _ := b.Get("a")
		assert.Equal(t, "prompt a", got.Prompt)
	})

	t.Run("completion is reported to history once", func(t *testing.T) {
		_, err := b.Update("a", func(tk *Task) error { return tk.Complete("url") })
		require.NoError(t, err)
		_, err = b.Update("a", func(tk *Task) error { tk.Prompt = "edited"; return nil })
		require.NoError(t, err)

		hist := b.History()
		require.Len(t, hist, 1)
		assert.Equal(t, "url", hist[0].ResultURL)
	})
}

func TestBoard_FailedTasksSkipHistory(t *testing.T) {
	b := NewBoard()
	b.Add(newTask("a"))

	_, err := b.Update("a", func(tk *Task) error { return tk.Fail("boom") })
	require.NoError(t, err)
	assert.Empty(t, b.History())
}

func TestBoard_HistoryLimit(t *testing.T) {
	b := NewBoard(WithHistoryLimit(2))
	for i := 0; i < 3; i++ {
		taskID := fmt.Sprintf("t%d", i)
		b.Add(newTask(taskID))
		_, err := b.Update(taskID, func(tk *Task) error { return tk.Complete(taskID) })
		require.NoError(t, err)
	}

	hist := b.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "t2", hist[0].ID)
	assert.Equal(t, "t1", hist[1].ID)
}

func TestBoard_EditPrompt(t *testing.T) {
	b := NewBoard()
	b.Add(newTask("a"))

	got, err := b.EditPrompt("a", "  a new take  ")
	require.NoError(t, err)
	assert.Equal(t, "a new take", got.Prompt)

	_, err = b.EditPrompt("a", "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = b.EditPrompt("missing", "x")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestBoard_Delete(t *testing.T) {
	b := NewBoard()
	b.Add(newTask("a"))
	b.Add(newTask("b"))
	_, err := b.Update("a", func(tk *Task) error { return tk.Complete("url") })
	require.NoError(t, err)

	require.NoError(t, b.Delete("a"))
	assert.ErrorIs(t, b.Delete("a"), ErrTaskNotFound)

	list := b.List()
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
	assert.Len(t, b.History(), 1)
}

func TestBoard_ConcurrentUpdates(t *testing.T) {
	b := NewBoard()
	for i := 0; i < 5; i++ {
		b.Add(newTask(fmt.Sprintf("t%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		taskID := fmt.Sprintf("t%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = b.Update(taskID, func(tk *Task) error { tk.Advance("tick"); return nil })
				_ = b.List()
			}
		}()
	}
	wg.Wait()

	for _, tk := range b.List() {
		assert.Equal(t, ProgressStart+10*ProgressStep, tk.Progress, tk.ID)
	}
}
