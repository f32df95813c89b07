package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/task"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSPublisher_Subjects(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn)
	ctx := context.Background()

	tk := task.NewWithID("vpro-1-1-0-abc", "prompt", generator.ModeTextToVideo, "1", 0)
	require.NoError(t, p.Publish(ctx, NewTaskEvent(KindTaskCreated, "run-1", tk)))
	require.NoError(t, p.Publish(ctx, NewRunEvent(KindRunFinished, "run-1", "done")))
	require.NoError(t, p.Publish(ctx, NewTaskEvent(KindCredentialRequired, "run-1", tk)))

	assert.Equal(t, []string{"studio.task.vpro-1-1-0-abc", "studio.run.run-1", "studio.auth"}, conn.subjects)

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, KindTaskCreated, decoded.Kind)
	require.NotNil(t, decoded.Task)
	assert.Equal(t, tk.ID, decoded.Task.ID)
	assert.Equal(t, task.ProgressStart, decoded.Task.Progress)
}

func TestNATSPublisher_Error(t *testing.T) {
	p := newNATSPublisher(&recordingConn{err: errors.New("nats: connection closed")})
	err := p.Publish(context.Background(), NewRunEvent(KindRunStarted, "r", ""))
	assert.ErrorContains(t, err, "studio.run.r")
}

func TestNewTaskEvent_CopiesTask(t *testing.T) {
	tk := task.NewWithID("id", "prompt", generator.ModeTextToVideo, "", 0)
	e := NewTaskEvent(KindTaskProgress, "r", tk)
	tk.Progress = 50
	assert.Equal(t, task.ProgressStart, e.Task.Progress)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	tk := task.NewWithID("id-1", "prompt", generator.ModeTextToVideo, "", 0)
	require.NoError(t, p.Publish(context.Background(), NewTaskEvent(KindTaskCompleted, "r", tk)))
	assert.Contains(t, buf.String(), "kind=task.completed")
	assert.Contains(t, buf.String(), "task_id=id-1")
}
