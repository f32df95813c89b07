package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the log instead of a broker.
// Used when NATS is not configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "events")}
}

// Publish logs the event at debug level.
func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	attrs := []any{slog.String("kind", string(e.Kind))}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Task != nil {
		attrs = append(attrs,
			slog.String("task_id", e.Task.ID),
			slog.Int("progress", e.Task.Progress),
		)
	}
	p.logger.DebugContext(ctx, "event", attrs...)
	return nil
}

// Verify interface implementation
var _ Publisher = (*LogPublisher)(nil)
