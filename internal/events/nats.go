package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "studio"

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes events as JSON.
// Subjects: <prefix>.task.<task id> for task events,
// <prefix>.run.<run id> for run events and <prefix>.auth for credential requests.
type NATSPublisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
}

// Connect dials the NATS server.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("promptstudio"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	return nc, nil
}

// NewNATSPublisher creates a publisher on an open connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return newNATSPublisher(nc)
}

func newNATSPublisher(nc conn) *NATSPublisher {
	return &NATSPublisher{
		nc:     nc,
		prefix: defaultSubjectPrefix,
		logger: slog.Default().With("component", "nats_publisher"),
	}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(e Event) string {
	switch {
	case e.Kind == KindCredentialRequired:
		return p.prefix + ".auth"
	case e.Task != nil:
		return fmt.Sprintf("%s.task.%s", p.prefix, e.Task.ID)
	default:
		return fmt.Sprintf("%s.run.%s", p.prefix, e.RunID)
	}
}

// Publish sends the event.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", e.Kind, err)
	}

	subject := p.Subject(e)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("subject", subject),
		slog.String("kind", string(e.Kind)),
	)
	return nil
}

// Verify interface implementation
var _ Publisher = (*NATSPublisher)(nil)
