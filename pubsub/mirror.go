package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/semblog/errors"
)

// DefaultSubjectPrefix is the NATS subject root for mirrored events
const DefaultSubjectPrefix = "semblog.events"

// Publisher sends raw payloads to a subject. natsclient.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSMirror copies events onto NATS subjects such as
// "semblog.events.comments.<postId>" and "semblog.events.posts".
type NATSMirror struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger
}

// NewNATSMirror creates a mirror publishing below prefix
func NewNATSMirror(publisher Publisher, prefix string, logger *slog.Logger) *NATSMirror {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSMirror{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger.With("component", "nats-mirror"),
	}
}

// envelope is the wire form of a mirrored event
type envelope struct {
	Topic string `json:"topic"`
	Event
}

// Mirror encodes ev as JSON and publishes it on the topic's subject
func (m *NATSMirror) Mirror(ctx context.Context, ev Event) error {
	data, err := json.Marshal(envelope{Topic: ev.Topic.String(), Event: ev})
	if err != nil {
		return errors.WrapInvalid(err, "NATSMirror", "Mirror", "encode event")
	}

	subject := ev.Topic.Subject(m.prefix)
	if err := m.publisher.Publish(ctx, subject, data); err != nil {
		return errors.Wrap(err, "NATSMirror", "Mirror", "publish to "+subject)
	}
	m.logger.Debug("Event mirrored", "subject", subject, "sequence", ev.Sequence)
	return nil
}
