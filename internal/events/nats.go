package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher implements Publisher using NATS. Episode events go to the
// subject, failures to subject + ".error".
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher creates a new NATS-backed publisher
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("rrc-policy"))
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "events").Logger(),
	}, nil
}

// Close drains pending messages and closes the NATS connection
func (n *NATSPublisher) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

// PublishEpisode publishes episode events to NATS
func (n *NATSPublisher) PublishEpisode(ctx context.Context, event EpisodeEvent) error {
	if err := n.publish(n.subject, event); err != nil {
		return err
	}

	n.logger.Debug().
		Str("transport", event.Transport).
		Int("steps", event.Steps).
		Str("subject", n.subject).
		Msg("Published episode event")
	return nil
}

// PublishFailure publishes action selection failures to NATS
func (n *NATSPublisher) PublishFailure(ctx context.Context, event FailureEvent) error {
	return n.publish(n.subject+".error", event)
}

func (n *NATSPublisher) publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return err
	}
	return nil
}
