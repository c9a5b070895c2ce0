package events

import (
	"context"
	"time"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishEpisode(ctx context.Context, payload EpisodeEvent) error
	PublishFailure(ctx context.Context, payload FailureEvent) error
}

// EpisodeEvent is emitted when an episode ends with a reset.
type EpisodeEvent struct {
	Transport string    `json:"transport"`
	Steps     int       `json:"steps"`
	At        time.Time `json:"at"`
}

// FailureEvent is emitted when action selection fails.
type FailureEvent struct {
	Transport      string    `json:"transport"`
	ObservationDim int       `json:"observation_dim"`
	Error          string    `json:"error"`
	At             time.Time `json:"at"`
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// PublishEpisode satisfies Publisher.
func (NoopPublisher) PublishEpisode(context.Context, EpisodeEvent) error { return nil }

// PublishFailure satisfies Publisher.
func (NoopPublisher) PublishFailure(context.Context, FailureEvent) error { return nil }
