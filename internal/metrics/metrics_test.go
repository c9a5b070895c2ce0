package metrics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/rrc-policy/internal/events"
)

type capturePublisher struct {
	episodes []events.EpisodeEvent
	failures []events.FailureEvent
}

func (p *capturePublisher) PublishEpisode(_ context.Context, e events.EpisodeEvent) error {
	p.episodes = append(p.episodes, e)
	return nil
}

func (p *capturePublisher) PublishFailure(_ context.Context, e events.FailureEvent) error {
	p.failures = append(p.failures, e)
	return errors.New("broker down")
}

func TestCollector_ForwardsEvents(t *testing.T) {
	pub := &capturePublisher{}
	c := NewCollector(zerolog.New(io.Discard)).WithPublisher(pub)

	c.Inference("http", 139, time.Millisecond, nil)
	c.Inference("grpc", 97, time.Millisecond, errors.New("bad dim"))
	c.EpisodeReset("runner", 750)

	require.Len(t, pub.failures, 1)
	assert.Equal(t, 97, pub.failures[0].ObservationDim)
	assert.Equal(t, "bad dim", pub.failures[0].Error)

	require.Len(t, pub.episodes, 1)
	assert.Equal(t, 750, pub.episodes[0].Steps)
	assert.Equal(t, "runner", pub.episodes[0].Transport)
}

func TestCollector_NilPublisherKeepsNoop(t *testing.T) {
	c := NewCollector(zerolog.New(io.Discard)).WithPublisher(nil)
	assert.IsType(t, events.NoopPublisher{}, c.publisher)
	c.EpisodeReset("http", 1)
}
