package events

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishEpisode(context.Background(), EpisodeEvent{Transport: "http"}))
	assert.NoError(t, p.PublishFailure(context.Background(), FailureEvent{Transport: "grpc"}))
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "rrcpolicy.test", zerolog.New(io.Discard))
	assert.Error(t, err)
}

// Runs against a live server when RRCPOLICY_TEST_NATS_URL is set.
func TestNATSPublisher_RoutesFailures(t *testing.T) {
	url := os.Getenv("RRCPOLICY_TEST_NATS_URL")
	if url == "" {
		t.Skip("RRCPOLICY_TEST_NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	episodes, err := sub.SubscribeSync("rrcpolicy.test")
	require.NoError(t, err)
	failures, err := sub.SubscribeSync("rrcpolicy.test.error")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(url, "rrcpolicy.test", zerolog.New(io.Discard))
	require.NoError(t, err)
	defer pub.Close()

	ctx := context.Background()
	require.NoError(t, pub.PublishEpisode(ctx, EpisodeEvent{Transport: "http", Steps: 750}))
	require.NoError(t, pub.PublishFailure(ctx, FailureEvent{Transport: "grpc", ObservationDim: 97, Error: "bad dim"}))

	msg, err := episodes.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var episode EpisodeEvent
	require.NoError(t, json.Unmarshal(msg.Data, &episode))
	assert.Equal(t, 750, episode.Steps)

	msg, err = failures.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var failure FailureEvent
	require.NoError(t, json.Unmarshal(msg.Data, &failure))
	assert.Equal(t, 97, failure.ObservationDim)
}
