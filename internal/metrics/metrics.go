package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/rrc-policy/internal/events"
)

// Collector emits policy metrics as structured log events and forwards
// episode boundaries and failures to an events.Publisher
type Collector struct {
	logger    zerolog.Logger
	publisher events.Publisher
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:    logger.With().Str("component", "metrics").Logger(),
		publisher: events.NoopPublisher{},
	}
}

// WithPublisher sets the event sink and returns c.
func (c *Collector) WithPublisher(p events.Publisher) *Collector {
	if p != nil {
		c.publisher = p
	}
	return c
}

// Track a single forward pass
func (c *Collector) Inference(transport string, observationDim int, latency time.Duration, err error) {
	if err != nil {
		c.logger.Warn().Err(err).
			Str("metric", "inference").
			Str("transport", transport).
			Int("observation_dim", observationDim).
			Dur("latency", latency).
			Msg("Inference metric")

		c.publish(func(ctx context.Context) error {
			return c.publisher.PublishFailure(ctx, events.FailureEvent{
				Transport:      transport,
				ObservationDim: observationDim,
				Error:          err.Error(),
				At:             time.Now().UTC(),
			})
		})
		return
	}

	c.logger.Debug().
		Str("metric", "inference").
		Str("transport", transport).
		Int("observation_dim", observationDim).
		Dur("latency", latency).
		Msg("Inference metric")
}

// Track API request metrics
func (c *Collector) APIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "api_request").
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("API request metric")
}

// Track episode boundaries
func (c *Collector) EpisodeReset(transport string, steps int) {
	c.logger.Info().
		Str("metric", "episode_reset").
		Str("transport", transport).
		Int("previous_steps", steps).
		Msg("Episode reset metric")

	c.publish(func(ctx context.Context) error {
		return c.publisher.PublishEpisode(ctx, events.EpisodeEvent{
			Transport: transport,
			Steps:     steps,
			At:        time.Now().UTC(),
		})
	})
}

func (c *Collector) publish(send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := send(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish event")
	}
}
