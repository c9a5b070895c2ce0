package policy

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/rrc-policy/internal/recorder"
)

// Recording wraps a Policy and logs every step to a recorder backend.
// Steps are buffered and written in batches; a failed write is logged and
// never fails the control step.
type Recording struct {
	Policy
	backend   recorder.Backend
	logger    zerolog.Logger
	batchSize int

	episodeID string
	step      uint32
	buffer    []*recorder.Step
}

// NewRecording wraps p. batchSize <= 1 writes every step immediately.
func NewRecording(p Policy, backend recorder.Backend, batchSize int, logger zerolog.Logger) *Recording {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Recording{
		Policy:    p,
		backend:   backend,
		logger:    logger.With().Str("component", "recorder").Logger(),
		batchSize: batchSize,
		buffer:    make([]*recorder.Step, 0, batchSize),
	}
}

// EpisodeID returns the identifier of the current episode.
func (r *Recording) EpisodeID() string {
	return r.episodeID
}

// Reset starts a new episode.
func (r *Recording) Reset() {
	r.Policy.Reset()
	r.StartEpisode("")
}

// StartEpisode begins a new episode under id, generating one when empty,
// without resetting the wrapped policy.
func (r *Recording) StartEpisode(id string) {
	if id == "" {
		id = uuid.New().String()
	}
	r.episodeID = id
	r.step = 0
}

// GetAction implements Policy.
func (r *Recording) GetAction(observation []float64) ([]float64, error) {
	action, err := r.Policy.GetAction(observation)
	if err != nil {
		return nil, err
	}
	if r.episodeID == "" {
		r.StartEpisode("")
	}

	r.buffer = append(r.buffer, &recorder.Step{
		EpisodeID:   r.episodeID,
		StepNumber:  r.step,
		Observation: append([]float64(nil), observation...),
		Action:      append([]float64(nil), action...),
	})
	r.step++

	if len(r.buffer) >= r.batchSize {
		if err := r.Flush(context.Background()); err != nil {
			r.logger.Error().Err(err).Str("episode_id", r.episodeID).Msg("Failed to record steps")
		}
	}
	return action, nil
}

// Flush writes any buffered steps.
func (r *Recording) Flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}
	r.logger.Debug().Int("steps", len(r.buffer)).Msg("Flushing steps to recorder")

	_, err := r.backend.RecordBatch(ctx, r.buffer)
	// drop the batch either way so a broken backend cannot grow the buffer
	r.buffer = r.buffer[:0]
	return err
}
