// Package runner drives a policy over a recorded observation stream, one
// JSON line in and one JSON line out per control step.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/rrc-policy/internal/config"
	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/policy"
)

const maxLineBytes = 1 << 20

// Input is one observation line. A bare JSON array decodes with an empty
// Episode.
type Input struct {
	Episode     string    `json:"episode,omitempty"`
	Observation []float64 `json:"observation"`
}

// Output is one action line.
type Output struct {
	Episode string    `json:"episode,omitempty"`
	Step    int       `json:"step"`
	Action  []float64 `json:"action"`
}

// episodeStarter is implemented by policies that tag their steps with an
// episode, such as policy.Recording.
type episodeStarter interface {
	StartEpisode(id string)
}

type flusher interface {
	Flush(ctx context.Context) error
}

// Runner feeds observations to a policy and writes its actions.
type Runner struct {
	cfg     config.RunnerConfig
	policy  policy.Policy
	metrics *metrics.Collector
	logger  zerolog.Logger

	// Episode tracking
	episodeCount int
	episodeID    string
	label        string // episode field of the last input line
	step         int
}

// New creates a runner. collector may be nil.
func New(cfg config.RunnerConfig, p policy.Policy, collector *metrics.Collector, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		policy:  p,
		metrics: collector,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Episodes returns the number of episodes started so far.
func (r *Runner) Episodes() int {
	return r.episodeCount
}

// Run reads observation lines from in until EOF, MaxEpisodes is reached or
// ctx is cancelled. Buffered recorder steps are flushed before returning.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (err error) {
	r.logger.Info().
		Int("episode_length", r.cfg.EpisodeLength).
		Int("max_episodes", r.cfg.MaxEpisodes).
		Msg("Runner starting")

	defer func() {
		if f, ok := r.policy.(flusher); ok {
			if ferr := f.Flush(context.Background()); ferr != nil {
				r.logger.Error().Err(ferr).Msg("Failed to flush recorder on close")
				if err == nil {
					err = ferr
				}
			}
		}
	}()

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(in, done)
	enc := json.NewEncoder(out)

	line := 0
	for {
		var text []byte
		var ok bool
		select {
		case <-ctx.Done():
		case text, ok = <-lines:
		}
		if err := ctx.Err(); err != nil {
			r.logger.Info().Msg("Context cancelled, stopping runner")
			return err
		}
		if !ok {
			break
		}
		line++

		raw := bytes.TrimSpace(text)
		if len(raw) == 0 {
			continue
		}
		input, err := decodeLine(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		if r.needsReset(input.Episode) {
			if r.cfg.MaxEpisodes > 0 && r.episodeCount >= r.cfg.MaxEpisodes {
				r.logger.Info().Int("max_episodes", r.cfg.MaxEpisodes).Msg("Reached maximum episodes, stopping")
				return nil
			}
			r.startEpisode(input.Episode)
		}

		start := time.Now()
		action, err := r.policy.GetAction(input.Observation)
		if r.metrics != nil {
			r.metrics.Inference("runner", len(input.Observation), time.Since(start), err)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		if err := enc.Encode(Output{Episode: r.episodeID, Step: r.step, Action: action}); err != nil {
			return fmt.Errorf("write action: %w", err)
		}
		r.step++
	}
	if err := <-readErr; err != nil {
		return fmt.Errorf("read observations: %w", err)
	}

	r.logger.Info().Int("episodes", r.episodeCount).Msg("Runner finished")
	return nil
}

func (r *Runner) needsReset(episode string) bool {
	switch {
	case r.episodeCount == 0:
		return true
	case episode != "" && episode != r.label:
		return true
	case r.cfg.EpisodeLength > 0 && r.step >= r.cfg.EpisodeLength:
		return true
	}
	return false
}

func (r *Runner) startEpisode(episode string) {
	if r.episodeCount > 0 && r.metrics != nil {
		r.metrics.EpisodeReset("runner", r.step)
	}
	r.policy.Reset()

	continued := episode != "" && episode == r.label
	r.episodeCount++
	r.step = 0
	r.label = episode
	switch {
	case episode == "":
		r.episodeID = fmt.Sprintf("ep-%d", r.episodeCount)
	case continued:
		// episode_length split a labelled episode
		r.episodeID = fmt.Sprintf("%s-%d", episode, r.episodeCount)
	default:
		r.episodeID = episode
	}
	if s, ok := r.policy.(episodeStarter); ok {
		s.StartEpisode(r.episodeID)
	}

	if r.episodeCount%10 == 0 {
		r.logger.Info().Int("episodes", r.episodeCount).Msg("Episode progress")
	}
}

// readLines scans in on its own goroutine. lines is closed at EOF, after which readErr yields the scan
// error. The goroutine exits early once done is closed, though a read that is
// already blocked only returns when in produces data or is closed.
func readLines(in io.Reader, done <-chan struct{}) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			text := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- text:
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}

func decodeLine(raw []byte) (Input, error) {
	var input Input
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &input.Observation); err != nil {
			return input, fmt.Errorf("decode observation: %w", err)
		}
		return input, nil
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return input, fmt.Errorf("decode observation: %w", err)
	}
	if input.Observation == nil {
		return input, fmt.Errorf("line has no observation")
	}
	return input, nil
}
