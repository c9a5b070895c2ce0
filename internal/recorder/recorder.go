// Package recorder keeps a log of the observations a policy saw and the
// actions it returned, grouped by episode.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested episode has no recorded steps.
var ErrNotFound = errors.New("not found")

// Step is one control step.
type Step struct {
	ID          string    `json:"id"`
	EpisodeID   string    `json:"episode_id"`
	StepNumber  uint32    `json:"step_number"`
	Observation []float64 `json:"observation"`
	Action      []float64 `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stats represents recorder statistics
type Stats struct {
	TotalSteps     uint64            `json:"total_steps"`
	TotalEpisodes  uint64            `json:"total_episodes"`
	StepsByEpisode map[string]uint64 `json:"steps_by_episode"`
}

// Backend defines the interface for step storage implementations
type Backend interface {
	// Record stores a single step
	Record(ctx context.Context, step *Step) error

	// RecordBatch stores multiple steps and returns their IDs
	RecordBatch(ctx context.Context, steps []*Step) ([]string, error)

	// Episode returns the steps of one episode ordered by step number
	Episode(ctx context.Context, episodeID string) ([]*Step, error)

	// Episodes lists episode IDs in the order they were first recorded
	Episodes(ctx context.Context) ([]string, error)

	// GetStats returns recorder statistics
	GetStats(ctx context.Context) (*Stats, error)

	// Close the backend and cleanup resources
	Close() error
}

// Open returns the backend named by kind. path is a file for sqlite and a
// DSN for postgres. "none" yields a nil Backend.
func Open(kind, path string, maxSteps uint64) (Backend, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryBackend(maxSteps), nil
	case "sqlite":
		return OpenSQLite(path)
	case "postgres":
		return OpenPostgres(path)
	default:
		return nil, fmt.Errorf("unknown recorder backend %q", kind)
	}
}
