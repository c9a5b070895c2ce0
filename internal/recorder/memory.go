package recorder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend implements an in-memory step log bounded by maxSize
type MemoryBackend struct {
	mu        sync.RWMutex
	steps     map[string]*Step    // ID -> Step
	episodes  map[string][]string // EpisodeID -> StepIDs
	order     []string            // StepIDs in insertion order
	episodeOf []string            // EpisodeIDs in first-seen order
	maxSize   uint64
}

// NewMemoryBackend creates a new in-memory storage backend
func NewMemoryBackend(maxSize uint64) *MemoryBackend {
	return &MemoryBackend{
		steps:    make(map[string]*Step),
		episodes: make(map[string][]string),
		maxSize:  maxSize,
	}
}

// Record implements Backend.Record
func (m *MemoryBackend) Record(ctx context.Context, step *Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(step)
}

func (m *MemoryBackend) recordLocked(step *Step) error {
	if step.EpisodeID == "" {
		return fmt.Errorf("step has no episode id")
	}

	// Generate ID if not provided
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}

	if _, seen := m.episodes[step.EpisodeID]; !seen {
		m.episodeOf = append(m.episodeOf, step.EpisodeID)
	}
	m.steps[step.ID] = step
	m.episodes[step.EpisodeID] = append(m.episodes[step.EpisodeID], step.ID)
	m.order = append(m.order, step.ID)

	m.evictIfNeeded()
	return nil
}

// RecordBatch implements Backend.RecordBatch
func (m *MemoryBackend) RecordBatch(ctx context.Context, steps []*Step) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(steps))
	for _, step := range steps {
		if err := m.recordLocked(step); err != nil {
			return ids, err
		}
		ids = append(ids, step.ID)
	}
	return ids, nil
}

// Episode implements Backend.Episode
func (m *MemoryBackend) Episode(ctx context.Context, episodeID string) ([]*Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.episodes[episodeID]
	if !ok || len(ids) == 0 {
		return nil, fmt.Errorf("episode %s: %w", episodeID, ErrNotFound)
	}
	out := make([]*Step, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.steps[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

// Episodes implements Backend.Episodes
func (m *MemoryBackend) Episodes(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.episodeOf...), nil
}

// GetStats implements Backend.GetStats
func (m *MemoryBackend) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		TotalSteps:     uint64(len(m.steps)),
		TotalEpisodes:  uint64(len(m.episodes)),
		StepsByEpisode: make(map[string]uint64, len(m.episodes)),
	}
	for id, steps := range m.episodes {
		stats.StepsByEpisode[id] = uint64(len(steps))
	}
	return stats, nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = make(map[string]*Step)
	m.episodes = make(map[string][]string)
	m.order = nil
	m.episodeOf = nil
	return nil
}

// evictIfNeeded drops the oldest steps once maxSize is exceeded.
// Caller must hold the write lock.
func (m *MemoryBackend) evictIfNeeded() {
	if m.maxSize == 0 {
		return
	}
	for uint64(len(m.order)) > m.maxSize {
		oldest := m.order[0]
		m.order = m.order[1:]

		step := m.steps[oldest]
		delete(m.steps, oldest)

		ids := m.episodes[step.EpisodeID]
		ids = removeString(ids, oldest)
		if len(ids) == 0 {
			delete(m.episodes, step.EpisodeID)
			m.episodeOf = removeString(m.episodeOf, step.EpisodeID)
		} else {
			m.episodes[step.EpisodeID] = ids
		}
	}
}

func removeString(slice []string, item string) []string {
	for i, s := range slice {
		if s == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
