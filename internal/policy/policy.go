// Package policy provides action selection strategies for the evaluation harness
package policy

import (
	"errors"
	"sync"
)

var (
	// ErrUnknownKind is returned for an unsupported policy kind.
	ErrUnknownKind = errors.New("unknown policy kind")
	// ErrActionDim is returned when a model's output does not match the
	// action space.
	ErrActionDim = errors.New("action dimension mismatch")
)

// Kind selects the policy implementation.
type Kind string

const (
	KindBehaviorCloning    Kind = "bc"
	KindPLAS               Kind = "plas"
	KindLatent             Kind = "latent"
	KindLatentPerturbation Kind = "latent_perturbation"
	KindRandom             Kind = "random"
)

// Policy interface for action selection
type Policy interface {
	// Reset is called at every episode boundary.
	Reset()
	// GetAction maps one flat observation to one flat action whose
	// components lie in [-Info().MaxAction, Info().MaxAction].
	GetAction(observation []float64) ([]float64, error)
	// Info describes the loaded policy.
	Info() Info
}

// Info describes a constructed policy.
type Info struct {
	Kind           Kind    `json:"kind"`
	Adapter        string  `json:"adapter"`
	ObservationDim int     `json:"observation_dim"`
	ModelInputDim  int     `json:"model_input_dim"`
	ActionDim      int     `json:"action_dim"`
	MaxAction      float64 `json:"max_action"`
	EpisodeLength  int     `json:"episode_length"`
}

// Space describes an observation or action space. Only Dim is required;
// Low and High, when set, must have Dim elements.
type Space struct {
	Dim  int
	Low  []float64
	High []float64
}

// Synchronized serializes access to a Policy. Policies are written for a
// single control loop; transports that accept concurrent requests share one
// Synchronized value.
type Synchronized struct {
	mu sync.Mutex
	p  Policy
}

// NewSynchronized wraps p.
func NewSynchronized(p Policy) *Synchronized {
	return &Synchronized{p: p}
}

// Reset implements Policy.
func (s *Synchronized) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Reset()
}

// GetAction implements Policy.
func (s *Synchronized) GetAction(observation []float64) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.GetAction(observation)
}

// Info implements Policy.
func (s *Synchronized) Info() Info {
	return s.p.Info()
}
