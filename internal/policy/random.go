package policy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cartridge/rrc-policy/internal/obs"
)

// RandomPolicy selects uniformly random actions inside the action bounds.
// It needs no model files and serves as a baseline when wiring up a harness.
type RandomPolicy struct {
	rng  *rand.Rand
	low  []float64
	high []float64
	info Info
}

// NewRandom creates a random policy for the given action space. Missing
// bounds default to [-maxAction, maxAction]; bounds wider than that are
// narrowed to it. A zero seed seeds from the clock.
func NewRandom(action, observation Space, maxAction float64, seed int64) (*RandomPolicy, error) {
	if action.Dim <= 0 {
		return nil, fmt.Errorf("%w: action space needs a positive dimension", ErrActionDim)
	}
	if (action.Low != nil && len(action.Low) != action.Dim) || (action.High != nil && len(action.High) != action.Dim) {
		return nil, fmt.Errorf("continuous action space bounds mismatch")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	low := make([]float64, action.Dim)
	high := make([]float64, action.Dim)
	for i := range low {
		low[i], high[i] = -maxAction, maxAction
		if action.Low != nil && action.Low[i] > low[i] {
			low[i] = action.Low[i]
		}
		if action.High != nil && action.High[i] < high[i] {
			high[i] = action.High[i]
		}
		if low[i] > high[i] {
			return nil, fmt.Errorf("action bound %d is empty: [%g, %g]", i, low[i], high[i])
		}
	}

	return &RandomPolicy{
		rng:  rand.New(rand.NewSource(seed)),
		low:  low,
		high: high,
		info: Info{
			Kind:           KindRandom,
			ObservationDim: observation.Dim,
			ActionDim:      action.Dim,
			MaxAction:      maxAction,
		},
	}, nil
}

// Reset implements Policy.
func (p *RandomPolicy) Reset() {}

// GetAction implements Policy. The observation only has its length checked.
func (p *RandomPolicy) GetAction(observation []float64) ([]float64, error) {
	if p.info.ObservationDim > 0 && len(observation) != p.info.ObservationDim {
		return nil, fmt.Errorf("%w: got %d, want %d", obs.ErrObservationDim, len(observation), p.info.ObservationDim)
	}
	action := make([]float64, len(p.low))
	for i := range action {
		// Random value in [low, high]
		action[i] = p.low[i] + p.rng.Float64()*(p.high[i]-p.low[i])
	}
	return action, nil
}

// Info implements Policy.
func (p *RandomPolicy) Info() Info {
	return p.info
}
