// Package obs maps raw flattened TriFinger observations onto the feature
// layout a pretrained model was trained on.
package obs

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrObservationDim is returned when an observation does not have the
// length an adapter was built for.
var ErrObservationDim = errors.New("unexpected observation dimension")

// ErrObservationValue is returned for NaN or infinite observation values.
var ErrObservationValue = errors.New("non-finite observation value")

// CheckFinite returns ErrObservationValue naming the first NaN or infinite
// component of v.
func CheckFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: index %d is %v", ErrObservationValue, i, x)
		}
	}
	return nil
}

// Layout of the flattened lift-task observation.
const (
	// LiftObservationDim is the length of the flattened lift observation.
	LiftObservationDim = 139
)

var (
	// KeypointRange holds the 8 object keypoints (x, y, z each).
	KeypointRange = Range{Start: 33, End: 33 + 24}
	// ExpertObjectRange covers the object/goal block removed for the
	// expert-data behaviour cloning models (1+1+24+4+3 values).
	ExpertObjectRange = Range{Start: 59, End: 59 + 1 + 1 + 24 + 4 + 3}
	// PLASObjectRange covers the object/goal block removed for the PLAS
	// models (24+4+3 values).
	PLASObjectRange = Range{Start: 59, End: 59 + 24 + 4 + 3}
	// RobotStateRange covers robot position, id, torque and velocity
	// (9+1+9+9 values).
	RobotStateRange = Range{Start: 111, End: 111 + 9 + 1 + 9 + 9}
)

// Range is a half-open index interval [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Adapter turns a raw observation into model input.
type Adapter interface {
	// Adapt returns a new slice; obs is never modified.
	Adapt(obs []float64) ([]float64, error)
	// OutputDim reports the adapted length for an input of inputDim.
	OutputDim(inputDim int) int
}

// Identity passes observations through unchanged.
type Identity struct{}

// Adapt implements Adapter.
func (Identity) Adapt(obs []float64) ([]float64, error) {
	out := make([]float64, len(obs))
	copy(out, obs)
	return out, nil
}

// OutputDim implements Adapter.
func (Identity) OutputDim(inputDim int) int { return inputDim }

// Delete removes fixed index ranges, keeping the remaining elements in order.
type Delete struct {
	expectedDim int
	ranges      []Range
	removed     int
}

// NewDelete validates the ranges against expectedDim. Ranges may be given
// in any order but must not overlap.
func NewDelete(expectedDim int, ranges ...Range) (*Delete, error) {
	if len(ranges) == 0 {
		return nil, errors.New("delete adapter needs at least one range")
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	removed := 0
	for i, r := range sorted {
		if r.Start < 0 || r.End > expectedDim || r.Len() <= 0 {
			return nil, fmt.Errorf("range %s outside observation of length %d", r, expectedDim)
		}
		if i > 0 && r.Start < sorted[i-1].End {
			return nil, fmt.Errorf("range %s overlaps %s", r, sorted[i-1])
		}
		removed += r.Len()
	}
	return &Delete{expectedDim: expectedDim, ranges: sorted, removed: removed}, nil
}

// Adapt implements Adapter.
func (d *Delete) Adapt(obs []float64) ([]float64, error) {
	if len(obs) != d.expectedDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrObservationDim, len(obs), d.expectedDim)
	}
	out := make([]float64, 0, len(obs)-d.removed)
	prev := 0
	for _, r := range d.ranges {
		out = append(out, obs[prev:r.Start]...)
		prev = r.End
	}
	return append(out, obs[prev:]...), nil
}

// OutputDim implements Adapter.
func (d *Delete) OutputDim(inputDim int) int { return inputDim - d.removed }

// Ranges returns the removed ranges in ascending order.
func (d *Delete) Ranges() []Range {
	out := make([]Range, len(d.ranges))
	copy(out, d.ranges)
	return out
}

// Append copies a sub-slice of the observation onto its end, giving the
// latent models their auxiliary context block.
type Append struct {
	expectedDim int
	slice       Range
}

// NewAppend validates slice against expectedDim.
func NewAppend(expectedDim int, slice Range) (*Append, error) {
	if slice.Start < 0 || slice.End > expectedDim || slice.Len() <= 0 {
		return nil, fmt.Errorf("slice %s outside observation of length %d", slice, expectedDim)
	}
	return &Append{expectedDim: expectedDim, slice: slice}, nil
}

// Adapt implements Adapter.
func (a *Append) Adapt(obs []float64) ([]float64, error) {
	if len(obs) != a.expectedDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrObservationDim, len(obs), a.expectedDim)
	}
	out := make([]float64, 0, len(obs)+a.slice.Len())
	out = append(out, obs...)
	return append(out, obs[a.slice.Start:a.slice.End]...), nil
}

// OutputDim implements Adapter.
func (a *Append) OutputDim(inputDim int) int { return inputDim + a.slice.Len() }

// Preset names accepted by Preset.
const (
	PresetIdentity        = "identity"
	PresetCutExpert       = "cut_expert"
	PresetCutPLAS         = "cut_plas"
	PresetAppendKeypoints = "append_keypoints"
)

// Preset builds one of the named adapters for the lift observation layout.
func Preset(name string) (Adapter, error) {
	switch name {
	case "", PresetIdentity:
		return Identity{}, nil
	case PresetCutExpert:
		return NewDelete(LiftObservationDim, RobotStateRange, ExpertObjectRange)
	case PresetCutPLAS:
		return NewDelete(LiftObservationDim, RobotStateRange, PLASObjectRange)
	case PresetAppendKeypoints:
		return NewAppend(LiftObservationDim, KeypointRange)
	default:
		return nil, fmt.Errorf("unknown observation adapter %q", name)
	}
}
