// Package weights reads pretrained network parameters from disk into a
// flat name -> tensor map.
package weights

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFound indicates the weights or params file does not exist.
	ErrNotFound = errors.New("model artifact not found")
	// ErrFormat indicates the file could not be decoded.
	ErrFormat = errors.New("unsupported model artifact")
	// ErrMissingTensor indicates a required tensor is absent.
	ErrMissingTensor = errors.New("missing tensor")
	// ErrShape indicates a tensor has the wrong rank or size.
	ErrShape = errors.New("tensor shape mismatch")
)

// Tensor is a dense row-major array.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NumElements returns the product of the shape.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// StateDict maps parameter names (e.g. "l1.weight") to tensors.
type StateDict map[string]*Tensor

// Names returns the parameter names in sorted order.
func (sd StateDict) Names() []string {
	names := make([]string, 0, len(sd))
	for name := range sd {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is present.
func (sd StateDict) Has(name string) bool {
	_, ok := sd[name]
	return ok
}

// Matrix returns a rank-2 tensor as a gonum matrix.
func (sd StateDict) Matrix(name string) (*mat.Dense, error) {
	t, ok := sd[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	if len(t.Shape) != 2 || t.NumElements() != len(t.Data) || t.NumElements() == 0 {
		return nil, fmt.Errorf("%w: %s has shape %v, want a non-empty matrix", ErrShape, name, t.Shape)
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], append([]float64(nil), t.Data...)), nil
}

// Vector returns a rank-1 tensor as a gonum vector.
func (sd StateDict) Vector(name string) (*mat.VecDense, error) {
	t, ok := sd[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	if len(t.Shape) != 1 || t.NumElements() != len(t.Data) || t.NumElements() == 0 {
		return nil, fmt.Errorf("%w: %s has shape %v, want a non-empty vector", ErrShape, name, t.Shape)
	}
	return mat.NewVecDense(t.Shape[0], append([]float64(nil), t.Data...)), nil
}

// Load reads a weights file. PyTorch checkpoints (.pt, .pth) and the JSON
// exchange format (.json) are supported. When sections are given, the file
// is expected to be a dict of state dicts (the d3rlpy checkpoint layout) and
// every section is flattened under "section.".
func Load(path string, sections ...string) (StateDict, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pt", ".pth":
		return loadTorch(path, sections)
	case ".json":
		return loadJSON(path, sections)
	default:
		return nil, fmt.Errorf("%w: %s has unknown extension", ErrFormat, path)
	}
}
