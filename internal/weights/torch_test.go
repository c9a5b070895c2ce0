package weights

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testdata/*.pth and *.pt are written by testdata/gen_fixtures.py.

func TestLoad_TorchStateDict(t *testing.T) {
	sd, err := Load(filepath.Join("testdata", "actor.pth"))
	require.NoError(t, err)
	assert.Equal(t, []string{"gain", "l1.bias", "l1.weight", "scale"}, sd.Names())

	w, err := sd.Matrix("l1.weight")
	require.NoError(t, err)
	r, c := w.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 6.0, w.At(1, 2))

	// view into a shared storage at offset 3
	b, err := sd.Vector("l1.bias")
	require.NoError(t, err)
	assert.Equal(t, 0.5, b.AtVec(0))
	assert.Equal(t, -0.5, b.AtVec(1))

	assert.Equal(t, []float64{0.5, -2}, sd["scale"].Data)
	assert.Equal(t, []float64{0.125}, sd["gain"].Data)
}

func TestLoad_TorchSections(t *testing.T) {
	path := filepath.Join("testdata", "bc.pt")

	sd, err := Load(path, "_imitator")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"_imitator._encoder._layers.0.bias",
		"_imitator._encoder._layers.0.weight",
		"_imitator._fc.bias",
		"_imitator._fc.weight",
	}, sd.Names())

	w, err := sd.Matrix("_imitator._encoder._layers.0.weight")
	require.NoError(t, err)
	r, c := w.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 3, c)
	assert.InDelta(t, 1.1, w.At(3, 2), 1e-6)

	_, err = Load(path, "_imitator", "_policy")
	assert.True(t, errors.Is(err, ErrFormat))

	// the optimizer section is a plain dict, not a state dict
	_, err = Load(path, "_optim")
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestLoad_TorchMissingSection(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "actor.pth"), "_policy")
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestFlattenTorch_SkipsNonTensors(t *testing.T) {
	dict := types.NewOrderedDict()
	dict.Set("l1.bias", &pytorch.Tensor{
		Source: &pytorch.DoubleStorage{Data: []float64{1, 2}},
		Size:   []int{2},
		Stride: []int{1},
	})
	dict.Set("_metadata", types.NewDict())
	dict.Set(7, "not a parameter")

	sd := make(StateDict)
	require.NoError(t, flattenTorch(sd, "_policy.", dict))
	assert.Equal(t, []string{"_policy.l1.bias"}, sd.Names())
	assert.Equal(t, []float64{1, 2}, sd["_policy.l1.bias"].Data)

	err := flattenTorch(sd, "", types.NewList())
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestFromTorch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		tensor *pytorch.Tensor
		want   error
	}{
		{
			name: "transposed view",
			tensor: &pytorch.Tensor{
				Source: &pytorch.FloatStorage{Data: make([]float32, 6)},
				Size:   []int{2, 3},
				Stride: []int{1, 2},
			},
			want: ErrFormat,
		},
		{
			name: "short storage",
			tensor: &pytorch.Tensor{
				Source: &pytorch.FloatStorage{Data: make([]float32, 4)},
				Size:   []int{2, 3},
				Stride: []int{3, 1},
			},
			want: ErrShape,
		},
		{
			name: "offset past end",
			tensor: &pytorch.Tensor{
				Source:        &pytorch.HalfStorage{Data: make([]float32, 3)},
				StorageOffset: 2,
				Size:          []int{2},
				Stride:        []int{1},
			},
			want: ErrShape,
		},
		{
			name: "integer storage",
			tensor: &pytorch.Tensor{
				Source: &pytorch.LongStorage{Data: []int64{1}},
				Size:   []int{1},
				Stride: []int{1},
			},
			want: ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromTorch(tt.tensor)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
