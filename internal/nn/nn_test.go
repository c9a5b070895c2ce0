package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinear_Forward(t *testing.T) {
	l, err := NewLinear(
		mat.NewDense(2, 3, []float64{1, 0, -1, 2, 1, 0}),
		mat.NewVecDense(2, []float64{0.5, -0.5}),
	)
	require.NoError(t, err)

	y, err := l.Forward(mat.NewVecDense(3, []float64{1, 2, 3}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1.5, 3.5}, Slice(y), 1e-12)
}

func TestLinear_ShapeErrors(t *testing.T) {
	_, err := NewLinear(mat.NewDense(2, 3, nil), mat.NewVecDense(3, nil))
	assert.Error(t, err)

	l, err := NewLinear(mat.NewDense(2, 3, nil), mat.NewVecDense(2, nil))
	require.NoError(t, err)
	_, err = l.Forward(mat.NewVecDense(4, nil))
	assert.Error(t, err)
}

func TestMLP_HiddenActivationSkipsLastLayer(t *testing.T) {
	// identity hidden layer followed by a negating output layer
	first, err := NewLinear(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), mat.NewVecDense(2, nil))
	require.NoError(t, err)
	last, err := NewLinear(mat.NewDense(2, 2, []float64{-1, 0, 0, -1}), mat.NewVecDense(2, nil))
	require.NoError(t, err)

	m, err := NewMLP(ReLU, first, last)
	require.NoError(t, err)

	y, err := m.Forward(mat.NewVecDense(2, []float64{3, -4}))
	require.NoError(t, err)
	// relu drops -4 after the first layer; the output layer stays linear
	assert.Equal(t, []float64{-3, 0}, Slice(y))
}

func TestMLP_RejectsMismatchedLayers(t *testing.T) {
	a, _ := NewLinear(mat.NewDense(4, 2, nil), mat.NewVecDense(4, nil))
	b, _ := NewLinear(mat.NewDense(1, 3, nil), mat.NewVecDense(1, nil))
	_, err := NewMLP(ReLU, a, b)
	assert.Error(t, err)
}

func TestBoundedTanhAndClamp(t *testing.T) {
	v := mat.NewVecDense(3, []float64{-100, 0, 100})
	BoundedTanh(v, 0.397)
	assert.InDeltaSlice(t, []float64{-0.397, 0, 0.397}, Slice(v), 1e-9)

	w := mat.NewVecDense(3, []float64{-2, 0.1, 2})
	Clamp(w, -1, 1)
	assert.Equal(t, []float64{-1, 0.1, 1}, Slice(w))
}

func TestConcat(t *testing.T) {
	v := Concat(mat.NewVecDense(2, []float64{1, 2}), mat.NewVecDense(1, []float64{3}))
	assert.Equal(t, []float64{1, 2, 3}, Slice(v))
}

func TestActivationByName(t *testing.T) {
	act, err := ActivationByName("tanh")
	require.NoError(t, err)
	v := mat.NewVecDense(1, []float64{1})
	act(v)
	assert.InDelta(t, math.Tanh(1), v.AtVec(0), 1e-12)

	_, err = ActivationByName("swish")
	assert.Error(t, err)
}
