// Package nn implements the inference-only building blocks of the policy
// networks: dense layers, activations and small vector helpers on gonum.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation is applied elementwise in place.
type Activation func(v *mat.VecDense)

// ReLU clamps negative components to zero.
func ReLU(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			v.SetVec(i, 0)
		}
	}
}

// Tanh applies the hyperbolic tangent.
func Tanh(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, math.Tanh(v.AtVec(i)))
	}
}

// ActivationByName resolves an activation named in a params file.
func ActivationByName(name string) (Activation, error) {
	switch name {
	case "", "relu":
		return ReLU, nil
	case "tanh":
		return Tanh, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}

// BoundedTanh maps v in place to bound*tanh(v), so every component ends up
// in [-bound, bound].
func BoundedTanh(v *mat.VecDense, bound float64) {
	Tanh(v)
	v.ScaleVec(bound, v)
}

// Clamp limits every component of v to [lo, hi] in place.
func Clamp(v *mat.VecDense, lo, hi float64) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, math.Max(lo, math.Min(hi, v.AtVec(i))))
	}
}

// Concat joins a and b into a new vector.
func Concat(a, b mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(a.Len()+b.Len(), nil)
	for i := 0; i < a.Len(); i++ {
		out.SetVec(i, a.AtVec(i))
	}
	for i := 0; i < b.Len(); i++ {
		out.SetVec(a.Len()+i, b.AtVec(i))
	}
	return out
}

// Slice copies v into a plain slice.
func Slice(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Linear is a dense layer y = Wx + b with W stored out×in, matching the
// torch nn.Linear weight layout.
type Linear struct {
	W *mat.Dense
	B *mat.VecDense
}

// NewLinear checks that w and b agree on the output dimension.
func NewLinear(w *mat.Dense, b *mat.VecDense) (*Linear, error) {
	out, _ := w.Dims()
	if b.Len() != out {
		return nil, fmt.Errorf("bias has %d elements, weight has %d rows", b.Len(), out)
	}
	return &Linear{W: w, B: b}, nil
}

// In returns the input dimension.
func (l *Linear) In() int {
	_, c := l.W.Dims()
	return c
}

// Out returns the output dimension.
func (l *Linear) Out() int {
	r, _ := l.W.Dims()
	return r
}

// Forward computes Wx + b into a new vector.
func (l *Linear) Forward(x mat.Vector) (*mat.VecDense, error) {
	if x.Len() != l.In() {
		return nil, fmt.Errorf("layer expects %d inputs, got %d", l.In(), x.Len())
	}
	y := mat.NewVecDense(l.Out(), nil)
	y.MulVec(l.W, x)
	y.AddVec(y, l.B)
	return y, nil
}

// MLP chains linear layers with a hidden activation between them. The
// output of the last layer is returned raw.
type MLP struct {
	Layers []*Linear
	Hidden Activation
}

// NewMLP checks that consecutive layers line up.
func NewMLP(hidden Activation, layers ...*Linear) (*MLP, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("mlp needs at least one layer")
	}
	for i := 1; i < len(layers); i++ {
		if layers[i].In() != layers[i-1].Out() {
			return nil, fmt.Errorf("layer %d expects %d inputs, layer %d emits %d",
				i, layers[i].In(), i-1, layers[i-1].Out())
		}
	}
	if hidden == nil {
		hidden = ReLU
	}
	return &MLP{Layers: layers, Hidden: hidden}, nil
}

// In returns the input dimension of the first layer.
func (m *MLP) In() int { return m.Layers[0].In() }

// Out returns the output dimension of the last layer.
func (m *MLP) Out() int { return m.Layers[len(m.Layers)-1].Out() }

// Forward runs x through every layer.
func (m *MLP) Forward(x mat.Vector) (*mat.VecDense, error) {
	var h mat.Vector = x
	for i, layer := range m.Layers {
		y, err := layer.Forward(h)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if i < len(m.Layers)-1 {
			m.Hidden(y)
		}
		h = y
	}
	return h.(*mat.VecDense), nil
}
