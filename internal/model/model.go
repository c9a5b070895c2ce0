// Package model assembles the policy networks from loaded state dicts.
//
// Every network ends in a tanh head scaled by a fixed bound, so outputs are
// guaranteed to lie in [-bound, bound] componentwise. Inference is
// deterministic: no network samples at prediction time.
package model

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/rrc-policy/internal/nn"
	"github.com/cartridge/rrc-policy/internal/weights"
)

// Network maps a model input vector to an action vector.
type Network interface {
	InputDim() int
	OutputDim() int
	// Bound is the largest absolute value any output component can take.
	Bound() float64
	Forward(x *mat.VecDense) (*mat.VecDense, error)
}

// Bounded is an MLP followed by bound*tanh.
type Bounded struct {
	Net   *nn.MLP
	Scale float64
}

// InputDim implements Network.
func (b *Bounded) InputDim() int { return b.Net.In() }

// OutputDim implements Network.
func (b *Bounded) OutputDim() int { return b.Net.Out() }

// Bound implements Network.
func (b *Bounded) Bound() float64 { return b.Scale }

// Forward implements Network.
func (b *Bounded) Forward(x *mat.VecDense) (*mat.VecDense, error) {
	y, err := b.Net.Forward(x)
	if err != nil {
		return nil, err
	}
	nn.BoundedTanh(y, b.Scale)
	return y, nil
}

// Decoder is the decoding half of the conditional VAE: it maps a state and a
// latent action to an action.
type Decoder struct {
	*Bounded
	StateDim  int
	LatentDim int
}

// Decode runs the decoder on [state, z].
func (d *Decoder) Decode(state, z *mat.VecDense) (*mat.VecDense, error) {
	if state.Len() != d.StateDim || z.Len() != d.LatentDim {
		return nil, fmt.Errorf("decoder expects state %d + latent %d, got %d + %d",
			d.StateDim, d.LatentDim, state.Len(), z.Len())
	}
	return d.Bounded.Forward(nn.Concat(state, z))
}

func linear(sd weights.StateDict, prefix string) (*nn.Linear, error) {
	w, err := sd.Matrix(prefix + ".weight")
	if err != nil {
		return nil, err
	}
	b, err := sd.Vector(prefix + ".bias")
	if err != nil {
		return nil, err
	}
	l, err := nn.NewLinear(w, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", weights.ErrShape, prefix, err)
	}
	return l, nil
}

func mlp(sd weights.StateDict, hidden nn.Activation, prefixes ...string) (*nn.MLP, error) {
	layers := make([]*nn.Linear, 0, len(prefixes))
	for _, prefix := range prefixes {
		l, err := linear(sd, prefix)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	m, err := nn.NewMLP(hidden, layers...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", weights.ErrShape, err)
	}
	return m, nil
}

// encoderLayers lists prefix._layers.0, prefix._layers.1, ... for as long as
// the state dict has them.
func encoderLayers(sd weights.StateDict, prefix string) []string {
	var out []string
	for i := 0; ; i++ {
		name := prefix + "._layers." + strconv.Itoa(i)
		if !sd.Has(name + ".weight") {
			return out
		}
		out = append(out, name)
	}
}

func newDecoder(net *Bounded, latentDim int) (*Decoder, error) {
	stateDim := net.InputDim() - latentDim
	if stateDim <= 0 {
		return nil, fmt.Errorf("%w: decoder input %d cannot hold latent %d",
			weights.ErrShape, net.InputDim(), latentDim)
	}
	return &Decoder{Bounded: net, StateDim: stateDim, LatentDim: latentDim}, nil
}
