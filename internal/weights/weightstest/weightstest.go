// Package weightstest builds randomly initialised state dicts with the
// layouts the policy networks expect, for use in tests.
package weightstest

import (
	"math/rand"
	"strconv"

	"github.com/cartridge/rrc-policy/internal/weights"
)

// Builder fills state dicts with normally distributed parameters.
type Builder struct {
	rng   *rand.Rand
	scale float64
}

// New returns a Builder seeded with seed. scale multiplies every sampled
// parameter; large values saturate the tanh heads.
func New(seed int64, scale float64) *Builder {
	return &Builder{rng: rand.New(rand.NewSource(seed)), scale: scale}
}

// Linear adds prefix.weight (out×in) and prefix.bias (out).
func (b *Builder) Linear(sd weights.StateDict, prefix string, in, out int) {
	w := make([]float64, out*in)
	for i := range w {
		w[i] = b.rng.NormFloat64() * b.scale
	}
	bias := make([]float64, out)
	for i := range bias {
		bias[i] = b.rng.NormFloat64() * b.scale
	}
	sd[prefix+".weight"] = &weights.Tensor{Shape: []int{out, in}, Data: w}
	sd[prefix+".bias"] = &weights.Tensor{Shape: []int{out}, Data: bias}
}

// Actor returns l1..l3 mapping stateDim to outDim.
func (b *Builder) Actor(stateDim, outDim int) weights.StateDict {
	sd := weights.StateDict{}
	b.Linear(sd, "l1", stateDim, 16)
	b.Linear(sd, "l2", 16, 12)
	b.Linear(sd, "l3", 12, outDim)
	return sd
}

// ActorPerturbation returns l1..l6 for the perturbation actor.
func (b *Builder) ActorPerturbation(stateDim, actionDim, latentDim int) weights.StateDict {
	sd := b.Actor(stateDim, latentDim)
	b.Linear(sd, "l4", stateDim+actionDim, 16)
	b.Linear(sd, "l5", 16, 12)
	b.Linear(sd, "l6", 12, actionDim)
	return sd
}

// VAE returns both encoder and decoder tensors.
func (b *Builder) VAE(stateDim, actionDim, latentDim int) weights.StateDict {
	sd := weights.StateDict{}
	b.Linear(sd, "e1", stateDim+actionDim, 20)
	b.Linear(sd, "e2", 20, 20)
	b.Linear(sd, "mean", 20, latentDim)
	b.Linear(sd, "log_std", 20, latentDim)
	b.Linear(sd, "d1", stateDim+latentDim, 20)
	b.Linear(sd, "d2", 20, 20)
	b.Linear(sd, "d3", 20, actionDim)
	return sd
}

// BehaviorCloning returns a d3rlpy _imitator regressor with the given
// encoder hidden units.
func (b *Builder) BehaviorCloning(obsDim, actionDim int, hidden ...int) weights.StateDict {
	sd := weights.StateDict{}
	last := b.encoder(sd, "_imitator._encoder", obsDim, hidden)
	b.Linear(sd, "_imitator._fc", last, actionDim)
	return sd
}

// PLAS returns d3rlpy _policy and _imitator decoder sections.
func (b *Builder) PLAS(obsDim, actionDim, latentDim int) weights.StateDict {
	sd := weights.StateDict{}
	last := b.encoder(sd, "_policy._encoder", obsDim, []int{16, 12})
	b.Linear(sd, "_policy._fc", last, latentDim)
	last = b.encoder(sd, "_imitator._decoder_encoder", obsDim+latentDim, []int{20, 20})
	b.Linear(sd, "_imitator._fc", last, actionDim)
	// the VAE encoder half is saved too but unused at inference
	last = b.encoder(sd, "_imitator._encoder_encoder", obsDim+actionDim, []int{20})
	b.Linear(sd, "_imitator._mu", last, latentDim)
	return sd
}

func (b *Builder) encoder(sd weights.StateDict, prefix string, in int, hidden []int) int {
	for i, h := range hidden {
		b.Linear(sd, prefix+"._layers."+strconv.Itoa(i), in, h)
		in = h
	}
	return in
}

// Observation samples a vector of length n.
func (b *Builder) Observation(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = b.rng.NormFloat64()
	}
	return out
}
