package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/rrc-policy/internal/nn"
	"github.com/cartridge/rrc-policy/internal/weights"
)

// d3rlpy checkpoint sections.
const (
	SectionPolicy   = "_policy"
	SectionImitator = "_imitator"
)

// NewBehaviorCloning builds the d3rlpy deterministic regressor stored under
// _imitator: encoder layers with a hidden activation, then a tanh head.
func NewBehaviorCloning(sd weights.StateDict, hidden nn.Activation, maxAction float64) (*Bounded, error) {
	prefixes := append(encoderLayers(sd, SectionImitator+"._encoder"), SectionImitator+"._fc")
	net, err := mlp(sd, hidden, prefixes...)
	if err != nil {
		return nil, fmt.Errorf("behavior cloning: %w", err)
	}
	return &Bounded{Net: net, Scale: maxAction}, nil
}

// NewActor builds the three-layer actor (l1, l2, l3) that emits latent
// actions in [-maxLatentAction, maxLatentAction].
func NewActor(sd weights.StateDict, maxLatentAction float64) (*Bounded, error) {
	net, err := mlp(sd, nn.ReLU, "l1", "l2", "l3")
	if err != nil {
		return nil, fmt.Errorf("actor: %w", err)
	}
	return &Bounded{Net: net, Scale: maxLatentAction}, nil
}

// NewVAEDecoder builds the decoder (d1, d2, d3) of the VAE. Encoder
// tensors (e1, e2, mean, log_std) may be present and are ignored.
func NewVAEDecoder(sd weights.StateDict, latentDim int, maxAction float64) (*Decoder, error) {
	net, err := mlp(sd, nn.ReLU, "d1", "d2", "d3")
	if err != nil {
		return nil, fmt.Errorf("vae decoder: %w", err)
	}
	return newDecoder(&Bounded{Net: net, Scale: maxAction}, latentDim)
}

// Latent composes an actor in latent space with a decoder.
type Latent struct {
	Actor   Network
	Decoder *Decoder
}

// NewLatent checks that the actor's latent output feeds the decoder.
func NewLatent(actor Network, decoder *Decoder) (*Latent, error) {
	if actor.OutputDim() != decoder.LatentDim {
		return nil, fmt.Errorf("%w: actor emits %d latent dims, decoder takes %d",
			weights.ErrShape, actor.OutputDim(), decoder.LatentDim)
	}
	if actor.InputDim() != decoder.StateDim {
		return nil, fmt.Errorf("%w: actor takes %d state dims, decoder takes %d",
			weights.ErrShape, actor.InputDim(), decoder.StateDim)
	}
	return &Latent{Actor: actor, Decoder: decoder}, nil
}

// InputDim implements Network.
func (l *Latent) InputDim() int { return l.Actor.InputDim() }

// OutputDim implements Network.
func (l *Latent) OutputDim() int { return l.Decoder.OutputDim() }

// Bound implements Network.
func (l *Latent) Bound() float64 { return l.Decoder.Bound() }

// Forward implements Network.
func (l *Latent) Forward(state *mat.VecDense) (*mat.VecDense, error) {
	z, err := l.Actor.Forward(state)
	if err != nil {
		return nil, fmt.Errorf("actor: %w", err)
	}
	return l.Decoder.Decode(state, z)
}

// NewPLAS builds the d3rlpy PLAS policy: _policy maps states to latents in
// [-2, 2] and the _imitator decoder maps [state, latent] to actions.
func NewPLAS(sd weights.StateDict, actorHidden, imitatorHidden nn.Activation, maxAction float64) (*Latent, error) {
	policyNet, err := mlp(sd, actorHidden,
		append(encoderLayers(sd, SectionPolicy+"._encoder"), SectionPolicy+"._fc")...)
	if err != nil {
		return nil, fmt.Errorf("plas policy: %w", err)
	}
	decoderNet, err := mlp(sd, imitatorHidden,
		append(encoderLayers(sd, SectionImitator+"._decoder_encoder"), SectionImitator+"._fc")...)
	if err != nil {
		return nil, fmt.Errorf("plas decoder: %w", err)
	}
	decoder, err := newDecoder(&Bounded{Net: decoderNet, Scale: maxAction}, policyNet.Out())
	if err != nil {
		return nil, err
	}
	return NewLatent(&Bounded{Net: policyNet, Scale: plasLatentBound}, decoder)
}

const plasLatentBound = 2.0

// Perturbed decodes a latent action to a mid action and adds a residual
// correction bounded by Phi, clamping the sum to [-MaxAction, MaxAction].
type Perturbed struct {
	Actor        Network
	Decoder      *Decoder
	Perturbation Network
	MaxAction    float64
}

// NewPerturbed builds the perturbation actor (l1..l3 latent, l4..l6
// residual) and combines it with decoder.
func NewPerturbed(sd weights.StateDict, decoder *Decoder, maxLatentAction, phi, maxAction float64) (*Perturbed, error) {
	actorNet, err := mlp(sd, nn.ReLU, "l1", "l2", "l3")
	if err != nil {
		return nil, fmt.Errorf("perturbation actor: %w", err)
	}
	residualNet, err := mlp(sd, nn.ReLU, "l4", "l5", "l6")
	if err != nil {
		return nil, fmt.Errorf("perturbation residual: %w", err)
	}
	actor := &Bounded{Net: actorNet, Scale: maxLatentAction}
	if actor.OutputDim() != decoder.LatentDim || actor.InputDim() != decoder.StateDim {
		return nil, fmt.Errorf("%w: actor %d->%d does not match decoder state %d latent %d",
			weights.ErrShape, actor.InputDim(), actor.OutputDim(), decoder.StateDim, decoder.LatentDim)
	}
	if residualNet.In() != decoder.StateDim+decoder.OutputDim() || residualNet.Out() != decoder.OutputDim() {
		return nil, fmt.Errorf("%w: residual %d->%d does not match state %d action %d",
			weights.ErrShape, residualNet.In(), residualNet.Out(), decoder.StateDim, decoder.OutputDim())
	}
	return &Perturbed{
		Actor:        actor,
		Decoder:      decoder,
		Perturbation: &Bounded{Net: residualNet, Scale: phi},
		MaxAction:    maxAction,
	}, nil
}

// InputDim implements Network.
func (p *Perturbed) InputDim() int { return p.Actor.InputDim() }

// OutputDim implements Network.
func (p *Perturbed) OutputDim() int { return p.Decoder.OutputDim() }

// Bound implements Network.
func (p *Perturbed) Bound() float64 { return p.MaxAction }

// Decompose returns the latent action, the decoded mid action and the final
// perturbed action.
func (p *Perturbed) Decompose(state *mat.VecDense) (latent, mid, final *mat.VecDense, err error) {
	latent, err = p.Actor.Forward(state)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("actor: %w", err)
	}
	mid, err = p.Decoder.Decode(state, latent)
	if err != nil {
		return nil, nil, nil, err
	}
	residual, err := p.Perturbation.Forward(nn.Concat(state, mid))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("perturbation: %w", err)
	}
	final = mat.NewVecDense(mid.Len(), nil)
	final.AddVec(mid, residual)
	nn.Clamp(final, -p.MaxAction, p.MaxAction)
	return latent, mid, final, nil
}

// Forward implements Network.
func (p *Perturbed) Forward(state *mat.VecDense) (*mat.VecDense, error) {
	_, _, final, err := p.Decompose(state)
	return final, err
}
