package policy

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/rrc-policy/internal/model"
	"github.com/cartridge/rrc-policy/internal/nn"
	"github.com/cartridge/rrc-policy/internal/obs"
)

// NetworkPolicy adapts each observation and runs one deterministic forward
// pass. It keeps no state between calls.
type NetworkPolicy struct {
	info    Info
	adapter obs.Adapter
	net     model.Network
	logger  zerolog.Logger
}

// NewNetwork wraps an already constructed network. The adapter output for
// an observation of observation.Dim must match the network input, and the
// network output must match action.Dim.
func NewNetwork(kind Kind, adapterName string, adapter obs.Adapter, net model.Network,
	observation, action Space, logger zerolog.Logger) (*NetworkPolicy, error) {
	if got := adapter.OutputDim(observation.Dim); got != net.InputDim() {
		return nil, fmt.Errorf("%w: adapter %q turns %d observation dims into %d, model takes %d",
			obs.ErrObservationDim, adapterName, observation.Dim, got, net.InputDim())
	}
	if net.OutputDim() != action.Dim {
		return nil, fmt.Errorf("%w: model emits %d, action space has %d",
			ErrActionDim, net.OutputDim(), action.Dim)
	}
	return &NetworkPolicy{
		info: Info{
			Kind:           kind,
			Adapter:        adapterName,
			ObservationDim: observation.Dim,
			ModelInputDim:  net.InputDim(),
			ActionDim:      action.Dim,
			MaxAction:      net.Bound(),
		},
		adapter: adapter,
		net:     net,
		logger:  logger,
	}, nil
}

// Reset implements Policy. The forward pass is memoryless.
func (p *NetworkPolicy) Reset() {}

// GetAction implements Policy.
func (p *NetworkPolicy) GetAction(observation []float64) ([]float64, error) {
	input, err := p.adapter.Adapt(observation)
	if err != nil {
		return nil, err
	}
	if len(input) != p.net.InputDim() {
		return nil, fmt.Errorf("%w: adapted observation has %d values, model takes %d",
			obs.ErrObservationDim, len(input), p.net.InputDim())
	}
	// tanh and clamp both pass NaN through
	if err := obs.CheckFinite(input); err != nil {
		return nil, err
	}

	out, err := p.net.Forward(mat.NewVecDense(len(input), input))
	if err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}
	action := nn.Slice(out)

	p.logger.Debug().Floats64("action", action).Msg("Selected action")
	return action, nil
}

// Info implements Policy.
func (p *NetworkPolicy) Info() Info {
	return p.info
}
