package policy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cartridge/rrc-policy/internal/config"
	"github.com/cartridge/rrc-policy/internal/model"
	"github.com/cartridge/rrc-policy/internal/nn"
	"github.com/cartridge/rrc-policy/internal/obs"
	"github.com/cartridge/rrc-policy/internal/weights"
)

// d3rlpy heads end in an unscaled tanh.
const d3rlpyActionBound = 1.0

// New loads the model described by cfg and returns a ready policy. Space
// dimensions of zero fall back to cfg. Any load or shape failure is
// returned; a partially loaded policy is never handed out.
func New(cfg config.PolicyConfig, action, observation Space, episodeLength int, logger zerolog.Logger) (Policy, error) {
	if action.Dim == 0 {
		action.Dim = cfg.ActionDim
	}
	if observation.Dim == 0 {
		observation.Dim = cfg.ObservationDim
	}
	logger = logger.With().Str("component", "policy").Str("kind", cfg.Kind).Logger()

	kind := Kind(cfg.Kind)
	if kind == KindRandom {
		return NewRandom(action, observation, cfg.MaxAction, cfg.Seed)
	}

	adapter, err := obs.Preset(cfg.Adapter)
	if err != nil {
		return nil, err
	}

	var net model.Network
	switch kind {
	case KindBehaviorCloning:
		net, err = loadBehaviorCloning(cfg, logger)
	case KindPLAS:
		net, err = loadPLAS(cfg, logger)
	case KindLatent, KindLatentPerturbation:
		net, err = loadLatent(kind, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	p, err := NewNetwork(kind, cfg.Adapter, adapter, net, observation, action, logger)
	if err != nil {
		return nil, err
	}
	p.info.EpisodeLength = episodeLength
	warnIfUnreachable(action, net.Bound(), logger)

	logger.Info().
		Str("adapter", cfg.Adapter).
		Int("observation_dim", observation.Dim).
		Int("model_input_dim", net.InputDim()).
		Int("action_dim", net.OutputDim()).
		Float64("max_action", net.Bound()).
		Msg("Policy ready")
	return p, nil
}

func loadBehaviorCloning(cfg config.PolicyConfig, logger zerolog.Logger) (model.Network, error) {
	params, sd, err := loadD3RLPY(cfg, logger, model.SectionImitator)
	if err != nil {
		return nil, err
	}
	hidden, err := nn.ActivationByName(params.EncoderFactory.Activation())
	if err != nil {
		return nil, err
	}
	net, err := model.NewBehaviorCloning(sd, hidden, d3rlpyActionBound)
	if err != nil {
		return nil, err
	}
	return net, checkParams(params, net)
}

func loadPLAS(cfg config.PolicyConfig, logger zerolog.Logger) (model.Network, error) {
	params, sd, err := loadD3RLPY(cfg, logger, model.SectionPolicy, model.SectionImitator)
	if err != nil {
		return nil, err
	}
	actorHidden, err := nn.ActivationByName(params.ActorEncoderFactory.Activation())
	if err != nil {
		return nil, err
	}
	imitatorHidden, err := nn.ActivationByName(params.ImitatorEncoderFactory.Activation())
	if err != nil {
		return nil, err
	}
	net, err := model.NewPLAS(sd, actorHidden, imitatorHidden, d3rlpyActionBound)
	if err != nil {
		return nil, err
	}
	return net, checkParams(params, net)
}

func loadD3RLPY(cfg config.PolicyConfig, logger zerolog.Logger, sections ...string) (*weights.Params, weights.StateDict, error) {
	paramsPath := cfg.Path(cfg.ParamsFile)
	weightsPath := cfg.Path(cfg.WeightsFile)
	logger.Info().Str("params", paramsPath).Str("weights", weightsPath).Msg("Loading model")

	params, err := weights.LoadParams(paramsPath)
	if err != nil {
		return nil, nil, err
	}
	sd, err := weights.Load(weightsPath, sections...)
	if err != nil {
		return nil, nil, err
	}
	return params, sd, nil
}

func checkParams(params *weights.Params, net model.Network) error {
	if params.ObservationDim() != net.InputDim() || params.ActionSize != net.OutputDim() {
		return fmt.Errorf("%w: params declare %d->%d, weights are %d->%d", weights.ErrShape,
			params.ObservationDim(), params.ActionSize, net.InputDim(), net.OutputDim())
	}
	return nil
}

func loadLatent(kind Kind, cfg config.PolicyConfig, logger zerolog.Logger) (model.Network, error) {
	actorPath := cfg.Path(cfg.ActorFile)
	decoderPath := cfg.Path(cfg.DecoderFile)
	logger.Info().Str("actor", actorPath).Str("vae", decoderPath).Msg("Loading model")

	actorSD, err := weights.Load(actorPath)
	if err != nil {
		return nil, err
	}
	vaeSD, err := weights.Load(decoderPath)
	if err != nil {
		return nil, err
	}
	decoder, err := model.NewVAEDecoder(vaeSD, cfg.LatentDim, cfg.MaxAction)
	if err != nil {
		return nil, err
	}

	if kind == KindLatentPerturbation {
		return model.NewPerturbed(actorSD, decoder, cfg.MaxLatentAction, cfg.Phi, cfg.MaxAction)
	}
	actor, err := model.NewActor(actorSD, cfg.MaxLatentAction)
	if err != nil {
		return nil, err
	}
	return model.NewLatent(actor, decoder)
}

// warnIfUnreachable logs when the space bounds are tighter than the model
// bound. The bounds are advisory; actions are not clipped to them.
func warnIfUnreachable(action Space, bound float64, logger zerolog.Logger) {
	for i, high := range action.High {
		if high < bound {
			logger.Warn().Int("joint", i).Float64("high", high).Float64("model_bound", bound).
				Msg("Action space bound is tighter than the model bound")
			return
		}
	}
}
