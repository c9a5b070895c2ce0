package weights

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// EncoderFactory is the encoder description d3rlpy writes into params.json.
type EncoderFactory struct {
	Type   string `json:"type"`
	Params struct {
		HiddenUnits  []int  `json:"hidden_units"`
		Activation   string `json:"activation"`
		UseBatchNorm bool   `json:"use_batch_norm"`
	} `json:"params"`
}

// Activation returns the configured activation name, defaulting to relu.
func (f *EncoderFactory) Activation() string {
	if f == nil || f.Params.Activation == "" {
		return "relu"
	}
	return f.Params.Activation
}

// Params is the subset of a d3rlpy params.json the policies need.
type Params struct {
	ObservationShape       []int           `json:"observation_shape"`
	ActionSize             int             `json:"action_size"`
	EncoderFactory         *EncoderFactory `json:"encoder_factory"`
	ActorEncoderFactory    *EncoderFactory `json:"actor_encoder_factory"`
	ImitatorEncoderFactory *EncoderFactory `json:"imitator_encoder_factory"`
	Scaler                 json.RawMessage `json:"scaler"`
	ActionScaler           json.RawMessage `json:"action_scaler"`
}

// ObservationDim returns the flat observation size.
func (p *Params) ObservationDim() int {
	n := 1
	for _, d := range p.ObservationShape {
		n *= d
	}
	return n
}

// LoadParams reads and validates a d3rlpy params file.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrFormat, path, err)
	}
	if len(p.ObservationShape) == 0 || p.ActionSize <= 0 {
		return nil, fmt.Errorf("%w: %s lacks observation_shape or action_size", ErrFormat, path)
	}
	// scalers change the input/output space and are not reproduced here
	if isSet(p.Scaler) || isSet(p.ActionScaler) {
		return nil, fmt.Errorf("%w: %s uses a scaler", ErrFormat, path)
	}
	for _, f := range []*EncoderFactory{p.EncoderFactory, p.ActorEncoderFactory, p.ImitatorEncoderFactory} {
		if f != nil && f.Params.UseBatchNorm {
			return nil, fmt.Errorf("%w: %s uses a batch norm encoder", ErrFormat, path)
		}
	}
	return &p, nil
}

func isSet(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
