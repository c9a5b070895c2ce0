package weights

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// getter is satisfied by the gopickle dict types.
type getter interface {
	Get(key interface{}) (interface{}, bool)
}

func loadTorch(path string, sections []string) (StateDict, error) {
	raw, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrFormat, path, err)
	}

	sd := make(StateDict)
	if len(sections) == 0 {
		if err := flattenTorch(sd, "", raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return sd, nil
	}

	container, ok := raw.(getter)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T, want a dict of state dicts", ErrFormat, path, raw)
	}
	for _, section := range sections {
		sub, ok := container.Get(section)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no section %q", ErrFormat, path, section)
		}
		if err := flattenTorch(sd, section+".", sub); err != nil {
			return nil, fmt.Errorf("%s section %q: %w", path, section, err)
		}
	}
	return sd, nil
}

func flattenTorch(sd StateDict, prefix string, v interface{}) error {
	dict, ok := v.(*types.OrderedDict)
	if !ok {
		return fmt.Errorf("%w: got %T, want a state dict", ErrFormat, v)
	}
	for key, entry := range dict.Map {
		name, ok := key.(string)
		if !ok {
			continue
		}
		t, ok := entry.Value.(*pytorch.Tensor)
		if !ok {
			// optimizer state and _metadata entries are not parameters
			continue
		}
		tensor, err := fromTorch(t)
		if err != nil {
			return fmt.Errorf("%s%s: %w", prefix, name, err)
		}
		sd[prefix+name] = tensor
	}
	return nil
}

func fromTorch(t *pytorch.Tensor) (*Tensor, error) {
	shape := append([]int(nil), t.Size...)
	out := &Tensor{Shape: shape}
	n := out.NumElements()

	// parameters saved from nn.Linear are contiguous; anything else would
	// need a strided gather
	expected := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if len(t.Stride) == len(shape) && shape[i] > 1 && t.Stride[i] != expected {
			return nil, fmt.Errorf("%w: non-contiguous tensor (stride %v)", ErrFormat, t.Stride)
		}
		expected *= shape[i]
	}

	lo, hi := t.StorageOffset, t.StorageOffset+n
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		if hi > len(s.Data) {
			return nil, fmt.Errorf("%w: storage holds %d values, need %d", ErrShape, len(s.Data), hi)
		}
		out.Data = make([]float64, n)
		for i, f := range s.Data[lo:hi] {
			out.Data[i] = float64(f)
		}
	case *pytorch.HalfStorage:
		if hi > len(s.Data) {
			return nil, fmt.Errorf("%w: storage holds %d values, need %d", ErrShape, len(s.Data), hi)
		}
		out.Data = make([]float64, n)
		for i, f := range s.Data[lo:hi] {
			out.Data[i] = float64(f)
		}
	case *pytorch.DoubleStorage:
		if hi > len(s.Data) {
			return nil, fmt.Errorf("%w: storage holds %d values, need %d", ErrShape, len(s.Data), hi)
		}
		out.Data = append([]float64(nil), s.Data[lo:hi]...)
	default:
		return nil, fmt.Errorf("%w: storage type %T", ErrFormat, t.Source)
	}
	return out, nil
}
