package weights

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type jsonFile struct {
	Tensors map[string]*Tensor `json:"tensors"`
}

func loadJSON(path string, sections []string) (StateDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file jsonFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrFormat, path, err)
	}
	if len(file.Tensors) == 0 {
		return nil, fmt.Errorf("%w: %s has no tensors", ErrFormat, path)
	}

	sd := make(StateDict, len(file.Tensors))
	for name, t := range file.Tensors {
		if t == nil || t.NumElements() != len(t.Data) {
			return nil, fmt.Errorf("%w: %s in %s", ErrShape, name, path)
		}
		sd[name] = t
	}

	// JSON exports are already flat; sections only need to exist
	for _, section := range sections {
		found := false
		for name := range sd {
			if strings.HasPrefix(name, section+".") {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s has no section %q", ErrFormat, path, section)
		}
	}
	return sd, nil
}

// SaveJSON writes sd in the JSON exchange format read by Load.
func SaveJSON(path string, sd StateDict) error {
	data, err := json.Marshal(jsonFile{Tensors: sd})
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
