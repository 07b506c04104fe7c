package encoder

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
)

// snapshot is the on-disk form of a pretrained encoder: the configuration
// plus every parameter tensor as a flat slice keyed by its stable name.
type snapshot struct {
	Config Config               `json:"config"`
	Params map[string][]float64 `json:"params"`
}

// LoadPretrained reconstructs a Bert encoder from a JSON snapshot file. The
// snapshot config is validated before any weights are touched; every named
// parameter must be present with the exact expected size.
func LoadPretrained(path string, init *rand.Rand) (*Bert, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("encoder: read pretrained snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("encoder: parse pretrained snapshot: %w", err)
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, fmt.Errorf("encoder: pretrained snapshot: %w", err)
	}

	b, err := NewBert(snap.Config, init)
	if err != nil {
		return nil, err
	}
	if err := b.LoadParams(snap.Params); err != nil {
		return nil, fmt.Errorf("encoder: pretrained snapshot: %w", err)
	}
	return b, nil
}

// SaveSnapshot writes the encoder's configuration and weights as a JSON
// snapshot usable by LoadPretrained.
func (b *Bert) SaveSnapshot(path string) error {
	snap := snapshot{Config: b.cfg, Params: make(map[string][]float64)}
	for name, p := range b.ParamMap() {
		snap.Params[name] = p.Flatten()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoder: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("encoder: write snapshot: %w", err)
	}
	return nil
}

// LoadParams copies named flat parameter values into the encoder's tensors.
func (b *Bert) LoadParams(params map[string][]float64) error {
	for name, dst := range b.ParamMap() {
		src, ok := params[name]
		if !ok {
			return fmt.Errorf("missing parameter %q", name)
		}
		if len(src) != len(dst.Data()) {
			return fmt.Errorf("parameter %q has %d values, want %d", name, len(src), len(dst.Data()))
		}
		copy(dst.Data(), src)
	}
	return nil
}
