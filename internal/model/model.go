// Package model attaches a scalar regression head to a pretrained encoder.
package model

import (
	"fmt"

	"github.com/crimson-sun/citepred/internal/encoder"
	"github.com/crimson-sun/citepred/internal/rng"
	"github.com/crimson-sun/citepred/internal/tensor"
)

// FineTuneMode governs whether encoder parameters receive gradient updates.
// The mode is fixed at construction; changing it requires a new instance.
type FineTuneMode string

const (
	// HeadOnly freezes every encoder parameter; only the head trains.
	HeadOnly FineTuneMode = "head-only"
	// FullModel trains encoder and head together.
	FullModel FineTuneMode = "full-model"
)

// Config holds the scoring head settings.
type Config struct {
	Mode        FineTuneMode `json:"fine_tune_mode"`
	DropoutProb float64      `json:"hidden_dropout_prob"`
	HiddenSize  int          `json:"hidden_size"`
}

// Validate checks the config against the defined fine-tune modes.
func (c Config) Validate() error {
	if c.Mode != HeadOnly && c.Mode != FullModel {
		return fmt.Errorf("model: fine-tune mode must be %q or %q, got %q", HeadOnly, FullModel, c.Mode)
	}
	if c.DropoutProb < 0 || c.DropoutProb >= 1 {
		return fmt.Errorf("model: dropout probability %g outside [0,1)", c.DropoutProb)
	}
	if c.HiddenSize < 1 {
		return fmt.Errorf("model: invalid hidden size %d", c.HiddenSize)
	}
	return nil
}

// Scorer maps token batches to one scalar score per example: encoder pooled
// representation, dropout (training only), then a single linear projection.
type Scorer struct {
	enc encoder.Encoder
	cfg Config

	headW *tensor.Tensor // [hidden, 1]
	headB *tensor.Tensor // [1, 1]

	training bool
	rngs     *rng.Set
}

// New constructs a Scorer and applies the fine-tune policy once. In
// head-only mode every encoder parameter is frozen before any forward pass
// can build a graph through it.
func New(enc encoder.Encoder, cfg Config, rngs *rng.Set) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if enc.HiddenSize() != cfg.HiddenSize {
		return nil, fmt.Errorf("model: encoder hidden size %d does not match configured %d", enc.HiddenSize(), cfg.HiddenSize)
	}
	if cfg.Mode == FullModel && len(enc.Params()) == 0 {
		return nil, fmt.Errorf("model: full-model fine-tuning requires a trainable encoder")
	}

	if cfg.Mode == HeadOnly {
		for _, p := range enc.Params() {
			p.Freeze()
		}
	}

	s := &Scorer{
		enc:   enc,
		cfg:   cfg,
		headW: tensor.Param(cfg.HiddenSize, 1),
		headB: tensor.Param(1, 1),
		rngs:  rngs,
	}
	s.headW.XavierInit(rngs.Init)
	return s, nil
}

// Forward returns [batch, 1] logits, one scalar score per example.
func (s *Scorer) Forward(ids, mask [][]int64) (*tensor.Tensor, error) {
	out, err := s.enc.Forward(ids, mask, s.training)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	x := tensor.Dropout(out.Pooled, s.cfg.DropoutProb, s.rngs.Dropout, s.training)
	return tensor.AddBias(tensor.MatMul(x, s.headW), s.headB), nil
}

// SetTraining toggles the dropout-active flag. It mutates nothing else; the
// evaluator flips it off for an inference pass and restores it afterwards.
func (s *Scorer) SetTraining(training bool) { s.training = training }

// Training reports whether dropout is active.
func (s *Scorer) Training() bool { return s.training }

// Config returns the head configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Encoder returns the wrapped encoder.
func (s *Scorer) Encoder() encoder.Encoder { return s.enc }

// TrainableParams returns the parameters the optimizer should update: the
// head always, the encoder only in full-model mode.
func (s *Scorer) TrainableParams() []*tensor.Tensor {
	params := []*tensor.Tensor{s.headW, s.headB}
	if s.cfg.Mode == FullModel {
		params = append(s.enc.Params(), params...)
	}
	return params
}

// ParamMap returns all persistable parameters keyed by stable names,
// including frozen encoder parameters so a checkpoint is self-contained.
func (s *Scorer) ParamMap() map[string]*tensor.Tensor {
	m := map[string]*tensor.Tensor{
		"classifier.weight": s.headW,
		"classifier.bias":   s.headB,
	}
	for name, p := range s.enc.ParamMap() {
		m["encoder."+name] = p
	}
	return m
}
