package train

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/crimson-sun/citepred/internal/config"
	"github.com/crimson-sun/citepred/internal/encoder"
	"github.com/crimson-sun/citepred/internal/model"
	"github.com/crimson-sun/citepred/internal/optim"
	"github.com/crimson-sun/citepred/internal/rng"
)

// ModelConfig records everything needed to rebuild the scoring model from a
// checkpoint without consulting external configuration.
type ModelConfig struct {
	FineTuneMode model.FineTuneMode `json:"fine_tune_mode"`
	DropoutProb  float64            `json:"hidden_dropout_prob"`
	HiddenSize   int                `json:"hidden_size"`
	EncoderKind  string             `json:"encoder"`
	// Encoder is set only for the trainable encoder kind.
	Encoder *encoder.Config `json:"encoder_config,omitempty"`
}

// Checkpoint is the single-file training artifact: every model parameter,
// the optimizer moments, the full run configuration, and the exact state of
// all random generators.
type Checkpoint struct {
	Model       map[string][]float64  `json:"model"`
	Optim       *optim.State          `json:"optim"`
	Args        config.TrainingConfig `json:"args"`
	ModelConfig ModelConfig           `json:"model_config"`
	rng.Snapshot
}

// CheckpointWriteError reports a failed checkpoint write. The training loop
// treats it as fatal; a run whose best model cannot be persisted is lost work.
type CheckpointWriteError struct {
	Path string
	Err  error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("train: write checkpoint %s: %v", e.Path, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Err }

// Capture assembles a checkpoint from the live training state.
func Capture(s *model.Scorer, opt *optim.AdamW, args config.TrainingConfig, rngs *rng.Set) (*Checkpoint, error) {
	snap, err := rngs.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("train: capture checkpoint: %w", err)
	}

	params := make(map[string][]float64)
	for name, p := range s.ParamMap() {
		params[name] = p.Flatten()
	}

	cfg := s.Config()
	mc := ModelConfig{
		FineTuneMode: cfg.Mode,
		DropoutProb:  cfg.DropoutProb,
		HiddenSize:   cfg.HiddenSize,
		EncoderKind:  args.Encoder,
	}
	if b, ok := s.Encoder().(*encoder.Bert); ok {
		bc := b.Config()
		mc.Encoder = &bc
	}

	return &Checkpoint{
		Model:       params,
		Optim:       opt.State(),
		Args:        args,
		ModelConfig: mc,
		Snapshot:    *snap,
	}, nil
}

// Save writes the checkpoint atomically: a temp file in the target directory
// followed by a rename, so a crash never leaves a torn artifact behind.
func Save(path string, ck *Checkpoint) error {
	raw, err := json.MarshalIndent(ck, "", "  ")
	if err != nil {
		return &CheckpointWriteError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &CheckpointWriteError{Path: path, Err: err}
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &CheckpointWriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &CheckpointWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &CheckpointWriteError{Path: path, Err: err}
	}
	return nil
}

// Load reads a checkpoint from disk.
func Load(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("train: read checkpoint %s: %w", path, err)
	}
	var ck Checkpoint
	if err := json.Unmarshal(raw, &ck); err != nil {
		return nil, fmt.Errorf("train: parse checkpoint %s: %w", path, err)
	}
	return &ck, nil
}

// RestoreScorer rebuilds the scoring model described by a checkpoint and
// loads its saved parameters. The rng set's init generator seeds throwaway
// initial weights that the load immediately overwrites.
func RestoreScorer(ck *Checkpoint, rngs *rng.Set) (*model.Scorer, error) {
	var enc encoder.Encoder
	switch ck.ModelConfig.EncoderKind {
	case "bert":
		if ck.ModelConfig.Encoder == nil {
			return nil, fmt.Errorf("train: checkpoint has no encoder config")
		}
		b, err := encoder.NewBert(*ck.ModelConfig.Encoder, rngs.Init)
		if err != nil {
			return nil, fmt.Errorf("train: restore encoder: %w", err)
		}
		enc = b
	case "onnx":
		o, err := encoder.NewONNX(ck.Args.ONNXModelPath)
		if err != nil {
			return nil, fmt.Errorf("train: restore encoder: %w", err)
		}
		enc = o
	default:
		return nil, fmt.Errorf("train: checkpoint names unknown encoder kind %q", ck.ModelConfig.EncoderKind)
	}

	s, err := model.New(enc, model.Config{
		Mode:        ck.ModelConfig.FineTuneMode,
		DropoutProb: ck.ModelConfig.DropoutProb,
		HiddenSize:  ck.ModelConfig.HiddenSize,
	}, rngs)
	if err != nil {
		return nil, err
	}

	live := s.ParamMap()
	for name, vals := range ck.Model {
		p, ok := live[name]
		if !ok {
			return nil, fmt.Errorf("train: checkpoint parameter %q has no destination", name)
		}
		if len(vals) != len(p.Data()) {
			return nil, fmt.Errorf("train: checkpoint parameter %q holds %d values, model expects %d", name, len(vals), len(p.Data()))
		}
		copy(p.Data(), vals)
	}
	for name := range live {
		if _, ok := ck.Model[name]; !ok {
			return nil, fmt.Errorf("train: checkpoint is missing parameter %q", name)
		}
	}
	return s, nil
}

// RestoreOptimizer rebuilds the optimizer over a restored scorer's trainable
// parameters and loads the checkpointed moments, for resuming a run.
func RestoreOptimizer(ck *Checkpoint, s *model.Scorer) (*optim.AdamW, error) {
	opt := optim.NewAdamW(s.TrainableParams(), ck.Args.LearningRate, ck.Args.WeightDecay)
	if err := opt.LoadState(ck.Optim); err != nil {
		return nil, fmt.Errorf("train: restore optimizer: %w", err)
	}
	return opt, nil
}

// Manager persists the best-scoring checkpoint of a run. The baseline is
// zero, so the first save requires a strictly positive dev correlation.
type Manager struct {
	path string
	best float64
}

// NewManager creates a manager writing to path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Best returns the highest correlation persisted so far.
func (m *Manager) Best() float64 { return m.best }

// Consider persists a new checkpoint when corr strictly improves on the best
// so far. NaN never improves. build is only invoked when saving.
func (m *Manager) Consider(corr float64, build func() (*Checkpoint, error)) (bool, error) {
	if math.IsNaN(corr) || corr <= m.best {
		return false, nil
	}
	ck, err := build()
	if err != nil {
		return false, err
	}
	if err := Save(m.path, ck); err != nil {
		return false, err
	}
	m.best = corr
	return true, nil
}
