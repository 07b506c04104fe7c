package train

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/crimson-sun/citepred/internal/config"
	"github.com/crimson-sun/citepred/internal/data"
	"github.com/crimson-sun/citepred/internal/model"
	"github.com/crimson-sun/citepred/internal/optim"
	"github.com/crimson-sun/citepred/internal/rng"
	"github.com/crimson-sun/citepred/internal/tensor"
)

func captureArgs() config.TrainingConfig {
	cfg := config.Default()
	cfg.HiddenSize = 8
	cfg.BatchSize = 2
	return cfg
}

func TestCheckpointRoundTrip(t *testing.T) {
	rngs := rng.NewSet(11711)
	s := newTinyScorer(t, model.FullModel, rngs)
	opt := optim.NewAdamW(s.TrainableParams(), 1e-3, 0.01)

	ck, err := Capture(s, opt, captureArgs(), rngs)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.ckpt")
	if err := Save(path, ck); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	restoreRngs := rng.NewSet(999)
	if err := restoreRngs.Restore(&loaded.Snapshot); err != nil {
		t.Fatalf("restore rng: %v", err)
	}
	restored, err := RestoreScorer(loaded, restoreRngs)
	if err != nil {
		t.Fatalf("restore scorer: %v", err)
	}

	// Identical parameters must produce identical inference scores.
	b := makeBatch([]string{"a", "b"}, nil)
	want, _, err := Predict(s, []*data.Batch{b})
	if err != nil {
		t.Fatalf("predict original: %v", err)
	}
	got, _, err := Predict(restored, []*data.Batch{b})
	if err != nil {
		t.Fatalf("predict restored: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("restored model diverges: %v vs %v", want, got)
		}
	}
}

func TestRestoreOptimizer(t *testing.T) {
	rngs := rng.NewSet(11711)
	s := newTinyScorer(t, model.FullModel, rngs)
	opt := optim.NewAdamW(s.TrainableParams(), 1e-3, 0.01)

	// Take a few steps so the moments are non-trivial.
	b := makeBatch([]string{"a", "b"}, []float64{1, 2})
	for i := 0; i < 2; i++ {
		logits, err := s.Forward(b.TokenIDs, b.AttentionMask)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		opt.ZeroGrad()
		tensor.MSE(logits, []float64{1, 2}).Backward()
		opt.Step()
	}

	ck, err := Capture(s, opt, captureArgs(), rngs)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	restoreRngs := rng.NewSet(1)
	if err := restoreRngs.Restore(&ck.Snapshot); err != nil {
		t.Fatalf("restore rng: %v", err)
	}
	restored, err := RestoreScorer(ck, restoreRngs)
	if err != nil {
		t.Fatalf("restore scorer: %v", err)
	}
	if _, err := RestoreOptimizer(ck, restored); err != nil {
		t.Fatalf("restore optimizer: %v", err)
	}
}

func TestRestoreScorerRejectsMissingParameter(t *testing.T) {
	rngs := rng.NewSet(1)
	s := newTinyScorer(t, model.HeadOnly, rngs)
	opt := optim.NewAdamW(s.TrainableParams(), 1e-3, 0)

	ck, err := Capture(s, opt, captureArgs(), rngs)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	delete(ck.Model, "classifier.bias")

	if _, err := RestoreScorer(ck, rng.NewSet(1)); err == nil {
		t.Fatal("expected error for checkpoint missing a parameter")
	}
}

func TestSaveIntoMissingDirectory(t *testing.T) {
	rngs := rng.NewSet(1)
	s := newTinyScorer(t, model.HeadOnly, rngs)
	opt := optim.NewAdamW(s.TrainableParams(), 1e-3, 0)

	ck, err := Capture(s, opt, captureArgs(), rngs)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	err = Save(filepath.Join(t.TempDir(), "no", "such", "dir", "model.ckpt"), ck)
	var cwe *CheckpointWriteError
	if !errors.As(err, &cwe) {
		t.Fatalf("expected CheckpointWriteError, got %v", err)
	}
}

func TestManagerStrictImprovement(t *testing.T) {
	rngs := rng.NewSet(11711)
	s := newTinyScorer(t, model.HeadOnly, rngs)
	opt := optim.NewAdamW(s.TrainableParams(), 1e-3, 0)
	path := filepath.Join(t.TempDir(), "best.ckpt")
	mgr := NewManager(path)

	build := func() (*Checkpoint, error) {
		return Capture(s, opt, captureArgs(), rngs)
	}

	cases := []struct {
		corr float64
		want bool
	}{
		{math.NaN(), false},
		{-0.3, false},
		{0, false},
		{0.5, true},
		{0.5, false},
		{0.4, false},
		{0.6, true},
	}
	for _, tc := range cases {
		saved, err := mgr.Consider(tc.corr, build)
		if err != nil {
			t.Fatalf("consider %g: %v", tc.corr, err)
		}
		if saved != tc.want {
			t.Fatalf("consider %g: saved %v, want %v (best %g)", tc.corr, saved, tc.want, mgr.Best())
		}
	}
	if mgr.Best() != 0.6 {
		t.Fatalf("best %g, want 0.6", mgr.Best())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}
}

func TestManagerNeverSavesWithoutImprovement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.ckpt")
	mgr := NewManager(path)

	builds := 0
	build := func() (*Checkpoint, error) {
		builds++
		return nil, errors.New("must not be called")
	}
	for _, corr := range []float64{math.NaN(), -1, 0} {
		if saved, _ := mgr.Consider(corr, build); saved {
			t.Fatalf("saved at corr %g", corr)
		}
	}
	if builds != 0 {
		t.Fatalf("build invoked %d times for non-improving scores", builds)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("checkpoint file exists despite no improvement")
	}
}
