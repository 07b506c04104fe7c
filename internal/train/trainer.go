package train

import (
	"fmt"
	"log/slog"

	"github.com/crimson-sun/citepred/internal/config"
	"github.com/crimson-sun/citepred/internal/data"
	"github.com/crimson-sun/citepred/internal/model"
	"github.com/crimson-sun/citepred/internal/optim"
	"github.com/crimson-sun/citepred/internal/rng"
	"github.com/crimson-sun/citepred/internal/tensor"
)

// Trainer runs the fine-tuning loop over pre-assembled batches. Batches keep
// their contents fixed across epochs; only their visiting order is shuffled.
type Trainer struct {
	scorer *model.Scorer
	opt    *optim.AdamW
	mgr    *Manager
	rngs   *rng.Set
	cfg    config.TrainingConfig

	trainBatches []*data.Batch
	devBatches   []*data.Batch
}

// NewTrainer wires the training loop together.
func NewTrainer(s *model.Scorer, opt *optim.AdamW, mgr *Manager, rngs *rng.Set, cfg config.TrainingConfig, trainBatches, devBatches []*data.Batch) *Trainer {
	return &Trainer{
		scorer:       s,
		opt:          opt,
		mgr:          mgr,
		rngs:         rngs,
		cfg:          cfg,
		trainBatches: trainBatches,
		devBatches:   devBatches,
	}
}

// Run executes the configured number of epochs. Each epoch shuffles the batch
// order, steps the optimizer once per batch, evaluates train and dev, and
// hands the dev correlation to the checkpoint manager.
func (t *Trainer) Run() error {
	initial, err := Evaluate(t.scorer, t.devBatches, t.cfg.BatchSize)
	if err != nil {
		return err
	}
	slog.Info("initial evaluation", "dev_corr", initial.Correlation, "dev_loss", initial.Loss)

	order := make([]int, len(t.trainBatches))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.scorer.SetTraining(true)
		t.rngs.Shuffle.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		var lossSum float64
		for _, idx := range order {
			b := t.trainBatches[idx]
			loss, err := t.step(b)
			if err != nil {
				return fmt.Errorf("train: epoch %d: %w", epoch, err)
			}
			lossSum += loss
		}
		trainLoss := 0.0
		if len(order) > 0 {
			trainLoss = lossSum / float64(len(order))
		}
		t.scorer.SetTraining(false)

		trainRes, err := Evaluate(t.scorer, t.trainBatches, t.cfg.BatchSize)
		if err != nil {
			return err
		}
		devRes, err := Evaluate(t.scorer, t.devBatches, t.cfg.BatchSize)
		if err != nil {
			return err
		}

		saved, err := t.mgr.Consider(devRes.Correlation, func() (*Checkpoint, error) {
			return Capture(t.scorer, t.opt, t.cfg, t.rngs)
		})
		if err != nil {
			return err
		}

		slog.Info("epoch complete",
			"epoch", epoch,
			"train_loss", trainLoss,
			"train_corr", trainRes.Correlation,
			"dev_corr", devRes.Correlation,
			"best_dev_corr", t.mgr.Best(),
			"saved", saved,
		)
	}
	return nil
}

// step runs forward, backward, and one optimizer update on a single batch,
// returning the batch loss.
func (t *Trainer) step(b *data.Batch) (float64, error) {
	if b.Labels == nil {
		return 0, fmt.Errorf("unlabeled batch in training set")
	}
	t.opt.ZeroGrad()
	logits, err := t.scorer.Forward(b.TokenIDs, b.AttentionMask)
	if err != nil {
		return 0, err
	}
	loss := tensor.Scale(tensor.MSE(logits, b.Labels), 1/float64(t.cfg.BatchSize))
	loss.Backward()
	t.opt.Step()
	return loss.Item(), nil
}
