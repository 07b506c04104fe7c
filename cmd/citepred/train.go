package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/citepred/internal/config"
	"github.com/crimson-sun/citepred/internal/data"
	"github.com/crimson-sun/citepred/internal/encoder"
	"github.com/crimson-sun/citepred/internal/model"
	"github.com/crimson-sun/citepred/internal/optim"
	"github.com/crimson-sun/citepred/internal/rng"
	"github.com/crimson-sun/citepred/internal/train"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fine-tune the scoring model on a labeled training split",
	RunE:  runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rngs := rng.NewSet(cfg.Seed)

	tok, err := encoder.NewTokenizer(cfg.VocabPath)
	if err != nil {
		return err
	}

	trainRecords, cardinality, err := data.LoadTrainRecords(cfg.TrainPath)
	if err != nil {
		return err
	}
	devRecords, err := data.LoadRecords(cfg.DevPath, data.Valid)
	if err != nil {
		return err
	}
	slog.Info("training data ready",
		"train", len(trainRecords),
		"dev", len(devRecords),
		"distinct_labels", cardinality,
	)

	asm := data.NewAssembler(tok, cfg.BatchSize)
	trainBatches, err := asm.AssembleAll(trainRecords)
	if err != nil {
		return err
	}
	devBatches, err := asm.AssembleAll(devRecords)
	if err != nil {
		return err
	}

	enc, err := buildEncoder(cfg, tok, rngs)
	if err != nil {
		return err
	}
	if c, ok := enc.(interface{ Close() error }); ok {
		defer c.Close()
	}

	scorer, err := model.New(enc, model.Config{
		Mode:        model.FineTuneMode(cfg.FineTuneMode),
		DropoutProb: cfg.DropoutProb,
		HiddenSize:  cfg.HiddenSize,
	}, rngs)
	if err != nil {
		return err
	}

	opt := optim.NewAdamW(scorer.TrainableParams(), cfg.LearningRate, cfg.WeightDecay)
	mgr := train.NewManager(cfg.CheckpointPath)

	t := train.NewTrainer(scorer, opt, mgr, rngs, cfg, trainBatches, devBatches)
	if err := t.Run(); err != nil {
		return err
	}
	slog.Info("training complete", "best_dev_corr", mgr.Best(), "checkpoint", cfg.CheckpointPath)
	return nil
}

// buildEncoder constructs the configured encoder. The trainable encoder loads
// pretrained weights when the snapshot file exists and otherwise starts from
// random initialization.
func buildEncoder(cfg config.TrainingConfig, tok *encoder.Tokenizer, rngs *rng.Set) (encoder.Encoder, error) {
	switch cfg.Encoder {
	case "bert":
		if _, err := os.Stat(cfg.PretrainedPath); err == nil {
			slog.Info("loading pretrained encoder", "path", cfg.PretrainedPath)
			b, err := encoder.LoadPretrained(cfg.PretrainedPath, rngs.Init)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
		bc := encoder.DefaultConfig(tok.VocabSize())
		if cfg.HiddenSize != bc.HiddenSize {
			bc.HiddenSize = cfg.HiddenSize
			bc.IntermediateSize = 4 * cfg.HiddenSize
		}
		slog.Info("initializing fresh encoder", "hidden_size", bc.HiddenSize, "layers", bc.NumLayers)
		b, err := encoder.NewBert(bc, rngs.Init)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "onnx":
		o, err := encoder.NewONNX(cfg.ONNXModelPath)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unknown encoder kind %q", cfg.Encoder)
	}
}
