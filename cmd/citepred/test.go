package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/citepred/internal/data"
	"github.com/crimson-sun/citepred/internal/encoder"
	"github.com/crimson-sun/citepred/internal/output"
	"github.com/crimson-sun/citepred/internal/rng"
	"github.com/crimson-sun/citepred/internal/train"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Score dev and test splits with the best saved checkpoint",
	RunE:  runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ck, err := train.Load(cfg.CheckpointPath)
	if err != nil {
		return err
	}

	rngs := rng.NewSet(cfg.Seed)
	if err := rngs.Restore(&ck.Snapshot); err != nil {
		return err
	}

	scorer, err := train.RestoreScorer(ck, rngs)
	if err != nil {
		return err
	}
	if c, ok := scorer.Encoder().(interface{ Close() error }); ok {
		defer c.Close()
	}

	tok, err := encoder.NewTokenizer(ck.Args.VocabPath)
	if err != nil {
		return err
	}
	asm := data.NewAssembler(tok, ck.Args.BatchSize)

	devRecords, err := data.LoadRecords(cfg.DevPath, data.Valid)
	if err != nil {
		return err
	}
	devBatches, err := asm.AssembleAll(devRecords)
	if err != nil {
		return err
	}
	devRes, err := train.Evaluate(scorer, devBatches, ck.Args.BatchSize)
	if err != nil {
		return err
	}
	slog.Info("dev evaluation", "corr", devRes.Correlation, "loss", devRes.Loss)
	if err := output.WritePredictions(cfg.DevOutPath, devRes.IDs, devRes.Predictions); err != nil {
		return err
	}

	testRecords, err := data.LoadRecords(cfg.TestPath, data.Test)
	if err != nil {
		return err
	}
	testBatches, err := asm.AssembleAll(testRecords)
	if err != nil {
		return err
	}
	preds, ids, err := train.Predict(scorer, testBatches)
	if err != nil {
		return err
	}
	if err := output.WritePredictions(cfg.TestOutPath, ids, preds); err != nil {
		return err
	}
	slog.Info("predictions written", "dev", cfg.DevOutPath, "test", cfg.TestOutPath)
	return nil
}
