// Package config defines the immutable training configuration. A config is
// read once at startup from an optional YAML file plus environment
// overrides, validated, and never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TrainingConfig enumerates every knob of a run. The same value is persisted
// verbatim inside checkpoints so inference never re-derives configuration.
type TrainingConfig struct {
	// FineTuneMode is "head-only" or "full-model".
	FineTuneMode string  `yaml:"fine_tune_mode" json:"fine_tune_mode"`
	DropoutProb  float64 `yaml:"hidden_dropout_prob" json:"hidden_dropout_prob"`
	HiddenSize   int     `yaml:"hidden_size" json:"hidden_size"`
	LearningRate float64 `yaml:"lr" json:"lr"`
	WeightDecay  float64 `yaml:"weight_decay" json:"weight_decay"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	Seed         uint64  `yaml:"seed" json:"seed"`

	// Encoder is "bert" (trainable pure-Go encoder) or "onnx" (frozen
	// pretrained encoder; head-only fine-tuning only).
	Encoder        string `yaml:"encoder" json:"encoder"`
	PretrainedPath string `yaml:"pretrained_path" json:"pretrained_path"`
	ONNXModelPath  string `yaml:"onnx_model_path" json:"onnx_model_path"`
	VocabPath      string `yaml:"vocab_path" json:"vocab_path"`

	TrainPath string `yaml:"train" json:"train"`
	DevPath   string `yaml:"dev" json:"dev"`
	TestPath  string `yaml:"test" json:"test"`

	CheckpointPath string `yaml:"filepath" json:"filepath"`
	DevOutPath     string `yaml:"dev_out" json:"dev_out"`
	TestOutPath    string `yaml:"test_out" json:"test_out"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// Default returns the baseline configuration.
func Default() TrainingConfig {
	return TrainingConfig{
		FineTuneMode:   "full-model",
		DropoutProb:    0.3,
		HiddenSize:     128,
		LearningRate:   1e-3,
		WeightDecay:    0.0,
		BatchSize:      8,
		Epochs:         10,
		Seed:           11711,
		Encoder:        "bert",
		PretrainedPath: "models/encoder.json",
		VocabPath:      "models/vocab.txt",
		TrainPath:      "data/train.tsv",
		DevPath:        "data/dev.tsv",
		TestPath:       "data/test.tsv",
		CheckpointPath: "cite-scorer.ckpt",
		DevOutPath:     "predictions/dev-out.csv",
		TestOutPath:    "predictions/test-out.csv",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds a config from defaults, an optional YAML file, and CITEPRED_*
// environment overrides, then validates it.
func Load(path string) (TrainingConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays CITEPRED_* environment variables onto the config.
func applyEnv(cfg *TrainingConfig) {
	cfg.FineTuneMode = getenv("CITEPRED_FINE_TUNE_MODE", cfg.FineTuneMode)
	cfg.DropoutProb = getenvFloat("CITEPRED_DROPOUT", cfg.DropoutProb)
	cfg.HiddenSize = getenvInt("CITEPRED_HIDDEN_SIZE", cfg.HiddenSize)
	cfg.LearningRate = getenvFloat("CITEPRED_LR", cfg.LearningRate)
	cfg.WeightDecay = getenvFloat("CITEPRED_WEIGHT_DECAY", cfg.WeightDecay)
	cfg.BatchSize = getenvInt("CITEPRED_BATCH_SIZE", cfg.BatchSize)
	cfg.Epochs = getenvInt("CITEPRED_EPOCHS", cfg.Epochs)
	cfg.Seed = getenvUint("CITEPRED_SEED", cfg.Seed)
	cfg.Encoder = getenv("CITEPRED_ENCODER", cfg.Encoder)
	cfg.PretrainedPath = getenv("CITEPRED_PRETRAINED_PATH", cfg.PretrainedPath)
	cfg.ONNXModelPath = getenv("CITEPRED_ONNX_MODEL_PATH", cfg.ONNXModelPath)
	cfg.VocabPath = getenv("CITEPRED_VOCAB_PATH", cfg.VocabPath)
	cfg.TrainPath = getenv("CITEPRED_TRAIN", cfg.TrainPath)
	cfg.DevPath = getenv("CITEPRED_DEV", cfg.DevPath)
	cfg.TestPath = getenv("CITEPRED_TEST", cfg.TestPath)
	cfg.CheckpointPath = getenv("CITEPRED_CHECKPOINT", cfg.CheckpointPath)
	cfg.DevOutPath = getenv("CITEPRED_DEV_OUT", cfg.DevOutPath)
	cfg.TestOutPath = getenv("CITEPRED_TEST_OUT", cfg.TestOutPath)
	cfg.LogLevel = getenv("CITEPRED_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("CITEPRED_LOG_FORMAT", cfg.LogFormat)
}

// Validate rejects configurations outside the defined variants.
func (c TrainingConfig) Validate() error {
	if c.FineTuneMode != "head-only" && c.FineTuneMode != "full-model" {
		return fmt.Errorf("config: fine_tune_mode must be \"head-only\" or \"full-model\", got %q", c.FineTuneMode)
	}
	if c.Encoder != "bert" && c.Encoder != "onnx" {
		return fmt.Errorf("config: encoder must be \"bert\" or \"onnx\", got %q", c.Encoder)
	}
	if c.Encoder == "onnx" && c.FineTuneMode == "full-model" {
		return fmt.Errorf("config: the onnx encoder is frozen and cannot be fine-tuned in full-model mode")
	}
	if c.DropoutProb < 0 || c.DropoutProb >= 1 {
		return fmt.Errorf("config: hidden_dropout_prob %g outside [0,1)", c.DropoutProb)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("config: epochs must be >= 1, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("config: lr must be positive, got %g", c.LearningRate)
	}
	if c.HiddenSize < 1 {
		return fmt.Errorf("config: hidden_size must be >= 1, got %d", c.HiddenSize)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvUint(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
