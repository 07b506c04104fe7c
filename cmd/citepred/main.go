// citepred fine-tunes a transformer encoder to predict citation scores from
// paper abstracts, and scores new abstracts with a trained checkpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/citepred/internal/config"
	"github.com/crimson-sun/citepred/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "citepred",
	Short:         "Citation score prediction from paper abstracts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

// loadConfig reads the run configuration and installs the logger.
func loadConfig() (config.TrainingConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "citepred:", err)
		os.Exit(1)
	}
}
