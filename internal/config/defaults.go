package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/envvar"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/params"
)

const (
	// DefaultRepository hosts the released weight archives.
	DefaultRepository = "ManskeLab/slicer-hand-nnUNet"

	// DefaultWeightSet is the hand CBCT nnU-Net dataset bundle.
	DefaultWeightSet = "Dataset001_hand"
)

// DefaultConfigPath returns the default directory for the config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "handcbct")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "handcbct")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "handcbct")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "handcbct")
		}
		return filepath.Join(home, ".config", "handcbct")
	}
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{
		Version: "1",
		Weights: WeightsConfig{
			Repository: DefaultRepository,
			Set:        DefaultWeightSet,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills unset optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Weights.APIBaseURL == "" {
		cfg.Weights.APIBaseURL = os.Getenv(envvar.HandCBCTReleaseAPI)
	}
	if cfg.Weights.Checkpoint == "" {
		cfg.Weights.Checkpoint = params.DefaultCheckpointName
	}
	if cfg.Engine.Folds == 0 {
		cfg.Engine.Folds = 1
	}
	if cfg.Engine.Device == "" {
		cfg.Engine.Device = params.DefaultDevice
	}
}
