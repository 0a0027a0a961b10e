// Package config loads and validates the module configuration.
package config

// Config holds the full configuration for the handCBCT module.
type Config struct {
	Version string        `json:"version"           yaml:"version"`
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	Weights WeightsConfig `json:"weights"           yaml:"weights"`
	Engine  EngineConfig  `json:"engine,omitempty"  yaml:"engine,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// StorageConfig overrides artifact locations.
type StorageConfig struct {
	// CacheDir overrides the host cache root. Empty uses the platform
	// default (or HANDCBCT_CACHE_DIR).
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
}

// WeightsConfig selects the weight set and its release source.
type WeightsConfig struct {
	// Repository is the release repository in "owner/repo" form.
	Repository string `json:"repository" yaml:"repository"`

	// Set is the weight-set name; the release asset is "<set>.zip".
	Set string `json:"set" yaml:"set"`

	// Checkpoint is the checkpoint filename inside each fold directory.
	Checkpoint string `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`

	// APIBaseURL overrides the release API endpoint. Falls back to the
	// HANDCBCT_RELEASE_API environment variable when unset.
	APIBaseURL string `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
}

// EngineConfig configures the segmentation engine.
type EngineConfig struct {
	// BinPath is an explicit path to the prediction binary. Empty resolves
	// the default binary name on PATH.
	BinPath string `json:"bin_path,omitempty" yaml:"bin_path,omitempty"`

	// Folds is the number of folds used for prediction (1–5).
	Folds int `json:"folds,omitempty" yaml:"folds,omitempty"`

	// Device is the inference device ("cuda", "cpu" or "mps").
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
}
