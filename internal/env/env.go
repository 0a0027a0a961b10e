package env

import (
	"os"
	"strings"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/envvar"
)

// Environment identifies the runtime environment.
type Environment string

const (
	// Development enables human-readable, colorized logging.
	Development Environment = "development"

	// Production enables structured JSON logging with file rotation.
	Production Environment = "production"
)

// FromEnv resolves the environment from HANDCBCT_ENV.
// Unknown or empty values default to Development.
func FromEnv() Environment {
	switch strings.ToLower(os.Getenv(envvar.HandCBCTEnv)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}
