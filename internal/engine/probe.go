package engine

import (
	"fmt"
	"os"
	"os/exec"
)

// Probe checks whether the external prediction tooling is available. It
// replaces a dynamic import check with an explicit capability probe: Check
// reports present or absent without loading anything.
type Probe struct {
	// BinPath is an explicit path to the prediction binary. When empty,
	// BinName is resolved on PATH instead.
	BinPath string

	// BinName is the binary name looked up on PATH when BinPath is empty.
	BinName string
}

// DefaultPredictBinary is the nnU-Net v2 prediction entry point.
const DefaultPredictBinary = "nnUNetv2_predict"

// NewProbe creates a probe for the configured binary path. An empty path
// falls back to resolving DefaultPredictBinary on PATH.
func NewProbe(binPath string) *Probe {
	return &Probe{BinPath: binPath, BinName: DefaultPredictBinary}
}

// Check returns nil when the prediction binary is present, or an error
// wrapping ErrDependencyMissing when it is not.
func (p *Probe) Check() error {
	if p.BinPath != "" {
		info, err := os.Stat(p.BinPath)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", ErrDependencyMissing, p.BinPath)
		}
		return nil
	}

	if _, err := exec.LookPath(p.BinName); err != nil {
		return fmt.Errorf("%w: %s not found on PATH", ErrDependencyMissing, p.BinName)
	}
	return nil
}

// ResolveBinary returns the path Check validated: BinPath when set,
// otherwise the PATH resolution of BinName.
func (p *Probe) ResolveBinary() (string, error) {
	if p.BinPath != "" {
		if err := p.Check(); err != nil {
			return "", err
		}
		return p.BinPath, nil
	}

	path, err := exec.LookPath(p.BinName)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found on PATH", ErrDependencyMissing, p.BinName)
	}
	return path, nil
}
