// Package cache resolves the local filesystem locations for this module's
// persisted artifacts, derived from the host application's cache root.
package cache

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/envvar"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/xfs"
)

// moduleDirName is the directory this module owns under the host cache root.
const moduleDirName = "handCBCT"

// modelDirName is the weight model directory under the module cache path.
const modelDirName = "Model"

// Resolver computes deterministic cache locations. It performs no
// filesystem writes; directories are created lazily by their owners.
type Resolver struct {
	override string
}

// NewResolver creates a Resolver. The override, when non-empty, replaces the
// platform default cache root (config-level override).
func NewResolver(override string) *Resolver {
	return &Resolver{override: override}
}

// CachePath returns <host-cache-root>/handCBCT.
// Precedence for the root: HANDCBCT_CACHE_DIR env var, the configured
// override, then the platform default.
func (r *Resolver) CachePath() string {
	if p := os.Getenv(envvar.HandCBCTCacheDir); p != "" {
		return filepath.Join(xfs.ExpandTilde(p), moduleDirName)
	}
	if r.override != "" {
		return filepath.Join(xfs.ExpandTilde(r.override), moduleDirName)
	}
	return filepath.Join(defaultCacheRoot(), moduleDirName)
}

// ModelPath returns CachePath()/Model.
func (r *Resolver) ModelPath() string {
	return filepath.Join(r.CachePath(), modelDirName)
}

// defaultCacheRoot returns the platform default cache root.
func defaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return local
		}
		return filepath.Join(home, "AppData", "Local")
	case "darwin":
		return filepath.Join(home, "Library", "Caches")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return xdg
		}
		return filepath.Join(home, ".cache")
	}
}
