// Package weights provisions nnU-Net weight sets: it decides whether a
// named weight set is present under the local model directory, downloads
// and unpacks release archives when it is not, and removes weight sets on
// forced re-download. Structural validity of a weight set is the engine's
// concern, not this package's; the store only answers presence questions.
package weights

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store manages the on-disk model directory holding weight sets.
type Store struct {
	modelPath string
}

// NewStore creates a Store rooted at modelPath. The directory is created
// lazily by EnsureModelDir.
func NewStore(modelPath string) *Store {
	return &Store{modelPath: modelPath}
}

// ModelPath returns the directory weight sets live under.
func (s *Store) ModelPath() string {
	return s.modelPath
}

// Path returns the directory of the named weight set.
func (s *Store) Path(name string) string {
	return filepath.Join(s.modelPath, name)
}

// Exists reports whether the named weight set directory is present.
// Presence says nothing about validity; the engine validates contents.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.IsDir()
}

// EnsureModelDir creates the model directory and any missing parents.
// Idempotent: an already-existing directory is not an error.
func (s *Store) EnsureModelDir() error {
	if err := os.MkdirAll(s.modelPath, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create model directory %s: %v", ErrStorage, s.modelPath, err)
	}
	return nil
}

// Remove recursively deletes the named weight set. Only called when a
// forced re-download has already been decided; the deletion is irreversible.
func (s *Store) Remove(name string) error {
	if err := os.RemoveAll(s.Path(name)); err != nil {
		return fmt.Errorf("%w: failed to remove weight set %s: %v", ErrStorage, name, err)
	}
	return nil
}
