package weights

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractArchive unpacks the zip at archivePath into destDir. A failure
// partway leaves the already-extracted entries in place; callers treat that
// as requiring a forced re-download, not resumption.
func extractArchive(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrArchive, filepath.Base(archivePath), err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, destDir, err)
	}

	for _, file := range reader.File {
		if err := extractEntry(file, destDir); err != nil {
			return err
		}
	}

	return nil
}

// extractEntry writes a single archive entry below destDir, rejecting
// paths that would escape it.
func extractEntry(file *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(file.Name))

	// Zip-slip guard
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: entry %q escapes destination", ErrArchive, file.Name)
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("%w: creating %s: %v", ErrStorage, target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, filepath.Dir(target), err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("%w: reading entry %s: %v", ErrArchive, file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrArchive, file.Name, err)
	}

	return nil
}
