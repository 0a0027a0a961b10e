package weights

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/notify"
)

// downloadChunkSize bounds peak memory use while streaming the archive.
const downloadChunkSize = 1 << 20 // 1 MiB

// Fetcher downloads weight-set archives from a release repository and
// extracts them into the store. A single failed attempt is terminal; there
// is no retry or backoff.
type Fetcher struct {
	store    *Store
	releases *releaseClient
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. apiBaseURL and httpClient may be empty/nil
// for the platform defaults; notifier may be nil to skip user messages.
func NewFetcher(store *Store, apiBaseURL string, httpClient HTTPClient, notifier notify.Notifier, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		store:    store,
		releases: newReleaseClient(apiBaseURL, httpClient),
		notifier: notifier,
		logger:   logger,
	}
}

// Download ensures the named weight set is present locally, fetching the
// release asset <name>.zip from repository ("owner/repo") when it is not.
// Returns (false, nil) when the set already exists and force is false; that
// is a normal skip, not an error. Returns (true, nil) after a successful
// download and extraction.
func (f *Fetcher) Download(ctx context.Context, repository, name string, force bool) (bool, error) {
	if f.store.Exists(name) {
		if !force {
			f.logger.Info("Weight set already present, skipping download", "name", name)
			return false, nil
		}
		if err := f.store.Remove(name); err != nil {
			return false, err
		}
	}

	if err := f.store.EnsureModelDir(); err != nil {
		return false, err
	}

	assetName := name + ".zip"
	url, err := f.releases.resolveAsset(ctx, repository, assetName)
	if err != nil {
		return false, err
	}

	if f.notifier != nil {
		f.notifier.Info(fmt.Sprintf("Downloading model weights %s. This may take a while.", name))
	}

	archivePath := filepath.Join(filepath.Dir(f.store.ModelPath()), assetName)
	if err := f.fetchArchive(ctx, url, archivePath); err != nil {
		return false, err
	}
	defer os.Remove(archivePath)

	f.logger.Info("Extracting weight archive", "name", name, "archive", archivePath)
	if err := extractArchive(archivePath, f.store.Path(name)); err != nil {
		return false, err
	}

	f.logger.Info("Weight set downloaded", "name", name, "path", f.store.Path(name))
	return true, nil
}

// fetchArchive streams the asset at url into archivePath in fixed-size
// chunks.
func (f *Fetcher) fetchArchive(ctx context.Context, url, archivePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.releases.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %v", ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: fetching %s: %s", ErrNetwork, url, resp.Status)
	}

	out, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, archivePath, err)
	}

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		out.Close()
		os.Remove(archivePath)
		return fmt.Errorf("%w: writing %s: %v", ErrNetwork, archivePath, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrStorage, archivePath, err)
	}

	return nil
}
