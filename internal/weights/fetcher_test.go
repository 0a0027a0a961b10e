package weights

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRepository = "ManskeLab/slicer-hand-nnUNet"

// buildWeightArchive builds a zip holding a minimal nnU-Net weight layout.
func buildWeightArchive(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := []struct {
		name    string
		content string
	}{
		{"Dataset001_hand/nnUNetTrainer__nnUNetPlans__3d_fullres/dataset.json", `{"name": "hand"}`},
		{"Dataset001_hand/nnUNetTrainer__nnUNetPlans__3d_fullres/plans.json", `{}`},
		{"Dataset001_hand/nnUNetTrainer__nnUNetPlans__3d_fullres/fold_0/checkpoint_final.pth", "weights"},
	}
	for _, file := range files {
		w, err := zw.Create(file.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(file.content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// releaseHost serves a release list plus the archive bytes, counting requests.
type releaseHost struct {
	server   *httptest.Server
	requests atomic.Int64
	archive  []byte
	// assetStatus overrides the download response status when non-zero.
	assetStatus int
}

func newReleaseHost(t *testing.T, archive []byte) *releaseHost {
	t.Helper()

	h := &releaseHost{archive: archive}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.requests.Add(1)

		switch r.URL.Path {
		case "/repos/" + testRepository + "/releases":
			fmt.Fprintf(w, `[{"tag_name": "v1.0", "assets": [
				{"name": "Dataset001_hand.zip", "browser_download_url": %q}
			]}]`, h.server.URL+"/download/Dataset001_hand.zip")
		case "/download/Dataset001_hand.zip":
			if h.assetStatus != 0 {
				http.Error(w, "gone", h.assetStatus)
				return
			}
			w.Write(h.archive)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(h.server.Close)

	return h
}

func newTestFetcher(t *testing.T, host *releaseHost) (*Fetcher, *Store) {
	t.Helper()

	store := NewStore(filepath.Join(t.TempDir(), "handCBCT", "Model"))
	fetcher := NewFetcher(store, host.server.URL, host.server.Client(), nil, nil)
	return fetcher, store
}

func TestFetcher_DownloadAbsentSet(t *testing.T) {
	host := newReleaseHost(t, buildWeightArchive(t))
	fetcher, store := newTestFetcher(t, host)

	downloaded, err := fetcher.Download(context.Background(), testRepository, "Dataset001_hand", false)
	require.NoError(t, err)
	assert.True(t, downloaded)

	assert.True(t, store.Exists("Dataset001_hand"))
	assert.FileExists(t, filepath.Join(store.Path("Dataset001_hand"),
		"Dataset001_hand", "nnUNetTrainer__nnUNetPlans__3d_fullres", "fold_0", "checkpoint_final.pth"))

	// Temp archive is cleaned up after extraction.
	assert.NoFileExists(t, filepath.Join(filepath.Dir(store.ModelPath()), "Dataset001_hand.zip"))
}

func TestFetcher_AlreadyPresentIsNoOp(t *testing.T) {
	host := newReleaseHost(t, buildWeightArchive(t))
	fetcher, store := newTestFetcher(t, host)

	require.NoError(t, store.EnsureModelDir())
	require.NoError(t, os.MkdirAll(store.Path("Dataset001_hand"), 0o755))

	downloaded, err := fetcher.Download(context.Background(), testRepository, "Dataset001_hand", false)
	require.NoError(t, err)
	assert.False(t, downloaded)

	// Zero network calls for the skip path.
	assert.Zero(t, host.requests.Load())
}

func TestFetcher_ForceRemovesExistingSet(t *testing.T) {
	host := newReleaseHost(t, buildWeightArchive(t))
	fetcher, store := newTestFetcher(t, host)

	require.NoError(t, store.EnsureModelDir())
	stale := filepath.Join(store.Path("Dataset001_hand"), "stale.txt")
	require.NoError(t, os.MkdirAll(store.Path("Dataset001_hand"), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	downloaded, err := fetcher.Download(context.Background(), testRepository, "Dataset001_hand", true)
	require.NoError(t, err)
	assert.True(t, downloaded)

	assert.NoFileExists(t, stale)
	assert.True(t, store.Exists("Dataset001_hand"))
}

func TestFetcher_NoMatchingAsset(t *testing.T) {
	host := newReleaseHost(t, buildWeightArchive(t))
	fetcher, store := newTestFetcher(t, host)

	_, err := fetcher.Download(context.Background(), testRepository, "Dataset009_foot", false)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	// Nothing written for the missing set.
	assert.False(t, store.Exists("Dataset009_foot"))
}

func TestFetcher_DownloadHTTPError(t *testing.T) {
	host := newReleaseHost(t, buildWeightArchive(t))
	host.assetStatus = http.StatusNotFound
	fetcher, store := newTestFetcher(t, host)

	_, err := fetcher.Download(context.Background(), testRepository, "Dataset001_hand", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "404")

	// No archive retained, nothing extracted.
	assert.NoFileExists(t, filepath.Join(filepath.Dir(store.ModelPath()), "Dataset001_hand.zip"))
	assert.False(t, store.Exists("Dataset001_hand"))
}

func TestFetcher_CorruptArchive(t *testing.T) {
	host := newReleaseHost(t, []byte("this is not a zip archive"))
	fetcher, _ := newTestFetcher(t, host)

	_, err := fetcher.Download(context.Background(), testRepository, "Dataset001_hand", false)
	assert.ErrorIs(t, err, ErrArchive)

	// The extraction target may exist but holds no usable weights; a
	// forced re-download clears it.
	downloaded, err2 := fetcher.Download(context.Background(), testRepository, "Dataset001_hand", true)
	assert.ErrorIs(t, err2, ErrArchive)
	assert.False(t, downloaded)
}

func TestExtractArchive_RejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dir := t.TempDir()
	archive := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	err = extractArchive(archive, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrArchive)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}
