package logic

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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/config"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/engine"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/envvar"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/params"
)

// --- Mock types ---

type MockEngine struct {
	mock.Mock
	notifications chan engine.Notification
}

func NewMockEngine() *MockEngine {
	return &MockEngine{notifications: make(chan engine.Notification)}
}

func (m *MockEngine) SetParameter(p *params.Parameter) {
	m.Called(p)
}

func (m *MockEngine) ValidateParameter() (bool, string) {
	called := m.Called()
	return called.Bool(0), called.String(1)
}

func (m *MockEngine) StartSegmentation(ctx context.Context, inputPath, outputPath string) error {
	called := m.Called(ctx, inputPath, outputPath)
	return called.Error(0)
}

func (m *MockEngine) WaitForCompletion(ctx context.Context) error {
	called := m.Called(ctx)
	return called.Error(0)
}

func (m *MockEngine) Notifications() <-chan engine.Notification {
	return m.notifications
}

func (m *MockEngine) Close() error {
	close(m.notifications)
	called := m.Called()
	return called.Error(0)
}

// --- Helpers ---

// testConfig points the cache at a temp dir and the probe at a stub binary.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	t.Setenv(envvar.HandCBCTCacheDir, t.TempDir())

	bin := filepath.Join(t.TempDir(), "nnUNetv2_predict")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	cfg := config.Default()
	cfg.Engine.BinPath = bin
	return cfg
}

// placeWeightSet creates the weight-set directory so setup skips the download.
func placeWeightSet(t *testing.T, l *Logic, name string) {
	t.Helper()

	require.NoError(t, l.Store().EnsureModelDir())
	require.NoError(t, os.MkdirAll(l.Store().Path(name), 0o755))
}

// emptyZip builds a zip holding a single placeholder entry.
func emptyZip(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("dataset.json")
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newBoundEngineMock() *MockEngine {
	eng := NewMockEngine()
	eng.On("SetParameter", mock.Anything).Return()
	eng.On("ValidateParameter").Return(true, "valid model")
	return eng
}

// --- Tests ---

func TestSetup_ReachesBound(t *testing.T) {
	cfg := testConfig(t)
	eng := newBoundEngineMock()

	var factoryCalls atomic.Int64
	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) {
		factoryCalls.Add(1)
		return eng, nil
	}))
	placeWeightSet(t, l, cfg.Weights.Set)

	require.NoError(t, l.Setup(context.Background()))
	assert.Equal(t, StateBound, l.State())
	assert.Equal(t, int64(1), factoryCalls.Load())

	eng.AssertExpectations(t)
}

func TestSetup_IsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	eng := newBoundEngineMock()

	var factoryCalls atomic.Int64
	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) {
		factoryCalls.Add(1)
		return eng, nil
	}))
	placeWeightSet(t, l, cfg.Weights.Set)

	require.NoError(t, l.Setup(context.Background()))
	require.NoError(t, l.Setup(context.Background()))
	require.NoError(t, l.Setup(context.Background()))

	// The sequence ran exactly once.
	assert.Equal(t, int64(1), factoryCalls.Load())
	eng.AssertNumberOfCalls(t, "SetParameter", 1)
}

func TestSetup_DependencyMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.BinPath = filepath.Join(t.TempDir(), "absent")

	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) {
		t.Fatal("engine must not be constructed when the dependency is missing")
		return nil, nil
	}))

	err := l.Setup(context.Background())
	assert.ErrorIs(t, err, engine.ErrDependencyMissing)
	assert.Equal(t, StateUninitialized, l.State())
}

func TestSetup_DownloadsAbsentWeights(t *testing.T) {
	cfg := testConfig(t)
	eng := newBoundEngineMock()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/" + cfg.Weights.Repository + "/releases":
			fmt.Fprintf(w, `[{"tag_name": "v1.0", "assets": [
				{"name": %q, "browser_download_url": %q}
			]}]`, cfg.Weights.Set+".zip", server.URL+"/download.zip")
		case "/download.zip":
			w.Write(emptyZip(t))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	cfg.Weights.APIBaseURL = server.URL

	l := New(cfg,
		WithHTTPClient(server.Client()),
		WithEngineFactory(func(binPath string) (engine.Engine, error) { return eng, nil }),
	)

	require.NoError(t, l.Setup(context.Background()))
	assert.Equal(t, StateBound, l.State())
	assert.True(t, l.Store().Exists(cfg.Weights.Set))
}

func TestProcess_RejectsInvalidSelection(t *testing.T) {
	cfg := testConfig(t)

	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) {
		t.Fatal("engine must not be constructed for invalid input")
		return nil, nil
	}))

	err := l.Process(context.Background(), "", "/out")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = l.Process(context.Background(), "/in", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, StateUninitialized, l.State())
}

func TestProcess_RunsSetupFirst(t *testing.T) {
	cfg := testConfig(t)
	eng := newBoundEngineMock()
	eng.On("StartSegmentation", mock.Anything, "/in", "/out").Return(nil).Once()
	eng.On("WaitForCompletion", mock.Anything).Return(nil).Once()

	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) { return eng, nil }))
	placeWeightSet(t, l, cfg.Weights.Set)

	require.NoError(t, l.Process(context.Background(), "/in", "/out"))
	assert.Equal(t, StateBound, l.State())

	eng.AssertExpectations(t)
}

func TestReset_ClearsTheOneShotFlag(t *testing.T) {
	cfg := testConfig(t)

	var factoryCalls atomic.Int64
	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) {
		factoryCalls.Add(1)
		eng := newBoundEngineMock()
		eng.On("Close").Return(nil)
		return eng, nil
	}))
	placeWeightSet(t, l, cfg.Weights.Set)

	require.NoError(t, l.Setup(context.Background()))
	l.Reset()
	assert.Equal(t, StateUninitialized, l.State())

	require.NoError(t, l.Setup(context.Background()))
	assert.Equal(t, StateBound, l.State())
	assert.Equal(t, int64(2), factoryCalls.Load())
}

func TestOnConfigReload_RebindsParameters(t *testing.T) {
	cfg := testConfig(t)
	eng := newBoundEngineMock()

	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) { return eng, nil }))
	placeWeightSet(t, l, cfg.Weights.Set)

	require.NoError(t, l.Setup(context.Background()))
	eng.AssertNumberOfCalls(t, "SetParameter", 1)

	reloaded := *cfg
	reloaded.Engine.Folds = 5
	l.OnConfigReload(&reloaded)

	eng.AssertNumberOfCalls(t, "SetParameter", 2)

	var bound *params.Parameter
	for _, call := range eng.Calls {
		if call.Method == "SetParameter" {
			bound = call.Arguments.Get(0).(*params.Parameter)
		}
	}
	require.NotNil(t, bound)
	assert.Equal(t, 5, bound.Folds)
}

func TestIsValid_BeforeSetup(t *testing.T) {
	cfg := testConfig(t)
	l := New(cfg)

	valid, diagnostic := l.IsValid()
	assert.False(t, valid)
	assert.Contains(t, diagnostic, "setup has not run")
}

func TestIsValid_DelegatesToEngine(t *testing.T) {
	cfg := testConfig(t)
	eng := NewMockEngine()
	eng.On("SetParameter", mock.Anything).Return()
	eng.On("ValidateParameter").Return(false, "checkpoint missing")

	l := New(cfg, WithEngineFactory(func(binPath string) (engine.Engine, error) { return eng, nil }))
	placeWeightSet(t, l, cfg.Weights.Set)

	require.NoError(t, l.Setup(context.Background()))

	valid, diagnostic := l.IsValid()
	assert.False(t, valid)
	assert.Equal(t, "checkpoint missing", diagnostic)
}
