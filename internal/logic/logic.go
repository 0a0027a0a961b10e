// Package logic sequences the one-shot initialization of the segmentation
// engine: dependency probing, engine construction, weight provisioning and
// parameter binding. It is the entry point the host module calls.
package logic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/cache"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/config"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/engine"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/engine/nnunet"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/notify"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/params"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/weights"
)

// ErrInvalidInput indicates a missing or invalid input/output selection
// passed to Process. Rejected before any engine work begins.
var ErrInvalidInput = errors.New("logic: invalid input or output selection")

// State is the setup sequencer state.
type State string

const (
	// StateUninitialized is the initial state.
	StateUninitialized State = "uninitialized"

	// StateDependenciesInstalled means the engine dependency probe passed.
	StateDependenciesInstalled State = "dependencies_installed"

	// StateEngineConstructed means the engine exists and its notifications
	// are wired.
	StateEngineConstructed State = "engine_constructed"

	// StateWeightsReady means the model directory exists and the weight
	// set is present.
	StateWeightsReady State = "weights_ready"

	// StateBound is the terminal ready state: parameters are bound.
	StateBound State = "bound"
)

// EngineFactory constructs the segmentation engine for a binary path.
type EngineFactory func(binPath string) (engine.Engine, error)

// Logic is the setup sequencer. The whole sequence runs at most once per
// process lifetime; re-entrant Setup calls while Bound are no-ops until
// Reset clears the flag.
type Logic struct {
	cfg           *config.Config
	store         *weights.Store
	fetcher       *weights.Fetcher
	probe         *engine.Probe
	engineFactory EngineFactory
	notifier      notify.Notifier
	logger        *slog.Logger
	httpClient    weights.HTTPClient

	mu     sync.Mutex
	state  State
	engine engine.Engine
	param  *params.Parameter
}

// Option configures a Logic.
type Option func(*Logic)

// WithNotifier sets the user notification surface.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Logic) { l.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logic) { l.logger = logger }
}

// WithHTTPClient sets the HTTP client used for weight downloads.
func WithHTTPClient(client weights.HTTPClient) Option {
	return func(l *Logic) { l.httpClient = client }
}

// WithEngineFactory replaces the default nnU-Net subprocess engine.
func WithEngineFactory(factory EngineFactory) Option {
	return func(l *Logic) { l.engineFactory = factory }
}

// New creates a Logic for the given configuration.
func New(cfg *config.Config, opts ...Option) *Logic {
	l := &Logic{
		cfg:    cfg,
		probe:  engine.NewProbe(cfg.Engine.BinPath),
		state:  StateUninitialized,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.notifier == nil {
		l.notifier = notify.NewLogNotifier(l.logger)
	}
	if l.engineFactory == nil {
		l.engineFactory = func(binPath string) (engine.Engine, error) {
			return nnunet.New(binPath)
		}
	}

	resolver := cache.NewResolver(cfg.Storage.CacheDir)
	l.store = weights.NewStore(resolver.ModelPath())
	l.fetcher = weights.NewFetcher(l.store, cfg.Weights.APIBaseURL, l.httpClient, l.notifier, l.logger)

	return l
}

// State returns the current sequencer state.
func (l *Logic) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Store exposes the weight store for presence queries.
func (l *Logic) Store() *weights.Store {
	return l.store
}

// Setup runs the full initialization sequence. Idempotent: a Bound
// sequencer returns immediately.
func (l *Logic) Setup(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.setupLocked(ctx)
}

func (l *Logic) setupLocked(ctx context.Context) error {
	if l.state == StateBound {
		return nil
	}

	// Uninitialized → DependenciesInstalled
	if err := l.probe.Check(); err != nil {
		l.notifier.Error("This module requires the nnU-Net prediction tooling. Please install it first.")
		return err
	}
	l.state = StateDependenciesInstalled
	l.logger.Info("Dependencies present", "state", l.state)

	// DependenciesInstalled → EngineConstructed
	if l.engine == nil {
		binPath, err := l.probe.ResolveBinary()
		if err != nil {
			return err
		}

		eng, err := l.engineFactory(binPath)
		if err != nil {
			return fmt.Errorf("constructing engine: %w", err)
		}
		l.engine = eng

		// Subscribe exactly once per engine.
		go l.pump(eng.Notifications())
	}
	l.state = StateEngineConstructed
	l.logger.Info("Engine constructed", "state", l.state)

	// EngineConstructed → WeightsReady
	if err := l.store.EnsureModelDir(); err != nil {
		return err
	}

	l.param = l.buildParameter()

	if !l.store.Exists(l.cfg.Weights.Set) {
		if _, err := l.fetcher.Download(ctx, l.cfg.Weights.Repository, l.cfg.Weights.Set, false); err != nil {
			return err
		}
	}
	l.state = StateWeightsReady
	l.logger.Info("Weights ready", "state", l.state, "set", l.cfg.Weights.Set)

	// WeightsReady → Bound
	params.Bind(l.engine, l.param)
	valid, diagnostic := params.Validate(l.engine)
	if valid {
		l.notifier.Info("Model directory is valid.")
	} else {
		l.notifier.Info("Model directory is not valid.")
	}
	l.logger.Info("Parameters bound", "state", StateBound, "valid", valid, "diagnostic", diagnostic)

	l.state = StateBound
	return nil
}

// buildParameter assembles a fresh Parameter from the current config.
func (l *Logic) buildParameter() *params.Parameter {
	return params.New(l.store.ModelPath(),
		params.WithCheckpointName(l.cfg.Weights.Checkpoint),
		params.WithFolds(l.cfg.Engine.Folds),
		params.WithDevice(l.cfg.Engine.Device),
	)
}

// pump forwards engine notifications to the notifier.
func (l *Logic) pump(notifications <-chan engine.Notification) {
	for n := range notifications {
		switch n.Kind {
		case engine.NotificationProgress:
			l.notifier.Progress(n.Message)
		case engine.NotificationError:
			l.notifier.Error(n.Message)
		case engine.NotificationCompleted:
			l.notifier.Info(n.Message)
		}
	}
}

// IsValid reports the engine's own validation of the bound parameters.
// Always reflects current on-disk state; nothing is cached.
func (l *Logic) IsValid() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine == nil || l.param == nil {
		return false, "setup has not run"
	}
	return params.Validate(l.engine)
}

// Process runs a segmentation. When the sequencer is not Bound yet, the
// full setup sequence runs synchronously first. Empty input or output
// selections are rejected before any engine work begins.
func (l *Logic) Process(ctx context.Context, inputPath, outputPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if inputPath == "" || outputPath == "" {
		return fmt.Errorf("%w: input=%q output=%q", ErrInvalidInput, inputPath, outputPath)
	}

	if l.state != StateBound {
		if err := l.setupLocked(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	l.logger.Info("Processing started", "input", inputPath, "output", outputPath)

	if err := l.engine.StartSegmentation(ctx, inputPath, outputPath); err != nil {
		return err
	}
	if err := l.engine.WaitForCompletion(ctx); err != nil {
		return err
	}

	l.logger.Info("Processing completed", "elapsed", time.Since(start).Round(10*time.Millisecond))
	return nil
}

// ProvisionWeights downloads the configured weight set without constructing
// the engine. Returns true when something was downloaded.
func (l *Logic) ProvisionWeights(ctx context.Context, force bool) (bool, error) {
	return l.fetcher.Download(ctx, l.cfg.Weights.Repository, l.cfg.Weights.Set, force)
}

// OnConfigReload swaps the configuration and, when already Bound, rebuilds
// the parameters and re-binds them. The engine does not observe changes
// automatically.
func (l *Logic) OnConfigReload(cfg *config.Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cfg = cfg
	l.probe = engine.NewProbe(cfg.Engine.BinPath)

	if l.state == StateBound && l.engine != nil {
		l.param = l.buildParameter()
		params.Bind(l.engine, l.param)
		valid, diagnostic := params.Validate(l.engine)
		l.logger.Info("Parameters re-bound after config reload", "valid", valid, "diagnostic", diagnostic)
	}
}

// Reset clears the one-shot flag so the next Setup runs the sequence again.
// The current engine is closed and discarded.
func (l *Logic) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		if err := l.engine.Close(); err != nil {
			l.logger.Error("Failed to close engine", "error", err)
		}
		l.engine = nil
	}
	l.param = nil
	l.state = StateUninitialized
}

// Close releases resources.
func (l *Logic) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		err := l.engine.Close()
		l.engine = nil
		return err
	}
	return nil
}
