// Package nnunet implements engine.Engine on top of the nnU-Net v2
// prediction command line.
package nnunet

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/engine"
	"github.com/ManskeLab/slicer-hand-nnUNet/internal/params"
)

// DefaultRunTimeout bounds a single prediction run.
const DefaultRunTimeout = 2 * time.Hour

// Engine drives nnUNetv2_predict as a subprocess. Parameters are bound by
// reference; SetParameter replaces the reference and never mutates a value
// an in-flight prediction may be reading.
type Engine struct {
	executor *engine.Executor

	mu      sync.Mutex
	param   *params.Parameter
	running bool
	done    chan struct{}
	closed  bool

	notifications chan engine.Notification
}

// New creates an Engine for the given prediction binary path.
func New(binPath string) (*Engine, error) {
	executor, err := engine.NewExecutor(binPath, DefaultRunTimeout)
	if err != nil {
		return nil, err
	}
	return newWithExecutor(executor), nil
}

// NewWithExecutor creates an Engine with a custom executor. Used by tests.
func NewWithExecutor(executor *engine.Executor) *Engine {
	return newWithExecutor(executor)
}

func newWithExecutor(executor *engine.Executor) *Engine {
	return &Engine{
		executor:      executor,
		notifications: make(chan engine.Notification, 32),
	}
}

// SetParameter replaces the engine's active parameter reference.
func (e *Engine) SetParameter(p *params.Parameter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.param = p
}

// ValidateParameter checks that the bound model path holds a weight set in
// the layout the predictor expects: a dataset directory containing
// dataset.json, plans.json and at least one fold directory with the
// configured checkpoint file.
func (e *Engine) ValidateParameter() (bool, string) {
	e.mu.Lock()
	p := e.param
	e.mu.Unlock()

	if p == nil {
		return false, "no parameters bound"
	}

	info, err := os.Stat(p.ModelPath)
	if err != nil || !info.IsDir() {
		return false, fmt.Sprintf("model directory %s does not exist", p.ModelPath)
	}

	trainerDir, diag := findTrainerDir(p.ModelPath)
	if trainerDir == "" {
		return false, diag
	}

	folds, err := filepath.Glob(filepath.Join(trainerDir, "fold_*"))
	if err != nil || len(folds) == 0 {
		return false, fmt.Sprintf("no fold directories under %s", trainerDir)
	}

	for _, fold := range folds {
		if _, err := os.Stat(filepath.Join(fold, p.CheckpointName)); err == nil {
			return true, fmt.Sprintf("valid model at %s", trainerDir)
		}
	}

	return false, fmt.Sprintf("checkpoint %s not found in any fold of %s", p.CheckpointName, trainerDir)
}

// findTrainerDir locates the configuration directory holding dataset.json
// and plans.json. Archives nest it a few levels below the model path
// (<set>/Dataset<id>_<name>/<trainer>__<plans>__<configuration>/), so the
// whole tree is walked; the first match wins.
func findTrainerDir(modelPath string) (string, string) {
	var found string
	err := filepath.WalkDir(modelPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if fileExists(filepath.Join(path, "dataset.json")) && fileExists(filepath.Join(path, "plans.json")) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err.Error()
	}
	if found == "" {
		return "", fmt.Sprintf("no dataset.json/plans.json found under %s", modelPath)
	}
	return found, ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// StartSegmentation begins segmenting inputPath into outputPath. The run
// executes in the background; progress, failure and completion are reported
// on the notification channel.
func (e *Engine) StartSegmentation(ctx context.Context, inputPath, outputPath string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engine.ErrClosed
	}
	if e.running {
		e.mu.Unlock()
		return engine.ErrBusy
	}
	p := e.param
	if p == nil {
		e.mu.Unlock()
		return engine.ErrNotBound
	}
	e.running = true
	e.done = make(chan struct{})
	e.mu.Unlock()

	args := buildArgs(p, inputPath, outputPath)

	lines, err := e.executor.Stream(ctx, args, nil)
	if err != nil {
		e.finish()
		return err
	}

	go e.pump(lines)
	return nil
}

// pump forwards streamed predictor output as notifications.
func (e *Engine) pump(lines <-chan engine.StreamLine) {
	defer e.finish()

	var failed error
	for line := range lines {
		if line.Error != nil {
			failed = line.Error
			continue
		}
		if len(line.Data) > 0 {
			e.notify(engine.Notification{
				Kind:    engine.NotificationProgress,
				Message: strings.TrimRight(string(line.Data), "\n"),
			})
		}
	}

	if failed != nil {
		e.notify(engine.Notification{
			Kind:    engine.NotificationError,
			Message: failed.Error(),
			Err:     failed,
		})
		return
	}

	e.notify(engine.Notification{
		Kind:    engine.NotificationCompleted,
		Message: "segmentation finished",
	})
}

func (e *Engine) notify(n engine.Notification) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}

	select {
	case e.notifications <- n:
	default:
		// Drop when nobody is draining; notifications are advisory.
	}
}

func (e *Engine) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
}

// buildArgs assembles the nnUNetv2_predict command line.
func buildArgs(p *params.Parameter, inputPath, outputPath string) []string {
	args := []string{
		"-i", inputPath,
		"-o", outputPath,
		"-chk", p.CheckpointName,
		"-device", p.Device,
	}

	if id := datasetID(p.ModelPath); id != "" {
		args = append(args, "-d", id)
	}

	if p.Folds > 0 {
		args = append(args, "-f")
		for fold := 0; fold < p.Folds; fold++ {
			args = append(args, strconv.Itoa(fold))
		}
	}

	return args
}

// datasetID extracts the numeric dataset identifier from the first
// Dataset<id>_<name> directory found under modelPath.
func datasetID(modelPath string) string {
	var id string
	filepath.WalkDir(modelPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rest, ok := strings.CutPrefix(d.Name(), "Dataset")
		if !ok {
			return nil
		}
		if idx := strings.Index(rest, "_"); idx > 0 {
			if _, err := strconv.Atoi(rest[:idx]); err == nil {
				id = rest[:idx]
				return fs.SkipAll
			}
		}
		return nil
	})
	return id
}

// WaitForCompletion blocks until the in-flight segmentation finishes or ctx
// is done. Returns immediately when nothing is running.
func (e *Engine) WaitForCompletion(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifications returns the engine's event channel.
func (e *Engine) Notifications() <-chan engine.Notification {
	return e.notifications
}

// Close releases engine resources and closes the notification channel.
func (e *Engine) Close() error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done != nil {
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.notifications)
	}
	return nil
}

var _ engine.Engine = (*Engine)(nil)
