package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// CommandRunner is the interface for running external commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
	Start(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr io.ReadCloser, wait func() error, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command to completion and captures its output.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Start starts a command and returns its output pipes.
func (ExecCommandRunner) Start(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr io.ReadCloser, wait func() error, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	return stdoutPipe, stderrPipe, cmd.Wait, nil
}

// StreamLine is a single line of streamed command output.
type StreamLine struct {
	// Data is the line content, including the trailing newline.
	Data []byte

	// Done indicates this is the final entry.
	Done bool

	// Error if something went wrong.
	Error error
}

// Executor runs the prediction binary.
type Executor struct {
	runner     CommandRunner
	binaryPath string
	timeout    time.Duration
}

// NewExecutor creates an executor for binaryPath. A zero timeout disables
// the per-run deadline.
func NewExecutor(binaryPath string, timeout time.Duration) (*Executor, error) {
	if _, err := os.Stat(binaryPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDependencyMissing, binaryPath)
	}

	return &Executor{
		binaryPath: binaryPath,
		timeout:    timeout,
		runner:     ExecCommandRunner{},
	}, nil
}

// NewExecutorWithRunner creates an executor with a custom runner.
// The binary is not checked; runners used in tests may not exist on disk.
func NewExecutorWithRunner(binaryPath string, timeout time.Duration, runner CommandRunner) *Executor {
	return &Executor{
		binaryPath: binaryPath,
		timeout:    timeout,
		runner:     runner,
	}
}

// withDeadline applies the executor timeout, when configured.
func (e *Executor) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// Execute runs the binary and returns its captured output.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	return e.runner.Run(ctx, e.binaryPath, args, stdin)
}

// Stream runs the binary and streams stdout line by line. Stderr is
// collected and folded into the final error entry on failure.
func (e *Executor) Stream(ctx context.Context, args []string, stdin io.Reader) (<-chan StreamLine, error) {
	ctx, cancel := e.withDeadline(ctx)

	stdout, stderr, wait, err := e.runner.Start(ctx, e.binaryPath, args, stdin)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine: failed to start %s: %w", e.binaryPath, err)
	}

	ch := make(chan StreamLine, 32)

	go func() {
		defer close(ch)
		defer cancel()

		stderrBuf := new(bytes.Buffer)
		stderrDone := make(chan struct{})
		go func() {
			if _, err := io.Copy(stderrBuf, stderr); err != nil {
				slog.Error("Failed to read stderr", "error", err)
			}
			close(stderrDone)
		}()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- StreamLine{Error: ctx.Err(), Done: true}
				return
			case ch <- StreamLine{Data: append(scanner.Bytes(), '\n')}:
			}
		}

		if err := scanner.Err(); err != nil {
			ch <- StreamLine{Error: err, Done: true}
			return
		}

		<-stderrDone
		err := wait()

		if err != nil {
			if s := stderrBuf.String(); s != "" {
				ch <- StreamLine{Error: fmt.Errorf("%w: %s", err, s), Done: true}
			} else {
				ch <- StreamLine{Error: err, Done: true}
			}
		} else {
			ch <- StreamLine{Done: true}
		}
	}()

	return ch, nil
}
