// Package engine defines the contract of the external segmentation engine
// consumed by the setup sequence, plus the capability probe and the process
// executor shared by engine implementations.
package engine

import (
	"context"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/params"
)

// NotificationKind classifies engine notifications.
type NotificationKind string

const (
	// NotificationProgress carries a free-text progress message.
	NotificationProgress NotificationKind = "progress"

	// NotificationError reports a failure during an in-flight segmentation.
	NotificationError NotificationKind = "error"

	// NotificationCompleted signals that a segmentation finished.
	NotificationCompleted NotificationKind = "completed"
)

// Notification is a single event emitted by an engine. Err is set only for
// NotificationError.
type Notification struct {
	Kind    NotificationKind
	Message string
	Err     error
}

// Engine is the external segmentation engine contract. Implementations own
// the inference mechanics; callers own parameter binding and sequencing.
type Engine interface {
	// SetParameter replaces the engine's active parameter reference.
	SetParameter(p *params.Parameter)

	// ValidateParameter runs the engine's own validation of the bound
	// parameters against on-disk state.
	ValidateParameter() (valid bool, diagnostic string)

	// StartSegmentation begins segmenting inputPath into outputPath.
	// It returns once the run has been started; notifications report
	// progress, failure and completion.
	StartSegmentation(ctx context.Context, inputPath, outputPath string) error

	// WaitForCompletion blocks until the in-flight segmentation finishes
	// or ctx is done.
	WaitForCompletion(ctx context.Context) error

	// Notifications returns the engine's event channel. Subscribe exactly
	// once, during setup; the channel is closed by Close.
	Notifications() <-chan Notification

	// Close releases engine resources.
	Close() error
}
