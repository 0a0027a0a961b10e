// Package notify defines the user-facing notification surface consumed by
// the setup and provisioning flow. The host application supplies the real
// dialog implementation; LogNotifier is the headless default.
package notify

import "log/slog"

// Notifier receives user-visible messages. Info and Error are expected to
// block until acknowledged when backed by a dialog surface; Progress is
// free-text and non-blocking.
type Notifier interface {
	Info(msg string)
	Error(msg string)
	Progress(msg string)
}

// LogNotifier routes notifications to a slog.Logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Info logs an informational notification.
func (n *LogNotifier) Info(msg string) {
	n.logger.Info("Notification", "message", msg)
}

// Error logs an error notification.
func (n *LogNotifier) Error(msg string) {
	n.logger.Error("Notification", "message", msg)
}

// Progress logs a progress notification.
func (n *LogNotifier) Progress(msg string) {
	n.logger.Info("Progress", "message", msg)
}
