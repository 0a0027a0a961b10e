package engine

import "errors"

// Error definitions for the engine package.
var (
	// ErrDependencyMissing indicates the external prediction tooling is not
	// installed. Fatal for setup; never retried automatically.
	ErrDependencyMissing = errors.New("engine: segmentation dependency not installed")

	// ErrNotBound indicates an operation requiring bound parameters was
	// called before SetParameter.
	ErrNotBound = errors.New("engine: no parameters bound")

	// ErrBusy indicates a segmentation is already in flight.
	ErrBusy = errors.New("engine: segmentation already running")

	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine: closed")
)
