package weights

import "errors"

// Sentinel errors for weight provisioning.
// Use errors.Is() to check for specific conditions.
var (
	// ErrAssetNotFound indicates no release asset matched the requested
	// weight-set name.
	ErrAssetNotFound = errors.New("weights: no matching release asset")

	// ErrNetwork indicates a transport failure or non-success HTTP status
	// during download. The wrapping error carries the HTTP status text.
	ErrNetwork = errors.New("weights: network error")

	// ErrArchive indicates a corrupt archive or a failed extraction. A
	// partially extracted directory may be left behind; clear it with a
	// forced re-download.
	ErrArchive = errors.New("weights: archive error")

	// ErrStorage indicates a filesystem operation failed.
	ErrStorage = errors.New("weights: storage error")
)
