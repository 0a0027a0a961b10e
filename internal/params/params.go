// Package params builds and binds the model configuration consumed by the
// segmentation engine.
package params

// DefaultCheckpointName is the checkpoint file the engine loads from each
// fold directory of a weight set.
const DefaultCheckpointName = "checkpoint_final.pth"

// DefaultDevice is the inference device used when none is configured.
const DefaultDevice = "cuda"

// Parameter holds the engine's model configuration. It is constructed fresh
// and shared by reference once bound; re-binding replaces the engine's
// reference rather than mutating a bound value.
type Parameter struct {
	// ModelPath is the directory containing weight-set directories.
	ModelPath string

	// CheckpointName is the checkpoint filename inside each fold directory.
	CheckpointName string

	// Folds is the number of folds used for prediction.
	Folds int

	// Device is the inference device ("cuda", "cpu" or "mps").
	Device string
}

// Option mutates a Parameter during construction.
type Option func(*Parameter)

// WithCheckpointName overrides the default checkpoint filename.
func WithCheckpointName(name string) Option {
	return func(p *Parameter) { p.CheckpointName = name }
}

// WithFolds sets the fold count.
func WithFolds(n int) Option {
	return func(p *Parameter) { p.Folds = n }
}

// WithDevice sets the inference device.
func WithDevice(device string) Option {
	return func(p *Parameter) { p.Device = device }
}

// New constructs a Parameter for the given model path.
func New(modelPath string, opts ...Option) *Parameter {
	p := &Parameter{
		ModelPath:      modelPath,
		CheckpointName: DefaultCheckpointName,
		Folds:          1, // default to a single fold for performance
		Device:         DefaultDevice,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target is the subset of the engine surface the binder needs.
type Target interface {
	// SetParameter replaces the engine's active parameter reference.
	SetParameter(p *Parameter)

	// ValidateParameter runs the engine's own validation of the bound
	// parameters and returns a validity flag with a diagnostic message.
	ValidateParameter() (valid bool, diagnostic string)
}

// Bind sets the engine's active parameter reference. The engine does not
// observe changes automatically; call Bind again after any change.
func Bind(t Target, p *Parameter) {
	t.SetParameter(p)
}

// Validate delegates to the engine's validation call and returns its result
// unmodified. No caching: the result reflects on-disk state at call time.
func Validate(t Target) (bool, string) {
	return t.ValidateParameter()
}
