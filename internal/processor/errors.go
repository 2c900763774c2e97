package processor

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

var (
	// ErrWriteArtifact wraps filesystem failures while writing an artifact.
	ErrWriteArtifact = constError("writing artifact")

	// ErrRowPanic marks a row whose handling panicked.
	ErrRowPanic = constError("row processing panicked")
)
