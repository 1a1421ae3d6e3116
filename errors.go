package experience

import "errors"

var (
	// ErrFieldNotFound is returned when a transition does not carry the
	// requested field.
	ErrFieldNotFound = errors.New("experience: field not found")

	// ErrEmptyReplay is returned by operations that need at least one
	// stored transition.
	ErrEmptyReplay = errors.New("experience: empty replay")

	// ErrIncompatibleReplays is returned when two buffers with different
	// layouts are combined, or a snapshot with a different layout is
	// loaded.
	ErrIncompatibleReplays = errors.New("experience: incompatible replays")

	// ErrVectorizedSample is returned when episode sampling is requested
	// on a vectorized buffer, whose terminal flags are per-environment.
	ErrVectorizedSample = errors.New("experience: episode sampling requires a flat replay")

	// ErrRangeExhausted is returned when the buffer holds too few records
	// or complete episodes to serve the requested sample.
	ErrRangeExhausted = errors.New("experience: sample range exhausted")

	// ErrBadSnapshot is returned when snapshot data cannot be decoded.
	ErrBadSnapshot = errors.New("experience: malformed snapshot")
)
