package motion

import "github.com/pkg/errors"

// Failure classes for a single recording. Callers match them with errors.Is;
// every one of them is fatal for the recording it occurred in and for that
// recording only.
var (
	// ErrSourceUnavailable is returned when a recording cannot be opened or decoded.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidFrameRate is returned when the reported frame rate cannot be used
	// for timestamp arithmetic (zero, negative, NaN or infinite).
	ErrInvalidFrameRate = errors.New("invalid frame rate")
	// ErrFrameRead is returned when a frame cannot be read mid-stream.
	ErrFrameRead = errors.New("frame read failed")
	// ErrOutputConflict is returned when the outputs of a recording would
	// overwrite its own source, another recording, or another recording's outputs.
	ErrOutputConflict = errors.New("output conflict")
)
