package discovery

import (
	"errors"
	"fmt"
)

// StreamError reports a failure of the document stream discovery reads.
// The cause is preserved for errors.Is and errors.As.
type StreamError struct {
	// Collection is the collection being sampled.
	Collection string

	// Op is "open" when the stream could not be opened, "read" when it
	// failed mid-iteration.
	Op string

	// Err is the underlying I/O error.
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("discover %s: %s stream: %v", e.Collection, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsStreamError reports whether err is or wraps a StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}
