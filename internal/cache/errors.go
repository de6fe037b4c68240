package cache

import (
	"errors"
	"fmt"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

// ErrInvalidThreadID is returned for IDs that cannot be used as file names.
var ErrInvalidThreadID = errors.New("invalid thread id")

// ReadError reports a cache entry that exists but could not be decoded.
// Callers treat it as a miss.
type ReadError struct {
	Thread gmail.ThreadID
	Path   string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read cache entry %s (%s): %v", e.Thread, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
