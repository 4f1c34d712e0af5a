package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by commands issued after Shutdown.
	ErrClosed = errors.New("session: shut down")
	// ErrShutdownTimeout means the background goroutine did not stop within
	// the grace period. Sockets may still be closing.
	ErrShutdownTimeout = errors.New("session: shutdown grace period elapsed")
)

// InvalidStateError rejects a command that the current state forbids.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}
