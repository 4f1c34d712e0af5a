package transport

import (
	"errors"
	"fmt"
)

// ErrNotConnected is wrapped by SendError when the link has no open socket.
var ErrNotConnected = errors.New("transport: no active connection")

// BindError reports a port that could not be listened on.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// DialError reports a failed outbound connection.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// SendError reports a frame that could not be written.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
