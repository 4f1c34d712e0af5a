// Package transport is the peer link: one TCP socket carrying
// newline-delimited protocol frames, plus the listener that produces it on
// the hosting side.
package transport

import (
	"log/slog"
	"time"
)

// Role says which side of the link we are.
type Role int

const (
	// Host accepted the connection.
	Host Role = iota
	// Client dialed it.
	Client
)

func (r Role) String() string {
	switch r {
	case Host:
		return "host"
	case Client:
		return "client"
	}
	return "unknown"
}

const (
	DefaultWriteTimeout = 5 * time.Second
	// DefaultMaxFrameSize bounds a single frame. Full syncs carry the whole
	// buffer so this is generous.
	DefaultMaxFrameSize = 16 << 20
)

// Opts configures links and listeners.
type Opts struct {
	WriteTimeout time.Duration
	MaxFrameSize int
	Logger       *slog.Logger
}

func (o Opts) withDefaults() Opts {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
