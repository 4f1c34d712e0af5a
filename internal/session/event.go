package session

import (
	"context"
	"fmt"

	"github.com/bbitmaster/peerpad/internal/protocol"
)

// EventKind identifies an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventPeerIdentified
	EventDisconnected
	EventMessage
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventPeerIdentified:
		return "peer_identified"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered to the consumer in emission order.
type Event struct {
	Kind EventKind
	// Address is set for EventPeerIdentified.
	Address string
	// Message is set for EventMessage.
	Message protocol.Message
	// Err is set for EventError.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case EventPeerIdentified:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Address)
	case EventMessage:
		return fmt.Sprintf("%s(%s, %d bytes)", e.Kind, e.Message.Kind, len(e.Message.Content))
	case EventError:
		return fmt.Sprintf("%s(%v)", e.Kind, e.Err)
	}
	return e.Kind.String()
}

// Handler is what a consumer implements to observe a session.
type Handler interface {
	OnConnected()
	OnPeerIdentified(address string)
	OnDisconnected()
	OnMessage(kind protocol.Kind, content string)
	OnError(description string)
}

// Dispatch calls the Handler method matching ev. It runs on the caller's
// goroutine.
func Dispatch(ev Event, h Handler) {
	switch ev.Kind {
	case EventConnected:
		h.OnConnected()
	case EventPeerIdentified:
		h.OnPeerIdentified(ev.Address)
	case EventDisconnected:
		h.OnDisconnected()
	case EventMessage:
		h.OnMessage(ev.Message.Kind, ev.Message.Content)
	case EventError:
		desc := "unknown error"
		if ev.Err != nil {
			desc = ev.Err.Error()
		}
		h.OnError(desc)
	}
}

// Consume dispatches events to h until the channel closes or ctx ends.
func Consume(ctx context.Context, events <-chan Event, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			Dispatch(ev, h)
		}
	}
}
