package session

import "fmt"

// State is the connection state. Only the bridge goroutine reads or writes
// it; consumers ask through Bridge.State.
type State int

const (
	Disconnected State = iota
	Listening
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Listening:
		return "listening"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
