// Package protocol defines the newline-delimited JSON frames exchanged
// between two peers.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant of a Message on the wire.
type Kind string

const (
	// Text is appended to the receiver's view of the peer buffer.
	Text Kind = "text"
	// Clear empties the receiver's view of the peer buffer.
	Clear Kind = "clear"
	// FullSync replaces the receiver's view of the peer buffer.
	FullSync Kind = "full_sync"
	// SyncRequest asks the receiver to answer with a FullSync.
	SyncRequest Kind = "sync_request"
)

// Delimiter terminates every frame.
const Delimiter = '\n'

// Valid reports whether k is one of the four known variants.
func (k Kind) Valid() bool {
	switch k {
	case Text, Clear, FullSync, SyncRequest:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Message is one frame. The zero Content is the empty string, which is what
// Clear and SyncRequest carry.
type Message struct {
	Kind    Kind
	Content string
}

// envelope is the JSON shape of a frame. Type is a pointer so a missing
// field can be told apart from an empty one.
type envelope struct {
	Type    *string `json:"type"`
	Content string  `json:"content"`
}

// Encode renders m as a single JSON object followed by Delimiter.
func Encode(m Message) ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", m.Kind)}
	}

	t := string(m.Kind)
	b, err := json.Marshal(envelope{Type: &t, Content: m.Content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", m.Kind, err)
	}
	return append(b, Delimiter), nil
}

// Decode parses one frame with its delimiter already stripped.
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Message{}, &ProtocolError{Reason: "invalid JSON", Err: err}
	}

	if env.Type == nil {
		return Message{}, &ProtocolError{Reason: "missing message type"}
	}

	kind := Kind(*env.Type)
	if !kind.Valid() {
		return Message{}, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", kind)}
	}

	return Message{Kind: kind, Content: env.Content}, nil
}
