// Package protocol defines the JSON message schema exchanged between the
// relay server and its clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the purpose of a relay message.
type MessageType string

// The closed set of wire message types.
const (
	// Server-originated notifications.
	TypeOpen       MessageType = "OPEN"
	TypeError      MessageType = "ERROR"
	TypeIDTaken    MessageType = "ID-TAKEN"
	TypeInvalidKey MessageType = "INVALID-KEY"
	TypeExpire     MessageType = "EXPIRE"

	// Client-originated control messages.
	TypeLeave     MessageType = "LEAVE"
	TypeHeartbeat MessageType = "HEARTBEAT"

	// Addressed session-negotiation messages, relayed verbatim.
	TypeOffer     MessageType = "OFFER"
	TypeAnswer    MessageType = "ANSWER"
	TypeCandidate MessageType = "CANDIDATE"
)

var (
	// ErrUnknownType is returned for a type outside the closed enumeration.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMissingType is returned when the type field is absent or empty.
	ErrMissingType = errors.New("missing message type")
)

// Message is the unit exchanged over a client connection. The payload is
// opaque to the server and relayed byte-for-byte; Src is always stamped by
// the server and never trusted from the client.
type Message struct {
	Type    MessageType     `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the structured payload carried by ERROR and ID-TAKEN
// notifications.
type ErrorPayload struct {
	Msg string `json:"msg"`
}

// Parse decodes a raw wire message. It rejects non-object input and types
// outside the closed enumeration so the relay engine only ever dispatches on
// known values.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return &msg, nil
}

// Valid reports whether t is part of the closed type enumeration.
func (t MessageType) Valid() bool {
	switch t {
	case TypeOpen, TypeError, TypeIDTaken, TypeInvalidKey, TypeExpire,
		TypeLeave, TypeHeartbeat, TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// IsAddressed reports whether messages of this type carry a destination and
// are relayed to another client.
func (t MessageType) IsAddressed() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// Encode serializes the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// String renders a compact description for log lines; payloads are elided.
func (m *Message) String() string {
	if m.Dst != "" {
		return fmt.Sprintf("%s %s->%s", m.Type, m.Src, m.Dst)
	}
	return string(m.Type)
}

// Open builds the admission acknowledgment sent to a newly registered
// client. Src carries the assigned identifier so clients that requested
// server-side assignment learn their identity.
func Open(id string) *Message {
	return &Message{Type: TypeOpen, Src: id}
}

// InvalidKey builds the notification for a failed credential check.
func InvalidKey() *Message {
	return errorNotification(TypeInvalidKey, "invalid key provided")
}

// IDTaken builds the notification for a duplicate-identifier rejection.
func IDTaken(id string) *Message {
	return errorNotification(TypeIDTaken, fmt.Sprintf("ID %q is taken", id))
}

// Expire builds the staleness eviction notification.
func Expire() *Message {
	return &Message{Type: TypeExpire}
}

// PeerNotFound builds the ERROR notification returned to a sender whose
// addressed message named an absent destination.
func PeerNotFound(dst string) *Message {
	return errorNotification(TypeError, fmt.Sprintf("Peer %s not found", dst))
}

// Error builds a generic ERROR notification with a human-readable message.
func Error(msg string) *Message {
	return errorNotification(TypeError, msg)
}

func errorNotification(t MessageType, msg string) *Message {
	payload, err := json.Marshal(ErrorPayload{Msg: msg})
	if err != nil {
		// Marshaling a flat struct of strings cannot fail.
		panic(err)
	}
	return &Message{Type: t, Payload: payload}
}
