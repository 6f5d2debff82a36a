package proto

import (
	"encoding/json"
	"fmt"
)

const (
	// Version tracks the wire-protocol revision expected from the server feed.
	Version = 1

	// Server message type identifiers.
	TypeAuthoritative   = "authoritative"
	TypeRemoveAttribute = "removeAttribute"
	TypeHeartbeat       = "heartbeat"
)

// Outbound message type identifiers.
const (
	typeHeartbeatAck = "heartbeatAck"
)

// ServerMessage captures an inbound websocket message from the
// authoritative server feed.
type ServerMessage struct {
	Ver    int             `json:"ver,omitempty"`
	Type   string          `json:"type"`
	Frame  uint64          `json:"frame"`
	Object string          `json:"object,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	SentAt int64           `json:"sentAt,omitempty"`
}

// DecodeServerMessage converts raw websocket payloads into a structured message.
func DecodeServerMessage(payload []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported feed protocol version %d", msg.Ver)
	}
	return msg, nil
}

// AuthoritativeUpdate is the structured server correction carried by a
// feed message, staged for the simulation to consume at the next tick.
type AuthoritativeUpdate struct {
	Object string
	Kind   string
	Frame  uint64
	Value  json.RawMessage
	Remove bool
}

// UpdateFromMessage extracts the simulation-facing update from a feed
// message. Heartbeats and malformed updates yield false.
func UpdateFromMessage(msg ServerMessage) (AuthoritativeUpdate, bool) {
	switch msg.Type {
	case TypeAuthoritative:
		if msg.Object == "" || msg.Kind == "" || msg.Frame == 0 || len(msg.Value) == 0 {
			return AuthoritativeUpdate{}, false
		}
		return AuthoritativeUpdate{
			Object: msg.Object,
			Kind:   msg.Kind,
			Frame:  msg.Frame,
			Value:  msg.Value,
		}, true
	case TypeRemoveAttribute:
		if msg.Object == "" || msg.Kind == "" || msg.Frame == 0 {
			return AuthoritativeUpdate{}, false
		}
		return AuthoritativeUpdate{
			Object: msg.Object,
			Kind:   msg.Kind,
			Frame:  msg.Frame,
			Remove: true,
		}, true
	default:
		return AuthoritativeUpdate{}, false
	}
}

// HeartbeatAck echoes a server heartbeat with the client's current frame.
type HeartbeatAck struct {
	Frame  uint64
	SentAt int64
}

// EncodeHeartbeatAck renders a heartbeat acknowledgement.
func EncodeHeartbeatAck(msg HeartbeatAck) ([]byte, error) {
	wire := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Frame  uint64 `json:"frame"`
		SentAt int64  `json:"sentAt,omitempty"`
	}{
		Ver:    Version,
		Type:   typeHeartbeatAck,
		Frame:  msg.Frame,
		SentAt: msg.SentAt,
	}
	return json.Marshal(wire)
}
