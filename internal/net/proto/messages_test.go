package proto

import (
	"encoding/json"
	"testing"
)

func TestDecodeServerMessage(t *testing.T) {
	t.Run("defaults version", func(t *testing.T) {
		msg, err := DecodeServerMessage([]byte(`{"type":"heartbeat","frame":12}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Ver != Version {
			t.Fatalf("expected version %d, got %d", Version, msg.Ver)
		}
	})

	t.Run("rejects unknown version", func(t *testing.T) {
		if _, err := DecodeServerMessage([]byte(`{"ver":99,"type":"heartbeat"}`)); err == nil {
			t.Fatalf("expected version error")
		}
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		if _, err := DecodeServerMessage([]byte(`{`)); err == nil {
			t.Fatalf("expected decode error")
		}
	})
}

func TestUpdateFromMessage(t *testing.T) {
	t.Run("authoritative update", func(t *testing.T) {
		update, ok := UpdateFromMessage(ServerMessage{
			Type:   TypeAuthoritative,
			Frame:  7,
			Object: "player-1",
			Kind:   "health",
			Value:  json.RawMessage(`42`),
		})
		if !ok {
			t.Fatalf("expected update to be recognized")
		}
		if update.Object != "player-1" || update.Kind != "health" || update.Frame != 7 {
			t.Fatalf("unexpected update: %+v", update)
		}
		if update.Remove {
			t.Fatalf("expected value update, got removal")
		}
	})

	t.Run("authoritative update missing value", func(t *testing.T) {
		if _, ok := UpdateFromMessage(ServerMessage{
			Type:   TypeAuthoritative,
			Frame:  7,
			Object: "player-1",
			Kind:   "health",
		}); ok {
			t.Fatalf("expected update without value to be rejected")
		}
	})

	t.Run("attribute removal", func(t *testing.T) {
		update, ok := UpdateFromMessage(ServerMessage{
			Type:   TypeRemoveAttribute,
			Frame:  9,
			Object: "npc-3",
			Kind:   "shield",
		})
		if !ok {
			t.Fatalf("expected removal to be recognized")
		}
		if !update.Remove {
			t.Fatalf("expected removal flag")
		}
	})

	t.Run("heartbeat carries no update", func(t *testing.T) {
		if _, ok := UpdateFromMessage(ServerMessage{Type: TypeHeartbeat, Frame: 3}); ok {
			t.Fatalf("expected heartbeat to be ignored")
		}
	})
}

func TestEncodeHeartbeatAck(t *testing.T) {
	payload, err := EncodeHeartbeatAck(HeartbeatAck{Frame: 21, SentAt: 123456})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var wire struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Frame  uint64 `json:"frame"`
		SentAt int64  `json:"sentAt"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if wire.Ver != Version || wire.Type != "heartbeatAck" || wire.Frame != 21 || wire.SentAt != 123456 {
		t.Fatalf("unexpected wire payload: %+v", wire)
	}
}
