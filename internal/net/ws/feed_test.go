package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"drift-and-mend/client/internal/sim"
)

type fixedFrames uint64

func (f fixedFrames) CurrentFrame() uint64 { return uint64(f) }

func websocketURL(t *testing.T, httpURL string) string {
	t.Helper()
	if !strings.HasPrefix(httpURL, "http") {
		t.Fatalf("unexpected test server url %q", httpURL)
	}
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestFeedStagesUpdatesAndAnswersHeartbeats(t *testing.T) {
	upgrader := websocket.Upgrader{}
	acks := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		messages := []string{
			`{"type":"authoritative","frame":5,"object":"player-1","kind":"health","value":42}`,
			`{"type":"bogus","frame":1}`,
			`{"type":"removeAttribute","frame":6,"object":"player-1","kind":"shield"}`,
			`{"type":"heartbeat","frame":7,"sentAt":99}`,
		}
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		acks <- payload
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	intake := sim.NewUpdateBuffer(8, nil)
	feed := NewFeed(FeedConfig{URL: websocketURL(t, srv.URL)}, intake, fixedFrames(42))
	if feed.SessionID() == "" {
		t.Fatal("expected a session id")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go feed.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for intake.Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for updates, have %d", intake.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	updates := intake.Drain()
	if len(updates) != 2 {
		t.Fatalf("expected 2 staged updates, got %d", len(updates))
	}
	if updates[0].Object != "player-1" || updates[0].Kind != "health" || updates[0].Frame != 5 {
		t.Fatalf("unexpected first update: %+v", updates[0])
	}
	if string(updates[0].Value) != "42" {
		t.Fatalf("unexpected first value: %s", updates[0].Value)
	}
	if !updates[1].Remove || updates[1].Kind != "shield" || updates[1].Frame != 6 {
		t.Fatalf("unexpected second update: %+v", updates[1])
	}

	select {
	case payload := <-acks:
		var ack struct {
			Type   string `json:"type"`
			Frame  uint64 `json:"frame"`
			SentAt int64  `json:"sentAt"`
		}
		if err := json.Unmarshal(payload, &ack); err != nil {
			t.Fatalf("decode heartbeat ack: %v", err)
		}
		if ack.Type != "heartbeatAck" || ack.Frame != 42 || ack.SentAt != 99 {
			t.Fatalf("unexpected heartbeat ack: %+v", ack)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for heartbeat ack")
	}
}
