package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"drift-and-mend/client/internal/net/proto"
	"drift-and-mend/client/internal/sim"
	"drift-and-mend/client/internal/telemetry"
)

const (
	feedMessagesMetricKey   = "ws_feed_messages_total"
	feedDroppedMetricKey    = "ws_feed_dropped_total"
	feedReconnectsMetricKey = "ws_feed_reconnects_total"
)

// frameSource reports the simulation's current frame for heartbeat acks.
type frameSource interface {
	CurrentFrame() uint64
}

// FeedConfig tunes the server feed connection.
type FeedConfig struct {
	URL          string
	Logger       telemetry.Logger
	Metrics      telemetry.Metrics
	DialTimeout  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Feed maintains the websocket connection to the authoritative server,
// staging decoded updates into the intake buffer and answering
// heartbeats with the client's current frame. The tick loop never
// touches the socket; the intake ring and the atomic frame counter are
// the only shared surfaces.
type Feed struct {
	cfg       FeedConfig
	intake    *sim.UpdateBuffer
	frames    frameSource
	sessionID string
	dialer    *websocket.Dialer
}

func NewFeed(cfg FeedConfig, intake *sim.UpdateBuffer, frames frameSource) *Feed {
	if intake == nil {
		return nil
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 250 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 15 * time.Second
	}
	return &Feed{
		cfg:       cfg,
		intake:    intake,
		frames:    frames,
		sessionID: uuid.NewString(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
	}
}

// SessionID identifies this feed connection in logs.
func (f *Feed) SessionID() string {
	if f == nil {
		return ""
	}
	return f.sessionID
}

// Run dials the feed and keeps it alive until ctx is cancelled,
// reconnecting with exponential backoff after connection loss.
func (f *Feed) Run(ctx context.Context) error {
	if f == nil {
		return nil
	}
	backoff := f.cfg.ReconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			f.warnf("dial %s: %v", f.cfg.URL, err)
		} else {
			backoff = f.cfg.ReconnectMin
			f.readLoop(ctx, conn)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.cfg.ReconnectMax {
			backoff = f.cfg.ReconnectMax
		}
		f.addMetric(feedReconnectsMetricKey, 1)
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				f.warnf("feed session %s read: %v", f.sessionID, err)
			}
			return
		}
		f.addMetric(feedMessagesMetricKey, 1)

		msg, err := proto.DecodeServerMessage(payload)
		if err != nil {
			f.warnf("discarding malformed feed message: %v", err)
			continue
		}

		if msg.Type == proto.TypeHeartbeat {
			if err := f.answerHeartbeat(conn, msg); err != nil {
				f.warnf("feed session %s heartbeat ack: %v", f.sessionID, err)
				return
			}
			continue
		}

		update, ok := proto.UpdateFromMessage(msg)
		if !ok {
			f.warnf("discarding feed message type=%q frame=%d", msg.Type, msg.Frame)
			continue
		}
		if !f.intake.Push(update) {
			f.addMetric(feedDroppedMetricKey, 1)
			f.warnf("intake full, dropping update %s/%s frame=%d", update.Object, update.Kind, update.Frame)
		}
	}
}

func (f *Feed) answerHeartbeat(conn *websocket.Conn, msg proto.ServerMessage) error {
	var current uint64
	if f.frames != nil {
		current = f.frames.CurrentFrame()
	}
	ack, err := proto.EncodeHeartbeatAck(proto.HeartbeatAck{Frame: current, SentAt: msg.SentAt})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, ack)
}

func (f *Feed) warnf(format string, args ...any) {
	if f.cfg.Logger == nil {
		return
	}
	f.cfg.Logger.Printf(format, args...)
}

func (f *Feed) addMetric(key string, delta uint64) {
	if f.cfg.Metrics == nil {
		return
	}
	f.cfg.Metrics.Add(key, delta)
}
