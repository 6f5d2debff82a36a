package sim

import (
	"testing"

	"drift-and-mend/client/internal/net/proto"
)

type stubMetrics struct {
	counters map[string]uint64
	gauges   map[string]uint64
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{counters: make(map[string]uint64), gauges: make(map[string]uint64)}
}

func (m *stubMetrics) Add(key string, delta uint64)   { m.counters[key] += delta }
func (m *stubMetrics) Store(key string, value uint64) { m.gauges[key] = value }

func TestUpdateBufferWraparound(t *testing.T) {
	buffer := NewUpdateBuffer(3, nil)
	updates := []proto.AuthoritativeUpdate{
		{Object: "a", Kind: "health", Frame: 1},
		{Object: "b", Kind: "health", Frame: 2},
		{Object: "c", Kind: "health", Frame: 3},
	}
	for _, update := range updates {
		if !buffer.Push(update) {
			t.Fatalf("expected push to succeed for %+v", update)
		}
	}
	if buffer.Push(proto.AuthoritativeUpdate{Object: "overflow"}) {
		t.Fatalf("expected push to fail when buffer full")
	}
	drained := buffer.Drain()
	if len(drained) != len(updates) {
		t.Fatalf("expected %d updates, got %d", len(updates), len(drained))
	}
	for i, update := range drained {
		if update.Object != updates[i].Object {
			t.Fatalf("expected drain order %v, got %v", updates[i].Object, update.Object)
		}
	}
	// Push again to ensure the indices wrap correctly.
	for _, update := range []proto.AuthoritativeUpdate{{Object: "d"}, {Object: "e"}} {
		if !buffer.Push(update) {
			t.Fatalf("expected push to succeed after drain for %+v", update)
		}
	}
	wrapped := buffer.Drain()
	if len(wrapped) != 2 {
		t.Fatalf("expected 2 updates after wraparound, got %d", len(wrapped))
	}
	if wrapped[0].Object != "d" || wrapped[1].Object != "e" {
		t.Fatalf("unexpected order after wraparound: %+v", wrapped)
	}
}

func TestUpdateBufferOverflowCounted(t *testing.T) {
	metrics := newStubMetrics()
	buffer := NewUpdateBuffer(1, metrics)
	if !buffer.Push(proto.AuthoritativeUpdate{Object: "one"}) {
		t.Fatalf("expected initial push to succeed")
	}
	if buffer.Push(proto.AuthoritativeUpdate{Object: "two"}) {
		t.Fatalf("expected push to fail when capacity exceeded")
	}
	if got := metrics.counters[intakeBufferOverflowMetricKey]; got != 1 {
		t.Fatalf("expected 1 overflow, got %d", got)
	}
	drained := buffer.Drain()
	if len(drained) != 1 || drained[0].Object != "one" {
		t.Fatalf("unexpected drained updates: %+v", drained)
	}
	if got := metrics.gauges[intakeBufferOccupancyMetricKey]; got != 0 {
		t.Fatalf("expected occupancy 0 after drain, got %d", got)
	}
}
