package sim

import (
	"sync"

	"drift-and-mend/client/internal/net/proto"
)

const (
	intakeBufferOccupancyMetricKey = "sim_intake_buffer_occupancy"
	intakeBufferOverflowMetricKey  = "sim_intake_buffer_overflow_total"
)

// UpdateBuffer stores authoritative updates received off-tick in a
// fixed-size ring. It is safe for concurrent producers and a single
// consumer, which is the tick pipeline.
type UpdateBuffer struct {
	mu      sync.Mutex
	data    []proto.AuthoritativeUpdate
	head    int
	tail    int
	count   int
	metrics telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewUpdateBuffer constructs a ring buffer with the provided capacity.
func NewUpdateBuffer(capacity int, metrics telemetryMetrics) *UpdateBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &UpdateBuffer{
		data:    make([]proto.AuthoritativeUpdate, capacity),
		metrics: metrics,
	}
}

// Capacity reports the maximum number of updates the buffer can hold.
func (b *UpdateBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages an update, returning false if the buffer is full.
func (b *UpdateBuffer) Push(update proto.AuthoritativeUpdate) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		if b.metrics != nil {
			b.metrics.Add(intakeBufferOverflowMetricKey, 1)
		}
		return false
	}
	b.data[b.tail] = update
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return true
}

// Drain returns all staged updates in FIFO order and clears the buffer.
func (b *UpdateBuffer) Drain() []proto.AuthoritativeUpdate {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	updates := make([]proto.AuthoritativeUpdate, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		updates[i] = b.data[idx]
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return updates
}

// Len reports the number of staged updates.
func (b *UpdateBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *UpdateBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(intakeBufferOccupancyMetricKey, uint64(b.count))
}
