package frame

// Buffer is a short bounded history of the last values of T keyed by frame
// number. Slots are kept for a contiguous frame range ending at the newest
// inserted frame; a slot may be explicitly empty. Inserting before the
// retained window fails with ErrFrameTooOld, inserting past the newest frame
// always succeeds and back-fills the gap with empty slots.
type Buffer[T comparable] struct {
	// entries is ordered newest-first: entries[0] holds newestFrame,
	// entries[i] holds newestFrame - i.
	entries  []slot[T]
	newest   uint64 // frame number of entries[0]; 0 = empty buffer
	capacity int
}

type slot[T comparable] struct {
	value T
	ok    bool
}

// NewBuffer constructs an empty buffer retaining up to capacity frames.
func NewBuffer[T comparable](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		entries:  make([]slot[T], 0, capacity),
		capacity: capacity,
	}
}

// Capacity reports the maximum number of frames the buffer retains.
func (b *Buffer[T]) Capacity() int {
	if b == nil {
		return 0
	}
	return b.capacity
}

// Len reports the number of frame slots currently held, occupied or not.
func (b *Buffer[T]) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// NewestFrame reports the greatest frame number with a buffered slot.
// Zero means the buffer is empty.
func (b *Buffer[T]) NewestFrame() uint64 {
	if b == nil {
		return 0
	}
	return b.newest
}

// OldestFrame reports the smallest frame number with a buffered slot,
// saturating at zero for an empty buffer.
func (b *Buffer[T]) OldestFrame() uint64 {
	if b == nil || len(b.entries) == 0 {
		return b.NewestFrame()
	}
	span := uint64(len(b.entries) - 1)
	if span >= b.newest {
		return 0
	}
	return b.newest - span
}

// Range reports the inclusive frame bounds currently held by the buffer.
func (b *Buffer[T]) Range() (oldest, newest uint64) {
	return b.OldestFrame(), b.NewestFrame()
}

// Get returns the value stored at frame. A stored-empty slot and an
// out-of-window frame are intentionally indistinguishable: both report false.
func (b *Buffer[T]) Get(frame uint64) (T, bool) {
	var zero T
	if b == nil {
		return zero, false
	}
	idx, ok := b.index(frame)
	if !ok || idx >= len(b.entries) {
		return zero, false
	}
	entry := b.entries[idx]
	if !entry.ok {
		return zero, false
	}
	return entry.value, true
}

// Insert stores value at frame. Frames at or below the oldest retained frame
// are rejected with ErrFrameTooOld and leave the buffer untouched; the caller
// decides whether to snap-apply instead. Frames past the newest are always
// accepted, back-filling any gap with empty slots, then the window is
// truncated to capacity.
func (b *Buffer[T]) Insert(frame uint64, value T) (InsertResult, error) {
	// The frame counter increments after past-frame inserts run, so the
	// boundary slot is rejected too: it would fall outside the window
	// immediately after the increment.
	if frame <= b.OldestFrame() {
		return InsertNew, ErrFrameTooOld
	}
	if idx, ok := b.index(frame); ok && idx < len(b.entries) {
		entry := &b.entries[idx]
		if !entry.ok {
			entry.value = value
			entry.ok = true
			return InsertNew, nil
		}
		if entry.value == value {
			return InsertIdentical, nil
		}
		entry.value = value
		return InsertReplaced, nil
	}

	if b.newest != 0 && frame > b.newest+1 {
		b.prependBlanks(frame - b.newest - 1)
	}
	b.pushFront(slot[T]{value: value, ok: true})
	b.newest = frame
	if len(b.entries) > b.capacity {
		b.entries = b.entries[:b.capacity]
	}
	return InsertNew, nil
}

// RemoveNewerThan drops every slot for frames greater than frame, shrinking
// the newest frame down to it. No-op when frame is at or past the newest, or
// when the whole window is newer than frame and nothing sane would remain.
func (b *Buffer[T]) RemoveNewerThan(frame uint64) {
	if b == nil || frame >= b.newest {
		return
	}
	if frame+uint64(b.capacity) <= b.newest {
		return
	}
	drop := int(b.newest - frame)
	if drop > len(b.entries) {
		drop = len(b.entries)
	}
	b.entries = b.entries[drop:]
	b.newest = frame
}

// Occupancy reports which retained slots hold a value, newest first.
func (b *Buffer[T]) Occupancy() []bool {
	if b == nil || len(b.entries) == 0 {
		return nil
	}
	occupied := make([]bool, len(b.entries))
	for i, entry := range b.entries {
		occupied[i] = entry.ok
	}
	return occupied
}

// index maps a frame number to its position in entries, reporting false when
// the frame falls outside the capacity window.
func (b *Buffer[T]) index(frame uint64) (int, bool) {
	if b.newest == 0 || frame > b.newest {
		return 0, false
	}
	if frame+uint64(b.capacity) <= b.newest {
		return 0, false
	}
	return int(b.newest - frame), true
}

func (b *Buffer[T]) pushFront(entry slot[T]) {
	b.entries = append(b.entries, slot[T]{})
	copy(b.entries[1:], b.entries[:len(b.entries)-1])
	b.entries[0] = entry
}

func (b *Buffer[T]) prependBlanks(gap uint64) {
	// Anything beyond capacity is evicted immediately after the insert, so
	// there is no point materialising an arbitrarily large gap.
	blanks := int(gap)
	if gap > uint64(b.capacity) {
		blanks = b.capacity
	}
	grown := make([]slot[T], blanks, blanks+len(b.entries))
	b.entries = append(grown, b.entries...)
}
