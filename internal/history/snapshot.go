package history

import "drift-and-mend/client/internal/frame"

// Snapshot buffers the last authoritative values reported for an attribute.
// It is a pure value cache keyed by frame: no lifetime semantics, and it is
// sized to outlive network delay plus the resimulation window so comparisons
// against History stay possible while updates are in flight.
type Snapshot[T comparable] struct {
	values *frame.Buffer[T]
}

// NewSnapshot constructs an empty store retaining up to capacity frames.
func NewSnapshot[T comparable](capacity int) *Snapshot[T] {
	return &Snapshot[T]{values: frame.NewBuffer[T](capacity)}
}

// At returns the authoritative value reported for frame, if one is stored.
func (s *Snapshot[T]) At(f uint64) (T, bool) {
	return s.values.Get(f)
}

// Insert stores an authoritative value at frame.
func (s *Snapshot[T]) Insert(f uint64, value T) (frame.InsertResult, error) {
	return s.values.Insert(f, value)
}

// NewestSnapFrame reports the most recent frame with an authoritative value.
// The second return is false when no snapshot has arrived yet.
func (s *Snapshot[T]) NewestSnapFrame() (uint64, bool) {
	newest := s.values.NewestFrame()
	if newest == 0 {
		return 0, false
	}
	return newest, true
}
