package history

import (
	"fmt"

	"drift-and-mend/client/internal/frame"
)

// AliveRange marks an interval of frames during which an attribute existed on
// its owning object. Start is inclusive; End is exclusive, with zero meaning
// the range is still open.
type AliveRange struct {
	Start uint64
	End   uint64
}

// Open reports whether the range has no recorded death yet.
func (r AliveRange) Open() bool {
	return r.End == 0
}

// Contains reports whether f falls inside the range.
func (r AliveRange) Contains(f uint64) bool {
	return r.Start <= f && (r.End == 0 || r.End > f)
}

// History buffers an attribute's locally simulated values for the last few
// frames and tracks the attribute's existence lifetime as a sequence of alive
// ranges. Ranges are non-overlapping and frame-ordered; only the last range
// may be open.
type History[T comparable] struct {
	values            *frame.Buffer[T]
	aliveRanges       []AliveRange
	correctionLogging bool
	corrections       []Correction[T]
	suppressedDeaths  uint64
}

// Correction captures a resimulated value that differs from what was
// previously recorded for the same frame. Consumed by smoothing layers, never
// persisted.
type Correction[T comparable] struct {
	Before T
	After  T
	Frame  uint64
}

// New seeds a history with one open alive range and one buffered value at the
// birth frame.
func New[T comparable](capacity int, birthFrame uint64, value T) *History[T] {
	h := &History[T]{
		values:      frame.NewBuffer[T](capacity),
		aliveRanges: []AliveRange{{Start: birthFrame}},
	}
	// A fresh buffer cannot reject its first insert.
	_, _ = h.values.Insert(birthFrame, value)
	return h
}

// NewEmpty constructs a history with no recorded values or lifetime yet. Used
// when the first evidence of the attribute arrives authoritatively and the
// snapshot-apply pass will record the seed value itself.
func NewEmpty[T comparable](capacity int) *History[T] {
	return &History[T]{values: frame.NewBuffer[T](capacity)}
}

// EnableCorrectionLogging turns on correction records for this attribute.
func (h *History[T]) EnableCorrectionLogging() {
	h.correctionLogging = true
}

// CorrectionLogging reports whether divergence on this attribute produces
// correction records.
func (h *History[T]) CorrectionLogging() bool {
	return h.correctionLogging
}

// At returns the buffered value for frame, if one is stored.
func (h *History[T]) At(f uint64) (T, bool) {
	return h.values.Get(f)
}

// Range reports the inclusive frame bounds currently buffered.
func (h *History[T]) Range() (oldest, newest uint64) {
	return h.values.Range()
}

// Insert buffers value at frame. If the attribute was not alive at that frame
// a birth is recorded there.
func (h *History[T]) Insert(f uint64, value T) (frame.InsertResult, error) {
	res, err := h.values.Insert(f, value)
	if err != nil {
		return res, err
	}
	if !h.AliveAt(f) {
		h.recordBirth(f)
	}
	return res, nil
}

// InsertResimulated buffers a freshly recomputed value at frame, emitting a
// correction record when it disagrees with what was previously stored there
// and correction logging is enabled.
func (h *History[T]) InsertResimulated(f uint64, value T) (frame.InsertResult, error) {
	if h.correctionLogging {
		if prev, ok := h.values.Get(f); ok && prev != value {
			h.corrections = append(h.corrections, Correction[T]{Before: prev, After: value, Frame: f})
		}
	}
	return h.Insert(f, value)
}

// DrainCorrections returns the pending correction records and clears them.
func (h *History[T]) DrainCorrections() []Correction[T] {
	if len(h.corrections) == 0 {
		return nil
	}
	drained := h.corrections
	h.corrections = nil
	return drained
}

// RemoveFrameAndBeyond drops the buffered values for frame and every greater
// frame.
func (h *History[T]) RemoveFrameAndBeyond(f uint64) {
	if f == 0 {
		return
	}
	h.values.RemoveNewerThan(f - 1)
}

// AliveAt reports whether the attribute existed at frame.
func (h *History[T]) AliveAt(f uint64) bool {
	for _, r := range h.aliveRanges {
		if r.Contains(f) {
			return true
		}
	}
	return false
}

// AliveRanges returns a copy of the recorded lifetime intervals.
func (h *History[T]) AliveRanges() []AliveRange {
	if len(h.aliveRanges) == 0 {
		return nil
	}
	ranges := make([]AliveRange, len(h.aliveRanges))
	copy(ranges, h.aliveRanges)
	return ranges
}

// ReportBirth records that the attribute attached at frame. No-op when the
// attribute is already alive there. A birth without a buffered value for the
// frame is a broken host contract.
func (h *History[T]) ReportBirth(f uint64) error {
	if h.AliveAt(f) {
		return nil
	}
	if _, ok := h.values.Get(f); !ok {
		return fmt.Errorf("report birth at frame %d with no stored value: %w", f, frame.ErrLifecycleViolation)
	}
	h.recordBirth(f)
	return nil
}

// ReportDeath records that the attribute detached at frame, closing the open
// alive range. Reporting death while not alive is a contract violation,
// except during an active rollback: resimulation is known to produce spurious
// detach notifications, so those are suppressed and counted instead.
func (h *History[T]) ReportDeath(f uint64, inRollback bool) error {
	if !h.AliveAt(f) {
		if inRollback {
			h.suppressedDeaths++
			return nil
		}
		return fmt.Errorf("report death at frame %d while not alive: %w", f, frame.ErrLifecycleViolation)
	}
	last := &h.aliveRanges[len(h.aliveRanges)-1]
	if !last.Open() || f < last.Start {
		// Alive at frame but not via the open tail range: death would apply
		// to an interior interval, which the host contract forbids.
		return fmt.Errorf("report death at frame %d inside closed range: %w", f, frame.ErrLifecycleViolation)
	}
	if f == last.Start {
		// The range never covered a full frame; drop it instead of keeping a
		// degenerate interval.
		h.aliveRanges = h.aliveRanges[:len(h.aliveRanges)-1]
		return nil
	}
	last.End = f
	return nil
}

// SuppressedDeaths reports how many spurious death reports were swallowed
// during rollbacks. Known gap: the host sometimes emits detach notifications
// while resimulating and it is unresolved why, so they are counted rather
// than trusted.
func (h *History[T]) SuppressedDeaths() uint64 {
	return h.suppressedDeaths
}

func (h *History[T]) recordBirth(f uint64) {
	if n := len(h.aliveRanges); n > 0 {
		last := &h.aliveRanges[n-1]
		if last.End == f {
			// Rebirth on the exact death frame reopens the range.
			last.End = 0
			return
		}
		if f < last.Start {
			// A birth behind an already-recorded range would break the
			// frame-ordered invariant; the recorded range stands.
			return
		}
	}
	h.aliveRanges = append(h.aliveRanges, AliveRange{Start: f})
}
