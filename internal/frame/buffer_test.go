package frame

import (
	"errors"
	"testing"
)

func TestBufferOldestFrameTracking(t *testing.T) {
	b := NewBuffer[uint32](5)
	if got := b.OldestFrame(); got != 0 {
		t.Fatalf("expected empty buffer oldest frame 0, got %d", got)
	}
	for f := uint64(1); f <= 5; f++ {
		if _, err := b.Insert(f, uint32(f)); err != nil {
			t.Fatalf("insert frame %d failed: %v", f, err)
		}
		if v, ok := b.Get(f); !ok || v != uint32(f) {
			t.Fatalf("expected frame %d to hold %d, got %d ok=%v", f, f, v, ok)
		}
		if got := b.OldestFrame(); got != 1 {
			t.Fatalf("expected oldest frame 1 after inserting %d, got %d", f, got)
		}
	}
	if _, err := b.Insert(6, 6); err != nil {
		t.Fatalf("insert frame 6 failed: %v", err)
	}
	if got := b.OldestFrame(); got != 2 {
		t.Fatalf("expected oldest frame 2 after eviction, got %d", got)
	}
}

func TestBufferInsertGetEvictAndGaps(t *testing.T) {
	b := NewBuffer[uint32](5)
	for f := uint64(1); f <= 5; f++ {
		if _, err := b.Insert(f, uint32(f)); err != nil {
			t.Fatalf("insert frame %d failed: %v", f, err)
		}
	}
	if v, ok := b.Get(1); !ok || v != 1 {
		t.Fatalf("expected frame 1 = 1, got %d ok=%v", v, ok)
	}
	if _, ok := b.Get(6); ok {
		t.Fatalf("expected no value for frame 6 before insert")
	}

	if _, err := b.Insert(6, 6); err != nil {
		t.Fatalf("insert frame 6 failed: %v", err)
	}
	// Frame 1 fell out of the window.
	if _, ok := b.Get(1); ok {
		t.Fatalf("expected frame 1 to be evicted")
	}
	if v, ok := b.Get(6); !ok || v != 6 {
		t.Fatalf("expected frame 6 = 6, got %d ok=%v", v, ok)
	}

	// Overwrite in place without moving the window.
	res, err := b.Insert(3, 33)
	if err != nil {
		t.Fatalf("overwrite frame 3 failed: %v", err)
	}
	if res != InsertReplaced {
		t.Fatalf("expected replaced result, got %v", res)
	}
	if v, _ := b.Get(3); v != 33 {
		t.Fatalf("expected frame 3 = 33 after overwrite, got %d", v)
	}
	if got := b.NewestFrame(); got != 6 {
		t.Fatalf("expected newest frame 6 after overwrite, got %d", got)
	}

	// The oldest retained frame is the rejection boundary.
	if _, err := b.Insert(2, 22); !errors.Is(err, ErrFrameTooOld) {
		t.Fatalf("expected ErrFrameTooOld for frame 2, got %v", err)
	}

	// A gapped insert back-fills empty slots.
	if _, err := b.Insert(8, 8); err != nil {
		t.Fatalf("insert frame 8 failed: %v", err)
	}
	if _, ok := b.Get(7); ok {
		t.Fatalf("expected gap frame 7 to read empty")
	}
	if v, ok := b.Get(8); !ok || v != 8 {
		t.Fatalf("expected frame 8 = 8, got %d ok=%v", v, ok)
	}
	if got := b.NewestFrame(); got != 8 {
		t.Fatalf("expected newest frame 8, got %d", got)
	}

	b.RemoveNewerThan(5)
	if got := b.NewestFrame(); got != 5 {
		t.Fatalf("expected newest frame 5 after truncation, got %d", got)
	}
	if _, ok := b.Get(6); ok {
		t.Fatalf("expected frame 6 removed")
	}
	if v, ok := b.Get(4); !ok || v != 4 {
		t.Fatalf("expected frame 4 = 4 to survive truncation, got %d ok=%v", v, ok)
	}
	if _, ok := b.Get(3); ok {
		t.Fatalf("expected frame 3 outside window after truncation")
	}
}

func TestBufferInsertResults(t *testing.T) {
	b := NewBuffer[string](4)
	if res, err := b.Insert(1, "a"); err != nil || res != InsertNew {
		t.Fatalf("expected new result for first insert, got %v err=%v", res, err)
	}
	if res, err := b.Insert(3, "c"); err != nil || res != InsertNew {
		t.Fatalf("expected new result for gapped insert, got %v err=%v", res, err)
	}
	// Overwrites at the oldest frame are rejected, so re-insert above it.
	if res, err := b.Insert(3, "c"); err != nil || res != InsertIdentical {
		t.Fatalf("expected identical result for same value, got %v err=%v", res, err)
	}
	if res, err := b.Insert(3, "d"); err != nil || res != InsertReplaced {
		t.Fatalf("expected replaced result for new value, got %v err=%v", res, err)
	}
	// Filling a back-filled gap slot counts as new.
	if res, err := b.Insert(2, "gap"); err != nil || res != InsertNew {
		t.Fatalf("expected new result for gap slot, got %v err=%v", res, err)
	}
}

func TestBufferTooOldInsertDoesNotMutate(t *testing.T) {
	b := NewBuffer[uint32](3)
	for f := uint64(1); f <= 4; f++ {
		if _, err := b.Insert(f, uint32(f)); err != nil {
			t.Fatalf("insert frame %d failed: %v", f, err)
		}
	}
	oldest, newest := b.Range()
	if _, err := b.Insert(oldest, 99); !errors.Is(err, ErrFrameTooOld) {
		t.Fatalf("expected ErrFrameTooOld at window boundary, got %v", err)
	}
	if gotOldest, gotNewest := b.Range(); gotOldest != oldest || gotNewest != newest {
		t.Fatalf("expected range [%d,%d] unchanged, got [%d,%d]", oldest, newest, gotOldest, gotNewest)
	}
	if v, ok := b.Get(oldest); !ok || v != uint32(oldest) {
		t.Fatalf("expected frame %d untouched, got %d ok=%v", oldest, v, ok)
	}
}

func TestBufferLargeGapEvictsEverything(t *testing.T) {
	b := NewBuffer[uint32](5)
	for f := uint64(1); f <= 3; f++ {
		if _, err := b.Insert(f, uint32(f)); err != nil {
			t.Fatalf("insert frame %d failed: %v", f, err)
		}
	}
	if _, err := b.Insert(100, 100); err != nil {
		t.Fatalf("far-future insert failed: %v", err)
	}
	if got := b.NewestFrame(); got != 100 {
		t.Fatalf("expected newest frame 100, got %d", got)
	}
	if got := b.Len(); got != 5 {
		t.Fatalf("expected window truncated to capacity, got %d slots", got)
	}
	for f := uint64(96); f < 100; f++ {
		if _, ok := b.Get(f); ok {
			t.Fatalf("expected gap frame %d to read empty", f)
		}
	}
	if v, ok := b.Get(100); !ok || v != 100 {
		t.Fatalf("expected frame 100 = 100, got %d ok=%v", v, ok)
	}
}

func TestBufferOccupancy(t *testing.T) {
	b := NewBuffer[uint32](5)
	if got := b.Occupancy(); got != nil {
		t.Fatalf("expected nil occupancy for empty buffer, got %v", got)
	}
	if _, err := b.Insert(1, 1); err != nil {
		t.Fatalf("insert frame 1 failed: %v", err)
	}
	if _, err := b.Insert(3, 3); err != nil {
		t.Fatalf("insert frame 3 failed: %v", err)
	}
	want := []bool{true, false, true}
	got := b.Occupancy()
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("occupancy mismatch at %d: expected %v, got %v", i, want, got)
		}
	}
}
