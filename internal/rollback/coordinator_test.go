package rollback

import (
	"errors"
	"testing"
)

func drive(t *testing.T, c *Coordinator, r Range) {
	t.Helper()
	for f := r.Target; f <= r.End; f++ {
		if err := c.BeginResimFrame(f); err != nil {
			t.Fatalf("begin resim frame %d failed: %v", f, err)
		}
		done, err := c.EndResimFrame(f)
		if err != nil {
			t.Fatalf("end resim frame %d failed: %v", f, err)
		}
		if done != (f == r.End) {
			t.Fatalf("frame %d: expected done=%v, got %v", f, f == r.End, done)
		}
	}
}

func TestConsolidatePicksMinimumCandidate(t *testing.T) {
	c := NewCoordinator(nil)
	c.Request(7)
	c.Request(4)
	c.Request(9)
	r, ok, err := c.Consolidate(10)
	if err != nil {
		t.Fatalf("consolidate failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected a rollback range")
	}
	if r.Target != 4 || r.End != 10 {
		t.Fatalf("expected range [4,10], got [%d,%d]", r.Target, r.End)
	}
	if got := c.Stats().Triggers; got != 3 {
		t.Fatalf("expected 3 triggers counted, got %d", got)
	}
}

func TestConsolidateWithoutCandidates(t *testing.T) {
	c := NewCoordinator(nil)
	if _, ok, err := c.Consolidate(5); ok || err != nil {
		t.Fatalf("expected no range for empty tick, got ok=%v err=%v", ok, err)
	}
	if c.Resimulating() {
		t.Fatalf("expected coordinator to stay idle")
	}
}

func TestRollbackCountedOncePerEpisode(t *testing.T) {
	c := NewCoordinator(nil)
	c.Request(2)
	c.Request(3)
	c.Request(2)
	r, ok, err := c.Consolidate(5)
	if err != nil || !ok {
		t.Fatalf("consolidate failed: ok=%v err=%v", ok, err)
	}
	drive(t, c, r)
	if got := c.Stats().Rollbacks; got != 1 {
		t.Fatalf("expected exactly 1 completed rollback, got %d", got)
	}
	prev, ok := c.Previous()
	if !ok || prev.Target != 2 || prev.End != 5 {
		t.Fatalf("expected previous range [2,5], got %+v ok=%v", prev, ok)
	}
	if c.Resimulating() {
		t.Fatalf("expected return to normal state")
	}
}

func TestRequestsDuringActiveRollbackAreDeferred(t *testing.T) {
	c := NewCoordinator(nil)
	c.Request(3)
	r, ok, err := c.Consolidate(6)
	if err != nil || !ok {
		t.Fatalf("consolidate failed: ok=%v err=%v", ok, err)
	}
	if err := c.BeginResimFrame(r.Target); err != nil {
		t.Fatalf("begin resim failed: %v", err)
	}
	// A trigger mid-rollback must not widen the in-progress range.
	c.Request(2)
	if got, _ := c.CurrentRange(); got != r {
		t.Fatalf("expected range %+v unchanged, got %+v", r, got)
	}
	if _, _, err := c.Consolidate(6); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive mid-rollback, got %v", err)
	}
	if _, err := c.EndResimFrame(r.Target); err != nil {
		t.Fatalf("end resim failed: %v", err)
	}
	for f := r.Target + 1; f <= r.End; f++ {
		if err := c.BeginResimFrame(f); err != nil {
			t.Fatalf("begin resim frame %d failed: %v", f, err)
		}
		if _, err := c.EndResimFrame(f); err != nil {
			t.Fatalf("end resim frame %d failed: %v", f, err)
		}
	}
	// The deferred trigger feeds the next consolidation.
	r2, ok, err := c.Consolidate(7)
	if err != nil || !ok {
		t.Fatalf("expected deferred candidate to consolidate, ok=%v err=%v", ok, err)
	}
	if r2.Target != 2 || r2.End != 7 {
		t.Fatalf("expected range [2,7], got [%d,%d]", r2.Target, r2.End)
	}
	if got := c.Stats().Deferred; got != 1 {
		t.Fatalf("expected 1 deferred trigger, got %d", got)
	}
}

func TestResimFrameOrderingEnforced(t *testing.T) {
	c := NewCoordinator(nil)
	c.Request(3)
	if _, ok, err := c.Consolidate(6); err != nil || !ok {
		t.Fatalf("consolidate failed: ok=%v err=%v", ok, err)
	}
	if err := c.BeginResimFrame(4); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected out-of-order error skipping target, got %v", err)
	}
	if err := c.BeginResimFrame(3); err != nil {
		t.Fatalf("begin target frame failed: %v", err)
	}
	if _, err := c.EndResimFrame(5); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected out-of-order error on mismatched end, got %v", err)
	}
	if _, err := c.EndResimFrame(3); err != nil {
		t.Fatalf("end target frame failed: %v", err)
	}
	if err := c.BeginResimFrame(5); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected out-of-order error skipping frame 4, got %v", err)
	}
}

func TestBracketsRequireActiveRollback(t *testing.T) {
	c := NewCoordinator(nil)
	if err := c.BeginResimFrame(1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if _, err := c.EndResimFrame(1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestCandidatesAheadOfSimulationIgnored(t *testing.T) {
	c := NewCoordinator(nil)
	c.Request(9)
	if _, ok, err := c.Consolidate(5); ok || err != nil {
		t.Fatalf("expected no rollback for future-only candidates, ok=%v err=%v", ok, err)
	}
}

func TestHardDesyncCounting(t *testing.T) {
	c := NewCoordinator(nil)
	c.NoteHardDesync()
	c.NoteHardDesync()
	if got := c.Stats().HardDesyncs; got != 2 {
		t.Fatalf("expected 2 hard desyncs, got %d", got)
	}
	if got := c.Stats().Rollbacks; got != 0 {
		t.Fatalf("hard desyncs must not count as rollbacks, got %d", got)
	}
}
