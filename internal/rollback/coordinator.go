package rollback

import (
	"errors"
	"fmt"
)

const (
	rollbackCompletedMetricKey  = "rollback_completed_total"
	rollbackTriggerMetricKey    = "rollback_trigger_total"
	rollbackDeferredMetricKey   = "rollback_trigger_deferred_total"
	rollbackHardDesyncMetricKey = "rollback_hard_desync_total"
	resimFramesMetricKey        = "rollback_resim_frames_total"
)

var (
	// ErrNotActive reports a resimulation bracket call outside a rollback.
	ErrNotActive = errors.New("no rollback in progress")
	// ErrOutOfOrder reports a resimulation frame driven out of sequence.
	ErrOutOfOrder = errors.New("resimulated frame out of order")
	// ErrAlreadyActive reports a consolidate call while a rollback is active.
	ErrAlreadyActive = errors.New("rollback already in progress")
)

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// Range is the closed interval of frames recomputed during a rollback.
type Range struct {
	Target uint64
	End    uint64
}

// Frames reports how many frames the range covers.
func (r Range) Frames() uint64 {
	if r.End < r.Target {
		return 0
	}
	return r.End - r.Target + 1
}

// Stats counts rollback activity for diagnostics.
type Stats struct {
	// Rollbacks counts completed rollbacks, one per Active episode
	// regardless of how many triggers consolidated into it.
	Rollbacks uint64
	// Triggers counts every rollback candidate ever raised.
	Triggers uint64
	// Deferred counts candidates raised while a rollback was already
	// active and held for the next tick's consolidation.
	Deferred uint64
	// HardDesyncs counts divergences outside the resimulation window that
	// had to be snapped instead of rolled back.
	HardDesyncs uint64
}

// Coordinator is the process-wide rollback state machine. It collects the
// candidate frames raised during a tick, consolidates them into one
// resimulation range, and tracks progress through that range until the
// resimulated frame reaches the end frame.
//
// State is mutated only by the consolidation step and the resimulation
// driver, in that order each tick; the coordinator itself never locks.
type Coordinator struct {
	active     bool
	current    Range
	resimFrame uint64 // last frame bracketed via BeginResimFrame, 0 = none yet

	previous    Range
	hasPrevious bool

	candidates []uint64
	deferred   []uint64

	stats   Stats
	metrics telemetryMetrics
}

// NewCoordinator constructs an idle coordinator. metrics may be nil.
func NewCoordinator(metrics telemetryMetrics) *Coordinator {
	return &Coordinator{metrics: metrics}
}

// Request raises a rollback candidate: resimulation must include frame and
// every frame up to the current one. Candidates raised while a rollback is
// active do not widen or restart it; they are deferred to the next tick's
// consolidation, where the in-progress resimulation usually satisfies them.
func (c *Coordinator) Request(frame uint64) {
	if c == nil || frame == 0 {
		return
	}
	c.stats.Triggers++
	if c.metrics != nil {
		c.metrics.Add(rollbackTriggerMetricKey, 1)
	}
	if c.active {
		c.stats.Deferred++
		if c.metrics != nil {
			c.metrics.Add(rollbackDeferredMetricKey, 1)
		}
		c.deferred = append(c.deferred, frame)
		return
	}
	c.candidates = append(c.candidates, frame)
}

// Consolidate reduces every candidate raised since the last call into the
// earliest requested frame and, if any exist, switches to a rollback over
// [target, currentFrame]. Must be called exactly once per tick, before any
// resimulation frame is driven, so the window is exact rather than
// re-extended mid-rollback.
func (c *Coordinator) Consolidate(currentFrame uint64) (Range, bool, error) {
	if c == nil {
		return Range{}, false, nil
	}
	if c.active {
		return Range{}, false, ErrAlreadyActive
	}
	if len(c.deferred) > 0 {
		c.candidates = append(c.candidates, c.deferred...)
		c.deferred = c.deferred[:0]
	}
	if len(c.candidates) == 0 {
		return Range{}, false, nil
	}
	target := c.candidates[0]
	for _, candidate := range c.candidates[1:] {
		if candidate < target {
			target = candidate
		}
	}
	c.candidates = c.candidates[:0]
	if target > currentFrame {
		// Every candidate is ahead of the simulation; the normal tick will
		// reach those frames on its own.
		return Range{}, false, nil
	}
	c.active = true
	c.current = Range{Target: target, End: currentFrame}
	c.resimFrame = 0
	return c.current, true, nil
}

// BeginResimFrame brackets the start of one resimulated frame. Frames must be
// driven strictly in order from the target through the end of the range.
func (c *Coordinator) BeginResimFrame(frame uint64) error {
	if c == nil || !c.active {
		return ErrNotActive
	}
	expected := c.current.Target
	if c.resimFrame != 0 {
		expected = c.resimFrame + 1
	}
	if frame != expected {
		return fmt.Errorf("resimulating frame %d, expected %d: %w", frame, expected, ErrOutOfOrder)
	}
	if frame > c.current.End {
		return fmt.Errorf("resimulating frame %d beyond end %d: %w", frame, c.current.End, ErrOutOfOrder)
	}
	c.resimFrame = frame
	return nil
}

// EndResimFrame brackets the end of one resimulated frame. When the frame
// reaches the end of the range the rollback completes: state returns to
// normal, the range is retained as the previous rollback, and the completed
// counter increments exactly once.
func (c *Coordinator) EndResimFrame(frame uint64) (bool, error) {
	if c == nil || !c.active {
		return false, ErrNotActive
	}
	if c.resimFrame == 0 {
		return false, fmt.Errorf("no resimulated frame in progress: %w", ErrOutOfOrder)
	}
	if frame != c.resimFrame {
		return false, fmt.Errorf("ending frame %d, expected %d: %w", frame, c.resimFrame, ErrOutOfOrder)
	}
	if c.metrics != nil {
		c.metrics.Add(resimFramesMetricKey, 1)
	}
	if frame < c.current.End {
		return false, nil
	}
	c.active = false
	c.previous = c.current
	c.hasPrevious = true
	c.resimFrame = 0
	c.stats.Rollbacks++
	if c.metrics != nil {
		c.metrics.Add(rollbackCompletedMetricKey, 1)
	}
	return true, nil
}

// Resimulating reports whether a rollback is being driven right now. It only
// reports true between Consolidate and the final EndResimFrame, which is the
// only span where observing the active state is meaningful.
func (c *Coordinator) Resimulating() bool {
	return c != nil && c.active
}

// CurrentRange reports the range being resimulated, if a rollback is active.
func (c *Coordinator) CurrentRange() (Range, bool) {
	if c == nil || !c.active {
		return Range{}, false
	}
	return c.current, true
}

// Previous reports the most recently completed rollback range.
func (c *Coordinator) Previous() (Range, bool) {
	if c == nil || !c.hasPrevious {
		return Range{}, false
	}
	return c.previous, true
}

// NoteHardDesync records a divergence that exceeded the rollback window and
// was snapped instead of resimulated.
func (c *Coordinator) NoteHardDesync() {
	if c == nil {
		return
	}
	c.stats.HardDesyncs++
	if c.metrics != nil {
		c.metrics.Add(rollbackHardDesyncMetricKey, 1)
	}
}

// Stats returns a copy of the rollback counters.
func (c *Coordinator) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return c.stats
}
