package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"drift-and-mend/client/internal/frame"
	"drift-and-mend/client/internal/history"
)

// tracked is the concrete per-attribute state behind attrTracker: the
// predicted history, the staged authoritative snapshots, and the apply
// cursor that keeps ApplySnapshots idempotent per staged frame.
type tracked[T comparable] struct {
	history  *history.History[T]
	snapshot *history.Snapshot[T]

	lastApplied uint64
	hasApplied  bool
	triggers    uint64

	decode func([]byte) (T, error)
}

func newTracked[T comparable](cfg Config, correctionLogging bool, decode func([]byte) (T, error)) *tracked[T] {
	h := history.NewEmpty[T](cfg.WindowFrames)
	if correctionLogging {
		h.EnableCorrectionLogging()
	}
	return &tracked[T]{
		history:  h,
		snapshot: history.NewSnapshot[T](cfg.snapshotCapacity()),
		decode:   decode,
	}
}

func (t *tracked[T]) stageRaw(f uint64, payload []byte) error {
	value, err := t.decode(payload)
	if err != nil {
		return fmt.Errorf("decode authoritative payload: %w", err)
	}
	_, err = t.snapshot.Insert(f, value)
	return err
}

func (t *tracked[T]) stage(f uint64, value T) error {
	_, err := t.snapshot.Insert(f, value)
	return err
}

// applyNewestSnapshot moves the newest staged server value into the
// predicted history. Three outcomes:
//   - the prediction already matches: advance the cursor, nothing else
//   - the values disagree (or the attribute was unseen): overwrite the
//     history entry and raise a rollback candidate at f+1
//   - the server frame fell behind the rollback window: write the value
//     at the current frame instead and record a hard desync
func (t *tracked[T]) applyNewestSnapshot(ctx context.Context, current uint64, key Key, r *Registry) error {
	snapFrame, ok := t.snapshot.NewestSnapFrame()
	if !ok {
		return nil
	}
	if t.hasApplied && snapFrame <= t.lastApplied {
		return nil
	}
	value, ok := t.snapshot.At(snapFrame)
	if !ok {
		// Newest slot exists but was back-filled empty; wait for data.
		return nil
	}

	prev, had := t.history.At(snapFrame)
	_, err := t.history.Insert(snapFrame, value)
	if errors.Is(err, frame.ErrFrameTooOld) {
		if _, snapErr := t.history.Insert(current, value); snapErr != nil {
			return fmt.Errorf("%w: %v", frame.ErrFrameTooOldSnapped, snapErr)
		}
		t.markApplied(snapFrame)
		r.noteHardDesync(ctx, key, snapFrame, current)
		return nil
	}
	if err != nil {
		return err
	}
	t.markApplied(snapFrame)
	r.noteApplied()

	diverged := !had || prev != value
	if diverged && snapFrame < current {
		t.triggers++
		r.noteDivergence(ctx, key, snapFrame)
	}
	return nil
}

func (t *tracked[T]) markApplied(f uint64) {
	t.lastApplied = f
	t.hasApplied = true
}

func (t *tracked[T]) removeFrameAndBeyond(f uint64) {
	t.history.RemoveFrameAndBeyond(f)
}

func (t *tracked[T]) aliveAt(f uint64) bool {
	return t.history.AliveAt(f)
}

func (t *tracked[T]) reportBirth(f uint64) error {
	return t.history.ReportBirth(f)
}

func (t *tracked[T]) reportDeath(f uint64, inRollback bool) error {
	return t.history.ReportDeath(f, inRollback)
}

func (t *tracked[T]) suppressedDeaths() uint64 {
	return t.history.SuppressedDeaths()
}

func (t *tracked[T]) status() Status {
	return Status{
		LastSnapshotFrame: t.lastApplied,
		HasSnapshot:       t.hasApplied,
		RollbackTriggers:  t.triggers,
		SuppressedDeaths:  t.history.SuppressedDeaths(),
	}
}

// KindOption tweaks a registered attribute kind.
type KindOption[T comparable] func(*kindSettings[T])

type kindSettings[T comparable] struct {
	correctionLogging bool
	decode            func([]byte) (T, error)
}

// WithCorrectionLogging records before/after pairs whenever a
// resimulated value differs from the prediction it replaces.
func WithCorrectionLogging[T comparable]() KindOption[T] {
	return func(s *kindSettings[T]) {
		s.correctionLogging = true
	}
}

// WithDecoder overrides the JSON decoder used on the intake path.
func WithDecoder[T comparable](decode func([]byte) (T, error)) KindOption[T] {
	return func(s *kindSettings[T]) {
		s.decode = decode
	}
}

// RegisterKind declares an attribute kind and binds it to a Go type.
// Trackers for the kind are created lazily on first insert or first
// staged authoritative value.
func RegisterKind[T comparable](r *Registry, name string, opts ...KindOption[T]) error {
	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("registry: kind %q already registered", name)
	}
	settings := kindSettings[T]{
		decode: func(payload []byte) (T, error) {
			var value T
			err := json.Unmarshal(payload, &value)
			return value, err
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	r.kinds[name] = &kindRuntime{
		name:              name,
		correctionLogging: settings.correctionLogging,
		create: func(reg *Registry) attrTracker {
			return newTracked[T](reg.cfg, settings.correctionLogging, settings.decode)
		},
	}
	return nil
}

func typedTracker[T comparable](r *Registry, object, kind string, create bool) (*tracked[T], error) {
	key := Key{Object: object, Kind: kind}
	var (
		tracker attrTracker
		err     error
	)
	if create {
		tracker, err = r.ensure(key)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		tracker, ok = r.trackers[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, key)
		}
	}
	typed, ok := tracker.(*tracked[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKindMismatch, key)
	}
	return typed, nil
}

// InsertValue records a locally predicted value at f. During
// resimulation the write is routed through the correction path so that
// differing replacements are captured.
func InsertValue[T comparable](r *Registry, object, kind string, f uint64, value T) (frame.InsertResult, error) {
	tracker, err := typedTracker[T](r, object, kind, true)
	if err != nil {
		return frame.InsertNew, err
	}
	if r.resimulating() {
		return tracker.history.InsertResimulated(f, value)
	}
	return tracker.history.Insert(f, value)
}

// InsertAuthoritative stages a server value for the attribute at f. The
// value takes effect on the next ApplySnapshots pass.
func InsertAuthoritative[T comparable](r *Registry, object, kind string, f uint64, value T) error {
	tracker, err := typedTracker[T](r, object, kind, true)
	if err != nil {
		return err
	}
	return tracker.stage(f, value)
}

// ValueAt reads the stored value for the attribute at f. The second
// return is false both for frames outside the window and frames whose
// slot holds no value.
func ValueAt[T comparable](r *Registry, object, kind string, f uint64) (T, bool) {
	tracker, err := typedTracker[T](r, object, kind, false)
	if err != nil {
		var zero T
		return zero, false
	}
	return tracker.history.At(f)
}

// CorrectionsFor drains the pending correction records for the
// attribute. Only kinds registered with WithCorrectionLogging produce
// any.
func CorrectionsFor[T comparable](r *Registry, object, kind string) []history.Correction[T] {
	tracker, err := typedTracker[T](r, object, kind, false)
	if err != nil {
		return nil
	}
	return tracker.history.DrainCorrections()
}
