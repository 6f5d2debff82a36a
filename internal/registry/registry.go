package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"drift-and-mend/client/logging"
	"drift-and-mend/client/logging/netcode"
)

const (
	// MetricTrackerCount gauges how many attribute trackers the registry holds.
	MetricTrackerCount = "registry_tracker_count"
	// MetricSnapshotsApplied counts authoritative values applied into histories.
	MetricSnapshotsApplied = "registry_snapshots_applied_total"
	// MetricDivergences counts authoritative values that disagreed with the prediction.
	MetricDivergences = "registry_divergence_total"
	// MetricSnapFallbacks counts authoritative values too old to roll back to.
	MetricSnapFallbacks = "registry_snap_fallback_total"
)

var (
	// ErrUnknownKind is returned when an attribute kind was never registered.
	ErrUnknownKind = errors.New("registry: unknown attribute kind")
	// ErrUnknownAttribute is returned when a query names an object/kind pair that was never seen.
	ErrUnknownAttribute = errors.New("registry: unknown attribute")
	// ErrKindMismatch is returned when a typed accessor does not match the registered kind type.
	ErrKindMismatch = errors.New("registry: attribute kind type mismatch")
)

// Key identifies one tracked attribute: a simulated object plus the
// attribute kind it carries.
type Key struct {
	Object string
	Kind   string
}

func (k Key) String() string {
	return k.Object + "/" + k.Kind
}

func (k Key) subject() logging.SubjectRef {
	return logging.SubjectRef{ID: k.String(), Kind: logging.SubjectKindAttribute}
}

type telemetryMetrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// rollbackControl is the slice of the coordinator the registry needs.
type rollbackControl interface {
	Request(frame uint64)
	Resimulating() bool
	NoteHardDesync()
}

// desyncObserver receives snapshot-apply outcomes, feeding the resync
// policy without coupling the registry to the journal.
type desyncObserver interface {
	NoteSnapshot()
	NoteHardDesync(attribute string)
}

// attrTracker is the type-erased face of a tracked attribute. The typed
// accessors in tracked.go reach the concrete tracked[T] through
// assertions on this interface.
type attrTracker interface {
	applyNewestSnapshot(ctx context.Context, current uint64, key Key, r *Registry) error
	stageRaw(f uint64, payload []byte) error
	removeFrameAndBeyond(f uint64)
	aliveAt(f uint64) bool
	reportBirth(f uint64) error
	reportDeath(f uint64, inRollback bool) error
	suppressedDeaths() uint64
	status() Status
}

// Status summarizes one tracker for diagnostics.
type Status struct {
	LastSnapshotFrame uint64
	HasSnapshot       bool
	RollbackTriggers  uint64
	SuppressedDeaths  uint64
}

type kindRuntime struct {
	name              string
	correctionLogging bool
	create            func(r *Registry) attrTracker
}

// Config sizes the per-attribute buffers. WindowFrames bounds how far
// back a rollback can reach; snapshot buffers are wider so that stale
// server values can still be detected as stale rather than unknown.
type Config struct {
	WindowFrames       int
	SnapshotMultiplier int
}

func (c Config) normalized() Config {
	if c.WindowFrames <= 0 {
		c.WindowFrames = 64
	}
	if c.SnapshotMultiplier <= 0 {
		c.SnapshotMultiplier = 4
	}
	return c
}

func (c Config) snapshotCapacity() int {
	return c.WindowFrames * c.SnapshotMultiplier
}

// Registry owns every tracked attribute and drives authoritative
// snapshot application. All methods assume the single simulation
// goroutine; none are safe for concurrent use.
type Registry struct {
	cfg       Config
	kinds     map[string]*kindRuntime
	trackers  map[Key]attrTracker
	order     []Key
	rollback  rollbackControl
	publisher logging.Publisher
	metrics   telemetryMetrics
	observer  desyncObserver
}

func NewRegistry(cfg Config, rb rollbackControl, publisher logging.Publisher, metrics telemetryMetrics) *Registry {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Registry{
		cfg:       cfg.normalized(),
		kinds:     make(map[string]*kindRuntime),
		trackers:  make(map[Key]attrTracker),
		rollback:  rb,
		publisher: publisher,
		metrics:   metrics,
	}
}

func (r *Registry) ensure(key Key) (attrTracker, error) {
	if tracker, ok := r.trackers[key]; ok {
		return tracker, nil
	}
	runtime, ok := r.kinds[key.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, key.Kind)
	}
	tracker := runtime.create(r)
	r.trackers[key] = tracker
	r.order = append(r.order, key)
	r.storeMetric(MetricTrackerCount, uint64(len(r.trackers)))
	return tracker, nil
}

// StageAuthoritative decodes a wire payload for the named kind and
// stages it into the attribute's snapshot store. This is the intake
// path; typed code uses InsertAuthoritative instead.
func (r *Registry) StageAuthoritative(object, kind string, f uint64, payload json.RawMessage) error {
	tracker, err := r.ensure(Key{Object: object, Kind: kind})
	if err != nil {
		return err
	}
	return tracker.stageRaw(f, payload)
}

// ApplySnapshots walks every tracker in registration order and applies
// the newest staged authoritative value that has not been applied yet.
// Divergent values raise rollback candidates; values older than the
// rollback window are snapped to the current frame instead.
func (r *Registry) ApplySnapshots(ctx context.Context, current uint64) error {
	for _, key := range r.order {
		tracker := r.trackers[key]
		if err := tracker.applyNewestSnapshot(ctx, current, key, r); err != nil {
			return fmt.Errorf("apply snapshot %s: %w", key, err)
		}
	}
	return nil
}

// RequestRollback raises an explicit rollback candidate, independent of
// any staged snapshot.
func (r *Registry) RequestRollback(f uint64) {
	if r.rollback == nil {
		return
	}
	r.rollback.Request(f)
}

// ReportBirth records that an object's attribute came alive at f.
func (r *Registry) ReportBirth(object, kind string, f uint64) error {
	tracker, ok := r.trackers[Key{Object: object, Kind: kind}]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownAttribute, object, kind)
	}
	return tracker.reportBirth(f)
}

// ReportDeath records that an object's attribute stopped existing at f.
// Deaths reported while resimulating for an attribute that is already
// dead are suppressed rather than rejected; the server snapshot that
// triggered the rollback has already closed the range.
func (r *Registry) ReportDeath(object, kind string, f uint64) error {
	key := Key{Object: object, Kind: kind}
	tracker, ok := r.trackers[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownAttribute, object, kind)
	}
	inRollback := r.rollback != nil && r.rollback.Resimulating()
	before := tracker.suppressedDeaths()
	if err := tracker.reportDeath(f, inRollback); err != nil {
		return err
	}
	if tracker.suppressedDeaths() > before {
		netcode.SpuriousDeathSuppressed(context.Background(), r.publisher, f, key.subject())
	}
	return nil
}

// AliveAt reports whether the attribute existed at f. Unknown
// attributes are simply not alive.
func (r *Registry) AliveAt(object, kind string, f uint64) bool {
	tracker, ok := r.trackers[Key{Object: object, Kind: kind}]
	if !ok {
		return false
	}
	return tracker.aliveAt(f)
}

// RemoveFrameAndBeyond discards stored values at f and newer for one
// attribute, typically before resimulating from f.
func (r *Registry) RemoveFrameAndBeyond(object, kind string, f uint64) {
	tracker, ok := r.trackers[Key{Object: object, Kind: kind}]
	if !ok {
		return
	}
	tracker.removeFrameAndBeyond(f)
}

// SuppressedDeaths sums the spurious death reports swallowed across all
// trackers. The count is a known observability gap: suppressed reports
// are counted, not replayed.
func (r *Registry) SuppressedDeaths() uint64 {
	var total uint64
	for _, key := range r.order {
		total += r.trackers[key].suppressedDeaths()
	}
	return total
}

// StatusOf reports per-tracker diagnostics: the newest applied server
// frame, how many rollbacks this attribute triggered, and how many
// death reports were suppressed.
func (r *Registry) StatusOf(object, kind string) (Status, bool) {
	tracker, ok := r.trackers[Key{Object: object, Kind: kind}]
	if !ok {
		return Status{}, false
	}
	return tracker.status(), true
}

// TrackerCount reports how many object/kind pairs have been seen.
func (r *Registry) TrackerCount() int {
	return len(r.trackers)
}

// SetObserver attaches a desync observer. Pass nil to detach.
func (r *Registry) SetObserver(observer desyncObserver) {
	r.observer = observer
}

func (r *Registry) noteApplied() {
	r.addMetric(MetricSnapshotsApplied, 1)
	if r.observer != nil {
		r.observer.NoteSnapshot()
	}
}

func (r *Registry) addMetric(key string, delta uint64) {
	if r.metrics == nil {
		return
	}
	r.metrics.Add(key, delta)
}

func (r *Registry) storeMetric(key string, value uint64) {
	if r.metrics == nil {
		return
	}
	r.metrics.Store(key, value)
}

func (r *Registry) noteDivergence(ctx context.Context, key Key, f uint64) {
	r.addMetric(MetricDivergences, 1)
	netcode.DivergenceDetected(ctx, r.publisher, f, key.subject(), netcode.DivergencePayload{
		Attribute: key.String(),
		Frame:     f,
	})
	if r.rollback != nil {
		r.rollback.Request(f + 1)
	}
}

func (r *Registry) noteHardDesync(ctx context.Context, key Key, serverFrame, snappedFrame uint64) {
	r.addMetric(MetricSnapFallbacks, 1)
	if r.rollback != nil {
		r.rollback.NoteHardDesync()
	}
	if r.observer != nil {
		r.observer.NoteHardDesync(key.String())
	}
	netcode.HardDesync(ctx, r.publisher, snappedFrame, key.subject(), netcode.HardDesyncPayload{
		Attribute:    key.String(),
		ServerFrame:  serverFrame,
		SnappedFrame: snappedFrame,
	})
}

func (r *Registry) resimulating() bool {
	return r.rollback != nil && r.rollback.Resimulating()
}
