package netcode

import (
	"context"

	"drift-and-mend/client/logging"
)

const (
	// EventDivergenceDetected is emitted when an authoritative value disagrees with the predicted history.
	EventDivergenceDetected logging.EventType = "netcode.divergence_detected"
	// EventRollbackStarted is emitted when a consolidated rollback range begins resimulation.
	EventRollbackStarted logging.EventType = "netcode.rollback_started"
	// EventRollbackCompleted is emitted when the final resimulated frame of a rollback finishes.
	EventRollbackCompleted logging.EventType = "netcode.rollback_completed"
	// EventHardDesync is emitted when an authoritative value lands behind the rollback window and is snapped.
	EventHardDesync logging.EventType = "netcode.hard_desync"
	// EventSpuriousDeathSuppressed is emitted when a death report is swallowed during resimulation.
	EventSpuriousDeathSuppressed logging.EventType = "netcode.spurious_death_suppressed"
	// EventResyncSuggested is emitted when hard-desync pressure crosses the resync policy threshold.
	EventResyncSuggested logging.EventType = "netcode.resync_suggested"
)

// DivergencePayload captures where a predicted value disagreed with the server.
type DivergencePayload struct {
	Attribute string `json:"attribute"`
	Frame     uint64 `json:"frame"`
}

// DivergenceDetected publishes a debug event when a server value overrides a differing prediction.
func DivergenceDetected(ctx context.Context, pub logging.Publisher, frame uint64, subject logging.SubjectRef, payload DivergencePayload) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDivergenceDetected,
		Frame:    frame,
		Subject:  subject,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetcode,
		Payload:  payload,
	}
	pub.Publish(ctx, event)
}

// RollbackPayload describes a consolidated resimulation range.
type RollbackPayload struct {
	TargetFrame uint64 `json:"targetFrame"`
	EndFrame    uint64 `json:"endFrame"`
	Frames      uint64 `json:"frames"`
}

// RollbackStarted publishes an info event when resimulation begins.
func RollbackStarted(ctx context.Context, pub logging.Publisher, frame uint64, payload RollbackPayload) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventRollbackStarted,
		Frame:    frame,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetcode,
		Payload:  payload,
	}
	pub.Publish(ctx, event)
}

// RollbackCompleted publishes an info event when a rollback episode finishes.
func RollbackCompleted(ctx context.Context, pub logging.Publisher, frame uint64, payload RollbackPayload) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventRollbackCompleted,
		Frame:    frame,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetcode,
		Payload:  payload,
	}
	pub.Publish(ctx, event)
}

// HardDesyncPayload records a server value that arrived too late to roll back to.
type HardDesyncPayload struct {
	Attribute    string `json:"attribute"`
	ServerFrame  uint64 `json:"serverFrame"`
	SnappedFrame uint64 `json:"snappedFrame"`
}

// HardDesync publishes a warning when a stale authoritative value is snapped forward.
func HardDesync(ctx context.Context, pub logging.Publisher, frame uint64, subject logging.SubjectRef, payload HardDesyncPayload) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventHardDesync,
		Frame:    frame,
		Subject:  subject,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetcode,
		Payload:  payload,
	}
	pub.Publish(ctx, event)
}

// ResyncPayload summarizes the desync pressure behind a resync suggestion.
type ResyncPayload struct {
	HardDesyncs uint64   `json:"hardDesyncs"`
	TotalEvents uint64   `json:"totalEvents"`
	Attributes  []string `json:"attributes,omitempty"`
}

// ResyncSuggested publishes a warning that the client should request a full state resync.
func ResyncSuggested(ctx context.Context, pub logging.Publisher, frame uint64, payload ResyncPayload) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventResyncSuggested,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetcode,
		Payload:  payload,
	}
	pub.Publish(ctx, event)
}

// SpuriousDeathSuppressed publishes a debug event when a resimulated death report is ignored.
func SpuriousDeathSuppressed(ctx context.Context, pub logging.Publisher, frame uint64, subject logging.SubjectRef) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSpuriousDeathSuppressed,
		Frame:    frame,
		Subject:  subject,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetcode,
	}
	pub.Publish(ctx, event)
}
