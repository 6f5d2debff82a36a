package sim

import (
	"context"
	"fmt"
	"sync/atomic"

	"drift-and-mend/client/internal/journal"
	"drift-and-mend/client/internal/registry"
	"drift-and-mend/client/internal/rollback"
	"drift-and-mend/client/logging/netcode"
)

// Stepper advances the host simulation by one frame. During a rollback
// the same frames are replayed with resimulating set, so the host can
// route its writes through the correction path and suppress one-shot
// side effects.
type Stepper interface {
	Simulate(frame uint64, resimulating bool) error
}

// StepperFunc adapts functions into the Stepper interface.
type StepperFunc func(frame uint64, resimulating bool) error

func (f StepperFunc) Simulate(frame uint64, resimulating bool) error {
	if f == nil {
		return nil
	}
	return f(frame, resimulating)
}

// TickResult summarizes one pipeline tick.
type TickResult struct {
	Frame      uint64
	Updates    int
	RolledBack bool
	Resim      rollback.Range
}

// Pipeline runs the per-tick stage order: advance the frame clock,
// drain staged server updates, apply snapshots, consolidate rollback
// candidates, then either replay the consolidated range or simulate the
// new frame normally. All stages run on the single tick goroutine; the
// frame counter is atomic because the feed goroutine reads it for
// heartbeat acks.
type Pipeline struct {
	deps     Deps
	registry *registry.Registry
	coord    *rollback.Coordinator
	intake   *UpdateBuffer
	stepper  Stepper
	journal  *journal.Journal
	current  atomic.Uint64
}

func NewPipeline(deps Deps, reg *registry.Registry, coord *rollback.Coordinator, stepper Stepper, intakeCapacity int) *Pipeline {
	if reg == nil || coord == nil || stepper == nil {
		return nil
	}
	return &Pipeline{
		deps:     deps,
		registry: reg,
		coord:    coord,
		intake:   NewUpdateBuffer(intakeCapacity, deps.Metrics),
		stepper:  stepper,
	}
}

// AttachJournal wires a rollback journal into the pipeline. Completed
// episodes are recorded and the resync policy is consulted every tick.
func (p *Pipeline) AttachJournal(j *journal.Journal) {
	if p == nil {
		return
	}
	p.journal = j
	if j == nil {
		p.registry.SetObserver(nil)
		return
	}
	p.registry.SetObserver(j)
}

// Intake exposes the staging buffer for feed readers.
func (p *Pipeline) Intake() *UpdateBuffer {
	if p == nil {
		return nil
	}
	return p.intake
}

// CurrentFrame reports the frame of the most recent tick. Safe to call
// from outside the tick goroutine.
func (p *Pipeline) CurrentFrame() uint64 {
	if p == nil {
		return 0
	}
	return p.current.Load()
}

// Registry exposes the attribute store backing the pipeline.
func (p *Pipeline) Registry() *registry.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Tick advances the simulation by one frame. When a rollback
// consolidates, the whole resimulation range replays within this tick
// and the normal step for the new frame is folded into the replay.
func (p *Pipeline) Tick(ctx context.Context) (TickResult, error) {
	if p == nil {
		return TickResult{}, nil
	}
	current := p.current.Add(1)
	result := TickResult{Frame: current}

	updates := p.intake.Drain()
	result.Updates = len(updates)
	for _, update := range updates {
		if update.Remove {
			p.applyRemoval(update.Object, update.Kind, update.Frame, current)
			continue
		}
		if err := p.registry.StageAuthoritative(update.Object, update.Kind, update.Frame, update.Value); err != nil {
			p.warnf("stage update %s/%s frame=%d: %v", update.Object, update.Kind, update.Frame, err)
		}
	}

	if err := p.registry.ApplySnapshots(ctx, current); err != nil {
		return result, fmt.Errorf("apply snapshots at frame %d: %w", current, err)
	}

	rng, rolledBack, err := p.coord.Consolidate(current)
	if err != nil {
		return result, fmt.Errorf("consolidate at frame %d: %w", current, err)
	}
	if !rolledBack {
		if err := p.stepper.Simulate(current, false); err != nil {
			return result, fmt.Errorf("simulate frame %d: %w", current, err)
		}
		p.consumeResyncHint(ctx, current)
		return result, nil
	}

	result.RolledBack = true
	result.Resim = rng
	payload := netcode.RollbackPayload{TargetFrame: rng.Target, EndFrame: rng.End, Frames: rng.Frames()}
	netcode.RollbackStarted(ctx, p.deps.Publisher, current, payload)
	for f := rng.Target; f <= rng.End; f++ {
		if err := p.coord.BeginResimFrame(f); err != nil {
			return result, err
		}
		if err := p.stepper.Simulate(f, true); err != nil {
			return result, fmt.Errorf("resimulate frame %d: %w", f, err)
		}
		if _, err := p.coord.EndResimFrame(f); err != nil {
			return result, err
		}
	}
	netcode.RollbackCompleted(ctx, p.deps.Publisher, current, payload)
	if p.journal != nil {
		p.journal.RecordEpisode(journal.Episode{
			Frame:       current,
			Target:      rng.Target,
			End:         rng.End,
			Resimulated: rng.Frames(),
		})
	}
	p.consumeResyncHint(ctx, current)
	return result, nil
}

// consumeResyncHint surfaces the journal's resync policy verdict as a
// warning event. Acting on it is the host's call.
func (p *Pipeline) consumeResyncHint(ctx context.Context, current uint64) {
	if p.journal == nil {
		return
	}
	signal, ok := p.journal.ConsumeResyncHint()
	if !ok {
		return
	}
	p.warnf("resync suggested: %s", signal.Summary())
	netcode.ResyncSuggested(ctx, p.deps.Publisher, current, netcode.ResyncPayload{
		HardDesyncs: signal.HardDesyncs,
		TotalEvents: signal.TotalEvents,
		Attributes:  signal.Attributes,
	})
}

// applyRemoval handles an authoritative attribute removal. A removal
// the prediction already agrees with is a no-op; one it disagrees with
// closes the alive range and replays the frames simulated past it.
func (p *Pipeline) applyRemoval(object, kind string, f, current uint64) {
	if !p.registry.AliveAt(object, kind, f) {
		return
	}
	if err := p.registry.ReportDeath(object, kind, f); err != nil {
		p.warnf("authoritative removal %s/%s frame=%d: %v", object, kind, f, err)
		return
	}
	if f < current {
		p.registry.RequestRollback(f + 1)
	}
}

func (p *Pipeline) warnf(format string, args ...any) {
	if p.deps.Logger == nil {
		return
	}
	p.deps.Logger.Printf(format, args...)
}
