package sim

import (
	"context"
	"time"
)

// LoopConfig tunes the fixed-timestep tick loop.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
}

// LoopHooks lets the caller observe tick results without coupling the
// loop to transport or reporting concerns.
type LoopHooks struct {
	AfterTick func(TickStepResult)
}

// TickStepResult pairs a tick result with loop timing details.
type TickStepResult struct {
	TickResult
	Now      time.Time
	Duration time.Duration
	Budget   time.Duration
	Catchup  int
}

// Loop drives the pipeline at a fixed tick rate until the context is
// cancelled. When the loop falls behind it runs extra ticks in the same
// wakeup, bounded by CatchupMaxTicks.
type Loop struct {
	pipeline *Pipeline
	config   LoopConfig
	hooks    LoopHooks
}

func NewLoop(pipeline *Pipeline, cfg LoopConfig, hooks LoopHooks) *Loop {
	if pipeline == nil {
		return nil
	}
	return &Loop{pipeline: pipeline, config: cfg, hooks: hooks}
}

// Run blocks, ticking the pipeline until ctx is cancelled. Pipeline
// errors are invariant breaks, so the loop stops and returns them.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	budget := time.Second / time.Duration(tickRate)
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	clock := l.pipeline.deps.clock()
	last := clock.Now()
	maxCatchup := l.config.CatchupMaxTicks
	if maxCatchup < 1 {
		maxCatchup = 1
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := clock.Now()
			elapsed := now.Sub(last)
			ticks := 1
			if elapsed > budget {
				ticks = int(elapsed / budget)
				if ticks > maxCatchup {
					ticks = maxCatchup
				}
			}
			last = now

			for i := 0; i < ticks; i++ {
				start := clock.Now()
				result, err := l.pipeline.Tick(ctx)
				if err != nil {
					return err
				}
				if l.hooks.AfterTick != nil {
					l.hooks.AfterTick(TickStepResult{
						TickResult: result,
						Now:        now,
						Duration:   clock.Now().Sub(start),
						Budget:     budget,
						Catchup:    i,
					})
				}
			}
		}
	}
}
