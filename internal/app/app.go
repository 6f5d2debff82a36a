package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"drift-and-mend/client/internal/journal"
	"drift-and-mend/client/internal/net/ws"
	"drift-and-mend/client/internal/observability"
	"drift-and-mend/client/internal/registry"
	"drift-and-mend/client/internal/rollback"
	"drift-and-mend/client/internal/sim"
	"drift-and-mend/client/internal/telemetry"
	"drift-and-mend/client/logging"
	loggingSinks "drift-and-mend/client/logging/sinks"
)

// Options wires the host simulation into the client runtime. Register
// declares the attribute kinds the host tracks; Stepper advances the
// host simulation one frame at a time.
type Options struct {
	Config    Config
	Logger    telemetry.Logger
	Stepper   sim.Stepper
	Register  func(*registry.Registry) error
	AfterTick func(sim.TickStepResult)
}

// Run assembles the logging router, rollback coordinator, attribute
// registry, server feed, and tick loop, then blocks until ctx is
// cancelled or the pipeline breaks an invariant.
func Run(ctx context.Context, opts Options) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	cfg := opts.Config

	logConfig := logging.DefaultConfig()
	if len(cfg.LogSinks) > 0 {
		logConfig.EnabledSinks = cfg.LogSinks
	}
	if cfg.LogBufferSize > 0 {
		logConfig.BufferSize = cfg.LogBufferSize
	}
	logConfig.JSON.FilePath = cfg.LogJSONPath

	namedSinks, cleanup, err := buildSinks(logConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("close logging router: %v", cerr)
		}
	}()

	metrics := logging.NewMetrics()
	wrappedMetrics := telemetry.WrapMetrics(metrics)

	coordinator := rollback.NewCoordinator(wrappedMetrics)
	reg := registry.NewRegistry(registry.Config{
		WindowFrames:       cfg.WindowFrames,
		SnapshotMultiplier: cfg.SnapshotMultiplier,
	}, coordinator, router, wrappedMetrics)

	if opts.Register != nil {
		if err := opts.Register(reg); err != nil {
			return fmt.Errorf("register attribute kinds: %w", err)
		}
	}

	stepper := opts.Stepper
	if stepper == nil {
		stepper = sim.StepperFunc(nil)
	}

	deps := sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   wrappedMetrics,
		Clock:     logging.SystemClock{},
		Publisher: router,
	}
	pipeline := sim.NewPipeline(deps, reg, coordinator, stepper, cfg.IntakeCapacity)
	if pipeline == nil {
		return fmt.Errorf("construct pipeline")
	}

	rollbackJournal := journal.New(cfg.JournalCapacity, 10*time.Minute)
	pipeline.AttachJournal(rollbackJournal)

	if cfg.DebugAddr != "" {
		debugHandler := observability.NewHandler(metrics, rollbackJournal, observability.Config{
			EnablePprof: cfg.EnablePprof,
		})
		debugServer := &http.Server{Addr: cfg.DebugAddr, Handler: debugHandler}
		go func() {
			telemetryLogger.Printf("debug endpoint listening on %s", cfg.DebugAddr)
			if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				telemetryLogger.Printf("debug endpoint: %v", err)
			}
		}()
		defer debugServer.Close()
	}

	feed := ws.NewFeed(ws.FeedConfig{
		URL:     cfg.FeedURL,
		Logger:  telemetryLogger,
		Metrics: wrappedMetrics,
	}, pipeline.Intake(), pipeline)
	go feed.Run(ctx)
	telemetryLogger.Printf("feed session %s connecting to %s", feed.SessionID(), cfg.FeedURL)

	loop := sim.NewLoop(pipeline, sim.LoopConfig{
		TickRate:        cfg.TickRate,
		CatchupMaxTicks: cfg.CatchupMaxTicks,
	}, sim.LoopHooks{AfterTick: opts.AfterTick})

	telemetryLogger.Printf("tick loop running at %d hz, rollback window %d frames", cfg.TickRate, cfg.WindowFrames)
	return loop.Run(ctx)
}

func buildSinks(cfg logging.Config) ([]logging.NamedSink, func(), error) {
	var named []logging.NamedSink
	cleanup := func() {}

	if cfg.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console),
		})
	}
	if cfg.HasSink("json") && cfg.JSON.FilePath != "" {
		file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open json log file: %w", err)
		}
		cleanup = func() { file.Close() }
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, cfg.JSON.FlushInterval),
		})
	}
	return named, cleanup, nil
}
