package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, loaded from environment
// variables.
type Config struct {
	FeedURL            string   `env:"FEED_URL" envDefault:"ws://127.0.0.1:8080/ws"`
	TickRate           int      `env:"TICK_RATE" envDefault:"60"`
	CatchupMaxTicks    int      `env:"CATCHUP_MAX_TICKS" envDefault:"4"`
	WindowFrames       int      `env:"ROLLBACK_WINDOW_FRAMES" envDefault:"64"`
	SnapshotMultiplier int      `env:"SNAPSHOT_MULTIPLIER" envDefault:"4"`
	IntakeCapacity     int      `env:"INTAKE_CAPACITY" envDefault:"256"`
	LogSinks           []string `env:"LOG_SINKS" envDefault:"console"`
	LogBufferSize      int      `env:"LOG_BUFFER_SIZE" envDefault:"512"`
	LogJSONPath        string   `env:"LOG_JSON_PATH"`
	JournalCapacity    int      `env:"JOURNAL_CAPACITY" envDefault:"128"`
	DebugAddr          string   `env:"DEBUG_ADDR"`
	EnablePprof        bool     `env:"ENABLE_PPROF"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
