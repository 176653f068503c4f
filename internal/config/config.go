package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Mode selects where the execution core runs relative to the host.
type Mode string

const (
	// ModeDirect runs the VM context and module loader inline with the
	// calling goroutine.
	ModeDirect Mode = "direct"

	// ModeIsolated runs the same components inside a dedicated worker
	// goroutine reachable only via message passing.
	ModeIsolated Mode = "isolated"
)

// Config holds all runtime configuration.
type Config struct {
	Execution ExecutionConfig
	Logging   LogConfig
}

// ExecutionConfig bounds a single execute call.
type ExecutionConfig struct {
	// Mode is "direct" or "isolated".
	Mode string `envconfig:"NODEPACK_MODE" default:"direct"`

	// Timeout is the wall-clock budget for one execute call, including
	// the async drain phase. Exceeding it interrupts the interpreter.
	Timeout time.Duration `envconfig:"NODEPACK_TIMEOUT" default:"10s"`

	// MaxTicks caps drain-loop iterations so infinite timer/microtask
	// chains fail predictably instead of hanging the host.
	MaxTicks int `envconfig:"NODEPACK_MAX_TICKS" default:"100000"`

	// MaxCallStackSize bounds interpreter recursion depth.
	MaxCallStackSize int `envconfig:"NODEPACK_MAX_CALL_STACK" default:"4096"`

	// MarshalDepth caps result-object nesting before marshaling rejects
	// the value as unserializable.
	MarshalDepth int `envconfig:"NODEPACK_MARSHAL_DEPTH" default:"64"`
}

// LogConfig holds host-side logging configuration.
type LogConfig struct {
	Level       string `envconfig:"NODEPACK_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"NODEPACK_LOG_DEV" default:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when the environment is empty.
func Default() *Config {
	cfg := &Config{
		Execution: ExecutionConfig{
			Mode:             string(ModeDirect),
			Timeout:          10 * time.Second,
			MaxTicks:         100000,
			MaxCallStackSize: 4096,
			MarshalDepth:     64,
		},
		Logging: LogConfig{Level: "info"},
	}
	return cfg
}

// Validate normalizes bounds and rejects unknown modes.
func (c *Config) Validate() error {
	switch Mode(c.Execution.Mode) {
	case ModeDirect, ModeIsolated:
	default:
		return fmt.Errorf("unknown execution mode %q", c.Execution.Mode)
	}
	if c.Execution.MaxTicks <= 0 {
		c.Execution.MaxTicks = 100000
	}
	if c.Execution.MaxCallStackSize <= 0 {
		c.Execution.MaxCallStackSize = 4096
	}
	if c.Execution.MarshalDepth <= 0 {
		c.Execution.MarshalDepth = 64
	}
	if c.Execution.Timeout <= 0 {
		c.Execution.Timeout = 10 * time.Second
	}
	return nil
}
