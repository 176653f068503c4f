// Package config provides 12-factor configuration for the sandbox runtime.
//
// Configuration is loaded from environment variables with sensible defaults.
// Every knob has a default that produces a working sandbox; embedders can
// also construct a Config directly and skip the environment entirely.
//
// Configuration Sections:
//   - Execution: mode, timeout, and resource bounds for one execute call
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("mode=%s timeout=%s\n", cfg.Execution.Mode, cfg.Execution.Timeout)
//
// Environment Variables:
//   - NODEPACK_MODE, NODEPACK_TIMEOUT, NODEPACK_MAX_TICKS
//   - NODEPACK_MAX_CALL_STACK, NODEPACK_MARSHAL_DEPTH
//   - NODEPACK_LOG_LEVEL, NODEPACK_LOG_DEV
package config
