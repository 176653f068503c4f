package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Execution config
	assert.Equal(t, string(ModeDirect), cfg.Execution.Mode)
	assert.Equal(t, 10*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, 100000, cfg.Execution.MaxTicks)
	assert.Equal(t, 4096, cfg.Execution.MaxCallStackSize)
	assert.Equal(t, 64, cfg.Execution.MarshalDepth)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	// Setup environment variables
	envVars := map[string]string{
		"NODEPACK_MODE":           "isolated",
		"NODEPACK_TIMEOUT":        "2s",
		"NODEPACK_MAX_TICKS":      "500",
		"NODEPACK_MAX_CALL_STACK": "1024",
		"NODEPACK_MARSHAL_DEPTH":  "16",
		"NODEPACK_LOG_LEVEL":      "debug",
		"NODEPACK_LOG_DEV":        "true",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	// Verify execution config
	assert.Equal(t, string(ModeIsolated), cfg.Execution.Mode)
	assert.Equal(t, 2*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, 500, cfg.Execution.MaxTicks)
	assert.Equal(t, 1024, cfg.Execution.MaxCallStackSize)
	assert.Equal(t, 16, cfg.Execution.MarshalDepth)

	// Verify logging config
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	// Only set some environment variables
	err := os.Setenv("NODEPACK_TIMEOUT", "30s")
	require.NoError(t, err)
	defer os.Unsetenv("NODEPACK_TIMEOUT")

	err = os.Setenv("NODEPACK_LOG_LEVEL", "warn")
	require.NoError(t, err)
	defer os.Unsetenv("NODEPACK_LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, 30*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Verify default values still apply
	assert.Equal(t, string(ModeDirect), cfg.Execution.Mode)
	assert.Equal(t, 100000, cfg.Execution.MaxTicks)
	assert.Equal(t, 64, cfg.Execution.MarshalDepth)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	err := os.Setenv("NODEPACK_MODE", "clustered")
	require.NoError(t, err)
	defer os.Unsetenv("NODEPACK_MODE")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "unknown execution mode")
}

func TestValidateMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
	}{
		{"direct mode", "direct", false},
		{"isolated mode", "isolated", false},
		{"unknown mode", "threaded", true},
		{"empty mode", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Execution.Mode = tt.mode

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClampsBounds(t *testing.T) {
	cfg := Default()
	cfg.Execution.Timeout = -1
	cfg.Execution.MaxTicks = 0
	cfg.Execution.MaxCallStackSize = -5
	cfg.Execution.MarshalDepth = 0

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, 100000, cfg.Execution.MaxTicks)
	assert.Equal(t, 4096, cfg.Execution.MaxCallStackSize)
	assert.Equal(t, 64, cfg.Execution.MarshalDepth)
}
