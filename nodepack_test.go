package nodepack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, mode string) *Runtime {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Execution.Mode = mode
	cfg.Execution.Timeout = 5 * time.Second
	r, err := New(Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRuntimeModes(t *testing.T) {
	for _, mode := range []string{"direct", "isolated"} {
		t.Run(mode, func(t *testing.T) {
			r := newRuntime(t, mode)

			res, err := r.ExecuteCode(context.Background(), `
				const path = require("path");
				export default { base: path.basename("/a/b/c.txt") };
			`)
			require.NoError(t, err)
			require.True(t, res.OK, "error: %v", res.Error)
			assert.Equal(t, map[string]interface{}{"base": "c.txt"}, res.Data)
		})
	}
}

func TestRuntimeSharesFilesystemWithGuest(t *testing.T) {
	r := newRuntime(t, "direct")
	require.NoError(t, r.FS().WriteFile("/greeting.txt", []byte("hey")))

	res, err := r.ExecuteCode(context.Background(),
		`module.exports = require("fs").readFileSync("/greeting.txt", "utf8");`)
	require.NoError(t, err)
	require.True(t, res.OK, "error: %v", res.Error)
	assert.Equal(t, "hey", res.Data)
}

func TestRuntimeResetKeepsFilesystem(t *testing.T) {
	r := newRuntime(t, "direct")
	require.NoError(t, r.FS().WriteFile("/keep.txt", []byte("still here")))

	_, err := r.ExecuteCode(context.Background(), `globalThis.leak = 1; module.exports = 1;`)
	require.NoError(t, err)

	require.NoError(t, r.Reset())

	res, err := r.ExecuteCode(context.Background(), `
		module.exports = {
			leak: typeof globalThis.leak,
			file: require("fs").readFileSync("/keep.txt", "utf8"),
		};
	`)
	require.NoError(t, err)
	require.True(t, res.OK, "error: %v", res.Error)
	assert.Equal(t, map[string]interface{}{"leak": "undefined", "file": "still here"}, res.Data)
}

func TestRuntimeIsolatedReset(t *testing.T) {
	r := newRuntime(t, "isolated")

	_, err := r.ExecuteCode(context.Background(), `globalThis.leak = 1; module.exports = 1;`)
	require.NoError(t, err)
	require.NoError(t, r.Reset())

	res, err := r.ExecuteCode(context.Background(), `module.exports = typeof globalThis.leak;`)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "undefined", res.Data)
}

func TestRuntimeInvalidMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Execution.Mode = "remote"
	_, err := New(Options{Config: cfg})
	assert.Error(t, err)
}

func TestRuntimeCloseThenExecute(t *testing.T) {
	r := newRuntime(t, "direct")
	r.Close()
	_, err := r.ExecuteCode(context.Background(), `1`)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
