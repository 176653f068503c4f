package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangshun/nodepack/internal/config"
	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/types"
	"github.com/yangshun/nodepack/internal/vfs"
)

func newTestClient(t *testing.T, mutate func(*config.ExecutionConfig)) *Client {
	t.Helper()
	cfg := config.Default().Execution
	cfg.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := Spawn(vfs.New(), cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(w.Terminate)
	return NewClient(w)
}

func TestClientExecute(t *testing.T) {
	c := newTestClient(t, nil)
	res, err := c.Execute(context.Background(), types.ExecutionRequest{
		Code: `export default { from: "worker" };`,
	})
	require.NoError(t, err)
	require.True(t, res.OK, "error: %v", res.Error)
	assert.Equal(t, map[string]interface{}{"from": "worker"}, res.Data)
}

func TestClientStreamsLogs(t *testing.T) {
	c := newTestClient(t, nil)

	var mu sync.Mutex
	var streamed []string
	res, err := c.Execute(context.Background(), types.ExecutionRequest{
		Code: `
			console.log("one");
			console.log("two");
			module.exports = true;
		`,
		OnLog: func(line string) {
			mu.Lock()
			streamed = append(streamed, line)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, []string{"one", "two"}, res.Logs)
	mu.Lock()
	assert.Equal(t, res.Logs, streamed)
	mu.Unlock()
}

func TestClientGuestErrors(t *testing.T) {
	c := newTestClient(t, nil)
	res, err := c.Execute(context.Background(), types.ExecutionRequest{
		Code: `throw new Error("inside worker");`,
	})
	require.NoError(t, err)
	require.False(t, res.OK)
	assert.Equal(t, "inside worker", res.Error.Message)
}

func TestClientSequentialCalls(t *testing.T) {
	c := newTestClient(t, nil)
	for i := 0; i < 3; i++ {
		res, err := c.Execute(context.Background(), types.ExecutionRequest{
			Code: `module.exports = (globalThis.n = (globalThis.n || 0) + 1);`,
		})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, int64(i+1), res.Data, "worker state persists across calls")
	}
}

func TestClientCancellation(t *testing.T) {
	c := newTestClient(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := c.Execute(ctx, types.ExecutionRequest{Code: `while (true) {}`})
	require.NoError(t, err)
	require.False(t, res.OK)
	assert.Equal(t, "TimeoutError", res.Error.Name)
}

func TestTerminateStopsRunningCall(t *testing.T) {
	c := newTestClient(t, nil)

	started := make(chan struct{})
	go func() {
		close(started)
		c.Execute(context.Background(), types.ExecutionRequest{Code: `while (true) {}`})
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Terminate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("terminate did not stop the running call")
	}

	_, err := c.Execute(context.Background(), types.ExecutionRequest{Code: `1`})
	assert.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestTerminateIdempotent(t *testing.T) {
	c := newTestClient(t, nil)
	c.Terminate()
	c.Terminate()
}
