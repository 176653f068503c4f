package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/yangshun/nodepack/internal/types"
)

// Client is the host-side end of the worker protocol. It presents the
// same Execute contract as a direct session, with each call correlated
// to its log and result messages by a generated id.
type Client struct {
	w  *Worker
	mu sync.Mutex
}

// NewClient wraps a spawned worker.
func NewClient(w *Worker) *Client {
	return &Client{w: w}
}

// Execute sends an execute message and consumes the reply stream until
// the result arrives. Log messages are forwarded to req.OnLog as they
// are produced. Cancelling ctx interrupts the in-flight call; the call
// still completes with its interrupt result.
func (c *Client) Execute(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	ok := c.w.send(Envelope{
		Type:     MessageExecute,
		ID:       id,
		Code:     req.Code,
		Filename: req.Filename,
		Argv:     req.Argv,
	})
	if !ok {
		return types.ExecutionResult{}, types.ErrNotInitialized
	}

	cancelSignal := ctx.Done()
	for {
		select {
		case <-cancelSignal:
			// Interrupt the worker but keep draining: the call still
			// produces a terminal result message.
			c.w.cancelActive()
			cancelSignal = nil
		case <-c.w.stopped:
			return types.ExecutionResult{}, types.ErrDisposed
		case env := <-c.w.outbox:
			if env.ID != id {
				continue
			}
			switch env.Type {
			case MessageLog:
				if req.OnLog != nil {
					req.OnLog(env.Line)
				}
			case MessageResult:
				return *env.Result, nil
			case MessageError:
				return types.ExecutionResult{}, decodeError(env.Error)
			}
		}
	}
}

// Terminate shuts the worker down.
func (c *Client) Terminate() {
	c.w.Terminate()
}

// decodeError maps wire error strings back onto the package's sentinel
// errors where possible.
func decodeError(msg string) error {
	switch msg {
	case types.ErrNotInitialized.Error():
		return types.ErrNotInitialized
	case types.ErrDisposed.Error():
		return types.ErrDisposed
	}
	return errors.New(msg)
}
