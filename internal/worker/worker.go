// Package worker runs an execution session on a dedicated goroutine,
// reachable only through a message protocol. The host side never
// touches the interpreter: it sends an execute message and consumes
// correlated log and result messages, the same contract a
// process-isolated worker would have.
package worker

import (
	"context"
	"sync"

	"github.com/yangshun/nodepack/internal/config"
	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/monitoring"
	"github.com/yangshun/nodepack/internal/session"
	"github.com/yangshun/nodepack/internal/types"
	"github.com/yangshun/nodepack/internal/vfs"
)

// MessageType discriminates protocol envelopes.
type MessageType string

const (
	// MessageExecute asks the worker to run entry code.
	MessageExecute MessageType = "execute"

	// MessageLog streams one console line of the in-flight call.
	MessageLog MessageType = "log"

	// MessageResult carries the terminal outcome of a call.
	MessageResult MessageType = "result"

	// MessageError reports an infrastructure fault, not a guest error.
	MessageError MessageType = "error"
)

// Envelope is one protocol message. Every field is serializable; the
// protocol would survive being moved onto a pipe or socket unchanged.
type Envelope struct {
	Type     MessageType            `json:"type"`
	ID       string                 `json:"id"`
	Code     string                 `json:"code,omitempty"`
	Filename string                 `json:"filename,omitempty"`
	Argv     []string               `json:"argv,omitempty"`
	Line     string                 `json:"line,omitempty"`
	Result   *types.ExecutionResult `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Worker owns one session on its own goroutine. All interpreter work
// happens there; the embedding side holds only channels.
type Worker struct {
	log  *logging.Logger
	sess *session.Session

	inbox   chan Envelope
	outbox  chan Envelope
	quit    chan struct{}
	stopped chan struct{}

	mu         sync.Mutex
	cancel     context.CancelFunc
	terminated bool
}

// Spawn builds a session bound to fs and starts the worker goroutine.
func Spawn(fs *vfs.FS, cfg config.ExecutionConfig, log *logging.Logger, metrics *monitoring.Metrics) (*Worker, error) {
	if log == nil {
		log = logging.NewNop()
	}
	sess, err := session.New(fs, cfg, log, metrics)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		log:     log.Named("worker"),
		sess:    sess,
		inbox:   make(chan Envelope),
		outbox:  make(chan Envelope, 16),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Session exposes the underlying session for host-side filesystem
// access. Execution must still go through the protocol.
func (w *Worker) Session() *session.Session { return w.sess }

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.quit:
			return
		case env := <-w.inbox:
			if env.Type != MessageExecute {
				w.log.Warn("dropping unexpected message type " + string(env.Type))
				continue
			}
			w.handleExecute(env)
		}
	}
}

func (w *Worker) handleExecute(env Envelope) {
	ctx, cancel := context.WithCancel(context.Background())
	w.setCancel(cancel)
	defer func() {
		w.setCancel(nil)
		cancel()
	}()

	id := env.ID
	req := types.ExecutionRequest{
		Code:     env.Code,
		Filename: env.Filename,
		Argv:     env.Argv,
		OnLog: func(line string) {
			w.outbox <- Envelope{Type: MessageLog, ID: id, Line: line}
		},
	}

	res, err := w.sess.Execute(ctx, req)
	if err != nil {
		w.outbox <- Envelope{Type: MessageError, ID: id, Error: err.Error()}
		return
	}
	w.outbox <- Envelope{Type: MessageResult, ID: id, Result: &res}
}

func (w *Worker) setCancel(cancel context.CancelFunc) {
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
}

// cancelActive interrupts the in-flight call, if any.
func (w *Worker) cancelActive() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// send delivers an envelope to the worker goroutine. It reports false
// once the worker has been terminated.
func (w *Worker) send(env Envelope) bool {
	select {
	case w.inbox <- env:
		return true
	case <-w.quit:
		return false
	}
}

// Terminate interrupts any running call, stops the goroutine, and
// disposes the session. The worker cannot be restarted; the embedder
// spawns a new one.
func (w *Worker) Terminate() {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return
	}
	w.terminated = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(w.quit)
	<-w.stopped
	w.sess.Close()
	w.log.Debug("worker terminated")
}
