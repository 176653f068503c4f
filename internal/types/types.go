// Package types defines the request, result, and error shapes shared by
// every layer of the runtime.
package types

import "errors"

// Infrastructure faults. These are the only errors Execute is allowed to
// return as Go errors; everything originating from guest code is folded
// into an ExecutionResult instead.
var (
	// ErrNotInitialized indicates Execute was called before the runtime
	// was initialized or after it was closed.
	ErrNotInitialized = errors.New("runtime not initialized")

	// ErrDisposed indicates the VM context was disposed while a call was
	// in flight (explicit reset, worker termination).
	ErrDisposed = errors.New("vm context disposed")
)

// ExecutionRequest describes one execute call. It is immutable for the
// duration of the call.
type ExecutionRequest struct {
	// Code is the guest program source.
	Code string

	// Filename is the synthetic path the entry module reports as
	// __filename. Defaults to /main.js.
	Filename string

	// Argv is appended to process.argv after the runtime and entry names.
	Argv []string

	// OnLog, when set, receives each console line as it is produced,
	// before the result resolves.
	OnLog LogFunc
}

// LogFunc receives a single formatted console line.
type LogFunc func(line string)

// ExecutionResult is the terminal outcome of one execute call.
// OK=true implies Error is nil; OK=false implies Data is nil.
type ExecutionResult struct {
	OK    bool             `json:"ok"`
	Data  interface{}      `json:"data,omitempty"`
	Error *StructuredError `json:"error,omitempty"`
	Logs  []string         `json:"logs"`
}

// StructuredError is the host-safe form of a guest failure. Message is
// always present; Name/Stack/Properties are preserved when the thrown
// value carried them, so host UIs can render multi-field payloads
// distinctly from plain strings.
type StructuredError struct {
	Name       string                 `json:"name,omitempty"`
	Message    string                 `json:"message"`
	Stack      string                 `json:"stack,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e == nil {
		return ""
	}
	if e.Name != "" {
		return e.Name + ": " + e.Message
	}
	return e.Message
}

// Failure builds an error result preserving logs collected so far.
func Failure(err *StructuredError, logs []string) ExecutionResult {
	if logs == nil {
		logs = []string{}
	}
	return ExecutionResult{OK: false, Error: err, Logs: logs}
}

// Success builds an ok result.
func Success(data interface{}, logs []string) ExecutionResult {
	if logs == nil {
		logs = []string{}
	}
	return ExecutionResult{OK: true, Data: data, Logs: logs}
}
