package loader

import (
	"fmt"

	"github.com/dop251/goja"
)

// NotFoundError reports a specifier that resolved to nothing.
type NotFoundError struct {
	Specifier string
	From      string
}

func (e *NotFoundError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("Cannot find module '%s' required from '%s'", e.Specifier, e.From)
	}
	return fmt.Sprintf("Cannot find module '%s'", e.Specifier)
}

// EvalError reports a module whose evaluation threw. Thrown carries the
// original guest value when one exists.
type EvalError struct {
	Path   string
	Thrown goja.Value
	Err    error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("module %s failed to evaluate: %v", e.Path, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
