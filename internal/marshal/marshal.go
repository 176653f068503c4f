// Package marshal converts guest values into host-side data. Results
// cross the sandbox boundary exactly once, at the end of a call, so the
// conversion is strict: bounded depth, no cycles, and nothing that
// would smuggle a live reference to the interpreter out of it.
package marshal

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/types"
)

// DefaultMaxDepth bounds result nesting when the caller passes no
// explicit limit.
const DefaultMaxDepth = 64

// SerializationError reports a result value that cannot cross the
// sandbox boundary.
type SerializationError struct {
	Path   string
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return "cannot serialize result: " + e.Reason
	}
	return fmt.Sprintf("cannot serialize result at %s: %s", e.Path, e.Reason)
}

// Data converts a guest value into plain Go data suitable for JSON
// encoding. Functions are dropped the way JSON.stringify drops them:
// omitted from objects, null in arrays. Settled fulfilled promises are
// unwrapped; pending or rejected ones fail.
func Data(rt *goja.Runtime, v goja.Value, maxDepth int) (interface{}, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	m := &marshaler{rt: rt, maxDepth: maxDepth, active: make(map[*goja.Object]bool)}
	out, dropped, err := m.value(v, 0, "$")
	if err != nil {
		return nil, err
	}
	if dropped {
		return nil, nil
	}
	return out, nil
}

type marshaler struct {
	rt       *goja.Runtime
	maxDepth int

	// active tracks objects on the current descent path. Sharing the
	// same object twice as siblings is fine; revisiting an ancestor is
	// a cycle.
	active map[*goja.Object]bool
}

// value returns the marshaled form, or dropped=true for values that
// have no serialized representation (functions, undefined properties).
func (m *marshaler) value(v goja.Value, depth int, path string) (interface{}, bool, error) {
	if v == nil || goja.IsUndefined(v) {
		return nil, true, nil
	}
	if goja.IsNull(v) {
		return nil, false, nil
	}
	if depth > m.maxDepth {
		return nil, false, &SerializationError{Path: path, Reason: "maximum depth exceeded"}
	}

	switch ev := v.Export().(type) {
	case bool, string, int64:
		return ev, false, nil
	case float64:
		if math.IsNaN(ev) || math.IsInf(ev, 0) {
			return nil, false, nil
		}
		return ev, false, nil
	case []byte:
		return ev, false, nil
	case goja.ArrayBuffer:
		return ev.Bytes(), false, nil
	case time.Time:
		return ev.UTC().Format("2006-01-02T15:04:05.000Z"), false, nil
	case *goja.Promise:
		switch ev.State() {
		case goja.PromiseStateFulfilled:
			return m.value(ev.Result(), depth, path)
		case goja.PromiseStateRejected:
			return nil, false, &SerializationError{Path: path, Reason: "rejected promise"}
		default:
			return nil, false, &SerializationError{Path: path, Reason: "pending promise"}
		}
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export(), false, nil
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return nil, true, nil
	}
	if m.active[obj] {
		return nil, false, &SerializationError{Path: path, Reason: "circular reference"}
	}
	m.active[obj] = true
	defer delete(m.active, obj)

	if obj.ClassName() == "Array" {
		return m.array(obj, depth, path)
	}
	if isErrorLike(obj) {
		return m.errorObject(obj, depth, path)
	}
	return m.object(obj, depth, path)
}

func (m *marshaler) array(obj *goja.Object, depth int, path string) (interface{}, bool, error) {
	length := int(obj.Get("length").ToInteger())
	out := make([]interface{}, 0, length)
	for i := 0; i < length; i++ {
		elemPath := path + "[" + strconv.Itoa(i) + "]"
		elem, dropped, err := m.value(obj.Get(strconv.Itoa(i)), depth+1, elemPath)
		if err != nil {
			return nil, false, err
		}
		if dropped {
			elem = nil
		}
		out = append(out, elem)
	}
	return out, false, nil
}

func (m *marshaler) object(obj *goja.Object, depth int, path string) (interface{}, bool, error) {
	out := make(map[string]interface{})
	for _, key := range obj.Keys() {
		val, dropped, err := m.value(obj.Get(key), depth+1, path+"."+key)
		if err != nil {
			return nil, false, err
		}
		if dropped {
			continue
		}
		out[key] = val
	}
	return out, false, nil
}

// errorObject flattens an Error into its conventional fields plus own
// enumerable extras, since Error's message and stack are not enumerable
// and a generic key walk would produce an empty object.
func (m *marshaler) errorObject(obj *goja.Object, depth int, path string) (interface{}, bool, error) {
	out := map[string]interface{}{
		"name":    stringField(obj, "name"),
		"message": stringField(obj, "message"),
	}
	extra, _, err := m.object(obj, depth, path)
	if err != nil {
		return nil, false, err
	}
	for k, v := range extra.(map[string]interface{}) {
		if k != "name" && k != "message" {
			out[k] = v
		}
	}
	return out, false, nil
}

// GuestError converts a thrown guest value to its structured host form.
// Error instances keep name, message, stack, and own enumerable
// properties; anything else is stringified into the message.
func GuestError(rt *goja.Runtime, thrown goja.Value) *types.StructuredError {
	if thrown == nil || goja.IsUndefined(thrown) || goja.IsNull(thrown) {
		return &types.StructuredError{Message: "unknown error"}
	}

	obj, ok := thrown.(*goja.Object)
	if !ok {
		return &types.StructuredError{Message: thrown.String()}
	}

	se := &types.StructuredError{
		Name:    stringField(obj, "name"),
		Message: stringField(obj, "message"),
		Stack:   stringField(obj, "stack"),
	}
	if se.Message == "" {
		se.Message = thrown.String()
	}

	m := &marshaler{rt: rt, maxDepth: DefaultMaxDepth, active: make(map[*goja.Object]bool)}
	for _, key := range obj.Keys() {
		switch key {
		case "name", "message", "stack":
			continue
		}
		val, dropped, err := m.value(obj.Get(key), 1, key)
		if err != nil || dropped {
			continue
		}
		if se.Properties == nil {
			se.Properties = make(map[string]interface{})
		}
		se.Properties[key] = val
	}
	return se
}

// FromError wraps a host-side failure as a structured error.
func FromError(err error) *types.StructuredError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*SerializationError); ok {
		return &types.StructuredError{Name: "SerializationError", Message: se.Error()}
	}
	return &types.StructuredError{Message: err.Error()}
}

func isErrorLike(obj *goja.Object) bool {
	if obj.ClassName() == "Error" {
		return true
	}
	// Subclasses keep the base class name only sometimes; a string
	// stack plus a message property is the practical signature.
	msg := obj.Get("message")
	return stringField(obj, "stack") != "" && msg != nil && !goja.IsUndefined(msg)
}

func stringField(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if _, isStr := v.Export().(string); !isStr {
		return ""
	}
	return v.String()
}
