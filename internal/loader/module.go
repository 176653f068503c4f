package loader

import (
	"github.com/dop251/goja"
)

// Kind classifies a module by its module system.
type Kind string

const (
	KindCommonJS Kind = "commonjs"
	KindESM      Kind = "esm"
	KindJSON     Kind = "json"
	KindBuiltin  Kind = "builtin"
)

// State tracks a module through its evaluation lifecycle.
type State int

const (
	StateUnresolved State = iota
	StateLoading
	StateEvaluating
	StateEvaluated
	StateFailed
)

// Module is one loaded module, identified by (Path, Kind) within a
// single VM context.
type Module struct {
	Path  string
	Kind  Kind
	State State

	// moduleObj is the guest-visible module object carrying .exports.
	// It exists from the moment the module enters the cache, so cyclic
	// requires observe the current, possibly incomplete exports object.
	moduleObj *goja.Object

	// thrown caches the failure value so repeated requires of a failed
	// module re-throw the same error instead of re-executing it.
	thrown goja.Value
	err    error

	// Dependents lists the paths that required this module. Diagnostics
	// only; never an ownership edge.
	Dependents []string
}

// Exports returns the module's current exports value. During a cycle
// this is the incomplete object the module is still populating.
func (m *Module) Exports() goja.Value {
	return m.moduleObj.Get("exports")
}

// ModuleObject returns the guest-visible module object.
func (m *Module) ModuleObject() *goja.Object {
	return m.moduleObj
}

func (m *Module) addDependent(from string) {
	for _, d := range m.Dependents {
		if d == from {
			return
		}
	}
	m.Dependents = append(m.Dependents, from)
}

type cacheKey struct {
	path string
	kind Kind
}

// moduleCache maps (path, kind) to modules for the lifetime of one VM
// context. Entries are never evicted mid-session: a second resolution of
// the same key returns the same exports reference, not a recomputed one.
type moduleCache struct {
	modules map[cacheKey]*Module
}

func newModuleCache() *moduleCache {
	return &moduleCache{modules: make(map[cacheKey]*Module)}
}

func (c *moduleCache) get(path string, kind Kind) (*Module, bool) {
	m, ok := c.modules[cacheKey{path: path, kind: kind}]
	return m, ok
}

func (c *moduleCache) put(m *Module) {
	c.modules[cacheKey{path: m.Path, kind: m.Kind}] = m
}

func (c *moduleCache) delete(path string, kind Kind) {
	delete(c.modules, cacheKey{path: path, kind: kind})
}

func (c *moduleCache) len() int {
	return len(c.modules)
}
