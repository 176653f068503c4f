// Package loader resolves, transforms, and evaluates guest modules.
//
// Three module flavors share one cache: CommonJS sources run inside the
// classic five-parameter wrapper, ES modules are lowered to that same
// wrapper by a source transform (imports become require calls, exports
// become live getters, top-level await becomes an async wrapper whose
// promise the session drains), and JSON files parse straight to their
// exports. Built-ins short-circuit resolution entirely and come from the
// builtins catalog.
//
// Cycle safety follows Node: a module is cached before its body runs, so
// a cyclic require observes the partially populated exports object
// rather than recursing. Failed evaluations are cached too and re-throw
// the original value on every subsequent require.
package loader
