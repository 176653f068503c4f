package builtins

import (
	"fmt"

	"github.com/dop251/goja"
)

func init() {
	register("process", globalReexport("process"))
	register("timers", newTimers)
}

// globalReexport surfaces an injected global (the process object wired
// by the VM context manager) as a requirable module, the way Node lets
// code require('process').
func globalReexport(name string) Constructor {
	return func(env *Env) (*goja.Object, error) {
		v := env.Runtime.GlobalObject().Get(name)
		obj, ok := v.(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("global %s is not installed", name)
		}
		return obj, nil
	}
}

// newTimers collects the timer globals into a module object.
func newTimers(env *Env) (*goja.Object, error) {
	rt := env.Runtime
	global := rt.GlobalObject()
	exports := rt.NewObject()
	for _, name := range []string{
		"setTimeout", "clearTimeout",
		"setInterval", "clearInterval",
		"setImmediate", "clearImmediate",
	} {
		v := global.Get(name)
		if v == nil || goja.IsUndefined(v) {
			return nil, fmt.Errorf("timer global %s is not installed", name)
		}
		if err := exports.Set(name, v); err != nil {
			return nil, err
		}
	}
	return exports, nil
}
