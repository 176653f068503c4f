package builtins

import (
	"embed"
	"fmt"

	"github.com/dop251/goja"
)

//go:embed js/*.js
var facadeSources embed.FS

// loadFacade evaluates the embedded source for name.
func loadFacade(env *Env, name string) (*goja.Object, error) {
	src, err := facadeSources.ReadFile("js/" + name + ".js")
	if err != nil {
		return nil, fmt.Errorf("missing facade source for %s: %w", name, err)
	}
	return evalFacade(env, name, string(src))
}

// facade registers a pure guest-language module with no host natives.
func facade(name string) Constructor {
	return func(env *Env) (*goja.Object, error) {
		return loadFacade(env, name)
	}
}

func init() {
	register("path", facade("path"))
	register("events", facade("events"))
	register("querystring", facade("querystring"))
	register("stream", facade("stream"))
	register("util", facade("util"))
	register("url", facade("url"))
	register("assert", facade("assert"))
	register("http", facade("http"))
	register("os", facade("os"))
}
