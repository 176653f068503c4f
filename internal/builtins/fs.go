package builtins

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/vfs"
)

func init() {
	register("fs", newFS)
	register("fs/promises", newFSPromises)
}

// newFSPromises surfaces fs.promises under its own specifier. The loader
// caches built-ins per context, so both specifiers share one state.
func newFSPromises(env *Env) (*goja.Object, error) {
	fsExports, err := env.Require("fs")
	if err != nil {
		return nil, err
	}
	promises, ok := fsExports.Get("promises").(*goja.Object)
	if !ok {
		return nil, errFacadeShape("fs/promises")
	}
	return promises, nil
}

// newFS builds the fs façade over the virtual filesystem. The façade
// source provides the Node-shaped sync/callback/promise surface; every
// operation funnels into the natives merged here, so all three surfaces
// observe the same store.
func newFS(env *Env) (*goja.Object, error) {
	exports, err := loadFacade(env, "fs")
	if err != nil {
		return nil, err
	}
	rt := env.Runtime
	fs := env.FS

	throwVFS := func(fallbackOp, path string, err error) {
		var verr *vfs.Error
		if errors.As(err, &verr) {
			throwError(rt, verr.Code(), verr.Code()+": "+verr.Err.Error()+", "+verr.Op+" '"+verr.Path+"'", verr.Path)
		}
		throwError(rt, "EIO", fallbackOp+" '"+path+"': "+err.Error(), path)
	}

	natives := map[string]func(goja.FunctionCall) goja.Value{
		"__readFile": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			data, err := fs.ReadFile(path)
			if err != nil {
				throwVFS("read", path, err)
			}
			return rt.ToValue(rt.NewArrayBuffer(data))
		},
		"__writeFile": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			if err := fs.WriteFile(path, bytesArg(rt, call.Argument(1))); err != nil {
				throwVFS("write", path, err)
			}
			return goja.Undefined()
		},
		"__appendFile": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			if err := fs.AppendFile(path, bytesArg(rt, call.Argument(1))); err != nil {
				throwVFS("append", path, err)
			}
			return goja.Undefined()
		},
		"__exists": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(fs.Exists(call.Argument(0).String()))
		},
		"__mkdir": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			var err error
			if call.Argument(1).ToBoolean() {
				err = fs.MkdirAll(path)
			} else {
				err = fs.Mkdir(path)
			}
			if err != nil {
				throwVFS("mkdir", path, err)
			}
			return goja.Undefined()
		},
		"__readdir": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			entries, err := fs.ReadDir(path)
			if err != nil {
				throwVFS("readdir", path, err)
			}
			names := make([]interface{}, 0, len(entries))
			for _, entry := range entries {
				names = append(names, entry.Name)
			}
			return rt.ToValue(names)
		},
		"__stat": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			info, err := fs.Stat(path)
			if err != nil {
				throwVFS("stat", path, err)
			}
			return rt.ToValue(map[string]interface{}{
				"size":    info.Size,
				"isDir":   info.IsDir,
				"mtimeMs": info.Modified.UnixMilli(),
			})
		},
		"__unlink": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			if err := fs.Unlink(path); err != nil {
				throwVFS("unlink", path, err)
			}
			return goja.Undefined()
		},
		"__rmdir": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			if err := fs.Rmdir(path); err != nil {
				throwVFS("rmdir", path, err)
			}
			return goja.Undefined()
		},
		"__rm": func(call goja.FunctionCall) goja.Value {
			path := call.Argument(0).String()
			if err := fs.RemoveAll(path); err != nil {
				throwVFS("rm", path, err)
			}
			return goja.Undefined()
		},
		"__rename": func(call goja.FunctionCall) goja.Value {
			oldPath := call.Argument(0).String()
			newPath := call.Argument(1).String()
			if err := fs.Rename(oldPath, newPath); err != nil {
				throwVFS("rename", oldPath, err)
			}
			return goja.Undefined()
		},
	}
	for name, fn := range natives {
		if err := exports.Set(name, fn); err != nil {
			return nil, err
		}
	}
	return exports, nil
}
