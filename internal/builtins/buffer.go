package builtins

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/dop251/goja"
)

func init() {
	register("buffer", newBuffer)
}

// newBuffer builds the buffer façade and merges the byte/text codec
// natives onto it.
func newBuffer(env *Env) (*goja.Object, error) {
	exports, err := loadFacade(env, "buffer")
	if err != nil {
		return nil, err
	}
	rt := env.Runtime

	natives := map[string]func(goja.FunctionCall) goja.Value{
		"__utf8Encode": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(rt.NewArrayBuffer([]byte(call.Argument(0).String())))
		},
		"__utf8Decode": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(string(bytesArg(rt, call.Argument(0))))
		},
		"__base64Encode": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(base64.StdEncoding.EncodeToString(bytesArg(rt, call.Argument(0))))
		},
		"__base64Decode": func(call goja.FunctionCall) goja.Value {
			data, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
			if err != nil {
				// Tolerant like Node: decode what is decodable.
				data, _ = base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(call.Argument(0).String())
			}
			return rt.ToValue(rt.NewArrayBuffer(data))
		},
		"__hexEncode": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(hex.EncodeToString(bytesArg(rt, call.Argument(0))))
		},
		"__hexDecode": func(call goja.FunctionCall) goja.Value {
			data, _ := hex.DecodeString(call.Argument(0).String())
			return rt.ToValue(rt.NewArrayBuffer(data))
		},
	}
	for name, fn := range natives {
		if err := exports.Set(name, fn); err != nil {
			return nil, err
		}
	}
	return exports, nil
}

// bytesArg extracts raw bytes from a guest value: ArrayBuffer, exported
// byte slice, or string.
func bytesArg(rt *goja.Runtime, v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch exported := v.Export().(type) {
	case goja.ArrayBuffer:
		return exported.Bytes()
	case []byte:
		return exported
	case string:
		return []byte(exported)
	}
	return []byte(v.String())
}
