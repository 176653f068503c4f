package builtins

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

func init() {
	register("crypto", newCrypto)
}

func hashFor(algorithm string) (func() hash.Hash, bool) {
	switch algorithm {
	case "md5":
		return md5.New, true
	case "sha1":
		return sha1.New, true
	case "sha256":
		return sha256.New, true
	case "sha384":
		return sha512.New384, true
	case "sha512":
		return sha512.New, true
	}
	return nil, false
}

// newCrypto builds the crypto façade and merges the host natives: the
// cryptographically secure random source and the digest implementations.
func newCrypto(env *Env) (*goja.Object, error) {
	exports, err := loadFacade(env, "crypto")
	if err != nil {
		return nil, err
	}
	rt := env.Runtime

	if err := exports.Set("__randomBytes", func(call goja.FunctionCall) goja.Value {
		size := int(call.Argument(0).ToInteger())
		if size < 0 {
			throwError(rt, "ERR_OUT_OF_RANGE", "size must be non-negative", "")
		}
		buf := make([]byte, size)
		if _, err := rand.Read(buf); err != nil {
			env.Logger.Error("host random source failed: " + err.Error())
			throwError(rt, "ERR_CRYPTO", "random source unavailable", "")
		}
		return rt.ToValue(rt.NewArrayBuffer(buf))
	}); err != nil {
		return nil, err
	}

	if err := exports.Set("__randomUUID", func(goja.FunctionCall) goja.Value {
		return rt.ToValue(uuid.NewString())
	}); err != nil {
		return nil, err
	}

	if err := exports.Set("__hash", func(call goja.FunctionCall) goja.Value {
		algorithm := call.Argument(0).String()
		newHash, ok := hashFor(algorithm)
		if !ok {
			throwError(rt, "ERR_CRYPTO", "digest method not supported: "+algorithm, "")
		}
		h := newHash()
		h.Write(bytesArg(rt, call.Argument(1)))
		return rt.ToValue(rt.NewArrayBuffer(h.Sum(nil)))
	}); err != nil {
		return nil, err
	}

	if err := exports.Set("__hmac", func(call goja.FunctionCall) goja.Value {
		algorithm := call.Argument(0).String()
		newHash, ok := hashFor(algorithm)
		if !ok {
			throwError(rt, "ERR_CRYPTO", "digest method not supported: "+algorithm, "")
		}
		mac := hmac.New(newHash, bytesArg(rt, call.Argument(1)))
		mac.Write(bytesArg(rt, call.Argument(2)))
		return rt.ToValue(rt.NewArrayBuffer(mac.Sum(nil)))
	}); err != nil {
		return nil, err
	}

	return exports, nil
}
