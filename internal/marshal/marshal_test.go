package marshal

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, src string) (*goja.Runtime, goja.Value) {
	t.Helper()
	rt := goja.New()
	v, err := rt.RunString(src)
	require.NoError(t, err)
	return rt, v
}

func TestDataPrimitives(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want interface{}
	}{
		{"string", `"hello"`, "hello"},
		{"integer", `42`, int64(42)},
		{"float", `1.5`, 1.5},
		{"true", `true`, true},
		{"null", `null`, nil},
		{"nan becomes null", `NaN`, nil},
		{"infinity becomes null", `Infinity`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, v := eval(t, tt.src)
			got, err := Data(rt, v, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataUndefinedIsDropped(t *testing.T) {
	rt, v := eval(t, `undefined`)
	got, err := Data(rt, v, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDataObjectsAndArrays(t *testing.T) {
	rt, v := eval(t, `({ name: "svc", ports: [80, 443], nested: { ok: true } })`)
	got, err := Data(rt, v, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name":   "svc",
		"ports":  []interface{}{int64(80), int64(443)},
		"nested": map[string]interface{}{"ok": true},
	}, got)
}

func TestDataFunctionsOmitted(t *testing.T) {
	rt, v := eval(t, `({ fn: function () {}, list: [1, function () {}, 3], keep: "x" })`)
	got, err := Data(rt, v, 0)
	require.NoError(t, err)
	m := got.(map[string]interface{})
	assert.NotContains(t, m, "fn")
	assert.Equal(t, "x", m["keep"])
	assert.Equal(t, []interface{}{int64(1), nil, int64(3)}, m["list"])
}

func TestDataSharedReferenceIsNotACycle(t *testing.T) {
	rt, v := eval(t, `
		const shared = { tag: "s" };
		({ a: shared, b: shared })
	`)
	got, err := Data(rt, v, 0)
	require.NoError(t, err)
	m := got.(map[string]interface{})
	assert.Equal(t, m["a"], m["b"])
}

func TestDataCycleFails(t *testing.T) {
	rt, v := eval(t, `
		const o = { name: "loop" };
		o.self = o;
		o
	`)
	_, err := Data(rt, v, 0)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "circular")
}

func TestDataDepthCap(t *testing.T) {
	rt, v := eval(t, `
		let o = { leaf: true };
		for (let i = 0; i < 10; i++) { o = { child: o }; }
		o
	`)
	_, err := Data(rt, v, 4)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "depth")

	got, err := Data(rt, v, 32)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDataPromises(t *testing.T) {
	t.Run("fulfilled unwraps", func(t *testing.T) {
		rt, v := eval(t, `Promise.resolve({ done: true })`)
		got, err := Data(rt, v, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"done": true}, got)
	})

	t.Run("pending fails", func(t *testing.T) {
		rt, v := eval(t, `new Promise(function () {})`)
		_, err := Data(rt, v, 0)
		var se *SerializationError
		require.ErrorAs(t, err, &se)
		assert.Contains(t, se.Reason, "pending")
	})
}

func TestDataErrorValue(t *testing.T) {
	rt, v := eval(t, `
		const e = new Error("went wrong");
		e.code = "E_TEST";
		e
	`)
	got, err := Data(rt, v, 0)
	require.NoError(t, err)
	m := got.(map[string]interface{})
	assert.Equal(t, "Error", m["name"])
	assert.Equal(t, "went wrong", m["message"])
	assert.Equal(t, "E_TEST", m["code"])
}

func TestGuestErrorFromErrorInstance(t *testing.T) {
	rt, v := eval(t, `
		const e = new TypeError("bad input");
		e.field = "port";
		e
	`)
	se := GuestError(rt, v)
	assert.Equal(t, "TypeError", se.Name)
	assert.Equal(t, "bad input", se.Message)
	assert.NotEmpty(t, se.Stack)
	assert.Equal(t, "port", se.Properties["field"])
}

func TestGuestErrorFromPlainValues(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		rt, v := eval(t, `"plain failure"`)
		se := GuestError(rt, v)
		assert.Equal(t, "plain failure", se.Message)
		assert.Empty(t, se.Name)
	})

	t.Run("object payload", func(t *testing.T) {
		rt, v := eval(t, `({ code: 503, reason: "overloaded" })`)
		se := GuestError(rt, v)
		assert.Equal(t, int64(503), se.Properties["code"])
		assert.Equal(t, "overloaded", se.Properties["reason"])
	})

	t.Run("nil thrown", func(t *testing.T) {
		se := GuestError(goja.New(), nil)
		assert.Equal(t, "unknown error", se.Message)
	})
}
