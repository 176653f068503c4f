package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasModuleSyntax(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"import statement", `import fs from "fs";`, true},
		{"named import", `import { join } from "path";`, true},
		{"side effect import", `import "./setup";`, true},
		{"export const", `export const answer = 42;`, true},
		{"export default", `export default function () {}`, true},
		{"export clause", `const a = 1; export { a };`, true},
		{"plain script", `const x = 1; console.log(x);`, false},
		{"commonjs", `const fs = require("fs"); module.exports = fs;`, false},
		{"dynamic import only", `import("./lazy").then(m => m.run());`, false},
		{"dynamic import with comment", `import /* chunk */ ("./lazy");`, false},
		{"import in string", `const s = "import x from 'y'";`, false},
		{"import in comment", "// import a from 'b'\nconst x = 1;", false},
		{"import in template", "const s = `import a from 'b'`;", false},
		{"nested import keyword", `const o = { import: 1 }; o.import;`, false},
		{"import after statement", "console.log(1)\nimport x from 'y';", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasModuleSyntax(tt.source))
		})
	}
}

func TestHasCommonJSMarkers(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"require call", `const fs = require("fs");`, true},
		{"module exports", `module.exports = { a: 1 };`, true},
		{"exports property", `exports.handler = () => {};`, true},
		{"exports assignment", `exports = {};`, true},
		{"require in string", `const s = "require('x')";`, false},
		{"require in comment", "// require('x')\nlet a;", false},
		{"property named require", `api.require("perm");`, false},
		{"comment before call parens", `require /* lazy */ ("fs");`, true},
		{"require without call", `const loader = require;`, false},
		{"plain script", `const total = 1 + 2;`, false},
		{"esm import", `import x from "y"; x();`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCommonJSMarkers(tt.source))
		})
	}
}

func TestLowerESMImports(t *testing.T) {
	t.Run("default import", func(t *testing.T) {
		out, err := LowerESM(`import util from "./util";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `const util = __npDefault(require("./util"));`)
	})

	t.Run("named imports", func(t *testing.T) {
		out, err := LowerESM(`import { join, resolve as abs } from "path";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `const __np_m1 = __npNamespace(require("path"));`)
		assert.Contains(t, out, `get join() { return __np_m1["join"]; }`)
		assert.Contains(t, out, `get abs() { return __np_m1["resolve"]; }`)
	})

	t.Run("namespace import", func(t *testing.T) {
		out, err := LowerESM(`import * as path from "path";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `const path = __npNamespace(require("path"));`)
	})

	t.Run("default plus named", func(t *testing.T) {
		out, err := LowerESM(`import dflt, { one } from "./m";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `__npNamespace(require("./m"))`)
		assert.Contains(t, out, `const dflt = __np_m1["default"];`)
		assert.Contains(t, out, `get one() { return __np_m1["one"]; }`)
	})

	t.Run("named imports wrap body in a binding scope", func(t *testing.T) {
		out, err := LowerESM("import { n } from \"./c\";\nconsole.log(n);", false)
		require.NoError(t, err)
		assert.Contains(t, out, "with ({ get n() { return")
		assert.True(t, strings.HasSuffix(out, "\n}"))
	})

	t.Run("no binding scope without named imports", func(t *testing.T) {
		out, err := LowerESM(`import * as all from "./c"; export const n = all.n;`, false)
		require.NoError(t, err)
		assert.NotContains(t, out, "with (")
	})

	t.Run("side effect import", func(t *testing.T) {
		out, err := LowerESM(`import "./setup";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `require("./setup");`)
	})

	t.Run("single quoted specifier survives", func(t *testing.T) {
		out, err := LowerESM(`import x from './a-b';`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `require('./a-b')`)
	})
}

func TestLowerESMExports(t *testing.T) {
	t.Run("export const", func(t *testing.T) {
		out, err := LowerESM(`export const answer = 42;`, false)
		require.NoError(t, err)
		assert.Contains(t, out, "const answer = 42;")
		assert.Contains(t, out, `"answer"`)
		assert.NotContains(t, out, "export const")
	})

	t.Run("export default", func(t *testing.T) {
		out, err := LowerESM(`export default { status: "ok" };`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `const __np_default = { status: "ok" };`)
		assert.Contains(t, out, `"default"`)
	})

	t.Run("export function", func(t *testing.T) {
		out, err := LowerESM("export function greet(name) { return `hi ${name}`; }", false)
		require.NoError(t, err)
		assert.Contains(t, out, "function greet(name)")
		assert.Contains(t, out, `"greet"`)
	})

	t.Run("export clause with rename", func(t *testing.T) {
		out, err := LowerESM("const a = 1;\nexport { a as alpha };", false)
		require.NoError(t, err)
		assert.Contains(t, out, `"alpha"`)
		assert.NotContains(t, out, "export {")
	})

	t.Run("re-export", func(t *testing.T) {
		out, err := LowerESM(`export { helper } from "./helpers";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `require("./helpers")`)
		assert.Contains(t, out, `"helper"`)
	})

	t.Run("export star", func(t *testing.T) {
		out, err := LowerESM(`export * from "./all";`, false)
		require.NoError(t, err)
		assert.Contains(t, out, "__npExportStar(")
	})

	t.Run("multiple declarators", func(t *testing.T) {
		out, err := LowerESM(`export const a = 1, b = fn(x, y);`, false)
		require.NoError(t, err)
		assert.Contains(t, out, `"a"`)
		assert.Contains(t, out, `"b"`)
	})

	t.Run("marks esModule", func(t *testing.T) {
		out, err := LowerESM(`export const a = 1;`, false)
		require.NoError(t, err)
		assert.Contains(t, out, "__esModule")
	})
}

func TestLowerESMEntryWrap(t *testing.T) {
	out, err := LowerESM(`export default await Promise.resolve(1);`, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "module.__npTLA = (async function () {"))
	assert.Contains(t, out, "const __np_default = await Promise.resolve(1);")
}

func TestLowerESMImportMeta(t *testing.T) {
	out, err := LowerESM(`export const u = import.meta.url;`, false)
	require.NoError(t, err)
	assert.Contains(t, out, "__np_import_meta.url")
	assert.NotContains(t, out, "import.meta")
}

func TestLowerCommonJSDynamicImport(t *testing.T) {
	t.Run("rewrites call", func(t *testing.T) {
		out := LowerCommonJS(`import("./lazy").then(m => m.run());`)
		assert.Contains(t, out, `__npImport("./lazy")`)
		assert.Contains(t, out, "function __npImport")
	})

	t.Run("plain source untouched", func(t *testing.T) {
		src := `const fs = require("fs"); module.exports = fs.readFileSync;`
		assert.Equal(t, src, LowerCommonJS(src))
	})
}
