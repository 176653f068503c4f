package loader

import (
	"fmt"
	"sort"
	"strings"
)

// The loader evaluates every module through one CommonJS-style function
// wrapper. ES modules are lowered onto that wrapper before compilation:
// import statements become require calls, exported bindings become
// accessor properties over the module's locals. Getters make exported
// bindings live: a cyclic importer reads whatever has been evaluated so
// far and sees later assignments once evaluation continues, and a read
// before a let/const binding initializes throws a ReferenceError,
// matching temporal-dead-zone behavior. Named imports are live too:
// each one becomes a getter over its module's namespace object, placed
// on a `with` scope wrapping the module body, so the engine's own scope
// chain resolves reads through the getter while inner declarations of
// the same name still shadow it. The wrapper compiles non-strict, which
// is what permits `with`; a "use strict" directive in the source is
// already inert inside the wrapper since the lowering prologue precedes
// it.

// Lowered prefixes every lowered helper so guest identifiers cannot
// collide with them accidentally.
const helperPrefix = "__np"

const esmPrologue = `Object.defineProperty(module.exports, "__esModule", { value: true });
function __npDefault(m) { return m && m.__esModule ? m["default"] : m; }
function __npNamespace(m) { if (m && m.__esModule) { return m; } var ns = { "default": m, __esModule: true }; for (var k in m) { if (k !== "default") { ns[k] = m[k]; } } return ns; }
function __npImport(s) { try { return Promise.resolve(__npNamespace(require(s))); } catch (e) { return Promise.reject(e); } }
function __npExportStar(from) { Object.keys(from).forEach(function (k) { if (k === "default" || k === "__esModule") { return; } Object.defineProperty(module.exports, k, { enumerable: true, configurable: true, get: function () { return from[k]; } }); }); }
var __np_import_meta = { url: "file://" + __filename };
`

const cjsDynamicImportPrologue = `function __npNamespace(m) { if (m && m.__esModule) { return m; } var ns = { "default": m, __esModule: true }; for (var k in m) { if (k !== "default") { ns[k] = m[k]; } } return ns; }
function __npImport(s) { try { return Promise.resolve(__npNamespace(require(s))); } catch (e) { return Promise.reject(e); } }
`

type edit struct {
	start, end int
	text       string
}

type exportBinding struct {
	exported string
	local    string
}

// importBinding backs one named import with a namespace member read.
type importBinding struct {
	local string // binding name in this module
	ref   string // member expression on the source module's namespace
}

type lowerer struct {
	src        string
	edits      []edit
	exports    []exportBinding
	imports    []importBinding
	counter    int
	hasStatic  bool // top-level import/export statements seen
	hasDynamic bool // import(...) seen
	cjsOnly    bool // rewrite dynamic import only, reject static syntax
	err        error
}

// SyntaxError reports a construct the lowering pass could not parse.
type SyntaxError struct {
	Offset int
	Detail string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid module syntax at offset %d: %s", e.Offset, e.Detail)
}

// HasModuleSyntax reports whether source contains top-level import or
// export statements, i.e. whether it must be treated as an ES module.
func HasModuleSyntax(source string) bool {
	l := &lowerer{src: source}
	l.scan(true)
	return l.hasStatic
}

// HasCommonJSMarkers reports require(...) calls or module.exports /
// exports.x usage outside strings and comments.
func HasCommonJSMarkers(source string) bool {
	i, n := 0, len(source)
	var lastWord string
	var lastSig byte
	for i < n {
		if j := skipNonCode(source, i); j > i {
			i = j
			continue
		}
		c := source[i]
		if isIdentStart(c) {
			word, end := readWord(source, i)
			next := peekSig(source, end)
			switch word {
			case "require":
				if lastSig != '.' && next == '(' {
					return true
				}
			case "exports":
				if lastSig == '.' && lastWord == "module" {
					return true
				}
				if lastSig != '.' && (next == '.' || next == '[' || next == '=') {
					return true
				}
			}
			lastWord = word
			lastSig = word[len(word)-1]
			i = end
			continue
		}
		if !isSpace(c) {
			lastSig = c
			if c != '.' {
				lastWord = ""
			}
		}
		i++
	}
	return false
}

// LowerESM rewrites an ES module body onto the CommonJS wrapper. With
// wrapAsync set (the synthetic entry module), the body is placed inside
// an async function whose promise is stored on module.__npTLA, so
// top-level await settles before the session marshals the exports.
func LowerESM(source string, wrapAsync bool) (string, error) {
	l := &lowerer{src: source}
	l.scan(false)
	if l.err != nil {
		return "", l.err
	}

	var b strings.Builder
	b.WriteString(esmPrologue)
	if len(l.imports) > 0 {
		// Getters are lazy, so referencing the namespace consts the
		// import edits declare inside the block is safe by the time
		// any binding is read.
		b.WriteString("with ({")
		for i, imp := range l.imports {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, " get %s() { return %s; }", imp.local, imp.ref)
		}
		b.WriteString(" }) {\n")
	}
	for _, exp := range l.exports {
		fmt.Fprintf(&b,
			"Object.defineProperty(module.exports, %q, { enumerable: true, configurable: true, get: function () { return %s; } });\n",
			exp.exported, exp.local)
	}
	b.WriteString(l.apply())
	if len(l.imports) > 0 {
		b.WriteString("\n}")
	}

	if wrapAsync {
		return "module.__npTLA = (async function () {\n" + b.String() + "\n}).call(this);", nil
	}
	return b.String(), nil
}

// LowerCommonJS rewrites dynamic import(...) expressions in a CommonJS
// module; everything else passes through untouched.
func LowerCommonJS(source string) string {
	l := &lowerer{src: source, cjsOnly: true}
	l.scan(false)
	if !l.hasDynamic {
		return source
	}
	return cjsDynamicImportPrologue + l.apply()
}

func (l *lowerer) fail(offset int, detail string) {
	if l.err == nil {
		l.err = &SyntaxError{Offset: offset, Detail: detail}
	}
}

func (l *lowerer) freshVar() string {
	l.counter++
	return fmt.Sprintf("%s_m%d", helperPrefix, l.counter)
}

func (l *lowerer) addEdit(start, end int, text string) {
	l.edits = append(l.edits, edit{start: start, end: end, text: text})
}

// apply splices the collected edits into the source.
func (l *lowerer) apply() string {
	sort.SliceStable(l.edits, func(i, j int) bool { return l.edits[i].start < l.edits[j].start })
	var b strings.Builder
	pos := 0
	for _, e := range l.edits {
		if e.start < pos {
			continue
		}
		b.WriteString(l.src[pos:e.start])
		b.WriteString(e.text)
		pos = e.end
	}
	b.WriteString(l.src[pos:])
	return b.String()
}

// scan walks the source once, collecting edits and export bindings.
// With detectOnly set it stops as soon as static module syntax is seen.
func (l *lowerer) scan(detectOnly bool) {
	src := l.src
	i, n := 0, len(src)
	depth := 0
	var lastSig byte
	for i < n && l.err == nil {
		if j := skipNonCode(src, i); j > i {
			i = j
			continue
		}
		c := src[i]
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
		if !isIdentStart(c) {
			if !isSpace(c) {
				lastSig = c
			}
			i++
			continue
		}

		word, end := readWord(src, i)
		atStatement := lastSig == 0 || lastSig == ';' || lastSig == '{' || lastSig == '}' || lastSig == ')'
		prevIsDot := lastSig == '.'

		switch {
		case word == "import" && !prevIsDot:
			next := peekSig(src, end)
			if next == '(' {
				// Dynamic import works in both module systems.
				l.hasDynamic = true
				if !detectOnly {
					l.addEdit(i, end, helperPrefix+"Import")
				}
				i = end
				lastSig = 't'
				continue
			}
			if next == '.' {
				// import.meta
				metaEnd := l.expectImportMeta(src, end)
				l.hasStatic = true
				if detectOnly {
					return
				}
				if !l.cjsOnly {
					l.addEdit(i, metaEnd, helperPrefix+"_import_meta")
				}
				i = metaEnd
				lastSig = 'a'
				continue
			}
			if depth == 0 && atStatement {
				l.hasStatic = true
				if detectOnly {
					return
				}
				if l.cjsOnly {
					l.fail(i, "import statement in CommonJS module")
					return
				}
				i = l.parseImport(i, end)
				lastSig = ';'
				continue
			}
		case word == "export" && depth == 0 && atStatement && !prevIsDot:
			l.hasStatic = true
			if detectOnly {
				return
			}
			if l.cjsOnly {
				l.fail(i, "export statement in CommonJS module")
				return
			}
			i = l.parseExport(i, end)
			lastSig = ';'
			continue
		}

		lastSig = word[len(word)-1]
		i = end
	}
}
