package loader

import (
	"fmt"
	"strings"
)

// Statement parsers for the lowering pass. Each consumes one top-level
// import or export statement starting at start (the keyword offset) and
// returns the offset past the statement, recording the replacement edit
// and any export bindings on the lowerer.

func (l *lowerer) expectImportMeta(src string, dot int) int {
	p := skipWsComments(src, dot)
	if p >= len(src) || src[p] != '.' {
		l.fail(dot, "expected '.' after import")
		return dot
	}
	p = skipWsComments(src, p+1)
	word, end := readWord(src, p)
	if word != "meta" {
		l.fail(p, "expected 'meta' after 'import.'")
		return p
	}
	return end
}

func (l *lowerer) parseImport(start, kwEnd int) int {
	src := l.src
	p := skipWsComments(src, kwEnd)
	if p >= len(src) {
		l.fail(start, "truncated import statement")
		return len(src)
	}

	// import "mod";
	if src[p] == '\'' || src[p] == '"' {
		lit, end := readStringLit(src, p)
		if lit == "" {
			l.fail(p, "unterminated module specifier")
			return len(src)
		}
		end = skipSemicolon(src, end)
		l.addEdit(start, end, "require("+lit+");")
		return end
	}

	defaultName := ""
	nsName := ""
	var named []importSpec

	if isIdentStart(src[p]) {
		defaultName, p = readWord(src, p)
		p = skipWsComments(src, p)
		if p < len(src) && src[p] == ',' {
			p = skipWsComments(src, p+1)
		}
	}
	if p < len(src) && src[p] == '*' {
		p = skipWsComments(src, p+1)
		as, end := readWord(src, p)
		if as != "as" {
			l.fail(p, "expected 'as' after '*' in import")
			return len(src)
		}
		p = skipWsComments(src, end)
		nsName, p = readWord(src, p)
		if nsName == "" {
			l.fail(p, "expected namespace binding name")
			return len(src)
		}
		p = skipWsComments(src, p)
	} else if p < len(src) && src[p] == '{' {
		named, p = l.parseNamedList(p)
		if l.err != nil {
			return len(src)
		}
		p = skipWsComments(src, p)
	}

	from, end := readWord(src, p)
	if from != "from" {
		l.fail(p, "expected 'from' in import statement")
		return len(src)
	}
	p = skipWsComments(src, end)
	lit, end := readStringLit(src, p)
	if lit == "" {
		l.fail(p, "expected module specifier string")
		return len(src)
	}
	end = skipSemicolon(src, end)

	var b strings.Builder
	switch {
	case nsName != "":
		fmt.Fprintf(&b, "const %s = %sNamespace(require(%s));", nsName, helperPrefix, lit)
	case defaultName != "" && len(named) == 0:
		fmt.Fprintf(&b, "const %s = %sDefault(require(%s));", defaultName, helperPrefix, lit)
	case defaultName == "" && len(named) > 0:
		mod := l.freshVar()
		fmt.Fprintf(&b, "const %s = %sNamespace(require(%s));", mod, helperPrefix, lit)
		l.bindNamed(mod, named)
	case defaultName != "" && len(named) > 0:
		mod := l.freshVar()
		fmt.Fprintf(&b, "const %s = %sNamespace(require(%s)); const %s = %s[\"default\"];",
			mod, helperPrefix, lit, defaultName, mod)
		l.bindNamed(mod, named)
	default:
		fmt.Fprintf(&b, "require(%s);", lit)
	}
	l.addEdit(start, end, b.String())
	return end
}

// bindNamed records one live binding per named import: the local name
// resolves through a getter over the module's namespace object, so
// reads observe assignments the source module makes after import time.
func (l *lowerer) bindNamed(mod string, specs []importSpec) {
	for _, s := range specs {
		l.imports = append(l.imports, importBinding{
			local: s.binding,
			ref:   fmt.Sprintf("%s[%q]", mod, s.name),
		})
	}
}

func (l *lowerer) parseExport(start, kwEnd int) int {
	src := l.src
	p := skipWsComments(src, kwEnd)
	if p >= len(src) {
		l.fail(start, "truncated export statement")
		return len(src)
	}

	if src[p] == '{' {
		return l.parseExportClause(start, p)
	}
	if src[p] == '*' {
		return l.parseExportStar(start, p)
	}

	word, wordEnd := readWord(src, p)
	switch word {
	case "default":
		l.exports = append(l.exports, exportBinding{exported: "default", local: helperPrefix + "_default"})
		l.addEdit(start, wordEnd, "const "+helperPrefix+"_default =")
		return wordEnd
	case "const", "let", "var":
		for _, name := range l.parseDeclaredNames(wordEnd) {
			l.exports = append(l.exports, exportBinding{exported: name, local: name})
		}
		l.addEdit(start, p, "")
		return p
	case "async":
		q := skipWsComments(src, wordEnd)
		fn, fnEnd := readWord(src, q)
		if fn != "function" {
			l.fail(q, "expected 'function' after 'export async'")
			return len(src)
		}
		l.exportDeclName(fnEnd)
		l.addEdit(start, p, "")
		return p
	case "function":
		l.exportDeclName(wordEnd)
		l.addEdit(start, p, "")
		return p
	case "class":
		l.exportDeclName(wordEnd)
		l.addEdit(start, p, "")
		return p
	default:
		l.fail(p, "unsupported export form")
		return len(src)
	}
}

// exportDeclName registers the identifier naming an exported function
// or class declaration.
func (l *lowerer) exportDeclName(p int) {
	src := l.src
	p = skipWsComments(src, p)
	if p < len(src) && src[p] == '*' { // generator
		p = skipWsComments(src, p+1)
	}
	name, _ := readWord(src, p)
	if name == "" {
		l.fail(p, "exported declaration must be named")
		return
	}
	l.exports = append(l.exports, exportBinding{exported: name, local: name})
}

// parseExportClause handles export { a, b as c } with an optional
// from clause.
func (l *lowerer) parseExportClause(start, brace int) int {
	src := l.src
	specs, p := l.parseNamedList(brace)
	if l.err != nil {
		return len(src)
	}
	p = skipWsComments(src, p)

	word, wordEnd := readWord(src, p)
	if word == "from" {
		q := skipWsComments(src, wordEnd)
		lit, end := readStringLit(src, q)
		if lit == "" {
			l.fail(q, "expected module specifier string")
			return len(src)
		}
		end = skipSemicolon(src, end)
		mod := l.freshVar()
		l.addEdit(start, end, fmt.Sprintf("const %s = require(%s);", mod, lit))
		for _, s := range specs {
			l.exports = append(l.exports, exportBinding{
				exported: s.binding,
				local:    fmt.Sprintf("%s[%q]", mod, s.name),
			})
		}
		return end
	}

	end := skipSemicolon(src, p)
	l.addEdit(start, end, "")
	for _, s := range specs {
		l.exports = append(l.exports, exportBinding{exported: s.binding, local: s.name})
	}
	return end
}

// parseExportStar handles export * from "mod" and export * as ns
// from "mod".
func (l *lowerer) parseExportStar(start, starPos int) int {
	src := l.src
	p := skipWsComments(src, starPos+1)

	nsName := ""
	word, wordEnd := readWord(src, p)
	if word == "as" {
		q := skipWsComments(src, wordEnd)
		nsName, p = readWord(src, q)
		if nsName == "" {
			l.fail(q, "expected binding name after 'as'")
			return len(src)
		}
		word, wordEnd = readWord(src, skipWsComments(src, p))
	}
	if word != "from" {
		l.fail(p, "expected 'from' in export * statement")
		return len(src)
	}
	p = skipWsComments(src, wordEnd)
	lit, end := readStringLit(src, p)
	if lit == "" {
		l.fail(p, "expected module specifier string")
		return len(src)
	}
	end = skipSemicolon(src, end)

	mod := l.freshVar()
	if nsName != "" {
		l.addEdit(start, end, fmt.Sprintf("const %s = %sNamespace(require(%s));", mod, helperPrefix, lit))
		l.exports = append(l.exports, exportBinding{exported: nsName, local: mod})
	} else {
		l.addEdit(start, end, fmt.Sprintf("const %s = require(%s); %sExportStar(%s);", mod, lit, helperPrefix, mod))
	}
	return end
}

type importSpec struct {
	name    string // name in the source module
	binding string // local (import) or exported (export clause) name
}

// parseNamedList parses { a, b as c, default as d } starting at the
// opening brace and returns the specs with the offset past the closing
// brace.
func (l *lowerer) parseNamedList(brace int) ([]importSpec, int) {
	src := l.src
	p := skipWsComments(src, brace+1)
	var specs []importSpec
	for p < len(src) && src[p] != '}' {
		name, end := readWord(src, p)
		if name == "" {
			l.fail(p, "expected binding name")
			return nil, len(src)
		}
		p = skipWsComments(src, end)
		binding := name
		if w, wEnd := readWord(src, p); w == "as" {
			q := skipWsComments(src, wEnd)
			binding, p = readWord(src, q)
			if binding == "" {
				l.fail(q, "expected binding name after 'as'")
				return nil, len(src)
			}
			p = skipWsComments(src, p)
		}
		specs = append(specs, importSpec{name: name, binding: binding})
		if p < len(src) && src[p] == ',' {
			p = skipWsComments(src, p+1)
		}
	}
	if p >= len(src) {
		l.fail(brace, "unterminated binding list")
		return nil, len(src)
	}
	return specs, p + 1
}

// parseDeclaredNames collects the identifiers declared by an exported
// const/let/var statement, skipping initializer expressions. The
// statement ends at a top-level semicolon, or at a newline where the
// preceding token cannot continue the declaration.
func (l *lowerer) parseDeclaredNames(p int) []string {
	src := l.src
	var names []string
	for {
		p = skipWsComments(src, p)
		if p >= len(src) || !isIdentStart(src[p]) {
			// Destructuring declarations are not supported in
			// export position.
			if p < len(src) && (src[p] == '{' || src[p] == '[') {
				l.fail(p, "destructuring export declarations are not supported")
			}
			return names
		}
		var name string
		name, p = readWord(src, p)
		names = append(names, name)

		// Skip to the next top-level comma or the end of the
		// statement.
		depth := 0
		var lastSig byte = 'x'
		for p < len(src) {
			if j := skipNonCode(src, p); j > p {
				p = j
				continue
			}
			c := src[p]
			if c == '\n' && depth == 0 && !continuesExpression(lastSig) {
				return names
			}
			switch c {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			case ';':
				if depth == 0 {
					return names
				}
			case ',':
				if depth == 0 {
					p++
					goto nextName
				}
			}
			if !isSpace(c) {
				lastSig = c
			}
			p++
		}
		return names
	nextName:
	}
}

func continuesExpression(c byte) bool {
	switch c {
	case '=', '+', '-', '*', '/', '%', '<', '>', '&', '|', '^', '!', '?', ':', '.', ',', '(', '[', '{':
		return true
	}
	return false
}

// --- low-level scanning ---

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// readWord reads an identifier starting at p, returning "" when p does
// not start one.
func readWord(src string, p int) (string, int) {
	if p >= len(src) || !isIdentStart(src[p]) {
		return "", p
	}
	end := p
	for end < len(src) && isIdentPart(src[end]) {
		end++
	}
	return src[p:end], end
}

// readStringLit reads a quoted string literal starting at p and returns
// the literal verbatim, quotes included, so it can be re-emitted inside
// a require call without re-escaping.
func readStringLit(src string, p int) (string, int) {
	if p >= len(src) || (src[p] != '\'' && src[p] != '"') {
		return "", p
	}
	quote := src[p]
	i := p + 1
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return src[p : i+1], i + 1
		case '\n':
			return "", p
		}
		i++
	}
	return "", p
}

func skipSemicolon(src string, p int) int {
	q := p
	for q < len(src) && (src[q] == ' ' || src[q] == '\t') {
		q++
	}
	if q < len(src) && src[q] == ';' {
		return q + 1
	}
	return p
}

// peekSig returns the next significant byte at or after p, skipping
// whitespace and comments, or 0 at end of input.
func peekSig(src string, p int) byte {
	p = skipWsComments(src, p)
	if p >= len(src) {
		return 0
	}
	return src[p]
}

// skipWsComments advances past whitespace and comments.
func skipWsComments(src string, p int) int {
	for p < len(src) {
		if isSpace(src[p]) {
			p++
			continue
		}
		if src[p] == '/' && p+1 < len(src) && (src[p+1] == '/' || src[p+1] == '*') {
			p = skipNonCode(src, p)
			continue
		}
		return p
	}
	return p
}

// skipNonCode returns the offset past a comment, string, or template
// literal starting at p, or p when p starts none of those. Regular
// expression literals are not recognized; a module specifier inside a
// regex is the only construct that could confuse the pass, and that
// does not occur in practice.
func skipNonCode(src string, p int) int {
	if p >= len(src) {
		return p
	}
	switch src[p] {
	case '/':
		if p+1 < len(src) && src[p+1] == '/' {
			i := p + 2
			for i < len(src) && src[i] != '\n' {
				i++
			}
			return i
		}
		if p+1 < len(src) && src[p+1] == '*' {
			i := p + 2
			for i+1 < len(src) {
				if src[i] == '*' && src[i+1] == '/' {
					return i + 2
				}
				i++
			}
			return len(src)
		}
	case '\'', '"':
		_, end := readStringLit(src, p)
		if end > p {
			return end
		}
		// Unterminated literal: skip to end of line so the scanner
		// does not loop.
		i := p + 1
		for i < len(src) && src[i] != '\n' {
			i++
		}
		return i
	case '`':
		return skipTemplate(src, p)
	}
	return p
}

// skipTemplate consumes a template literal, recursing into ${...}
// substitutions so nested strings and templates are handled.
func skipTemplate(src string, p int) int {
	i := p + 1
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case '`':
			return i + 1
		case '$':
			if i+1 < len(src) && src[i+1] == '{' {
				i = skipSubstitution(src, i+2)
				continue
			}
		}
		i++
	}
	return len(src)
}

func skipSubstitution(src string, p int) int {
	depth := 1
	i := p
	for i < len(src) {
		if j := skipNonCode(src, i); j > i {
			i = j
			continue
		}
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return len(src)
}
