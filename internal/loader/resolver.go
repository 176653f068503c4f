package loader

import (
	"encoding/json"
	gopath "path"
	"strings"

	"github.com/yangshun/nodepack/internal/builtins"
	"github.com/yangshun/nodepack/internal/vfs"
)

var probeExtensions = []string{".js", ".json", ".mjs", ".cjs"}

// Resolve maps a specifier to an absolute virtual filesystem path using
// Node's directory/extension algorithm: the literal path first, then
// known extensions, then index files inside a directory. Built-in names
// never reach here; Require short-circuits them.
func (l *Loader) Resolve(specifier, fromDir string) (string, error) {
	if specifier == "" {
		return "", &NotFoundError{Specifier: specifier, From: fromDir}
	}

	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || strings.HasPrefix(specifier, "/") {
		base := specifier
		if !strings.HasPrefix(specifier, "/") {
			base = gopath.Join(fromDir, specifier)
		}
		if p, ok := l.probe(vfs.Clean(base)); ok {
			return p, nil
		}
		return "", &NotFoundError{Specifier: specifier, From: fromDir}
	}

	// Bare specifier: walk node_modules directories from the requiring
	// module's directory to the root.
	dir := vfs.Clean(fromDir)
	for {
		candidate := gopath.Join(dir, "node_modules", specifier)
		if p, ok := l.probe(candidate); ok {
			return p, nil
		}
		if dir == "/" {
			break
		}
		dir = gopath.Dir(dir)
	}
	return "", &NotFoundError{Specifier: specifier, From: fromDir}
}

// probe tries the literal path, extension suffixes, then directory
// resolution through package.json main or index files.
func (l *Loader) probe(p string) (string, bool) {
	if l.fs.IsFile(p) {
		return p, true
	}
	for _, ext := range probeExtensions {
		if l.fs.IsFile(p + ext) {
			return p + ext, true
		}
	}
	if l.fs.IsDir(p) {
		if main := l.packageMain(p); main != "" {
			target := vfs.Clean(gopath.Join(p, main))
			if target != p {
				if resolved, ok := l.probe(target); ok {
					return resolved, true
				}
			}
		}
		for _, index := range []string{"index.js", "index.json", "index.mjs", "index.cjs"} {
			candidate := gopath.Join(p, index)
			if l.fs.IsFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

type packageManifest struct {
	Main string `json:"main"`
	Type string `json:"type"`
}

// packageMain reads the "main" field of dir/package.json, if present.
func (l *Loader) packageMain(dir string) string {
	manifest, ok := l.readManifest(gopath.Join(dir, "package.json"))
	if !ok {
		return ""
	}
	return manifest.Main
}

// packageType walks from dir toward the root looking for the governing
// package.json "type" field. Returns "module", "commonjs", or "".
func (l *Loader) packageType(dir string) string {
	dir = vfs.Clean(dir)
	for {
		if manifest, ok := l.readManifest(gopath.Join(dir, "package.json")); ok {
			if manifest.Type != "" {
				return manifest.Type
			}
		}
		if dir == "/" {
			return ""
		}
		dir = gopath.Dir(dir)
	}
}

func (l *Loader) readManifest(p string) (packageManifest, bool) {
	var manifest packageManifest
	data, err := l.fs.ReadFile(p)
	if err != nil {
		return manifest, false
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		l.log.Debug("unparseable package.json at " + p)
		return manifest, false
	}
	return manifest, true
}

// classify determines the module kind for a resolved path.
func (l *Loader) classify(p string, source string) Kind {
	switch gopath.Ext(p) {
	case ".json":
		return KindJSON
	case ".mjs":
		return KindESM
	case ".cjs":
		return KindCommonJS
	}
	switch l.packageType(gopath.Dir(p)) {
	case "module":
		return KindESM
	case "commonjs":
		return KindCommonJS
	}
	if HasModuleSyntax(source) {
		return KindESM
	}
	return KindCommonJS
}

// IsBuiltinSpecifier reports whether the specifier names a catalog
// module, with or without the node: prefix.
func IsBuiltinSpecifier(specifier string) bool {
	return builtins.IsBuiltin(specifier)
}
