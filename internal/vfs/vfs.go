// Package vfs implements the in-memory virtual filesystem shared by guest
// code and host tooling.
//
// The store is synchronous and path-addressable. Paths are slash-separated
// and rooted at "/"; relative paths are resolved against "/". A write
// through any accessor is immediately visible to every subsequent read in
// the same process, which is the seam dependency installers and editors
// use to populate files before an execute call.
package vfs

import (
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// FS is an in-memory filesystem tree.
type FS struct {
	mu   sync.RWMutex
	root *node
}

type node struct {
	name     string
	dir      bool
	data     []byte
	children map[string]*node
	modTime  time.Time
}

// FileInfo describes a file or directory.
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Modified time.Time `json:"modified"`
}

// New creates an empty filesystem containing only the root directory.
func New() *FS {
	return &FS{root: &node{
		name:     "/",
		dir:      true,
		children: make(map[string]*node),
		modTime:  time.Now(),
	}}
}

// Clean normalizes a path to absolute slash form.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// lookup walks to the node for p. Caller holds the lock.
func (f *FS) lookup(p string) (*node, bool) {
	p = Clean(p)
	cur := f.root
	if p == "/" {
		return cur, true
	}
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if !cur.dir {
			return nil, false
		}
		next, ok := cur.children[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// lookupParent returns the parent directory node and the final path element.
func (f *FS) lookupParent(p string) (*node, string, error) {
	p = Clean(p)
	if p == "/" {
		return nil, "", &Error{Op: "open", Path: p, Err: ErrIsDir}
	}
	dir, base := path.Split(p)
	parent, ok := f.lookup(strings.TrimSuffix(dir, "/"))
	if !ok {
		return nil, "", &Error{Op: "open", Path: p, Err: ErrNotExist}
	}
	if !parent.dir {
		return nil, "", &Error{Op: "open", Path: p, Err: ErrNotDir}
	}
	return parent, base, nil
}

// ReadFile returns the contents of the file at p.
func (f *FS) ReadFile(p string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.lookup(p)
	if !ok {
		return nil, &Error{Op: "read", Path: Clean(p), Err: ErrNotExist}
	}
	if n.dir {
		return nil, &Error{Op: "read", Path: Clean(p), Err: ErrIsDir}
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

// WriteFile creates or replaces the file at p. The parent directory must
// exist, matching Node's writeFileSync semantics.
func (f *FS) WriteFile(p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(p, data, false)
}

// AppendFile appends data to the file at p, creating it if absent.
func (f *FS) AppendFile(p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(p, data, true)
}

func (f *FS) writeLocked(p string, data []byte, appendTo bool) error {
	parent, base, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	existing, ok := parent.children[base]
	if ok && existing.dir {
		return &Error{Op: "write", Path: Clean(p), Err: ErrIsDir}
	}
	if ok && appendTo {
		existing.data = append(existing.data, data...)
		existing.modTime = time.Now()
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	parent.children[base] = &node{name: base, data: buf, modTime: time.Now()}
	return nil
}

// Exists reports whether a file or directory exists at p.
func (f *FS) Exists(p string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.lookup(p)
	return ok
}

// Stat returns metadata for the entry at p.
func (f *FS) Stat(p string) (FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.lookup(p)
	if !ok {
		return FileInfo{}, &Error{Op: "stat", Path: Clean(p), Err: ErrNotExist}
	}
	return FileInfo{
		Name:     n.name,
		Path:     Clean(p),
		Size:     int64(len(n.data)),
		IsDir:    n.dir,
		Modified: n.modTime,
	}, nil
}

// IsDir reports whether p exists and is a directory.
func (f *FS) IsDir(p string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.lookup(p)
	return ok && n.dir
}

// IsFile reports whether p exists and is a regular file.
func (f *FS) IsFile(p string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.lookup(p)
	return ok && !n.dir
}

// Mkdir creates a single directory. The parent must exist.
func (f *FS) Mkdir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, base, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	if _, ok := parent.children[base]; ok {
		return &Error{Op: "mkdir", Path: Clean(p), Err: ErrExist}
	}
	parent.children[base] = &node{
		name:     base,
		dir:      true,
		children: make(map[string]*node),
		modTime:  time.Now(),
	}
	return nil
}

// MkdirAll creates a directory and any missing parents. Existing
// directories along the way are not an error.
func (f *FS) MkdirAll(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = Clean(p)
	if p == "/" {
		return nil
	}
	cur := f.root
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		next, ok := cur.children[part]
		if !ok {
			next = &node{
				name:     part,
				dir:      true,
				children: make(map[string]*node),
				modTime:  time.Now(),
			}
			cur.children[part] = next
		} else if !next.dir {
			return &Error{Op: "mkdir", Path: p, Err: ErrNotDir}
		}
		cur = next
	}
	return nil
}

// ReadDir lists directory entries sorted by name.
func (f *FS) ReadDir(p string) ([]FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.lookup(p)
	if !ok {
		return nil, &Error{Op: "readdir", Path: Clean(p), Err: ErrNotExist}
	}
	if !n.dir {
		return nil, &Error{Op: "readdir", Path: Clean(p), Err: ErrNotDir}
	}
	entries := make([]FileInfo, 0, len(n.children))
	base := Clean(p)
	for name, child := range n.children {
		entries = append(entries, FileInfo{
			Name:     name,
			Path:     path.Join(base, name),
			Size:     int64(len(child.data)),
			IsDir:    child.dir,
			Modified: child.modTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Unlink removes the file at p. Directories are rejected.
func (f *FS) Unlink(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, base, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	n, ok := parent.children[base]
	if !ok {
		return &Error{Op: "unlink", Path: Clean(p), Err: ErrNotExist}
	}
	if n.dir {
		return &Error{Op: "unlink", Path: Clean(p), Err: ErrIsDir}
	}
	delete(parent.children, base)
	return nil
}

// Rmdir removes the empty directory at p.
func (f *FS) Rmdir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, base, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	n, ok := parent.children[base]
	if !ok {
		return &Error{Op: "rmdir", Path: Clean(p), Err: ErrNotExist}
	}
	if !n.dir {
		return &Error{Op: "rmdir", Path: Clean(p), Err: ErrNotDir}
	}
	if len(n.children) > 0 {
		return &Error{Op: "rmdir", Path: Clean(p), Err: ErrNotEmpty}
	}
	delete(parent.children, base)
	return nil
}

// RemoveAll removes the entry at p and everything beneath it. Missing
// targets are not an error.
func (f *FS) RemoveAll(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if Clean(p) == "/" {
		f.root.children = make(map[string]*node)
		return nil
	}
	parent, base, err := f.lookupParent(p)
	if err != nil {
		return nil
	}
	delete(parent.children, base)
	return nil
}

// Rename moves the entry at oldPath to newPath. The destination parent
// must exist; an existing destination file is replaced.
func (f *FS) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	oldParent, oldBase, err := f.lookupParent(oldPath)
	if err != nil {
		return err
	}
	n, ok := oldParent.children[oldBase]
	if !ok {
		return &Error{Op: "rename", Path: Clean(oldPath), Err: ErrNotExist}
	}
	newParent, newBase, err := f.lookupParent(newPath)
	if err != nil {
		return err
	}
	if existing, ok := newParent.children[newBase]; ok && existing.dir {
		return &Error{Op: "rename", Path: Clean(newPath), Err: ErrIsDir}
	}
	delete(oldParent.children, oldBase)
	n.name = newBase
	n.modTime = time.Now()
	newParent.children[newBase] = n
	return nil
}

// WriteSnapshot bulk-loads files, creating parent directories as needed.
// Used by the CLI and by tests to seed a project tree.
func (f *FS) WriteSnapshot(files map[string][]byte) error {
	for p, data := range files {
		dir := path.Dir(Clean(p))
		if err := f.MkdirAll(dir); err != nil {
			return err
		}
		if err := f.WriteFile(p, data); err != nil {
			return err
		}
	}
	return nil
}
