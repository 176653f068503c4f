package vfs

import (
	"errors"
	"io/fs"
)

// Sentinel conditions, aliased to io/fs where one exists so errors.Is
// works with the standard sentinels too.
var (
	ErrNotExist = fs.ErrNotExist
	ErrExist    = fs.ErrExist
	ErrIsDir    = errors.New("is a directory")
	ErrNotDir   = errors.New("not a directory")
	ErrNotEmpty = errors.New("directory not empty")
)

// Error records an operation, the path it was applied to, and the
// underlying condition.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the Node-style errno name for the condition, used by the
// fs builtin when surfacing failures to guest code.
func (e *Error) Code() string {
	switch {
	case errors.Is(e.Err, ErrNotExist):
		return "ENOENT"
	case errors.Is(e.Err, ErrExist):
		return "EEXIST"
	case errors.Is(e.Err, ErrIsDir):
		return "EISDIR"
	case errors.Is(e.Err, ErrNotDir):
		return "ENOTDIR"
	case errors.Is(e.Err, ErrNotEmpty):
		return "ENOTEMPTY"
	}
	return "EIO"
}
