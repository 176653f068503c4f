package vfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	fs := New()

	require.NoError(t, fs.WriteFile("/hello.txt", []byte("hi")))

	data, err := fs.ReadFile("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	// Relative paths resolve against the root.
	data, err = fs.ReadFile("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestWriteRequiresParent(t *testing.T) {
	fs := New()

	err := fs.WriteFile("/missing/file.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotExist))

	require.NoError(t, fs.MkdirAll("/missing"))
	require.NoError(t, fs.WriteFile("/missing/file.txt", []byte("x")))
}

func TestMkdirAll(t *testing.T) {
	fs := New()

	require.NoError(t, fs.MkdirAll("/a/b/c"))
	assert.True(t, fs.IsDir("/a"))
	assert.True(t, fs.IsDir("/a/b/c"))

	// Idempotent.
	require.NoError(t, fs.MkdirAll("/a/b/c"))

	// A file in the way is rejected.
	require.NoError(t, fs.WriteFile("/a/b/c/f", nil))
	err := fs.MkdirAll("/a/b/c/f/g")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDir))
}

func TestReadDirSorted(t *testing.T) {
	fs := New()
	require.NoError(t, fs.MkdirAll("/dir"))
	require.NoError(t, fs.WriteFile("/dir/b.js", []byte("b")))
	require.NoError(t, fs.WriteFile("/dir/a.js", []byte("a")))
	require.NoError(t, fs.Mkdir("/dir/sub"))

	entries, err := fs.ReadDir("/dir")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.js", entries[0].Name)
	assert.Equal(t, "b.js", entries[1].Name)
	assert.Equal(t, "sub", entries[2].Name)
	assert.True(t, entries[2].IsDir)
}

func TestUnlinkAndRmdir(t *testing.T) {
	fs := New()
	require.NoError(t, fs.MkdirAll("/d"))
	require.NoError(t, fs.WriteFile("/d/f", []byte("x")))

	// Rmdir refuses non-empty and non-dir targets.
	err := fs.Rmdir("/d")
	assert.True(t, errors.Is(err, ErrNotEmpty))
	err = fs.Rmdir("/d/f")
	assert.True(t, errors.Is(err, ErrNotDir))

	// Unlink refuses directories.
	err = fs.Unlink("/d")
	assert.True(t, errors.Is(err, ErrIsDir))

	require.NoError(t, fs.Unlink("/d/f"))
	require.NoError(t, fs.Rmdir("/d"))
	assert.False(t, fs.Exists("/d"))
}

func TestRename(t *testing.T) {
	fs := New()
	require.NoError(t, fs.MkdirAll("/src"))
	require.NoError(t, fs.MkdirAll("/dst"))
	require.NoError(t, fs.WriteFile("/src/a.txt", []byte("a")))

	require.NoError(t, fs.Rename("/src/a.txt", "/dst/b.txt"))
	assert.False(t, fs.Exists("/src/a.txt"))

	data, err := fs.ReadFile("/dst/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestStat(t *testing.T) {
	fs := New()
	require.NoError(t, fs.WriteFile("/f.txt", []byte("abc")))

	info, err := fs.Stat("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "f.txt", info.Name)
	assert.Equal(t, int64(3), info.Size)
	assert.False(t, info.IsDir)

	_, err = fs.Stat("/nope")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ENOENT", verr.Code())
}

func TestWriteSnapshot(t *testing.T) {
	fs := New()
	err := fs.WriteSnapshot(map[string][]byte{
		"/main.js":                       []byte("module.exports = 1"),
		"/node_modules/dep/index.js":     []byte("module.exports = 2"),
		"/node_modules/dep/package.json": []byte("{}"),
	})
	require.NoError(t, err)
	assert.True(t, fs.IsFile("/node_modules/dep/index.js"))
	assert.True(t, fs.IsDir("/node_modules/dep"))
}

func TestAppendFile(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AppendFile("/log.txt", []byte("a")))
	require.NoError(t, fs.AppendFile("/log.txt", []byte("b")))

	data, err := fs.ReadFile("/log.txt")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}
