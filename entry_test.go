package sarchive

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree creates:
//
//	top/
//	  a.txt
//	  sub/
//	    a.txt
//	    b.txt
//	other.txt
func buildTree(t *testing.T, a *Archive) (top, sub *Entry) {
	t.Helper()
	top, err := a.AddFolderWithName("top", map[string]string{"color": "blue"}, nil)
	require.NoError(t, err)
	_, err = a.AddFileWithName("a.txt", []byte("top a"), top)
	require.NoError(t, err)
	sub, err = a.AddFolderWithName("sub", nil, top)
	require.NoError(t, err)
	_, err = a.AddFileWithName("a.txt", []byte("sub a"), sub)
	require.NoError(t, err)
	_, err = a.AddFileWithName("b.txt", []byte("sub bb"), sub)
	require.NoError(t, err)
	_, err = a.AddFileWithName("other.txt", []byte("other"), nil)
	require.NoError(t, err)
	return top, sub
}

func paths(en *Enumerator) []string {
	var out []string
	for e := range en.All() {
		out = append(out, e.Path())
	}
	return out
}

func TestEnumeratorPreOrder(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, sub := buildTree(t, a)

	assert.Equal(t, []string{
		"top", "top/a.txt", "top/sub", "top/sub/a.txt", "top/sub/b.txt", "other.txt",
	}, paths(a.FileEnumerator()))
	assert.Equal(t, []string{"top/a.txt", "top/sub", "top/sub/a.txt", "top/sub/b.txt"}, paths(top.Enumerator()))
	assert.Equal(t, []string{"top/sub/a.txt", "top/sub/b.txt"}, paths(sub.Enumerator()))
}

func TestEnumeratorNotRestartable(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	buildTree(t, a)

	en := a.FileEnumerator()
	first, ok := en.Next()
	require.True(t, ok)
	assert.Equal(t, "top", first.Path())
	en.SkipChildren()

	next, ok := en.Next()
	require.True(t, ok)
	assert.Equal(t, "other.txt", next.Path())

	_, ok = en.Next()
	assert.False(t, ok)
	_, ok = en.Next()
	assert.False(t, ok)
}

func TestFileWithName(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, sub := buildTree(t, a)

	// Archive lookup covers roots only.
	assert.Equal(t, top, a.FileWithName("top"))
	assert.Nil(t, a.FileWithName("a.txt"))

	// Entry lookup is recursive and the first pre-order match wins.
	got := top.FileWithName("a.txt")
	require.NotNil(t, got)
	assert.Equal(t, "top/a.txt", got.Path())
	assert.Equal(t, top, got.Container())

	got = top.FileWithName("b.txt")
	require.NotNil(t, got)
	assert.Equal(t, sub, got.Container())

	assert.Nil(t, top.FileWithName("missing"))
	assert.Equal(t, "top/sub/b.txt", a.FileAtPath("top/sub/b.txt").Path())
}

func TestEntryCountsAndSizes(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, sub := buildTree(t, a)

	assert.Equal(t, 2, top.Count())
	assert.Len(t, top.Files(), 2)
	assert.Equal(t, uint64(len("sub a")+len("sub bb")), sub.Size())
	assert.Equal(t, uint64(len("top a")+len("sub a")+len("sub bb")), top.Size())
	assert.Equal(t, top.Size()+uint64(len("other")), a.Size())
	assert.Equal(t, 6, a.FileCount())
	assert.Len(t, a.Files(), 2)

	v, ok := top.Properties().Value("color")
	require.True(t, ok)
	assert.Equal(t, "blue", v)
	_, ok = sub.Properties().Value("color")
	assert.False(t, ok, "properties are not inherited")
}

func TestRemoveAllFiles(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, _ := buildTree(t, a)
	children := top.Files()
	require.NotEmpty(t, children)

	require.NoError(t, top.RemoveAllFiles())
	assert.Equal(t, 0, top.Count())
	for _, c := range children {
		assert.Nil(t, c.Container())
	}
	assert.Equal(t, 2, a.FileCount())
}

func TestEntryAddFile(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, sub := buildTree(t, a)
	other := a.FileWithName("other.txt")

	t.Run("already parented", func(t *testing.T) {
		assert.ErrorIs(t, top.AddFile(sub.Files()[0]), ErrAlreadyParented)
		assert.ErrorIs(t, top.AddFile(other), ErrAlreadyParented, "roots are owned by the archive")
		assert.ErrorIs(t, top.AddFile(sub.Files()[0]), ErrInvalidState)
	})

	t.Run("same parent is a no-op", func(t *testing.T) {
		require.NoError(t, top.AddFile(sub))
		assert.Equal(t, 2, top.Count())
	})

	t.Run("reattach detached", func(t *testing.T) {
		detached := sub.Files()
		require.NoError(t, sub.RemoveAllFiles())
		require.NoError(t, top.AddFile(detached[1]))
		assert.Equal(t, top, detached[1].Container())
		assert.Equal(t, "top/b.txt", detached[1].Path())
	})

	t.Run("not a directory", func(t *testing.T) {
		file := top.Files()[0]
		loose, err := a.AddFolderWithName("loose", nil, top)
		require.NoError(t, err)
		leaf, err := a.AddFileWithName("leaf", nil, loose)
		require.NoError(t, err)
		require.NoError(t, loose.RemoveAllFiles())
		assert.ErrorIs(t, file.AddFile(leaf), ErrNotDirectory)
	})

	t.Run("foreign entry", func(t *testing.T) {
		b, _ := newTestArchive(t)
		f, err := b.AddFileWithName("x", []byte("x"), nil)
		require.NoError(t, err)
		assert.ErrorIs(t, top.AddFile(f), ErrForeignEntry)
	})
}

func TestEntryAddFileCycle(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, sub := buildTree(t, a)
	require.NoError(t, top.RemoveAllFiles())

	// sub is now detached; a directory created below it cannot adopt it.
	child, err := a.AddFolderWithName("child", nil, sub)
	require.NoError(t, err)
	assert.ErrorIs(t, child.AddFile(sub), ErrCycle)
}

func TestEntryRenameAndPath(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	top, sub := buildTree(t, a)

	require.NoError(t, sub.SetName("renamed"))
	assert.Equal(t, "top/renamed/b.txt", sub.Files()[1].Path())
	assert.ErrorIs(t, sub.SetName("a/b"), ErrInvalidName)

	assert.ErrorIs(t, sub.SetPath("x/y"), ErrNotRoot)
	require.NoError(t, top.SetPath("opt/pkg"))
	assert.Equal(t, "opt/pkg/renamed", sub.Path())
	assert.Equal(t, "top", top.Name())
	assert.ErrorIs(t, top.SetPath("../escape"), ErrUnsafePath)
}

func TestEntryMode(t *testing.T) {
	t.Parallel()

	a, _ := newTestArchive(t)
	e, err := a.AddFileWithName("f", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o644), e.Mode())

	require.NoError(t, e.SetMode(fs.ModeDir|fs.ModeSetuid|0o750))
	assert.Equal(t, fs.ModeSetuid|0o750, e.Mode())
	assert.Equal(t, TypeFile, e.Type())
	assert.Equal(t, "file", e.Type().String())
}
