package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCommit(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	s := New(fsys, "/out")
	require.NoError(t, s.Prepare())

	w, err := s.Writer("a/b/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a", "b", "file.txt"), w.Path())

	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	// Not visible until commit.
	_, err = fsys.Stat(w.Path())
	require.True(t, os.IsNotExist(err))

	require.NoError(t, w.Commit())
	got, err := afero.ReadFile(fsys, w.Path())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestWriterDiscard(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	s := New(fsys, "/out")

	w, err := s.Writer("file.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Discard())

	entries, err := afero.ReadDir(fsys, "/out")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOverwrite(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/out/file.txt", []byte("old"), 0o644))

	_, err := New(fsys, "/out").Writer("file.txt")
	require.ErrorIs(t, err, ErrExists)

	w, err := New(fsys, "/out", WithOverwrite(true)).Writer("file.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	got, err := afero.ReadFile(fsys, "/out/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestPathRejectsTraversal(t *testing.T) {
	t.Parallel()

	s := New(afero.NewMemMapFs(), "/out")
	for _, rel := range []string{"../escape", "/abs", "a/../../b"} {
		_, err := s.Path(rel)
		assert.Error(t, err, rel)
	}
	got, err := s.Path("a/./b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a", "b"), got)
}

func TestMkdir(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	dest, err := New(fsys, "/out").Mkdir("x/y")
	require.NoError(t, err)

	info, err := fsys.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLinkUnsupportedInMemory(t *testing.T) {
	t.Parallel()

	s := New(afero.NewMemMapFs(), "/out")
	_, err := s.Link("/out/a", "b")
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = s.Special("fifo", 0o600, false, false, 0, 0)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestOsLinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(afero.NewOsFs(), root)

	w, err := s.Writer("first")
	require.NoError(t, err)
	_, err = w.Write([]byte("shared"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	second, err := s.Link(w.Path(), "dir/second")
	require.NoError(t, err)
	got, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(got))

	a, err := os.Stat(w.Path())
	require.NoError(t, err)
	b, err := os.Stat(second)
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b))

	link, err := s.Symlink("sym", "first")
	require.NoError(t, err)
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "first", target)
}

func TestSymlinkedParentsStayInsideRoot(t *testing.T) {
	t.Parallel()

	root, outside := t.TempDir(), t.TempDir()
	s := New(afero.NewOsFs(), root)
	_, err := s.Symlink("abs", outside)
	require.NoError(t, err)
	_, err = s.Symlink("up", "../..")
	require.NoError(t, err)

	for _, rel := range []string{"abs/file", "up/file"} {
		w, err := s.Writer(rel)
		require.NoError(t, err)
		_, err = w.Write([]byte(rel))
		require.NoError(t, err)
		require.NoError(t, w.Commit())

		inside, err := filepath.Rel(root, w.Path())
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(inside, ".."), "%s resolved to %s", rel, w.Path())
	}
	_, err = os.Stat(filepath.Join(outside, "file"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// A directory entry over an existing symlink is resolved too.
	dir, err := s.Mkdir("abs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, outside), dir)
}
