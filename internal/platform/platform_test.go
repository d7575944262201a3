package platform

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwner(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	info, err := os.Stat(path)
	require.NoError(t, err)

	uid, _, ok := Owner(info)
	if runtime.GOOS == "windows" {
		assert.False(t, ok)
		return
	}
	require.True(t, ok)
	assert.Equal(t, uint32(os.Geteuid()), uid) //nolint:gosec // uid is non-negative on unix

	mem, err := afero.NewMemMapFs().Create("/f")
	require.NoError(t, err)
	memInfo, err := mem.Stat()
	require.NoError(t, err)
	_, _, ok = Owner(memInfo)
	assert.False(t, ok)
}

func TestNameLookups(t *testing.T) {
	t.Parallel()

	cur, err := user.Current()
	if err != nil {
		t.Skip("current user unavailable")
	}
	uid, ok := parseID(cur.Uid)
	if !ok {
		t.Skip("non-numeric uid")
	}

	name := UserName(uid)
	require.Equal(t, cur.Username, name)
	back, ok := LookupUID(name)
	require.True(t, ok)
	assert.Equal(t, uid, back)

	_, ok = LookupUID("no-such-user-sarchive")
	assert.False(t, ok)
}

func TestMkfifo(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("fifo creation not supported")
	}
	path := filepath.Join(t.TempDir(), "pipe")
	require.NoError(t, Mkfifo(path, 0o600))

	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeNamedPipe)
}
