package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".", Base(""))
	assert.Equal(t, "c", Base("a/b/c"))
	assert.Equal(t, "b", Base("a/b/"))
	assert.Equal(t, "a", Base("a"))
}

func TestJoin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a", Join("", "a"))
	assert.Equal(t, "a/b", Join("a", "b"))
}

func TestValidName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a", "a.txt", ".hidden", "..."} {
		assert.True(t, ValidName(name), name)
	}
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		assert.False(t, ValidName(name), name)
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b", want: "a/b"},
		{in: "a//b/./c", want: "a/b/c"},
		{in: "a/../b", want: "b"},
		{in: "", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "..", wantErr: true},
		{in: "a/../../b", wantErr: true},
		{in: ".", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Clean(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
