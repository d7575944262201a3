package heap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sarchive/internal/checksum"
	"github.com/meigma/sarchive/internal/encoding"
)

func newStore(t *testing.T) afero.File {
	t.Helper()
	f, err := afero.NewMemMapFs().Create("/heap")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestAppendAndRead(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("heap block content "), 64)
	kinds := []encoding.Kind{encoding.None, encoding.Gzip, encoding.Bzip2, encoding.LZMA, encoding.Zstd, encoding.LZ4}

	for _, enc := range kinds {
		t.Run(enc.String(), func(t *testing.T) {
			t.Parallel()

			store := newStore(t)
			w := NewWriter(store)

			// Leading block so the tested block sits at a non-zero offset.
			_, _, err := w.Append(context.Background(), bytes.NewReader([]byte("pad")), encoding.None, checksum.SHA1)
			require.NoError(t, err)

			b, reused, err := w.Append(context.Background(), bytes.NewReader(content), enc, checksum.SHA256)
			require.NoError(t, err)
			assert.False(t, reused)
			assert.Equal(t, uint64(3), b.Offset)
			assert.Equal(t, uint64(len(content)), b.Size)
			assert.Equal(t, checksum.SHA256.Sum(content), b.Extracted)
			assert.Equal(t, 2, w.Blocks())

			r := NewReader(store, 0, int64(w.Size()), nil)
			ok, err := r.VerifyArchived(b)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := r.ReadAll(context.Background(), b, nil)
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestAppendCoalesce(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	w := NewWriter(store, WithCoalesce(true))
	ctx := context.Background()

	a, _, err := w.Append(ctx, bytes.NewReader([]byte("same bytes")), encoding.Gzip, checksum.SHA1)
	require.NoError(t, err)
	size := w.Size()

	b, reused, err := w.Append(ctx, bytes.NewReader([]byte("same bytes")), encoding.Gzip, checksum.SHA1)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, a, b)
	assert.Equal(t, size, w.Size())
	assert.Equal(t, 1, w.Blocks())

	info, err := store.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(size), info.Size())

	// Different encoding is a distinct block.
	_, reused, err = w.Append(ctx, bytes.NewReader([]byte("same bytes")), encoding.None, checksum.SHA1)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 2, w.Blocks())
}

func TestAppendWithoutCoalesce(t *testing.T) {
	t.Parallel()

	w := NewWriter(newStore(t))
	for range 3 {
		_, reused, err := w.Append(context.Background(), bytes.NewReader([]byte("dup")), encoding.None, checksum.SHA1)
		require.NoError(t, err)
		assert.False(t, reused)
	}
	assert.Equal(t, 3, w.Blocks())
}

func TestAppendCancelled(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	w := NewWriter(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := w.Append(ctx, bytes.NewReader([]byte("data")), encoding.None, checksum.SHA1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), w.Size())
}

func TestReadCorrupted(t *testing.T) {
	t.Parallel()

	content := []byte("the quick brown fox jumps over the lazy dog")

	t.Run("stored bytes flipped", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		store := newStore(t)
		w := NewWriter(store)
		b, _, err := w.Append(context.Background(), bytes.NewReader(content), encoding.None, checksum.SHA1)
		require.NoError(t, err)

		raw, err := io.ReadAll(mustRaw(t, NewReader(store, 0, -1, nil), b))
		require.NoError(t, err)
		raw[5] ^= 0xff
		buf.Write(raw)

		r := NewReader(bytes.NewReader(buf.Bytes()), 0, int64(buf.Len()), nil)
		ok, err := r.VerifyArchived(b)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = r.ReadAll(context.Background(), b, nil)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("compressed stream damaged", func(t *testing.T) {
		t.Parallel()

		store := newStore(t)
		w := NewWriter(store)
		b, _, err := w.Append(context.Background(), bytes.NewReader(content), encoding.Gzip, checksum.None)
		require.NoError(t, err)

		raw, err := io.ReadAll(mustRaw(t, NewReader(store, 0, -1, nil), b))
		require.NoError(t, err)
		for i := range raw {
			raw[i] = 0
		}

		r := NewReader(bytes.NewReader(raw), 0, int64(len(raw)), nil)
		_, err = r.ReadAll(context.Background(), b, nil)
		assert.True(t, errors.Is(err, ErrDecompression), "got %v", err)
	})
}

func TestRawOutOfBounds(t *testing.T) {
	t.Parallel()

	r := NewReader(bytes.NewReader(make([]byte, 8)), 0, 8, nil)
	_, err := r.Raw(Block{Offset: 4, Length: 16})
	require.Error(t, err)
}

func mustRaw(t *testing.T, r *Reader, b Block) *io.SectionReader {
	t.Helper()
	s, err := r.Raw(b)
	require.NoError(t, err)
	return s
}
