// Package encoding implements the content compression schemes recognized by
// the archive format.
package encoding

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// ErrUnknown is returned for an unrecognized compression kind.
var ErrUnknown = errors.New("sarchive: unknown compression")

// Kind identifies the compression applied to a heap block.
//
// Values are stored in the table of contents; changing them breaks format
// compatibility.
type Kind uint8

const (
	None Kind = iota
	Gzip
	Bzip2
	LZMA
	XZ
	Zstd
	LZ4
)

// String returns the canonical option token for the scheme.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case XZ:
		return "xz"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Parse parses an option token. It also accepts the MIME style names used by
// other archivers ("application/x-gzip").
func Parse(name string) (Kind, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "application/x-")
	switch s {
	case "none", "", "octet-stream", "application/octet-stream":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "bzip2", "bzip", "bz2":
		return Bzip2, nil
	case "lzma":
		return LZMA, nil
	case "xz":
		return XZ, nil
	case "zstd", "zst":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
}

// Valid reports whether k is a known scheme.
func (k Kind) Valid() bool {
	return k <= LZ4
}

// Compressor produces compressing writers. It keeps one zstd encoder that is
// reset for every block; a Compressor must not be shared across goroutines.
type Compressor struct {
	zenc *zstd.Encoder
}

// NewCompressor returns a Compressor.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// Writer returns a writer that compresses into w. Close flushes the
// compressed stream but never closes w.
func (c *Compressor) Writer(k Kind, w io.Writer) (io.WriteCloser, error) {
	switch k {
	case None:
		return nopCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Bzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	case LZMA:
		return lzma.NewWriter(w)
	case XZ:
		return xz.NewWriter(w)
	case Zstd:
		if c.zenc == nil {
			enc, err := zstd.NewWriter(io.Discard, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
			if err != nil {
				return nil, fmt.Errorf("create zstd encoder: %w", err)
			}
			c.zenc = enc
		}
		c.zenc.Reset(w)
		return c.zenc, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknown, k)
	}
}

// Decoder produces decompressing readers. zstd decoders are pooled.
type Decoder struct {
	pool *zstdPool
}

// NewDecoder returns a Decoder whose zstd decoders are limited to maxMemory
// bytes (0 disables the limit).
func NewDecoder(maxMemory uint64) *Decoder {
	return &Decoder{pool: newZstdPool(maxMemory)}
}

// Reader returns a reader that decompresses r. The release function must be
// called when the caller is done reading; it is non-nil even on error.
func (d *Decoder) Reader(k Kind, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch k {
	case None:
		return r, noop, nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return zr, func() { _ = zr.Close() }, nil //nolint:errcheck // reader close only releases state
	case Bzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, noop, err
		}
		return br, func() { _ = br.Close() }, nil //nolint:errcheck // reader close only releases state
	case LZMA:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return lr, noop, nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return xr, noop, nil
	case Zstd:
		dec, release, err := d.pool.Get(r)
		if err != nil {
			return nil, noop, err
		}
		return dec, release, nil
	case LZ4:
		return lz4.NewReader(r), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: %d", ErrUnknown, k)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
