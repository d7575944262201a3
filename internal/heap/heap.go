// Package heap stores entry content as checksum-tagged, optionally
// compressed blocks and reads them back with bounded, verified reads.
package heap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/sarchive/internal/checksum"
	"github.com/meigma/sarchive/internal/encoding"
	"github.com/meigma/sarchive/internal/sizing"
)

// DefaultBufferSize is the copy buffer size used when none is configured.
const DefaultBufferSize = 4096

// Sentinel errors.
var (
	// ErrChecksumMismatch is returned when stored or decoded bytes do not
	// match their recorded digest.
	ErrChecksumMismatch = errors.New("sarchive: checksum mismatch")

	// ErrDecompression is returned when a block cannot be decoded or decodes
	// to an unexpected size.
	ErrDecompression = errors.New("sarchive: decompression failed")
)

// Block locates one stored content block inside the heap.
type Block struct {
	// Offset is the block start relative to the beginning of the heap.
	Offset uint64

	// Length is the stored (possibly compressed) length.
	Length uint64

	// Size is the decoded length.
	Size uint64

	Encoding encoding.Kind
	Checksum checksum.Kind

	// Archived is the digest of the stored bytes.
	Archived []byte

	// Extracted is the digest of the decoded bytes.
	Extracted []byte
}

// Store is the backing file of a heap being written. afero.File satisfies it.
type Store interface {
	io.Writer
	io.ReaderAt
	io.Seeker
	Truncate(size int64) error
}

// Writer appends blocks to a Store.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	store    Store
	offset   uint64
	coalesce bool
	seen     map[digest.Digest]Block
	blocks   int
	comp     *encoding.Compressor
	buf      []byte
	logger   *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithCoalesce makes the writer store bitwise identical content once.
func WithCoalesce(enabled bool) Option {
	return func(w *Writer) {
		w.coalesce = enabled
	}
}

// WithBufferSize sets the copy buffer size. Values < 1 use DefaultBufferSize.
func WithBufferSize(n int) Option {
	return func(w *Writer) {
		if n < 1 {
			n = DefaultBufferSize
		}
		w.buf = make([]byte, n)
	}
}

// WithLogger sets the logger for heap operations.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter returns a Writer appending to store, which must be empty.
func NewWriter(store Store, opts ...Option) *Writer {
	w := &Writer{
		store: store,
		seen:  make(map[digest.Digest]Block),
		comp:  encoding.NewCompressor(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.buf == nil {
		w.buf = make([]byte, DefaultBufferSize)
	}
	return w
}

func (w *Writer) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// SetCoalesce toggles coalescing for subsequent appends.
func (w *Writer) SetCoalesce(enabled bool) {
	w.coalesce = enabled
}

// SetBufferSize changes the copy buffer size for subsequent appends.
func (w *Writer) SetBufferSize(n int) {
	if n < 1 {
		n = DefaultBufferSize
	}
	if n != len(w.buf) {
		w.buf = make([]byte, n)
	}
}

// Size returns the number of heap bytes written so far.
func (w *Writer) Size() uint64 {
	return w.offset
}

// Blocks returns the number of physical blocks stored so far.
func (w *Writer) Blocks() int {
	return w.blocks
}

// Append streams r into the heap: raw bytes are hashed, compressed with enc
// and written; the stored bytes are hashed again. With coalescing enabled, a
// block whose raw content was already stored in this session is rolled back
// and the earlier block is returned instead, with reused set.
func (w *Writer) Append(ctx context.Context, r io.Reader, enc encoding.Kind, sum checksum.Kind) (block Block, reused bool, err error) {
	start := w.offset
	startOff, err := sizing.ToInt64(start)
	if err != nil {
		return Block{}, false, err
	}

	var keyer digest.Digester
	src := io.Reader(r)
	if w.coalesce {
		keyer = digest.Canonical.Digester()
		src = io.TeeReader(src, keyer.Hash())
	}
	extracted := checksum.NewHasher(src, sum)
	cr := &countingReader{r: extracted}

	var dst io.Writer = w.store
	var archived hash.Hash
	if archived = sum.New(); archived != nil {
		dst = io.MultiWriter(w.store, archived)
	}
	cw := &countingWriter{w: dst}

	zw, err := w.comp.Writer(enc, cw)
	if err != nil {
		return Block{}, false, err
	}
	if _, err := copyWithContext(ctx, zw, cr, w.buf); err != nil {
		_ = zw.Close() //nolint:errcheck // stream is being discarded
		return Block{}, false, w.rollback(startOff, err)
	}
	if err := zw.Close(); err != nil {
		return Block{}, false, w.rollback(startOff, fmt.Errorf("close %s encoder: %w", enc, err))
	}

	block = Block{
		Offset:    start,
		Length:    cw.n,
		Size:      cr.n,
		Encoding:  enc,
		Checksum:  sum,
		Extracted: extracted.Sum(),
	}
	if archived != nil {
		block.Archived = archived.Sum(nil)
	}

	if w.coalesce {
		key := keyer.Digest()
		if prev, ok := w.seen[key]; ok && prev.Encoding == enc && prev.Checksum == sum {
			if err := w.rollback(startOff, nil); err != nil {
				return Block{}, false, err
			}
			w.log().Debug("coalesced heap block", "digest", key.String(), "offset", prev.Offset)
			return prev, true, nil
		}
		w.seen[key] = block
	}

	next, ok := sizing.AddUint64(w.offset, cw.n)
	if !ok {
		return Block{}, false, sizing.ErrOverflow
	}
	w.offset = next
	w.blocks++
	return block, false, nil
}

// rollback truncates the store back to off and returns cause (or the
// truncation error when cause is nil).
func (w *Writer) rollback(off int64, cause error) error {
	terr := w.store.Truncate(off)
	if terr == nil {
		_, terr = w.store.Seek(off, io.SeekStart)
	}
	if cause != nil {
		return cause
	}
	return terr
}

// Reader reads blocks from a heap region of a byte source.
type Reader struct {
	src  io.ReaderAt
	base int64
	size int64
	dec  *encoding.Decoder
}

// NewReader returns a Reader over the heap starting at base in src. size
// bounds the heap; a negative size leaves it unbounded (heap still growing).
func NewReader(src io.ReaderAt, base, size int64, dec *encoding.Decoder) *Reader {
	if dec == nil {
		dec = encoding.NewDecoder(0)
	}
	return &Reader{src: src, base: base, size: size, dec: dec}
}

// Raw returns a reader over the stored bytes of b.
func (r *Reader) Raw(b Block) (*io.SectionReader, error) {
	off, n, err := sizing.Range(b.Offset, b.Length, r.size)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(r.src, r.base+off, n), nil
}

// VerifyArchived recomputes the digest of the stored bytes of b.
func (r *Reader) VerifyArchived(b Block) (bool, error) {
	if b.Checksum == checksum.None {
		return true, nil
	}
	if len(b.Archived) == 0 {
		return false, nil
	}
	section, err := r.Raw(b)
	if err != nil {
		return false, err
	}
	hr := checksum.NewHasher(section, b.Checksum)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return false, err
	}
	return bytes.Equal(hr.Sum(), b.Archived), nil
}

// WriteTo decodes b into w, verifying both digests and the decoded size.
// Bytes may already have been written to w when an error is returned; callers
// stage output and discard it on error.
func (r *Reader) WriteTo(ctx context.Context, b Block, w io.Writer, buf []byte) (uint64, error) {
	section, err := r.Raw(b)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		buf = make([]byte, DefaultBufferSize)
	}

	archived := checksum.NewHasher(section, b.Checksum)
	decoded, release, err := r.dec.Reader(b.Encoding, archived)
	defer release()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	extracted := checksum.NewHasher(io.LimitReader(decoded, int64(b.Size)+1), b.Checksum) //nolint:gosec // Size bounded by Range above for stored blocks

	n, err := copyWithContext(ctx, w, extracted, buf)
	if err != nil {
		if ctx.Err() != nil {
			return n, err
		}
		if b.Encoding != encoding.None {
			return n, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		return n, err
	}
	if n != b.Size {
		return n, fmt.Errorf("%w: decoded %d bytes, expected %d", ErrDecompression, n, b.Size)
	}
	// Drain any trailing stored bytes so the archived digest covers the block.
	if _, err := io.Copy(io.Discard, archived); err != nil {
		return n, err
	}
	if b.Checksum != checksum.None {
		if !bytes.Equal(archived.Sum(), b.Archived) || !bytes.Equal(extracted.Sum(), b.Extracted) {
			return n, ErrChecksumMismatch
		}
	}
	return n, nil
}

// ReadAll decodes b into memory.
func (r *Reader) ReadAll(ctx context.Context, b Block, buf []byte) ([]byte, error) {
	size, err := sizing.ToInt(b.Size)
	if err != nil {
		return nil, err
	}
	out := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := r.WriteTo(ctx, b, out, buf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
