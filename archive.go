package sarchive

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/meigma/sarchive/internal/encoding"
	"github.com/meigma/sarchive/internal/heap"
	"github.com/meigma/sarchive/internal/toc"
)

// Archive is a container holding an entry tree, documents and signatures.
//
// An Archive created with Create is written to its path by Close; one
// obtained from Open is read-only. Tree, document and signature mutation is
// not synchronized and must finish before extraction starts. Extract and
// Cancel may be called from any goroutine.
//
// After Close, operations that can fail return ErrClosed. Lookups that
// report absence instead (Files, FileWithName, DocumentWithName,
// SignatureForCertificate and the like) find nothing; Err tells a closed
// archive apart from an empty one.
type Archive struct {
	path             string
	fs               afero.Fs
	srcFs            afero.Fs
	logger           *slog.Logger
	provider         Provider
	seed             map[string]string
	maxDecoderMemory uint64
	readOnly         bool

	options    map[string]string
	roots      []*Entry
	documents  map[string]*Document
	signatures []*Signature
	nextID     uint64

	// Write mode: content goes to a temporary heap file next to path.
	heapFile   afero.File
	heapWriter *heap.Writer

	// Read mode: the opened container.
	container afero.File
	tocRaw    []byte

	heapReader *heap.Reader

	closed          atomic.Bool
	extracting      atomic.Bool
	cancelRequested atomic.Bool
	state           atomic.Int32
}

func newArchive(path string, opts []Option) *Archive {
	a := &Archive{
		path:      path,
		documents: make(map[string]*Document),
		options:   make(map[string]string),
		provider:  X509Provider{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.srcFs == nil {
		a.srcFs = a.fs
	}
	return a
}

func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Create starts a new archive that Close writes to path.
func Create(path string, opts ...Option) (*Archive, error) {
	a := newArchive(path, opts)
	for k, v := range a.seed {
		a.options[k] = v
	}

	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError(fmt.Errorf("create directory %s: %w", dir, err))
	}
	f, err := afero.TempFile(a.fs, dir, ".sarchive-heap-*")
	if err != nil {
		return nil, ioError(fmt.Errorf("create heap file: %w", err))
	}
	a.heapFile = f
	a.heapWriter = heap.NewWriter(f, heap.WithLogger(a.logger))
	a.heapReader = heap.NewReader(f, 0, -1, encoding.NewDecoder(a.maxDecoderMemory))

	a.log().Info("archive created", "path", path)
	return a, nil
}

// Open opens an existing container for reading.
func Open(path string, opts ...Option) (*Archive, error) {
	a := newArchive(path, opts)
	a.readOnly = true

	f, err := a.fs.Open(path)
	if err != nil {
		return nil, ioError(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, ioError(err)
	}
	c, err := toc.Read(f, info.Size())
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	a.container = f
	a.tocRaw = c.Raw
	a.heapReader = heap.NewReader(f, c.HeapOffset, c.HeapSize, encoding.NewDecoder(a.maxDecoderMemory))
	if err := a.load(c); err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for k, v := range a.seed {
		a.options[k] = v
	}

	a.log().Info("archive opened", "path", path, "entries", a.FileCount(), "signatures", len(a.signatures))
	return a, nil
}

// Path returns the location of the container.
func (a *Archive) Path() string {
	return a.path
}

// ReadOnly reports whether the archive was obtained from Open.
func (a *Archive) ReadOnly() bool {
	return a.readOnly
}

// Close writes a created archive to its path and releases all entries,
// documents and signatures. Every later operation fails with ErrClosed.
func (a *Archive) Close() error {
	// Close holds the extraction lock so it cannot release the heap under
	// a running extraction.
	if !a.extracting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer a.extracting.Store(false)
	if a.closed.Swap(true) {
		return ErrClosed
	}

	var err error
	if a.readOnly {
		err = a.container.Close()
	} else {
		err = errors.Join(a.finalize(), a.discardHeap())
	}

	a.release()
	a.log().Info("archive closed", "path", a.path)
	return ioError(err)
}

func (a *Archive) discardHeap() error {
	name := a.heapFile.Name()
	return errors.Join(a.heapFile.Close(), a.fs.Remove(name))
}

// release drops ownership of every node so that entries, documents and
// signatures held by callers no longer reach the archive.
func (a *Archive) release() {
	en := newEnumerator(a.roots)
	for e, ok := en.Next(); ok; e, ok = en.Next() {
		e.archive = nil
	}
	for _, d := range a.documents {
		d.archive = nil
	}
	for _, s := range a.signatures {
		s.archive = nil
	}
	a.roots = nil
	a.documents = map[string]*Document{}
	a.signatures = nil
	a.heapWriter = nil
	a.heapReader = nil
}

// Err returns ErrClosed once the archive is closed, and nil before.
func (a *Archive) Err() error {
	return a.checkOpen()
}

func (a *Archive) checkOpen() error {
	if a.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (a *Archive) checkWritable() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if a.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Files returns the root entries in archive order.
func (a *Archive) Files() []*Entry {
	if a.checkOpen() != nil {
		return nil
	}
	return append([]*Entry(nil), a.roots...)
}

// FileWithName returns the first root entry named name. It does not search
// below the roots; use Entry.FileWithName for that.
func (a *Archive) FileWithName(name string) *Entry {
	if a.checkOpen() != nil {
		return nil
	}
	e, _ := lo.Find(a.roots, func(e *Entry) bool {
		return e.name == name
	})
	return e
}

// FileAtPath returns the first entry, in pre-order, whose path is p.
func (a *Archive) FileAtPath(p string) *Entry {
	en := a.FileEnumerator()
	for e, ok := en.Next(); ok; e, ok = en.Next() {
		if e.Path() == p {
			return e
		}
	}
	return nil
}

// FileEnumerator returns a pre-order enumerator over every entry. The
// enumerator of a closed archive is empty.
func (a *Archive) FileEnumerator() *Enumerator {
	if a.checkOpen() != nil {
		return newEnumerator(nil)
	}
	return newEnumerator(a.roots)
}

// FileCount returns the number of entries in the tree.
func (a *Archive) FileCount() int {
	n := 0
	en := a.FileEnumerator()
	for _, ok := en.Next(); ok; _, ok = en.Next() {
		n++
	}
	return n
}

// Size returns the total declared content size of all entries.
func (a *Archive) Size() uint64 {
	var total uint64
	for _, r := range a.roots {
		total += r.Size()
	}
	return total
}

// HeapBlocks returns the number of distinct heap blocks referenced by the tree.
func (a *Archive) HeapBlocks() int {
	offsets := make(map[uint64]struct{})
	en := a.FileEnumerator()
	for e, ok := en.Next(); ok; e, ok = en.Next() {
		if e.block != nil {
			offsets[e.block.Offset] = struct{}{}
		}
	}
	return len(offsets)
}
