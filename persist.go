package sarchive

import (
	"fmt"
	"io"
	"io/fs"
	"maps"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/meigma/sarchive/internal/checksum"
	"github.com/meigma/sarchive/internal/encoding"
	"github.com/meigma/sarchive/internal/heap"
	"github.com/meigma/sarchive/internal/toc"
)

// finalize writes the container: header, table of contents, signatures and
// the heap, staged in a temp file and renamed over path.
func (a *Archive) finalize() error {
	t := a.buildTOC()
	raw, size, err := toc.Encode(t)
	if err != nil {
		return err
	}
	sigs, err := a.sign(raw)
	if err != nil {
		return err
	}

	dir := filepath.Dir(a.path)
	out, err := afero.TempFile(a.fs, dir, ".sarchive-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := out.Name()
	fail := func(err error) error {
		_ = out.Close()          //nolint:errcheck // we're cleaning up
		_ = a.fs.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}

	sum := a.checksumOption(OptionTOCChecksum, DefaultTOCChecksum)
	if _, err := toc.WriteEncoded(out, raw, size, sum, sigs); err != nil {
		return fail(fmt.Errorf("write toc: %w", err))
	}
	if _, err := a.heapFile.Seek(0, io.SeekStart); err != nil {
		return fail(err)
	}
	buf := make([]byte, a.readSize())
	if _, err := io.CopyBuffer(out, io.LimitReader(a.heapFile, int64(a.heapWriter.Size())), buf); err != nil { //nolint:gosec // heap size fits the temp file
		return fail(fmt.Errorf("write heap: %w", err))
	}
	if err := out.Close(); err != nil {
		_ = a.fs.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := a.fs.Rename(tmpPath, a.path); err != nil {
		_ = a.fs.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", a.path, err)
	}

	a.log().Debug("container written",
		"path", a.path,
		"toc_size", size,
		"heap_size", a.heapWriter.Size(),
		"heap_blocks", a.heapWriter.Blocks(),
		"signatures", len(sigs))
	return nil
}

func (a *Archive) buildTOC() *toc.TOC {
	keep := a.propertyFilter()
	t := &toc.TOC{
		Created: time.Now().Unix(),
		Options: maps.Clone(a.options),
	}
	for _, r := range a.roots {
		t.Files = append(t.Files, r.encode(keep))
	}
	for _, d := range a.sortedDocuments() {
		t.Documents = append(t.Documents, d.encode(keep))
	}
	for _, s := range a.signatures {
		t.Signatures = append(t.Signatures, s.encode())
	}
	return t
}

// load rebuilds the archive state from a parsed container.
func (a *Archive) load(c *toc.Container) error {
	t := c.TOC
	if t.Options != nil {
		a.options = maps.Clone(t.Options)
	}
	for i := range t.Files {
		e, err := a.loadEntry(&t.Files[i], nil)
		if err != nil {
			return err
		}
		e.root = true
		e.alias = t.Files[i].Path
		a.roots = append(a.roots, e)
	}
	for _, td := range t.Documents {
		if _, ok := a.documents[td.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, td.Name)
		}
		a.documents[td.Name] = &Document{
			archive: a,
			name:    td.Name,
			props:   decodeProperties(td.Properties),
			payload: td.Payload,
		}
	}
	if len(c.Signatures) != len(t.Signatures) {
		return fmt.Errorf("%w: %d signatures, %d signature blocks", ErrInvalidContainer, len(t.Signatures), len(c.Signatures))
	}
	for i, ts := range t.Signatures {
		a.signatures = append(a.signatures, &Signature{
			archive:   a,
			style:     ts.Style,
			certs:     ts.Certificates,
			digest:    c.Signatures[i].Digest,
			signature: c.Signatures[i].Signature,
		})
	}
	return nil
}

func (a *Archive) loadEntry(f *toc.File, parent *Entry) (*Entry, error) {
	e := &Entry{
		archive: a,
		id:      f.ID,
		name:    f.Name,
		typ:     parseEntryType(f.Type),
		mode:    fs.FileMode(f.Mode) & modeBits,
		size:    f.Size,
		parent:  parent,
		props:   decodeProperties(f.Properties),
	}
	if f.ID >= a.nextID {
		a.nextID = f.ID + 1
	}
	if f.Data != nil {
		block, err := decodeBlock(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		e.block = block
	}
	for i := range f.Files {
		c, err := a.loadEntry(&f.Files[i], e)
		if err != nil {
			return nil, err
		}
		e.children = append(e.children, c)
	}
	return e, nil
}

func decodeBlock(d *toc.Data) (*heap.Block, error) {
	enc, err := encoding.Parse(d.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}
	sum, err := checksum.Parse(d.Checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}
	return &heap.Block{
		Offset:    d.Offset,
		Length:    d.Length,
		Size:      d.Size,
		Encoding:  enc,
		Checksum:  sum,
		Archived:  d.ArchivedChecksum,
		Extracted: d.ExtractedChecksum,
	}, nil
}
