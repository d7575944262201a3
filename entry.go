package sarchive

import (
	"fmt"
	"io/fs"
	"strconv"

	"github.com/meigma/sarchive/internal/heap"
	"github.com/meigma/sarchive/internal/pathutil"
	"github.com/meigma/sarchive/internal/toc"
)

// EntryType is the kind of node an Entry represents.
type EntryType uint8

// Entry types.
const (
	TypeUndefined EntryType = iota
	TypeFile
	TypeDirectory
	TypeSymlink
	TypeFIFO
	TypeSocket
	TypeBlockSpecial
	TypeCharSpecial
)

var entryTypeNames = [...]string{
	TypeUndefined:    toc.TypeWithout,
	TypeFile:         toc.TypeFile,
	TypeDirectory:    toc.TypeDirectory,
	TypeSymlink:      toc.TypeSymlink,
	TypeFIFO:         toc.TypeFIFO,
	TypeSocket:       toc.TypeSocket,
	TypeBlockSpecial: toc.TypeBlockSpecial,
	TypeCharSpecial:  toc.TypeCharSpecial,
}

// String returns the name recorded in the table of contents.
func (t EntryType) String() string {
	if int(t) >= len(entryTypeNames) {
		return toc.TypeWithout
	}
	return entryTypeNames[t]
}

func parseEntryType(s string) EntryType {
	for i, name := range entryTypeNames {
		if name == s {
			return EntryType(i) //nolint:gosec // bounded by table size
		}
	}
	return TypeUndefined
}

// modeBits are the FileMode bits an entry records.
const modeBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// Entry is one node of an archive's entry tree.
//
// A directory owns its children; Container is a lookup-only back-reference.
// Entries are not safe for concurrent mutation.
type Entry struct {
	archive  *Archive
	id       uint64
	name     string
	alias    string
	typ      EntryType
	mode     fs.FileMode
	size     uint64
	parent   *Entry
	root     bool
	children []*Entry
	props    Properties

	// block locates the entry's content in the heap; nil when it has none.
	block *heap.Block
}

// ID returns the identifier of the entry, unique within its archive.
func (e *Entry) ID() uint64 {
	return e.id
}

// Name returns the entry name.
func (e *Entry) Name() string {
	return e.name
}

// SetName renames the entry.
func (e *Entry) SetName(name string) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if !pathutil.ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	e.name = name
	return nil
}

// Path returns the slash-separated position of the entry, derived from the
// names of its ancestors.
func (e *Entry) Path() string {
	if e.parent == nil {
		if e.alias != "" {
			return e.alias
		}
		return e.name
	}
	return pathutil.Join(e.parent.Path(), e.name)
}

// SetPath sets the path of a root entry, placing it (and its subtree) at p
// on extraction. The path of any other entry is derived and cannot be set.
func (e *Entry) SetPath(p string) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	if !e.root {
		return ErrNotRoot
	}
	clean, err := pathutil.Clean(p)
	if err != nil {
		return err
	}
	if clean == e.name {
		clean = ""
	}
	e.alias = clean
	return nil
}

// Type returns the kind of node.
func (e *Entry) Type() EntryType {
	return e.typ
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.typ == TypeDirectory
}

// Mode returns the permission bits, including setuid, setgid and sticky.
func (e *Entry) Mode() fs.FileMode {
	return e.mode
}

// SetMode sets the permission bits. Other bits of mode are ignored.
func (e *Entry) SetMode(mode fs.FileMode) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	e.mode = mode & modeBits
	return nil
}

// Size returns the declared content length. For directories it is the sum
// of the sizes of all descendant files, computed on each call.
func (e *Entry) Size() uint64 {
	if e.typ != TypeDirectory {
		return e.size
	}
	var total uint64
	for _, c := range e.children {
		total += c.Size()
	}
	return total
}

// Container returns the parent directory, or nil for roots and detached entries.
func (e *Entry) Container() *Entry {
	return e.parent
}

// Count returns the number of immediate children.
func (e *Entry) Count() int {
	return len(e.children)
}

// Files returns the immediate children in archive order.
func (e *Entry) Files() []*Entry {
	out := make([]*Entry, len(e.children))
	copy(out, e.children)
	return out
}

// Properties returns the entry's metadata store.
func (e *Entry) Properties() *Properties {
	return &e.props
}

// LinkTarget returns the target of a symbolic link.
func (e *Entry) LinkTarget() string {
	v, _ := e.props.Value(PropertyLink)
	return v
}

// Device returns the major and minor numbers of a device node.
func (e *Entry) Device() (major, minor uint32, ok bool) {
	maj, ok1 := e.props.Attribute(PropertyDevice, AttributeMajor)
	mnr, ok2 := e.props.Attribute(PropertyDevice, AttributeMinor)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	ma, err1 := strconv.ParseUint(maj, 10, 32)
	mi, err2 := strconv.ParseUint(mnr, 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(ma), uint32(mi), true
}

// Owner describes the recorded ownership of an entry.
type Owner struct {
	UID   uint32
	GID   uint32
	User  string
	Group string

	// HasIDs reports whether numeric ids were recorded.
	HasIDs bool
}

// Owner returns the recorded ownership.
func (e *Entry) Owner() Owner {
	var o Owner
	uid, okU := e.props.Value(PropertyUID)
	gid, okG := e.props.Value(PropertyGID)
	if okU && okG {
		u, err1 := strconv.ParseUint(uid, 10, 32)
		g, err2 := strconv.ParseUint(gid, 10, 32)
		if err1 == nil && err2 == nil {
			o.UID, o.GID, o.HasIDs = uint32(u), uint32(g), true
		}
	}
	o.User, _ = e.props.Value(PropertyUser)
	o.Group, _ = e.props.Value(PropertyGroup)
	return o
}

// Checksum returns the checksum algorithm and digest of the entry's decoded
// content. ok is false when the entry has no content.
func (e *Entry) Checksum() (kind Checksum, digest []byte, ok bool) {
	if e.block == nil {
		return ChecksumNone, nil, false
	}
	return e.block.Checksum, append([]byte(nil), e.block.Extracted...), true
}

// Compression returns the encoding of the stored content.
func (e *Entry) Compression() Compression {
	if e.block == nil {
		return CompressionNone
	}
	return e.block.Encoding
}

// StoredSize returns the number of heap bytes holding the content.
func (e *Entry) StoredSize() uint64 {
	if e.block == nil {
		return 0
	}
	return e.block.Length
}

// FileWithName searches the descendants of e depth-first, in pre-order, and
// returns the first entry named name. Duplicate names resolve to the first
// match in traversal order.
func (e *Entry) FileWithName(name string) *Entry {
	en := e.Enumerator()
	for {
		c, ok := en.Next()
		if !ok {
			return nil
		}
		if c.name == name {
			return c
		}
	}
}

// Enumerator returns a pre-order enumerator over the descendants of e.
func (e *Entry) Enumerator() *Enumerator {
	return newEnumerator(e.children)
}

// AddFile appends child to the children of e. child must belong to the same
// archive and must not have a parent; adding an entry that is already a
// child of e does nothing.
func (e *Entry) AddFile(child *Entry) error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	switch {
	case child == nil:
		return fmt.Errorf("%w: nil entry", ErrInvalidState)
	case child.archive != e.archive:
		return ErrForeignEntry
	case child.parent == e:
		return nil
	case child.parent != nil || child.root:
		return ErrAlreadyParented
	case e.typ != TypeDirectory:
		return fmt.Errorf("%s: %w", e.Path(), ErrNotDirectory)
	}
	for p := e; p != nil; p = p.parent {
		if p == child {
			return ErrCycle
		}
	}
	child.parent = e
	e.children = append(e.children, child)
	return nil
}

// RemoveAllFiles detaches every child of e. Detached entries keep their
// subtrees and may be added to a directory again with AddFile.
func (e *Entry) RemoveAllFiles() error {
	if err := e.checkWritable(); err != nil {
		return err
	}
	for _, c := range e.children {
		c.parent = nil
	}
	e.children = nil
	return nil
}

func (e *Entry) checkWritable() error {
	if e.archive == nil {
		return ErrClosed
	}
	return e.archive.checkWritable()
}

func (e *Entry) encode(keep func(string) bool) toc.File {
	f := toc.File{
		ID:         e.id,
		Name:       e.name,
		Path:       e.alias,
		Type:       e.typ.String(),
		Mode:       uint32(e.mode),
		Size:       e.size,
		Properties: e.props.encode(keep),
	}
	if e.block != nil {
		f.Data = &toc.Data{
			Offset:            e.block.Offset,
			Length:            e.block.Length,
			Size:              e.block.Size,
			Encoding:          e.block.Encoding.String(),
			Checksum:          e.block.Checksum.String(),
			ArchivedChecksum:  e.block.Archived,
			ExtractedChecksum: e.block.Extracted,
		}
	}
	if len(e.children) > 0 {
		f.Files = make([]toc.File, len(e.children))
		for i, c := range e.children {
			f.Files[i] = c.encode(keep)
		}
	}
	return f
}
