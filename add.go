package sarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/meigma/sarchive/internal/pathutil"
	"github.com/meigma/sarchive/internal/platform"
)

// AddFile adds the file at source, named after its last path element, under
// parent (nil adds a root). Directories are added without their contents;
// use AddTree to add a directory recursively. Symbolic links are stored, not
// followed.
func (a *Archive) AddFile(source string, parent *Entry) (*Entry, error) {
	return a.AddFileAs(source, filepath.Base(source), parent)
}

// AddFileAs is AddFile with an explicit entry name.
func (a *Archive) AddFileAs(source, name string, parent *Entry) (*Entry, error) {
	return a.addSource(context.Background(), source, name, parent)
}

// AddFileWithName adds a regular file with in-memory content under parent.
func (a *Archive) AddFileWithName(name string, content []byte, parent *Entry) (*Entry, error) {
	if err := a.checkAdd(name, parent); err != nil {
		return nil, err
	}
	e := a.newEntry(name, TypeFile, 0o644)
	e.props.Set(PropertyMtime, time.Now().UTC().Format(time.RFC3339))
	if err := a.storeContent(context.Background(), e, bytes.NewReader(content)); err != nil {
		return nil, err
	}
	a.attach(e, parent)
	return e, nil
}

// AddFolderWithName adds a directory whose properties are seeded from
// properties, a map of property name to value.
func (a *Archive) AddFolderWithName(name string, properties map[string]string, parent *Entry) (*Entry, error) {
	if err := a.checkAdd(name, parent); err != nil {
		return nil, err
	}
	e := a.newEntry(name, TypeDirectory, 0o755)
	for k, v := range properties {
		e.props.Set(k, v)
	}
	a.attach(e, parent)
	return e, nil
}

// AddTree adds source and, when it is a directory, everything below it in
// lexical order.
func (a *Archive) AddTree(ctx context.Context, source string, parent *Entry) (*Entry, error) {
	root, err := a.addSource(ctx, source, filepath.Base(source), parent)
	if err != nil {
		return nil, err
	}
	if root.typ != TypeDirectory {
		return root, nil
	}
	if err := a.addChildren(ctx, source, root); err != nil {
		return root, err
	}
	return root, nil
}

func (a *Archive) addChildren(ctx context.Context, dir string, parent *Entry) error {
	infos, err := afero.ReadDir(a.srcFs, dir)
	if err != nil {
		return ioError(fmt.Errorf("read directory %s: %w", dir, err))
	}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(dir, info.Name())
		e, err := a.addSource(ctx, src, info.Name(), parent)
		if err != nil {
			return err
		}
		if e.typ == TypeDirectory {
			if err := a.addChildren(ctx, src, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Archive) addSource(ctx context.Context, source, name string, parent *Entry) (*Entry, error) {
	if err := a.checkAdd(name, parent); err != nil {
		return nil, err
	}
	info, err := a.lstatSource(source)
	if err != nil {
		return nil, ioError(err)
	}

	e := a.newEntry(name, typeOf(info.Mode()), info.Mode()&modeBits)
	a.recordStat(e, info)

	switch e.typ {
	case TypeFile:
		f, err := a.srcFs.Open(source)
		if err != nil {
			return nil, ioError(err)
		}
		err = a.storeContent(ctx, e, f)
		_ = f.Close() //nolint:errcheck // read-only source
		if err != nil {
			return nil, err
		}
	case TypeSymlink:
		target, err := a.readlinkSource(source)
		if err != nil {
			return nil, ioError(err)
		}
		e.props.Set(PropertyLink, target)
	case TypeBlockSpecial, TypeCharSpecial:
		if major, minor, ok := platform.Device(info); ok {
			e.props.SetAttribute(PropertyDevice, AttributeMajor, strconv.FormatUint(uint64(major), 10))
			e.props.SetAttribute(PropertyDevice, AttributeMinor, strconv.FormatUint(uint64(minor), 10))
		}
	}

	a.attach(e, parent)
	a.log().Debug("added entry", "path", e.Path(), "type", e.typ.String(), "size", e.size)
	return e, nil
}

func (a *Archive) lstatSource(name string) (fs.FileInfo, error) {
	if l, ok := a.srcFs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return a.srcFs.Stat(name)
}

func (a *Archive) readlinkSource(name string) (string, error) {
	r, ok := a.srcFs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("readlink %s: %w", name, afero.ErrNoReadlink)
	}
	return r.ReadlinkIfPossible(name)
}

func (a *Archive) recordStat(e *Entry, info fs.FileInfo) {
	if uid, gid, ok := platform.Owner(info); ok {
		e.props.Set(PropertyUID, strconv.FormatUint(uint64(uid), 10))
		e.props.Set(PropertyGID, strconv.FormatUint(uint64(gid), 10))
		if name := platform.UserName(uid); name != "" {
			e.props.Set(PropertyUser, name)
		}
		if name := platform.GroupName(gid); name != "" {
			e.props.Set(PropertyGroup, name)
		}
	}
	e.props.Set(PropertyMtime, info.ModTime().UTC().Format(time.RFC3339))
}

func typeOf(mode fs.FileMode) EntryType {
	switch {
	case mode.IsRegular():
		return TypeFile
	case mode.IsDir():
		return TypeDirectory
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	case mode&fs.ModeNamedPipe != 0:
		return TypeFIFO
	case mode&fs.ModeSocket != 0:
		return TypeSocket
	case mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice != 0:
		return TypeCharSpecial
	case mode&fs.ModeDevice != 0:
		return TypeBlockSpecial
	default:
		return TypeUndefined
	}
}

// storeContent streams r into the heap using the archive's checksum,
// compression and coalescing options.
func (a *Archive) storeContent(ctx context.Context, e *Entry, r io.Reader) error {
	enc := a.compressionOption()
	sum := a.checksumOption(OptionFileChecksum, DefaultFileChecksum)
	a.heapWriter.SetCoalesce(a.BoolOption(OptionCoalesce))
	a.heapWriter.SetBufferSize(a.readSize())

	block, reused, err := a.heapWriter.Append(ctx, r, enc, sum)
	if err != nil {
		return ioError(fmt.Errorf("store %s: %w", e.name, err))
	}
	if reused {
		a.log().Debug("coalesced content", "name", e.name, "offset", block.Offset)
	}
	e.block = &block
	e.size = block.Size
	return nil
}

func (a *Archive) checkAdd(name string, parent *Entry) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if !pathutil.ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if parent == nil {
		return nil
	}
	if parent.archive != a {
		return ErrForeignEntry
	}
	if parent.typ != TypeDirectory {
		return fmt.Errorf("%s: %w", parent.Path(), ErrNotDirectory)
	}
	return nil
}

func (a *Archive) newEntry(name string, typ EntryType, mode fs.FileMode) *Entry {
	a.nextID++
	return &Entry{
		archive: a,
		id:      a.nextID,
		name:    name,
		typ:     typ,
		mode:    mode & modeBits,
	}
}

// attach appends e to parent, or to the roots when parent is nil.
func (a *Archive) attach(e *Entry, parent *Entry) {
	if parent == nil {
		e.root = true
		a.roots = append(a.roots, e)
		return
	}
	e.parent = parent
	parent.children = append(parent.children, e)
}
