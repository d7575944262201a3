package sarchive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/meigma/sarchive/internal/platform"
	"github.com/meigma/sarchive/internal/sink"
)

// ExtractState is the state of an archive's extraction engine.
type ExtractState int32

// Extraction states. Extracting moves to exactly one of Completed,
// Cancelled or Failed.
const (
	StateIdle ExtractState = iota
	StateExtracting
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns the state name.
func (s ExtractState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ExtractState returns the state of the most recent extraction.
func (a *Archive) ExtractState() ExtractState {
	return ExtractState(a.state.Load())
}

// Cancel asks a running extraction to stop before its next entry. It never
// blocks and may be called from any goroutine; an entry being written when
// Cancel is called is finished first.
func (a *Archive) Cancel() {
	a.cancelRequested.Store(true)
}

// Extract writes the whole tree below dest, walking entries in pre-order and
// reporting progress to h.
//
// Only one extraction may run per archive: a concurrent call returns
// ErrBusy immediately and leaves the running extraction untouched. Per-entry
// failures go to h's ErrorPolicy and never to the caller; the outcome is the
// returned state, also reported through CompletionObserver. Cancellation
// through Cancel or ctx is checked between entries.
func (a *Archive) Extract(ctx context.Context, dest string, h Handler, opts ...ExtractOption) (ExtractState, error) {
	if !a.extracting.CompareAndSwap(false, true) {
		if err := a.checkOpen(); err != nil {
			return a.ExtractState(), err
		}
		return StateExtracting, ErrBusy
	}
	defer a.extracting.Store(false)
	// Checked under the lock, which Close also takes.
	if err := a.checkOpen(); err != nil {
		return a.ExtractState(), err
	}

	a.cancelRequested.Store(false)
	a.state.Store(int32(StateExtracting))

	cb := resolveHandler(h)
	x := a.newExtraction(ctx, cb, dest, newExtractConfig(opts))
	a.log().Info("extraction started", "dest", dest)

	final := x.run(ctx)
	a.state.Store(int32(final))
	a.log().Info("extraction finished", "dest", dest, "state", final.String(), "extracted", x.count)

	cb.done(final == StateCompleted, dest)
	return final, nil
}

// extraction holds the state of one Extract or ExtractTo call.
type extraction struct {
	archive  *Archive
	ctx      context.Context
	cb       callbacks
	sink     *sink.FileSink
	chown    bool
	saveSUID bool
	symbolic bool
	linkSame bool
	linked   map[contentKey]string
	dirs     []dirMeta
	buf      []byte
	count    int
}

// contentKey identifies decoded content for link-same. Content stored
// without a checksum only matches its own heap block.
type contentKey struct {
	sum    Checksum
	digest string
	size   uint64
	offset uint64
}

type dirMeta struct {
	entry *Entry
	path  string
}

func (a *Archive) newExtraction(ctx context.Context, cb callbacks, dest string, cfg extractConfig) *extraction {
	chown := os.Geteuid() == 0
	if cfg.ownership != nil {
		chown = *cfg.ownership
	}
	ownership, _ := a.OptionValue(OptionOwnership)
	return &extraction{
		archive: a,
		// Entries are written to completion; cancellation is observed
		// between entries only.
		ctx:      context.WithoutCancel(ctx),
		cb:       cb,
		sink:     sink.New(cfg.fs, dest, sink.WithOverwrite(cfg.overwrite), sink.WithLogger(a.logger)),
		chown:    chown,
		saveSUID: a.BoolOption(OptionSaveSUID),
		symbolic: ownership == OwnershipSymbolic,
		linkSame: a.BoolOption(OptionLinkSame),
		linked:   make(map[contentKey]string),
		buf:      make([]byte, a.readSize()),
	}
}

func (x *extraction) log() *slog.Logger {
	return x.archive.log()
}

func (x *extraction) run(ctx context.Context) ExtractState {
	if err := x.sink.Prepare(); err != nil {
		x.proceed(&ExtractError{Op: "prepare", Path: x.sink.Root(), Severity: SeverityFatal, Err: ioError(err)})
		return StateFailed
	}

	state := x.walk(ctx)

	// Directory modes are applied last, deepest first, so that restrictive
	// modes do not prevent writing their contents. Directories created
	// before a cancel or abort still get theirs, without further reports.
	for _, d := range slices.Backward(x.dirs) {
		xerr := x.applyMetadata(d.entry, d.path)
		if xerr == nil {
			continue
		}
		if state != StateCompleted {
			x.log().Debug("directory metadata not applied", "path", d.path, "error", xerr)
			continue
		}
		if !x.proceed(xerr) {
			state = StateFailed
		}
	}
	return state
}

func (x *extraction) walk(ctx context.Context) ExtractState {
	en := x.archive.FileEnumerator()
	for e, ok := en.Next(); ok; e, ok = en.Next() {
		if x.archive.cancelRequested.Load() || ctx.Err() != nil {
			x.log().Info("extraction cancelled", "next", e.Path())
			return StateCancelled
		}
		if !x.cb.shouldProcess(e) {
			x.log().Debug("skipped entry", "path", e.Path())
			continue
		}
		x.cb.will(e)

		path, xerr := x.extract(e, e.Path(), true)
		if xerr != nil {
			if !x.proceed(xerr) {
				return StateFailed
			}
			if e.typ == TypeDirectory {
				en.SkipChildren()
			}
			continue
		}
		x.count++
		x.cb.did(e, path)
	}
	return StateCompleted
}

// proceed reports err to the handler and returns whether to continue.
func (x *extraction) proceed(err *ExtractError) bool {
	answer := x.cb.proceed(err, err.Severity)
	if err.Severity == SeverityFatal || !answer {
		x.log().Error("extraction aborted", "error", err, "severity", err.Severity.String())
		return false
	}
	x.log().Warn("continuing after error", "error", err, "severity", err.Severity.String())
	return true
}

// extract writes e at rel below the sink root. Directory metadata is
// deferred when deferDirs is set.
func (x *extraction) extract(e *Entry, rel string, deferDirs bool) (string, *ExtractError) {
	switch e.typ {
	case TypeDirectory:
		dest, err := x.sink.Mkdir(rel)
		if err != nil {
			return "", newExtractError("mkdir", rel, err)
		}
		if deferDirs {
			x.dirs = append(x.dirs, dirMeta{entry: e, path: dest})
			return dest, nil
		}
		return dest, x.applyMetadata(e, dest)

	case TypeFile:
		dest, linked, xerr := x.writeFile(e, rel)
		if xerr != nil || linked {
			return dest, xerr
		}
		return dest, x.applyMetadata(e, dest)

	case TypeSymlink:
		dest, err := x.sink.Symlink(rel, e.LinkTarget())
		if err != nil {
			return "", newExtractError("symlink", rel, err)
		}
		return dest, nil

	case TypeFIFO:
		dest, err := x.sink.Special(rel, e.mode.Perm(), false, false, 0, 0)
		if err != nil {
			return "", newExtractError("mkfifo", rel, err)
		}
		return dest, x.applyMetadata(e, dest)

	case TypeBlockSpecial, TypeCharSpecial:
		major, minor, ok := e.Device()
		if !ok {
			return "", newExtractError("mknod", rel, fmt.Errorf("%w: missing device numbers", sink.ErrUnsupported))
		}
		dest, err := x.sink.Special(rel, e.mode.Perm(), true, e.typ == TypeCharSpecial, major, minor)
		if err != nil {
			return "", newExtractError("mknod", rel, err)
		}
		return dest, x.applyMetadata(e, dest)

	default:
		return "", newExtractError("extract", rel, fmt.Errorf("%w: %s entry", sink.ErrUnsupported, e.typ))
	}
}

// writeFile writes the content of e. With link-same enabled, content
// already written by this extraction is hard linked when the destination
// filesystem supports it; linked reports that case.
func (x *extraction) writeFile(e *Entry, rel string) (dest string, linked bool, xerr *ExtractError) {
	key, shared := x.contentKey(e)
	if shared {
		if first, ok := x.linked[key]; ok {
			dest, err := x.sink.Link(first, rel)
			if err == nil {
				return dest, true, nil
			}
			x.log().Debug("hard link failed, writing content", "path", rel, "error", err)
		}
	}

	w, err := x.sink.Writer(rel)
	if err != nil {
		return "", false, newExtractError("create", rel, err)
	}
	if e.block != nil {
		if _, err := x.archive.heapReader.WriteTo(x.ctx, *e.block, w, x.buf); err != nil {
			_ = w.Discard() //nolint:errcheck // best-effort cleanup
			return "", false, newExtractError("write", rel, err)
		}
	}
	if err := w.Commit(); err != nil {
		return "", false, newExtractError("commit", rel, err)
	}
	if shared {
		if _, ok := x.linked[key]; !ok {
			x.linked[key] = w.Path()
		}
	}
	return w.Path(), false, nil
}

// contentKey returns the link-same key of e, and false when e cannot be
// linked.
func (x *extraction) contentKey(e *Entry) (contentKey, bool) {
	b := e.block
	if !x.linkSame || b == nil {
		return contentKey{}, false
	}
	if b.Checksum == ChecksumNone || len(b.Extracted) == 0 {
		return contentKey{size: b.Size, offset: b.Offset}, true
	}
	return contentKey{sum: b.Checksum, digest: string(b.Extracted), size: b.Size}, true
}

// applyMetadata applies ownership and then permissions, since changing the
// owner may clear setuid and setgid bits.
func (x *extraction) applyMetadata(e *Entry, dest string) *ExtractError {
	if x.chown {
		if uid, gid, ok := x.owner(e); ok {
			if err := x.sink.Chown(dest, int(uid), int(gid)); err != nil {
				return newExtractError("chown", e.Path(), fmt.Errorf("%w: %w", ErrPermission, err))
			}
		}
	}
	mode := e.mode & (fs.ModePerm | fs.ModeSticky)
	if x.saveSUID {
		mode |= e.mode & (fs.ModeSetuid | fs.ModeSetgid)
	}
	if err := x.sink.Chmod(dest, mode); err != nil {
		return newExtractError("chmod", e.Path(), fmt.Errorf("%w: %w", ErrPermission, err))
	}
	return nil
}

// owner resolves the owner to apply. In symbolic mode recorded user and
// group names take precedence over numeric ids.
func (x *extraction) owner(e *Entry) (uid, gid uint32, ok bool) {
	o := e.Owner()
	uid, gid, ok = o.UID, o.GID, o.HasIDs
	if !x.symbolic {
		return uid, gid, ok
	}
	if o.User != "" {
		if id, found := platform.LookupUID(o.User); found {
			uid, ok = id, true
		}
	}
	if o.Group != "" {
		if id, found := platform.LookupGID(o.Group); found {
			gid = id
		}
	}
	return uid, gid, ok
}

func newExtractError(op, path string, err error) *ExtractError {
	sev := severityOf(err)
	if sev != SeverityWarning {
		err = ioError(err)
	}
	return &ExtractError{Op: op, Path: path, Severity: sev, Err: err}
}

// severityOf grades a per-entry error.
func severityOf(err error) Severity {
	switch {
	case errors.Is(err, ErrClosed):
		return SeverityFatal
	case errors.Is(err, sink.ErrUnsupported):
		return SeverityInfo
	case errors.Is(err, sink.ErrExists):
		return SeverityNormal
	case errors.Is(err, ErrPermission):
		return SeverityWarning
	default:
		return SeverityNonFatal
	}
}
