// Package sink writes extracted entries to a destination filesystem.
package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/spf13/afero"

	"github.com/meigma/sarchive/internal/pathutil"
	"github.com/meigma/sarchive/internal/platform"
)

var (
	// ErrExists is returned when a destination path exists and overwriting
	// is disabled.
	ErrExists = errors.New("sarchive: destination exists")

	// ErrUnsupported is returned when the destination filesystem cannot
	// represent a node (symlinks on in-memory filesystems, hard links and
	// device nodes outside the OS filesystem).
	ErrUnsupported = errors.New("sarchive: unsupported on destination filesystem")
)

// FileSink writes entries beneath a root directory of an afero.Fs.
//
// Files are written to a temporary file in the same directory,
// then renamed to the final path on Commit. This ensures that
// partially written files are never visible at the final path.
type FileSink struct {
	fs        afero.Fs
	root      string
	overwrite bool
	logger    *slog.Logger
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithOverwrite allows replacing existing files.
// By default, existing files are left alone and ErrExists is returned.
func WithOverwrite(overwrite bool) Option {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileSink) {
		s.logger = logger
	}
}

// New creates a FileSink rooted at root on fsys.
func New(fsys afero.Fs, root string, opts ...Option) *FileSink {
	s := &FileSink{fs: fsys, root: filepath.Clean(root)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileSink) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Root returns the destination root.
func (s *FileSink) Root() string {
	return s.root
}

// Fs returns the destination filesystem.
func (s *FileSink) Fs() afero.Fs {
	return s.fs
}

// Prepare creates the destination root.
func (s *FileSink) Prepare() error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", s.root, err)
	}
	return nil
}

// Path maps an archive path to its destination path. Symlinks already
// present in the parent directories are resolved as if the root were "/",
// so the result always lies below the root. The last element is not
// resolved; it is the node being created.
func (s *FileSink) Path(rel string) (string, error) {
	clean, err := pathutil.Clean(rel)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, err)
	}
	dir, file := path.Split(clean)
	parent, err := s.join(dir)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, err)
	}
	return filepath.Join(parent, file), nil
}

// Mkdir creates the directory for rel, including parents, and returns its
// destination path. Unlike Path, every element of rel is resolved, since an
// existing symlink at rel would otherwise be followed by MkdirAll.
func (s *FileSink) Mkdir(rel string) (string, error) {
	clean, err := pathutil.Clean(rel)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, err)
	}
	dest, err := s.join(clean)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, err)
	}
	if err := s.fs.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dest, err)
	}
	return dest, nil
}

func (s *FileSink) join(unsafePath string) (string, error) {
	if unsafePath == "" {
		return s.root, nil
	}
	dest, err := securejoin.SecureJoinVFS(s.root, filepath.FromSlash(unsafePath), fsEval{s.fs})
	if err != nil {
		return "", fmt.Errorf("%w: %v", pathutil.ErrUnsafePath, err)
	}
	return dest, nil
}

// Writer returns a Committer that writes to a temp file and renames on Commit.
func (s *FileSink) Writer(rel string) (*Committer, error) {
	dest, err := s.prepareDest(rel)
	if err != nil {
		return nil, err
	}
	tmp, err := afero.TempFile(s.fs, filepath.Dir(dest), ".sarchive-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &Committer{sink: s, dest: dest, file: tmp}, nil
}

// Symlink creates a symbolic link at rel pointing to target.
func (s *FileSink) Symlink(rel, target string) (string, error) {
	linker, ok := s.fs.(afero.Linker)
	if !ok {
		return "", fmt.Errorf("symlink %s: %w", rel, ErrUnsupported)
	}
	dest, err := s.prepareDest(rel)
	if err != nil {
		return "", err
	}
	if err := linker.SymlinkIfPossible(target, dest); err != nil {
		return "", fmt.Errorf("symlink %s: %w", dest, err)
	}
	return dest, nil
}

// Link hard links the already extracted destination path existing to rel.
func (s *FileSink) Link(existing, rel string) (string, error) {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return "", fmt.Errorf("link %s: %w", rel, ErrUnsupported)
	}
	dest, err := s.prepareDest(rel)
	if err != nil {
		return "", err
	}
	if err := os.Link(existing, dest); err != nil {
		return "", fmt.Errorf("link %s: %w", dest, err)
	}
	s.log().Debug("hard linked", "path", dest, "target", existing)
	return dest, nil
}

// Special creates a fifo (device false) or a block/character device node.
func (s *FileSink) Special(rel string, perm fs.FileMode, device, char bool, major, minor uint32) (string, error) {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return "", fmt.Errorf("special node %s: %w", rel, ErrUnsupported)
	}
	dest, err := s.prepareDest(rel)
	if err != nil {
		return "", err
	}
	if device {
		err = platform.Mknod(dest, perm, char, major, minor)
	} else {
		err = platform.Mkfifo(dest, perm)
	}
	if errors.Is(err, platform.ErrUnsupported) {
		return "", fmt.Errorf("special node %s: %w", dest, ErrUnsupported)
	}
	if err != nil {
		return "", fmt.Errorf("special node %s: %w", dest, err)
	}
	return dest, nil
}

// Chmod sets the permission bits of a destination path.
func (s *FileSink) Chmod(dest string, mode fs.FileMode) error {
	return s.fs.Chmod(dest, mode)
}

// Chown sets the owner of a destination path.
func (s *FileSink) Chown(dest string, uid, gid int) error {
	return s.fs.Chown(dest, uid, gid)
}

// prepareDest resolves rel, creates its parent directory and clears an
// existing non-directory at the destination when overwriting.
func (s *FileSink) prepareDest(rel string) (string, error) {
	dest, err := s.Path(rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(dest)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	info, err := s.lstat(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return dest, nil
	case err != nil:
		return "", err
	case !s.overwrite:
		return "", fmt.Errorf("%s: %w", dest, ErrExists)
	case info.IsDir():
		return "", fmt.Errorf("%s: %w", dest, ErrExists)
	}
	if err := s.fs.Remove(dest); err != nil {
		return "", fmt.Errorf("remove %s: %w", dest, err)
	}
	return dest, nil
}

func (s *FileSink) lstat(name string) (fs.FileInfo, error) {
	return fsEval{s.fs}.Lstat(name)
}

// fsEval lets securejoin walk an afero.Fs. Filesystems without symlink
// support never report a symlink, so Readlink is not reached for them.
type fsEval struct {
	fs afero.Fs
}

func (e fsEval) Lstat(name string) (os.FileInfo, error) {
	if l, ok := e.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return e.fs.Stat(name)
}

func (e fsEval) Readlink(name string) (string, error) {
	if r, ok := e.fs.(afero.LinkReader); ok {
		return r.ReadlinkIfPossible(name)
	}
	return "", &fs.PathError{Op: "readlink", Path: name, Err: ErrUnsupported}
}

// Committer stages one file's content.
type Committer struct {
	sink *FileSink
	dest string
	file afero.File
}

// Path returns the final destination path.
func (c *Committer) Path() string {
	return c.dest
}

// Write implements io.Writer.
func (c *Committer) Write(p []byte) (int, error) {
	return c.file.Write(p)
}

// Commit closes the temp file and renames it to the final path.
func (c *Committer) Commit() error {
	tempPath := c.file.Name()
	if err := c.file.Close(); err != nil {
		_ = c.sink.fs.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := c.sink.fs.Rename(tempPath, c.dest); err != nil {
		_ = c.sink.fs.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.dest, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *Committer) Discard() error {
	tempPath := c.file.Name()
	_ = c.file.Close() //nolint:errcheck // we're cleaning up
	return c.sink.fs.Remove(tempPath)
}
