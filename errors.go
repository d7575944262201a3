package sarchive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/meigma/sarchive/internal/heap"
	"github.com/meigma/sarchive/internal/pathutil"
	"github.com/meigma/sarchive/internal/sink"
	"github.com/meigma/sarchive/internal/toc"
)

// ErrorDomain namespaces every error produced by this package.
const ErrorDomain = "sarchive"

// Sentinel errors, one per taxonomy entry.
var (
	// ErrIO is returned when a source or destination cannot be read or written.
	ErrIO = errors.New("sarchive: i/o error")

	// ErrChecksumMismatch is returned when stored content does not match its digest.
	ErrChecksumMismatch = heap.ErrChecksumMismatch

	// ErrDecompression is returned when stored content cannot be decoded.
	ErrDecompression = heap.ErrDecompression

	// ErrCancelled is reported when an extraction stops because of Cancel or
	// context cancellation.
	ErrCancelled = errors.New("sarchive: cancelled")

	// ErrPermission is returned when mode or ownership cannot be applied.
	ErrPermission = errors.New("sarchive: cannot apply permissions")

	// ErrClosed is returned by operations on a closed archive.
	ErrClosed = errors.New("sarchive: archive closed")

	// ErrBusy is returned when an extraction is already in progress.
	ErrBusy = errors.New("sarchive: extraction in progress")

	// ErrInvalidState is returned when an operation conflicts with the
	// current shape of the archive.
	ErrInvalidState = errors.New("sarchive: invalid state")
)

// More specific errors. Each wraps one of the taxonomy sentinels above.
var (
	// ErrReadOnly is returned when mutating an archive opened with Open.
	ErrReadOnly = fmt.Errorf("%w: archive is read-only", ErrInvalidState)

	// ErrAlreadyParented is returned when adding an entry that already has
	// another parent.
	ErrAlreadyParented = fmt.Errorf("%w: entry already has a parent", ErrInvalidState)

	// ErrCycle is returned when adding an entry beneath one of its own descendants.
	ErrCycle = fmt.Errorf("%w: entry would become its own ancestor", ErrInvalidState)

	// ErrForeignEntry is returned when an entry from another archive is used.
	ErrForeignEntry = fmt.Errorf("%w: entry belongs to another archive", ErrInvalidState)

	// ErrNotDirectory is returned when adding children to a non-directory.
	ErrNotDirectory = fmt.Errorf("%w: not a directory", ErrInvalidState)

	// ErrNotRoot is returned by SetPath on a non-root entry.
	ErrNotRoot = fmt.Errorf("%w: path can only be set on root entries", ErrInvalidState)

	// ErrNoContent is returned when extracting content from an entry that has none.
	ErrNoContent = fmt.Errorf("%w: entry has no content", ErrInvalidState)

	// ErrDuplicateDocument is returned when a document name is already taken.
	ErrDuplicateDocument = fmt.Errorf("%w: duplicate document name", ErrInvalidState)

	// ErrInvalidName is returned for names that are empty or contain a slash.
	ErrInvalidName = fmt.Errorf("%w: invalid name", ErrInvalidState)

	// ErrNotSigned is returned when signature bytes are requested before the
	// archive was written.
	ErrNotSigned = fmt.Errorf("%w: signature not yet produced", ErrInvalidState)

	// ErrNoProvider is returned when signing without a crypto provider.
	ErrNoProvider = fmt.Errorf("%w: no signature provider configured", ErrInvalidState)

	// ErrSignatureInvalid is returned by VerifySignatures when a signature
	// does not verify.
	ErrSignatureInvalid = errors.New("sarchive: signature verification failed")
)

// Errors re-exported from internal packages.
var (
	// ErrInvalidContainer is returned when a container file is malformed.
	ErrInvalidContainer = toc.ErrInvalidContainer

	// ErrTOCChecksum is returned when the table of contents digest does not match.
	ErrTOCChecksum = toc.ErrTOCChecksum

	// ErrUnsafePath is returned for entry paths that would escape the destination.
	ErrUnsafePath = pathutil.ErrUnsafePath
)

// Severity grades extraction errors. Higher is more severe.
type Severity int

// Severity levels.
const (
	SeverityDebug Severity = iota + 1
	SeverityInfo
	SeverityNormal
	SeverityWarning
	SeverityNonFatal
	SeverityFatal
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityNormal:
		return "normal"
	case SeverityWarning:
		return "warning"
	case SeverityNonFatal:
		return "nonfatal"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ExtractError describes a failure while extracting one entry.
type ExtractError struct {
	Op       string
	Path     string
	Severity Severity
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", ErrorDomain, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrorDomain, e.Op, e.Path, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Kind is the taxonomy class of an error.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindIO
	KindChecksumMismatch
	KindDecompression
	KindCancellation
	KindPermission
	KindState
	KindBusy
	KindInvalidState
)

var kindNames = [...]string{
	KindUnknown:          "unknown",
	KindIO:               "io",
	KindChecksumMismatch: "checksum mismatch",
	KindDecompression:    "decompression",
	KindCancellation:     "cancellation",
	KindPermission:       "permission",
	KindState:            "state",
	KindBusy:             "busy",
	KindInvalidState:     "invalid state",
}

// String returns the kind name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// KindOf classifies err. It returns KindUnknown for nil and for errors from
// outside the taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrClosed):
		return KindState
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancellation
	case errors.Is(err, ErrChecksumMismatch), errors.Is(err, ErrTOCChecksum):
		return KindChecksumMismatch
	case errors.Is(err, ErrDecompression):
		return KindDecompression
	case errors.Is(err, ErrPermission):
		return KindPermission
	case errors.Is(err, ErrIO), errors.Is(err, ErrInvalidContainer), errors.Is(err, ErrUnsafePath),
		errors.Is(err, sink.ErrExists), errors.Is(err, sink.ErrUnsupported):
		return KindIO
	}
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return KindIO
	}
	return KindUnknown
}

// ioError tags err as an I/O error unless it already carries a taxonomy kind.
func ioError(err error) error {
	if err == nil || errors.Is(err, ErrIO) {
		return err
	}
	if k := KindOf(err); k != KindUnknown && k != KindIO {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
