package sarchive

import (
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testPath = "/archives/test.sar"

func newTestArchive(t *testing.T, opts ...Option) (*Archive, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	a, err := Create(testPath, append([]Option{WithFs(fsys)}, opts...)...)
	require.NoError(t, err)
	return a, fsys
}

// reopen closes a and opens the written container.
func reopen(t *testing.T, a *Archive, fsys afero.Fs) *Archive {
	t.Helper()
	require.NoError(t, a.Close())
	b, err := Open(testPath, WithFs(fsys))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

type recordedError struct {
	err      error
	severity Severity
}

// recorder is a Handler that records every callback.
type recorder struct {
	mu       sync.Mutex
	events   []string
	errors   []recordedError
	done     []bool
	proceed  bool
	filter   func(*Entry) bool
	onWill   func(*Entry)
	extracts map[string]string
}

func (r *recorder) ShouldProcessFile(e *Entry) bool {
	r.add("should " + e.Path())
	if r.filter != nil {
		return r.filter(e)
	}
	return true
}

func (r *recorder) WillProcessFile(e *Entry) {
	r.add("will " + e.Path())
	if r.onWill != nil {
		r.onWill(e)
	}
}

func (r *recorder) DidExtractFile(e *Entry, path string) {
	r.add("did " + e.Path())
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extracts == nil {
		r.extracts = make(map[string]string)
	}
	r.extracts[e.Path()] = path
}

func (r *recorder) DidExtractContent(success bool, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, success)
}

func (r *recorder) ShouldProceedAfterError(err error, severity Severity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, recordedError{err: err, severity: severity})
	return r.proceed
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}
