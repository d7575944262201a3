package sarchive

// Handler receives extraction callbacks. A handler implements any subset of
// FileFilter, FileStartObserver, FileObserver, CompletionObserver and
// ErrorPolicy; each missing capability takes its documented default. A nil
// Handler uses every default.
type Handler any

// FileFilter decides whether an entry is extracted. Without it every entry
// is extracted. Directories are walked even when they are filtered out, so
// their descendants are asked individually.
type FileFilter interface {
	ShouldProcessFile(e *Entry) bool
}

// FileStartObserver is told before an entry is extracted.
type FileStartObserver interface {
	WillProcessFile(e *Entry)
}

// FileObserver is told after an entry was extracted successfully.
type FileObserver interface {
	DidExtractFile(e *Entry, path string)
}

// CompletionObserver is told once when an extraction ends. success is true
// only for a completed extraction.
type CompletionObserver interface {
	DidExtractContent(success bool, path string)
}

// ErrorPolicy decides whether extraction continues after a per-entry error.
// Without it every error aborts. SeverityFatal errors abort regardless of
// the answer.
type ErrorPolicy interface {
	ShouldProceedAfterError(err error, severity Severity) bool
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields take the
// defaults described on the capability interfaces.
type HandlerFuncs struct {
	Filter      func(e *Entry) bool
	WillProcess func(e *Entry)
	DidExtract  func(e *Entry, path string)
	Done        func(success bool, path string)
	OnError     func(err error, severity Severity) bool
}

// ShouldProcessFile implements FileFilter.
func (h HandlerFuncs) ShouldProcessFile(e *Entry) bool {
	if h.Filter == nil {
		return true
	}
	return h.Filter(e)
}

// WillProcessFile implements FileStartObserver.
func (h HandlerFuncs) WillProcessFile(e *Entry) {
	if h.WillProcess != nil {
		h.WillProcess(e)
	}
}

// DidExtractFile implements FileObserver.
func (h HandlerFuncs) DidExtractFile(e *Entry, path string) {
	if h.DidExtract != nil {
		h.DidExtract(e, path)
	}
}

// DidExtractContent implements CompletionObserver.
func (h HandlerFuncs) DidExtractContent(success bool, path string) {
	if h.Done != nil {
		h.Done(success, path)
	}
}

// ShouldProceedAfterError implements ErrorPolicy.
func (h HandlerFuncs) ShouldProceedAfterError(err error, severity Severity) bool {
	if h.OnError == nil {
		return false
	}
	return h.OnError(err, severity)
}

// callbacks is a Handler resolved into concrete functions.
type callbacks struct {
	shouldProcess func(*Entry) bool
	will          func(*Entry)
	did           func(*Entry, string)
	done          func(bool, string)
	proceed       func(error, Severity) bool
}

func resolveHandler(h Handler) callbacks {
	cb := callbacks{
		shouldProcess: func(*Entry) bool { return true },
		will:          func(*Entry) {},
		did:           func(*Entry, string) {},
		done:          func(bool, string) {},
		proceed:       func(error, Severity) bool { return false },
	}
	if f, ok := h.(FileFilter); ok {
		cb.shouldProcess = f.ShouldProcessFile
	}
	if o, ok := h.(FileStartObserver); ok {
		cb.will = o.WillProcessFile
	}
	if o, ok := h.(FileObserver); ok {
		cb.did = o.DidExtractFile
	}
	if o, ok := h.(CompletionObserver); ok {
		cb.done = o.DidExtractContent
	}
	if p, ok := h.(ErrorPolicy); ok {
		cb.proceed = p.ShouldProceedAfterError
	}
	return cb
}
