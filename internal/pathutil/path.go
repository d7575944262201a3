// Package pathutil provides path manipulation for slash-separated archive paths.
package pathutil

import (
	"errors"
	"path"
	"strings"
)

// ErrUnsafePath is returned for archive paths that would escape the
// extraction root.
var ErrUnsafePath = errors.New("sarchive: unsafe path")

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(p string) string {
	if p == "" || p == "." {
		return "."
	}
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Join appends name to the archive path parent. An empty parent denotes the
// archive root.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// ValidName reports whether name can be used as a single path element.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\x00")
}

// Clean validates an archive path and returns its canonical form. Absolute
// paths and paths that climb above the root are rejected.
func Clean(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsRune(p, 0) {
		return "", ErrUnsafePath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrUnsafePath
	}
	return clean, nil
}
