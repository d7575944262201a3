// Package testutil holds fixtures shared by tests.
package testutil

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io/fs"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// WriteFiles creates files below root on fsys. Keys are slash-separated
// relative paths; values are file contents.
func WriteFiles(tb testing.TB, fsys afero.Fs, root string, files map[string]string) {
	tb.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", path, err)
		}
		if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}
}

// FlipByte inverts the first byte of the first occurrence of needle in the
// file at path and reports whether needle was found.
func FlipByte(tb testing.TB, fsys afero.Fs, path string, needle []byte) bool {
	tb.Helper()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		tb.Fatalf("read %s: %v", path, err)
	}
	i := bytes.Index(data, needle)
	if i < 0 {
		return false
	}
	data[i] ^= 0xff
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return true
}

// SelfSigned returns a self-signed ECDSA certificate and its key.
func SelfSigned(tb testing.TB, commonName string) (*x509.Certificate, crypto.Signer) {
	tb.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		tb.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse certificate: %v", err)
	}
	return cert, key
}

// ErrInjected is returned by FailingFs for failing operations.
var ErrInjected = errors.New("testutil: injected failure")

// FailingFs wraps an afero.Fs and fails selected metadata operations.
type FailingFs struct {
	afero.Fs
	FailChmod bool
	FailChown bool
}

// Chmod implements afero.Fs.
func (f *FailingFs) Chmod(name string, mode fs.FileMode) error {
	if f.FailChmod {
		return &fs.PathError{Op: "chmod", Path: name, Err: ErrInjected}
	}
	return f.Fs.Chmod(name, mode)
}

// Chown implements afero.Fs.
func (f *FailingFs) Chown(name string, uid, gid int) error {
	if f.FailChown {
		return &fs.PathError{Op: "chown", Path: name, Err: ErrInjected}
	}
	return f.Fs.Chown(name, uid, gid)
}
