// Package checksum implements the digest algorithms recognized by the
// archive format for table-of-contents and per-entry checksums.
package checksum

import (
	"bytes"
	"crypto/md5"  //nolint:gosec // legacy archive checksum, not used for security
	"crypto/sha1" //nolint:gosec // legacy archive checksum, not used for security
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Kind identifies a checksum algorithm.
//
// Values are stored in the container header; changing them breaks format
// compatibility.
type Kind uint8

const (
	None Kind = iota
	SHA1
	SHA256
	SHA512
	MD5
	BLAKE3
)

// String returns the canonical option token for the algorithm.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	case MD5:
		return "md5"
	case BLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Parse parses an option token. Matching ignores case and accepts the
// hyphenated spellings ("SHA-1", "sha-256").
func Parse(name string) (Kind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "") {
	case "none", "":
		return None, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	case "md5":
		return MD5, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return None, fmt.Errorf("unknown checksum algorithm: %q", name)
	}
}

// Valid reports whether k is a known algorithm.
func (k Kind) Valid() bool {
	return k <= BLAKE3
}

// New returns a fresh hash for the algorithm, or nil for None.
func (k Kind) New() hash.Hash {
	switch k {
	case SHA1:
		return sha1.New() //nolint:gosec // see import
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	case MD5:
		return md5.New() //nolint:gosec // see import
	case BLAKE3:
		return blake3.New()
	default:
		return nil
	}
}

// Size returns the digest length in bytes. None has size 0.
func (k Kind) Size() int {
	h := k.New()
	if h == nil {
		return 0
	}
	return h.Size()
}

// Sum computes the digest of data. None returns nil.
func (k Kind) Sum(data []byte) []byte {
	h := k.New()
	if h == nil {
		return nil
	}
	_, _ = h.Write(data) //nolint:errcheck // hash writes never fail
	return h.Sum(nil)
}

// Matches reports whether want is the digest of data. None always matches.
// A missing digest never matches a real algorithm.
func (k Kind) Matches(data, want []byte) bool {
	if k == None {
		return true
	}
	if len(want) == 0 {
		return false
	}
	return bytes.Equal(k.Sum(data), want)
}

// Hasher wraps a reader and hashes everything read through it.
type Hasher struct {
	r io.Reader
	h hash.Hash
}

// NewHasher returns a reader that feeds k's hash. For None the reader is a
// pass-through and Sum returns nil.
func NewHasher(r io.Reader, k Kind) *Hasher {
	return &Hasher{r: r, h: k.New()}
}

// Read implements io.Reader.
func (hr *Hasher) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 && hr.h != nil {
		_, _ = hr.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
	}
	return n, err
}

// Sum returns the digest of the bytes read so far.
func (hr *Hasher) Sum() []byte {
	if hr.h == nil {
		return nil
	}
	return hr.h.Sum(nil)
}
