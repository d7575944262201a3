package sarchive

import (
	"github.com/meigma/sarchive/internal/checksum"
	"github.com/meigma/sarchive/internal/encoding"
)

// Checksum identifies a digest algorithm.
type Checksum = checksum.Kind

// Checksum algorithms.
const (
	ChecksumNone   = checksum.None
	ChecksumSHA1   = checksum.SHA1
	ChecksumSHA256 = checksum.SHA256
	ChecksumSHA512 = checksum.SHA512
	ChecksumMD5    = checksum.MD5
	ChecksumBLAKE3 = checksum.BLAKE3
)

// Compression identifies a content encoding.
type Compression = encoding.Kind

// Compression algorithms.
const (
	CompressionNone  = encoding.None
	CompressionGzip  = encoding.Gzip
	CompressionBzip2 = encoding.Bzip2
	CompressionLZMA  = encoding.LZMA
	CompressionXZ    = encoding.XZ
	CompressionZstd  = encoding.Zstd
	CompressionLZ4   = encoding.LZ4
)

// ParseChecksum parses a checksum name such as "sha1" or "SHA-256".
func ParseChecksum(name string) (Checksum, error) {
	return checksum.Parse(name)
}

// ParseCompression parses a compression name such as "gzip" or "lzma".
func ParseCompression(name string) (Compression, error) {
	return encoding.Parse(name)
}
