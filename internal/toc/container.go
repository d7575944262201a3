package toc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/sarchive/internal/checksum"
	"github.com/meigma/sarchive/internal/sizing"
)

// Magic identifies a container file.
var Magic = [4]byte{'s', 'a', 'r', '!'}

const (
	// Version is the current container format version.
	Version uint16 = 1

	// HeaderSize is the size of the fixed header in bytes.
	HeaderSize = 32

	maxTOCSize       = 256 << 20
	maxSignatureSize = 16 << 20
)

var (
	// ErrInvalidContainer is returned when a container is truncated or
	// structurally malformed.
	ErrInvalidContainer = errors.New("sarchive: invalid container")

	// ErrTOCChecksum is returned when the stored table-of-contents digest
	// does not match.
	ErrTOCChecksum = errors.New("sarchive: toc checksum mismatch")
)

// Header is the fixed-size container header.
type Header struct {
	Version    uint16
	HeaderSize uint16
	TOCLength  uint64
	TOCSize    uint64
	Checksum   checksum.Kind
}

// MarshalBinary encodes h as HeaderSize big-endian bytes.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], HeaderSize)
	binary.BigEndian.PutUint64(buf[8:16], h.TOCLength)
	binary.BigEndian.PutUint64(buf[16:24], h.TOCSize)
	buf[24] = byte(h.Checksum)
	return buf, nil
}

// UnmarshalBinary decodes a header, validating magic and version.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: short header", ErrInvalidContainer)
	}
	if !bytes.Equal(data[0:4], Magic[:]) {
		return fmt.Errorf("%w: bad magic", ErrInvalidContainer)
	}
	h.Version = binary.BigEndian.Uint16(data[4:6])
	h.HeaderSize = binary.BigEndian.Uint16(data[6:8])
	h.TOCLength = binary.BigEndian.Uint64(data[8:16])
	h.TOCSize = binary.BigEndian.Uint64(data[16:24])
	h.Checksum = checksum.Kind(data[24])
	if h.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidContainer, h.Version)
	}
	if h.HeaderSize < HeaderSize {
		return fmt.Errorf("%w: header size %d", ErrInvalidContainer, h.HeaderSize)
	}
	if !h.Checksum.Valid() {
		return fmt.Errorf("%w: unknown toc checksum %d", ErrInvalidContainer, data[24])
	}
	return nil
}

// Container is a parsed container prefix: everything before the heap.
type Container struct {
	Header     Header
	TOC        *TOC
	Raw        []byte // compressed table of contents, as stored
	Digest     []byte // table-of-contents digest, as stored
	Signatures []SignatureBlock
	HeapOffset int64
	HeapSize   int64
}

// Write writes the header, the encoded table of contents, its digest and the
// signature block to w. The heap must follow immediately. It returns the
// number of bytes written, which is the heap offset.
func Write(w io.Writer, t *TOC, sum checksum.Kind, sigs []SignatureBlock) (int64, error) {
	raw, size, err := Encode(t)
	if err != nil {
		return 0, err
	}
	return WriteEncoded(w, raw, size, sum, sigs)
}

// WriteEncoded is Write for a table of contents already produced by Encode.
func WriteEncoded(w io.Writer, raw []byte, size uint64, sum checksum.Kind, sigs []SignatureBlock) (int64, error) {
	hdr, err := Header{
		Version:   Version,
		TOCLength: uint64(len(raw)),
		TOCSize:   size,
		Checksum:  sum,
	}.MarshalBinary()
	if err != nil {
		return 0, err
	}
	sigData, err := encodeSignatures(sigs)
	if err != nil {
		return 0, fmt.Errorf("encode signatures: %w", err)
	}
	if len(sigData) > maxSignatureSize {
		return 0, fmt.Errorf("%w: signature block too large", ErrInvalidContainer)
	}
	var sigLen [4]byte
	binary.BigEndian.PutUint32(sigLen[:], uint32(len(sigData))) //nolint:gosec // bounded by maxSignatureSize

	var written int64
	for _, part := range [][]byte{hdr, raw, sum.Sum(raw), sigLen[:], sigData} {
		n, err := w.Write(part)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Read parses the container prefix from r, whose total size is size, and
// verifies the table-of-contents digest.
func Read(r io.ReaderAt, size int64) (*Container, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(hdrBuf, 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidContainer, err)
	}
	c := &Container{}
	if err := c.Header.UnmarshalBinary(hdrBuf); err != nil {
		return nil, err
	}

	pos := int64(c.Header.HeaderSize)
	if c.Header.TOCLength > maxTOCSize {
		return nil, fmt.Errorf("%w: toc length %d exceeds limit", ErrInvalidContainer, c.Header.TOCLength)
	}
	raw, err := readSection(r, &pos, c.Header.TOCLength, size)
	if err != nil {
		return nil, err
	}
	c.Raw = raw

	digest, err := readSection(r, &pos, uint64(c.Header.Checksum.Size()), size) //nolint:gosec // digest sizes are small constants
	if err != nil {
		return nil, err
	}
	c.Digest = digest
	if !c.Header.Checksum.Matches(raw, digest) {
		return nil, ErrTOCChecksum
	}

	lenBuf, err := readSection(r, &pos, 4, size)
	if err != nil {
		return nil, err
	}
	sigLen := binary.BigEndian.Uint32(lenBuf)
	if sigLen > maxSignatureSize {
		return nil, fmt.Errorf("%w: signature block too large", ErrInvalidContainer)
	}
	sigData, err := readSection(r, &pos, uint64(sigLen), size)
	if err != nil {
		return nil, err
	}
	if c.Signatures, err = decodeSignatures(sigData); err != nil {
		return nil, err
	}

	if c.TOC, err = Decode(raw, c.Header.TOCSize); err != nil {
		return nil, err
	}
	c.HeapOffset = pos
	c.HeapSize = size - pos
	return c, nil
}

func readSection(r io.ReaderAt, pos *int64, n uint64, limit int64) ([]byte, error) {
	off, length, err := sizing.Range(uint64(*pos), n, limit) //nolint:gosec // pos is never negative
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := r.ReadAt(buf, off); err != nil && !(errors.Is(err, io.EOF) && off+length == limit) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
		}
	}
	*pos = off + length
	return buf, nil
}
