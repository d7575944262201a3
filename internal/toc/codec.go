package toc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zlib"

	"github.com/meigma/sarchive/internal/sizing"
)

// encMode uses Core Deterministic Encoding so identical tables of contents
// always produce identical bytes, which keeps signatures stable.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("toc: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 24,
		MaxMapPairs:      1 << 24,
		MaxNestedLevels:  256,
	}.DecMode()
	if err != nil {
		panic("toc: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes t and compresses it with zlib. It returns the compressed
// bytes and the uncompressed length.
func Encode(t *TOC) (compressed []byte, size uint64, err error) {
	raw, err := encMode.Marshal(t)
	if err != nil {
		return nil, 0, fmt.Errorf("encode toc: %w", err)
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, 0, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, 0, fmt.Errorf("compress toc: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("compress toc: %w", err)
	}
	return buf.Bytes(), uint64(len(raw)), nil
}

// Decode decompresses and decodes a table of contents whose uncompressed
// length is size.
func Decode(compressed []byte, size uint64) (*TOC, error) {
	n, err := sizing.ToInt(size)
	if err != nil {
		return nil, err
	}
	if n > maxTOCSize {
		return nil, fmt.Errorf("%w: toc size %d exceeds limit", ErrInvalidContainer, n)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: toc: %v", ErrInvalidContainer, err)
	}
	defer zr.Close()

	raw := make([]byte, n)
	if _, err := io.ReadFull(zr, raw); err != nil {
		return nil, fmt.Errorf("%w: toc: %v", ErrInvalidContainer, err)
	}
	var t TOC
	if err := decMode.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: toc: %v", ErrInvalidContainer, err)
	}
	return &t, nil
}

func encodeSignatures(blocks []SignatureBlock) ([]byte, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	return encMode.Marshal(blocks)
}

func decodeSignatures(data []byte) ([]SignatureBlock, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blocks []SignatureBlock
	if err := decMode.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("%w: signature block: %v", ErrInvalidContainer, err)
	}
	return blocks, nil
}
