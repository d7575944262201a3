package encoding

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdPool manages reusable zstd decoders to reduce allocation overhead.
type zstdPool struct {
	pool      sync.Pool
	maxMemory uint64
}

func newZstdPool(maxMemory uint64) *zstdPool {
	p := &zstdPool{maxMemory: maxMemory}
	p.pool.New = func() any {
		dec, err := p.newDecoder(nil)
		if err != nil {
			return nil
		}
		return dec
	}
	return p
}

// Get returns a decoder reading from r and a function that returns it to the
// pool.
func (p *zstdPool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	if p == nil {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}

	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

func (p *zstdPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
	}
	if p.maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxMemory))
	}
	return zstd.NewReader(r, opts...)
}
