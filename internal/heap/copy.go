package heap

import (
	"context"
	"io"

	"github.com/meigma/sarchive/internal/sizing"
)

// copyWithContext copies from src to dst using buf, checking ctx between
// reads.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (uint64, error) {
	var written uint64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				next, ok := sizing.AddUint64(written, uint64(nw)) //nolint:gosec // nw is non-negative per io.Writer
				if !ok {
					return written, sizing.ErrOverflow
				}
				written = next
			}
			if ew != nil {
				return written, ew
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er == io.EOF {
				return written, nil
			}
			return written, er
		}
	}
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += uint64(n) //nolint:gosec // n is non-negative per io.Reader
	return n, err
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n) //nolint:gosec // n is non-negative per io.Writer
	return n, err
}
