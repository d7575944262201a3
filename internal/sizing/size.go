// Package sizing provides overflow-checked conversions between the unsigned
// sizes recorded in the table of contents and the signed sizes used by io.
package sizing

import (
	"errors"
	"math"
)

// ErrOverflow is returned when a size does not fit the target type.
var ErrOverflow = errors.New("sarchive: size overflow")

// ToInt converts a uint64 to int.
func ToInt(size uint64) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, ErrOverflow
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64.
func ToInt64(size uint64) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, ErrOverflow
	}
	return int64(size), nil
}

// FromInt64 converts a non-negative int64 to uint64.
func FromInt64(size int64) (uint64, error) {
	if size < 0 {
		return 0, ErrOverflow
	}
	return uint64(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Range converts an (offset, length) pair into int64 values and checks that
// the range ends at or before limit.
func Range(offset, length uint64, limit int64) (off, n int64, err error) {
	end, ok := AddUint64(offset, length)
	if !ok {
		return 0, 0, ErrOverflow
	}
	if limit >= 0 && end > uint64(limit) {
		return 0, 0, ErrOverflow
	}
	if off, err = ToInt64(offset); err != nil {
		return 0, 0, err
	}
	if n, err = ToInt64(length); err != nil {
		return 0, 0, err
	}
	return off, n, nil
}
