//go:build !linux && !darwin

package platform

import "io/fs"

// Device reports no device numbers on this platform.
func Device(fs.FileInfo) (major, minor uint32, ok bool) {
	return 0, 0, false
}

// Mkfifo is not supported on this platform.
func Mkfifo(string, fs.FileMode) error {
	return ErrUnsupported
}

// Mknod is not supported on this platform.
func Mknod(string, fs.FileMode, bool, uint32, uint32) error {
	return ErrUnsupported
}
