//go:build linux || darwin

package platform

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"
)

// Device returns the major and minor numbers of a block or character device.
func Device(info fs.FileInfo) (major, minor uint32, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	rdev := uint64(stat.Rdev) //nolint:unconvert,gosec // Rdev width differs per OS
	return unix.Major(rdev), unix.Minor(rdev), true
}

// Mkfifo creates a named pipe at path.
func Mkfifo(path string, perm fs.FileMode) error {
	return unix.Mkfifo(path, uint32(perm.Perm()))
}

// Mknod creates a block (char false) or character device node at path.
func Mknod(path string, perm fs.FileMode, char bool, major, minor uint32) error {
	mode := uint32(perm.Perm())
	if char {
		mode |= unix.S_IFCHR
	} else {
		mode |= unix.S_IFBLK
	}
	return unix.Mknod(path, mode, int(unix.Mkdev(major, minor))) //nolint:gosec // device numbers fit in int
}
