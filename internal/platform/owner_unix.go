//go:build unix

package platform

import (
	"io/fs"
	"syscall"
)

// Owner returns the numeric owner recorded in info. ok is false when info
// does not come from the operating system, as with in-memory filesystems.
func Owner(info fs.FileInfo) (uid, gid uint32, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return stat.Uid, stat.Gid, true
}
