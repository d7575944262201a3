//go:build !unix

package platform

import "io/fs"

// Owner reports no owner; ownership is not recorded off Unix.
func Owner(fs.FileInfo) (uid, gid uint32, ok bool) {
	return 0, 0, false
}
