// Package platform isolates the OS specific parts of archiving: ownership and
// device numbers of source files, user and group name lookups, and creation
// of special nodes at extraction time.
package platform

import (
	"errors"
	"os/user"
	"strconv"
)

// ErrUnsupported is returned when a special node cannot be created on the
// current platform.
var ErrUnsupported = errors.New("sarchive: special node not supported on this platform")

// UserName returns the user name for uid, or "" when it cannot be resolved.
func UserName(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return ""
	}
	return u.Username
}

// GroupName returns the group name for gid, or "" when it cannot be resolved.
func GroupName(gid uint32) string {
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return ""
	}
	return g.Name
}

// LookupUID resolves a user name to its uid.
func LookupUID(name string) (uint32, bool) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, false
	}
	return parseID(u.Uid)
}

// LookupGID resolves a group name to its gid.
func LookupGID(name string) (uint32, bool) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, false
	}
	return parseID(g.Gid)
}

func parseID(s string) (uint32, bool) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}
