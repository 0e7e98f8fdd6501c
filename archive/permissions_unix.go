//go:build unix

package archive

import (
	"io/fs"
	"os"
)

var platformPermissions PermissionPort = posixPermissions{}

// posixPermissions round-trips the rwx bits of every entry
type posixPermissions struct{}

func (posixPermissions) Capture(info fs.FileInfo) (fs.FileMode, bool) {
	return info.Mode().Perm(), true
}

func (posixPermissions) Apply(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode.Perm())
}
