package archive

import "io/fs"

// PermissionPort reads permission bits off source files when an archive is
// written and puts them back when it is extracted
type PermissionPort interface {
	// Capture returns the bits to store for info, ok is false when the
	// platform has none worth storing
	Capture(info fs.FileInfo) (mode fs.FileMode, ok bool)
	// Apply sets mode on path
	Apply(path string, mode fs.FileMode) error
}

// NoPermissions stores nothing and applies nothing
type NoPermissions struct{}

// Capture implements PermissionPort
func (NoPermissions) Capture(fs.FileInfo) (fs.FileMode, bool) {
	return 0, false
}

// Apply implements PermissionPort
func (NoPermissions) Apply(string, fs.FileMode) error {
	return nil
}

// DefaultPermissions returns the PermissionPort for the running platform
func DefaultPermissions() PermissionPort {
	return platformPermissions
}
