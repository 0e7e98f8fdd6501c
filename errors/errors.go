// Package errors holds the failure classes shared by the backup engine.
// Errors returned by the engine operations satisfy errors.Is against one of
// these constants.
package errors

import "github.com/juju/errors"

const (
	// IO covers missing or unreadable directories, permission problems and
	// disk exhaustion.
	IO = errors.ConstError("i/o failure")

	// ArchiveFormat is raised when an archive is corrupt, truncated or holds
	// entries that would land outside the restore target.
	ArchiveFormat = errors.ConstError("invalid archive")

	// NotFound is raised when the backup directory or a selected archive is
	// absent.
	NotFound = errors.NotFound

	// NotValid is raised for input the engine refuses, such as a label that
	// cannot be part of a filename.
	NotValid = errors.NotValid

	// Cancelled reports that the user backed out of a selection, a normal
	// early return, or that the operation's context was cancelled midway.
	Cancelled = errors.ConstError("cancelled")
)
