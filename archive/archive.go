// Package archive turns a directory tree into a zip file and back.
//
// Entries are named by their slash separated path relative to the archived
// root. Directories are stored as their own entries with a trailing '/'.
// Permission bits travel in the unix external attributes when the
// PermissionPort in use captures them.
package archive

import (
	"io/fs"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	stasherrors "github.com/ammesonb/savestash/errors"
)

// Extension is the file extension of every archive written here
const Extension = ".zip"

// creatorUnix is the "version made by" host value for unix in the zip APPNOTE
const creatorUnix = 3

type options struct {
	log   zerolog.Logger
	perms PermissionPort
}

// Option configures a Writer or Reader
type Option func(*options)

// WithLogger sets the logger, the default discards everything
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithPermissions overrides the platform PermissionPort
func WithPermissions(perms PermissionPort) Option {
	return func(o *options) {
		o.perms = perms
	}
}

func newOptions(opts []Option) options {
	o := options{
		log:   zerolog.Nop(),
		perms: DefaultPermissions(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ioFailure classifies a filesystem error, a missing path is NotFound and
// everything else is IO
func ioFailure(err error, format string, args ...interface{}) error {
	kind := stasherrors.IO
	if errors.Is(err, fs.ErrNotExist) {
		kind = stasherrors.NotFound
	}
	return errors.WithType(errors.Annotatef(err, format, args...), kind)
}

// cancelled types a context error, which stays matchable with errors.Is
func cancelled(err error) error {
	return errors.WithType(errors.Trace(err), stasherrors.Cancelled)
}

func formatFailure(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.WithType(errors.Errorf(format, args...), stasherrors.ArchiveFormat)
	}
	return errors.WithType(errors.Annotatef(err, format, args...), stasherrors.ArchiveFormat)
}
