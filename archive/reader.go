package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// Reader restores directory trees from archives
type Reader struct {
	options
}

// NewReader returns a Reader
func NewReader(opts ...Option) *Reader {
	return &Reader{newOptions(opts)}
}

type pendingMode struct {
	path string
	mode fs.FileMode
}

// Extract recreates the tree stored in archivePath below targetDir, in the
// order the entries were stored. Existing directories are reused and
// existing files overwritten.
//
// Extraction is not atomic. When it fails partway, targetDir keeps every
// entry processed before the failure.
func (r *Reader) Extract(ctx context.Context, archivePath, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return ioFailure(err, "cannot open archive %q", archivePath)
	}
	defer func() {
		if err := f.Close(); err != nil {
			r.log.Warn().Err(err).Str("path", archivePath).Msg("failed to close archive")
		}
	}()
	info, err := f.Stat()
	if err != nil {
		return ioFailure(err, "cannot stat archive %q", archivePath)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return formatFailure(err, "cannot read archive %q", archivePath)
	}

	root, err := filepath.Abs(targetDir)
	if err != nil {
		return ioFailure(err, "cannot resolve target %q", targetDir)
	}

	// Directory modes go on last so a read-only directory can still be
	// filled with the entries stored after it.
	var dirModes []pendingMode
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		dest, err := entryPath(root, entry.Name)
		if err != nil {
			return err
		}
		mode, hasMode := entryMode(entry)

		if strings.HasSuffix(entry.Name, "/") {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return ioFailure(err, "cannot create directory %q", dest)
			}
			if hasMode {
				dirModes = append(dirModes, pendingMode{dest, mode})
			}
			r.log.Debug().Str("entry", entry.Name).Msg("created directory")
			continue
		}

		if dest == root {
			return formatFailure(nil, "cannot extract %q: file entry names the target directory", entry.Name)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return ioFailure(err, "cannot create directory %q", filepath.Dir(dest))
		}
		if err := r.extractFile(entry, dest); err != nil {
			return err
		}
		if hasMode {
			if err := r.perms.Apply(dest, mode); err != nil {
				return ioFailure(err, "cannot set mode of %q", dest)
			}
		}
		r.log.Debug().Str("entry", entry.Name).Msg("extracted file")
	}

	for i := len(dirModes) - 1; i >= 0; i-- {
		if err := r.perms.Apply(dirModes[i].path, dirModes[i].mode); err != nil {
			return ioFailure(err, "cannot set mode of %q", dirModes[i].path)
		}
	}

	r.log.Info().
		Str("archive", archivePath).
		Str("target", root).
		Int("entries", len(zr.File)).
		Msg("archive extracted")
	return nil
}

func (r *Reader) extractFile(entry *zip.File, dest string) error {
	rc, err := entry.Open()
	if err != nil {
		return formatFailure(err, "cannot extract %q", entry.Name)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			r.log.Warn().Err(err).Str("entry", entry.Name).Msg("failed to close entry")
		}
	}()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ioFailure(err, "cannot create %q", dest)
	}
	_, err = io.Copy(out, entryReader{rc})
	closeErr := out.Close()

	var rf readFailure
	switch {
	case errors.As(err, &rf):
		return formatFailure(rf.err, "cannot extract %q", entry.Name)
	case err != nil:
		return ioFailure(err, "cannot write %q", dest)
	case closeErr != nil:
		return ioFailure(closeErr, "cannot write %q", dest)
	}
	return nil
}

// entryPath maps an entry name onto the filesystem, refusing names that
// would land outside root
func entryPath(root, name string) (string, error) {
	if path.IsAbs(name) || filepath.IsAbs(filepath.FromSlash(name)) {
		return "", formatFailure(nil, "cannot extract %q: path is absolute", name)
	}
	dest := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", formatFailure(nil, "cannot extract %q: path leads out of scope", name)
	}
	return dest, nil
}

// entryMode returns the permission bits stored for entry, only entries
// written by a unix host carry any
func entryMode(entry *zip.File) (fs.FileMode, bool) {
	if entry.CreatorVersion>>8 != creatorUnix || entry.ExternalAttrs>>16 == 0 {
		return 0, false
	}
	return entry.Mode().Perm(), true
}

// readFailure marks errors that came from the archive rather than the disk
type readFailure struct {
	err error
}

func (e readFailure) Error() string {
	return e.err.Error()
}

func (e readFailure) Unwrap() error {
	return e.err
}

type entryReader struct {
	r io.Reader
}

func (er entryReader) Read(p []byte) (int, error) {
	n, err := er.r.Read(p)
	if err != nil && err != io.EOF {
		err = readFailure{err}
	}
	return n, err
}
