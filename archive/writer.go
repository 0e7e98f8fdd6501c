package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"

	stasherrors "github.com/ammesonb/savestash/errors"
)

// Seams for failure injection in tests
var (
	createTemp = os.CreateTemp
	renameFile = os.Rename
)

// tempPattern keeps in-progress archives out of catalog listings
const tempPattern = ".savestash-*.part"

// Writer snapshots directory trees into archives
type Writer struct {
	options
}

// NewWriter returns a Writer
func NewWriter(opts ...Option) *Writer {
	return &Writer{newOptions(opts)}
}

// Write archives every directory and regular file below sourceDir into
// archivePath, replacing any file already there.
// The archive is assembled under a temporary name next to archivePath and
// only renamed into place once complete, so a failed Write never leaves a
// half written archive behind.
func (w *Writer) Write(ctx context.Context, sourceDir, archivePath string) (err error) {
	root, err := filepath.Abs(sourceDir)
	if err != nil {
		return ioFailure(err, "cannot resolve source %q", sourceDir)
	}
	info, err := os.Stat(root)
	if err != nil {
		return ioFailure(err, "cannot read source %q", sourceDir)
	}
	if !info.IsDir() {
		return errors.WithType(errors.Errorf("source %q is not a directory", sourceDir), stasherrors.IO)
	}

	destination, err := filepath.Abs(archivePath)
	if err != nil {
		return ioFailure(err, "cannot resolve archive path %q", archivePath)
	}

	tmp, err := createTemp(filepath.Dir(destination), tempPattern)
	if err != nil {
		return ioFailure(err, "cannot create archive in %q", filepath.Dir(destination))
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			w.log.Warn().Err(rmErr).Str("path", tmpPath).Msg("failed to remove partial archive")
		}
	}()

	skip := map[string]bool{tmpPath: true, destination: true}
	zw := zip.NewWriter(tmp)
	var entries int
	var size int64

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return ioFailure(walkErr, "cannot read %q", path)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}
		if path == root || skip[path] {
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			w.log.Warn().Str("path", path).Str("type", d.Type().String()).Msg("skipping irregular file")
			return nil
		}

		n, addErr := w.add(zw, root, path, d)
		if addErr != nil {
			return addErr
		}
		entries++
		size += n
		return nil
	})
	if err != nil {
		return err
	}

	if err = zw.Close(); err != nil {
		return ioFailure(err, "cannot finish archive %q", archivePath)
	}
	if err = tmp.Close(); err != nil {
		return ioFailure(err, "cannot finish archive %q", archivePath)
	}
	closed = true
	if err = renameFile(tmpPath, destination); err != nil {
		return ioFailure(err, "cannot move archive into place at %q", archivePath)
	}

	w.log.Info().
		Str("source", root).
		Str("archive", destination).
		Int("entries", entries).
		Str("size", humanize.Bytes(uint64(size))).
		Msg("archive written")
	return nil
}

// add writes one entry and returns the number of content bytes stored
func (w *Writer) add(zw *zip.Writer, root, path string, d fs.DirEntry) (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, ioFailure(err, "cannot stat %q", path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0, errors.Trace(err)
	}

	hdr := &zip.FileHeader{
		Name:     filepath.ToSlash(rel),
		Modified: info.ModTime(),
		Method:   zip.Deflate,
	}
	if d.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
	}
	if mode, ok := w.perms.Capture(info); ok {
		if d.IsDir() {
			mode |= fs.ModeDir
		}
		hdr.SetMode(mode)
	}

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, ioFailure(err, "cannot add %q", hdr.Name)
	}
	w.log.Debug().Str("entry", hdr.Name).Msg("adding")
	if d.IsDir() {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, ioFailure(err, "cannot open %q", path)
	}
	defer func() {
		if err := f.Close(); err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("failed to close file")
		}
	}()

	n, err := io.Copy(entry, f)
	if err != nil {
		return n, ioFailure(err, "cannot store %q", path)
	}
	return n, nil
}

// TreeSize returns the total size of the regular files below dir, an upper
// bound for the archive it produces before compression and headers
func TreeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return ioFailure(walkErr, "cannot read %q", path)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return ioFailure(err, "cannot stat %q", path)
		}
		total += info.Size()
		return nil
	})
	return total, err
}
