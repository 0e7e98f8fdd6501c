// Package restore replaces a live save directory with the contents of a
// backup archive.
package restore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/ammesonb/savestash/catalog"
	stasherrors "github.com/ammesonb/savestash/errors"
)

var statPath = os.Stat
var removeAll = os.RemoveAll
var mkdirAll = os.MkdirAll
var readDir = os.ReadDir

// Extractor populates a directory from an archive
type Extractor interface {
	Extract(ctx context.Context, archivePath, targetDir string) error
}

// Coordinator restores catalog entries over TargetDir
type Coordinator struct {
	TargetDir string
	BackupDir string
	Extractor Extractor
	Log       zerolog.Logger
}

// ArchivePath returns where the archive for entry lives
func (c *Coordinator) ArchivePath(entry catalog.Entry) string {
	return filepath.Join(c.BackupDir, entry.ArchiveFilename)
}

// Restore deletes TargetDir, recreates it empty and extracts entry into it.
//
// This is destructive. Nothing of the previous TargetDir is kept, and a
// failed extraction leaves it partially restored. When BackupDir lies inside
// TargetDir only the rest of TargetDir is deleted, the backups stay. A
// BackupDir equal to TargetDir is refused. The sentinel entry returns a
// Cancelled error without touching the filesystem.
func (c *Coordinator) Restore(ctx context.Context, entry catalog.Entry) error {
	if entry.IsSentinel() {
		return errors.WithType(errors.New("restore not requested"), stasherrors.Cancelled)
	}

	archivePath := c.ArchivePath(entry)
	info, err := statPath(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NotFoundf("archive %q", archivePath)
		}
		return errors.WithType(errors.Annotatef(err, "cannot read archive %q", archivePath), stasherrors.IO)
	}
	if info.IsDir() {
		return errors.WithType(errors.Errorf("archive %q is a directory", archivePath), stasherrors.IO)
	}

	target, err := filepath.Abs(c.TargetDir)
	if err != nil {
		return errors.WithType(errors.Annotatef(err, "cannot resolve %q", c.TargetDir), stasherrors.IO)
	}
	backups, err := filepath.Abs(c.BackupDir)
	if err != nil {
		return errors.WithType(errors.Annotatef(err, "cannot resolve %q", c.BackupDir), stasherrors.IO)
	}
	if target == backups {
		return errors.NotValidf("restoring over the backup directory %q", c.BackupDir)
	}

	c.Log.Info().Str("target", c.TargetDir).Str("archive", archivePath).Msg("wiping target")
	if within(backups, target) {
		if err := clearExcept(target, backups); err != nil {
			return err
		}
	} else {
		if err := removeAll(c.TargetDir); err != nil {
			return errors.WithType(errors.Annotatef(err, "cannot remove %q", c.TargetDir), stasherrors.IO)
		}
		if err := mkdirAll(c.TargetDir, 0o755); err != nil {
			return errors.WithType(errors.Annotatef(err, "cannot recreate %q", c.TargetDir), stasherrors.IO)
		}
	}

	if err := c.Extractor.Extract(ctx, archivePath, c.TargetDir); err != nil {
		c.Log.Error().Err(err).Str("target", c.TargetDir).Msg("restore failed, target is partially restored")
		return errors.Trace(err)
	}
	return nil
}

// clearExcept removes everything below dir apart from keep and the
// directories leading down to it
func clearExcept(dir, keep string) error {
	entries, err := readDir(dir)
	if err != nil {
		return errors.WithType(errors.Annotatef(err, "cannot list %q", dir), stasherrors.IO)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if path == keep {
			continue
		}
		if entry.IsDir() && within(keep, path) {
			if err := clearExcept(path, keep); err != nil {
				return err
			}
			continue
		}
		if err := removeAll(path); err != nil {
			return errors.WithType(errors.Annotatef(err, "cannot remove %q", path), stasherrors.IO)
		}
	}
	return nil
}

// within reports whether path lies strictly below root, both absolute
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
