package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/ammesonb/savestash/archive"
	"github.com/ammesonb/savestash/catalog"
	"github.com/ammesonb/savestash/device"
	stasherrors "github.com/ammesonb/savestash/errors"
	"github.com/ammesonb/savestash/mydb"
	"github.com/ammesonb/savestash/record"
	"github.com/ammesonb/savestash/restore"
)

var openJournal = mydb.OpenDB
var addEvent = mydb.AddEvent
var getEvents = mydb.GetEvents
var deleteJournal = mydb.DeleteDB
var probeDevice = device.ForPath
var treeSize = archive.TreeSize
var makeBackupDir = os.MkdirAll
var now = time.Now

// Engine runs backups and restores for one configured save directory
type Engine struct {
	cfg    Config
	codec  *record.FilenameCodec
	writer *archive.Writer
	reader *archive.Reader
	db     *sql.DB
	log    zerolog.Logger

	// Used for the label prompt
	In  io.Reader
	Out io.Writer
}

// NewEngine builds an engine for cfg
// An unusable journal is logged and leaves the engine without one
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	codec, err := record.NewFilenameCodec(cfg.TitleID, cfg.Title, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}

	e := &Engine{
		cfg:    cfg,
		codec:  codec,
		writer: archive.NewWriter(archive.WithLogger(log)),
		reader: archive.NewReader(archive.WithLogger(log)),
		log:    log,
		In:     os.Stdin,
		Out:    os.Stdout,
	}

	if cfg.Journal != "" {
		db, err := openJournal(cfg.Journal)
		if err != nil {
			log.Warn().Err(err).Str("journal", cfg.Journal).Msg("journal unavailable, continuing without it")
		} else {
			e.db = db
		}
	}
	return e, nil
}

// Close releases the journal
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Backup archives the save directory under label, returning the archive path
func (e *Engine) Backup(ctx context.Context, label string) (string, error) {
	if err := record.ValidateLabel(label); err != nil {
		return "", errors.Trace(err)
	}
	if err := makeBackupDir(e.cfg.BackupDir, 0o755); err != nil {
		return "", errors.WithType(errors.Annotatef(err, "cannot create backup directory %q", e.cfg.BackupDir), stasherrors.IO)
	}

	if e.cfg.SpaceCheck {
		if err := e.checkSpace(); err != nil {
			return "", err
		}
	}

	started := now()
	rec := record.New(e.codec, e.codec.TitleID(), label, started)
	archivePath := filepath.Join(e.cfg.BackupDir, rec.ArchiveFilename)

	e.log.Info().Str("source", e.cfg.SourceDir).Str("archive", archivePath).Msg("backing up")
	err := e.writer.Write(ctx, e.cfg.SourceDir, archivePath)
	e.journal(mydb.Event{
		Kind:      mydb.EventBackup,
		Archive:   rec.ArchiveFilename,
		Label:     label,
		StartedAt: started,
		Duration:  time.Since(started),
	}, err)
	if err != nil {
		return "", errors.Trace(err)
	}
	return archivePath, nil
}

// checkSpace refuses a backup the backup device cannot hold
// Only an actual shortage is an error, a failed probe is logged and ignored
func (e *Engine) checkSpace() error {
	size, err := treeSize(e.cfg.SourceDir)
	if err != nil {
		// The writer reports a missing or unreadable source properly
		e.log.Debug().Err(err).Msg("cannot size source, skipping space check")
		return nil
	}

	dev, err := probeDevice(e.cfg.BackupDir)
	if err != nil {
		e.log.Warn().Err(err).Str("backup_dir", e.cfg.BackupDir).Msg("cannot probe free space")
		return nil
	}
	if !dev.Fits(size) {
		return errors.WithType(
			errors.Errorf(
				"insufficient space on %s: need %s, %s free",
				dev.MountPoint,
				humanize.Bytes(uint64(size)),
				humanize.Bytes(dev.RemainingSpace()),
			),
			stasherrors.IO,
		)
	}
	// What the device keeps once the archive is written, at most
	dev.ReserveSpace(size)
	e.log.Info().
		Str("mount", dev.MountPoint).
		Str("needed", humanize.Bytes(uint64(size))).
		Str("left", humanize.Bytes(dev.RemainingSpace())).
		Msg("space check passed")
	return nil
}

// List returns the backup catalog, sentinel first
func (e *Engine) List() ([]catalog.Entry, error) {
	entries, err := catalog.List(e.cfg.BackupDir, e.codec)
	return entries, errors.Trace(err)
}

// Restore replaces the save directory with the backup chosen by selector,
// an index into List or an archive filename. Choosing the sentinel returns
// false and a nil error without touching anything.
func (e *Engine) Restore(ctx context.Context, selector string) (catalog.Entry, bool, error) {
	entries, err := e.List()
	if err != nil {
		return catalog.Entry{}, false, err
	}
	entry, err := catalog.Select(entries, selector)
	if err != nil {
		return catalog.Entry{}, false, errors.Trace(err)
	}

	coordinator := restore.Coordinator{
		TargetDir: e.cfg.SourceDir,
		BackupDir: e.cfg.BackupDir,
		Extractor: e.reader,
		Log:       e.log,
	}

	started := now()
	err = coordinator.Restore(ctx, entry)
	if entry.IsSentinel() && errors.Is(err, stasherrors.Cancelled) {
		e.log.Info().Msg("nothing restored")
		return entry, false, nil
	}

	event := mydb.Event{
		Kind:      mydb.EventRestore,
		Archive:   entry.ArchiveFilename,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if entry.Record != nil {
		event.Label = entry.Record.Label
	}
	e.journal(event, err)
	if err != nil {
		return entry, false, errors.Trace(err)
	}
	return entry, true, nil
}

// History returns up to limit journal events, newest first
func (e *Engine) History(limit int) ([]mydb.Event, error) {
	if e.db == nil {
		return nil, errors.WithType(errors.New("journal is disabled or unavailable"), stasherrors.NotValid)
	}
	events, err := getEvents(e.db, limit)
	if err != nil {
		return nil, errors.WithType(errors.Annotate(err, "cannot read journal"), stasherrors.IO)
	}
	return events, nil
}

// ClearHistory deletes the journal, a later run starts a fresh one
func (e *Engine) ClearHistory() error {
	if e.cfg.Journal == "" {
		return errors.WithType(errors.New("journal is disabled"), stasherrors.NotValid)
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn().Err(err).Msg("failed to close journal")
		}
		e.db = nil
	}
	if err := deleteJournal(e.cfg.Journal); err != nil {
		return errors.WithType(errors.Annotatef(err, "cannot delete journal %q", e.cfg.Journal), stasherrors.IO)
	}
	e.log.Info().Str("journal", e.cfg.Journal).Msg("journal cleared")
	return nil
}

// journal records the outcome of an operation, errors are only logged
func (e *Engine) journal(event mydb.Event, opErr error) {
	if e.db == nil {
		return
	}
	event.Succeeded = opErr == nil
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if _, err := addEvent(e.db, event); err != nil {
		e.log.Warn().Err(err).Str("kind", event.Kind).Msg("failed to journal event")
	}
}
