package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammesonb/savestash/device"
	stasherrors "github.com/ammesonb/savestash/errors"
	"github.com/ammesonb/savestash/mydb"
	"github.com/ammesonb/savestash/record"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	return Config{
		SourceDir: filepath.Join(root, "save"),
		BackupDir: filepath.Join(root, "Backups"),
		Strategy:  StrategySibling,
		TitleID:   record.DefaultTitleID,
		Title:     record.DefaultTitle,
		Journal:   filepath.Join(root, "journal.db"),
	}
}

func writeTree(t *testing.T, root string, tree map[string]string) {
	t.Helper()
	for name, content := range tree {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		data, err := os.ReadFile(p)
		tree[filepath.ToSlash(rel)] = string(data)
		return err
	})
	require.NoError(t, err)
	return tree
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	realNow := now
	stamp := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)
	now = func() time.Time { return stamp }
	t.Cleanup(func() { now = realNow })
	return stamp
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBackupListRestore(t *testing.T) {
	fixedNow(t)
	cfg := testConfig(t)
	saves := map[string]string{
		"main.dat":         "island",
		"Villager0/a.dat":  "tom nook",
		"Villager0/b.dat":  "",
		"Villager1/pc.dat": "museum",
	}
	writeTree(t, cfg.SourceDir, saves)

	engine := newTestEngine(t, cfg)

	path, err := engine.Backup(context.Background(), "Save1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.BackupDir, "0000000000000001_Save1_2024-05-01_12-30-00.zip"), path, "Archive named after label and time")
	assert.FileExists(t, path)

	entries, err := engine.List()
	require.NoError(t, err)
	require.Len(t, entries, 2, "Sentinel plus one backup")
	assert.True(t, entries[0].IsSentinel(), "Sentinel is first")
	assert.Equal(t, "ACNH Save1 2024-05-01 12:30:00", entries[1].DisplayName)
	assert.Greater(t, entries[1].Size, int64(0), "Size reported")

	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "ruined", "extra.dat": "junk"})

	entry, restored, err := engine.Restore(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, restored, "Backup restored")
	assert.Equal(t, entries[1].ArchiveFilename, entry.ArchiveFilename)
	assert.Equal(t, saves, readTree(t, cfg.SourceDir), "Save directory matches the backup exactly")

	events, err := engine.History(0)
	require.NoError(t, err)
	require.Len(t, events, 2, "Backup and restore journaled")
	assert.Equal(t, mydb.EventRestore, events[0].Kind, "Newest first")
	assert.Equal(t, "Save1", events[0].Label)
	assert.True(t, events[0].Succeeded)
	assert.Equal(t, mydb.EventBackup, events[1].Kind)
	assert.Equal(t, entry.ArchiveFilename, events[1].Archive)
}

func TestBackupWithoutLabel(t *testing.T) {
	fixedNow(t)
	cfg := testConfig(t)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})

	path, err := newTestEngine(t, cfg).Backup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "0000000000000001_2024-05-01_12-30-00.zip", filepath.Base(path))
}

func TestRestoreSentinel(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "live"})
	engine := newTestEngine(t, cfg)

	_, err := engine.Backup(context.Background(), "Save1")
	require.NoError(t, err)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "newer"})

	entry, restored, err := engine.Restore(context.Background(), "0")
	require.NoError(t, err, "Going back is not an error")
	assert.False(t, restored, "Nothing restored")
	assert.True(t, entry.IsSentinel())
	assert.Equal(t, map[string]string{"main.dat": "newer"}, readTree(t, cfg.SourceDir), "Save directory untouched")

	events, err := engine.History(0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "Going back is not journaled")
}

func TestRestoreUnknownSelection(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.BackupDir, 0o755))

	_, _, err := newTestEngine(t, cfg).Restore(context.Background(), "7")
	assert.True(t, errors.Is(err, stasherrors.NotFound), "Unknown index is NotFound, got %v", err)
}

func TestListMissingBackupDir(t *testing.T) {
	_, err := newTestEngine(t, testConfig(t)).List()
	assert.True(t, errors.Is(err, stasherrors.NotFound), "Missing backup directory is NotFound, got %v", err)
}

func TestBackupInvalidLabel(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})

	_, err := newTestEngine(t, cfg).Backup(context.Background(), "a/b")
	assert.True(t, errors.Is(err, stasherrors.NotValid), "Separator in label is NotValid, got %v", err)
	assert.NoDirExists(t, cfg.BackupDir, "Nothing created for a rejected label")
}

func TestBackupCreateDirFails(t *testing.T) {
	realMkdir := makeBackupDir
	makeBackupDir = func(string, os.FileMode) error {
		return fmt.Errorf("read-only file system")
	}
	defer func() { makeBackupDir = realMkdir }()

	_, err := newTestEngine(t, testConfig(t)).Backup(context.Background(), "")
	assert.True(t, errors.Is(err, stasherrors.IO), "Mkdir failure is IO, got %v", err)
}

func TestBackupMissingSourceJournaled(t *testing.T) {
	cfg := testConfig(t)
	engine := newTestEngine(t, cfg)

	_, err := engine.Backup(context.Background(), "Save1")
	assert.True(t, errors.Is(err, stasherrors.NotFound), "Missing source is NotFound, got %v", err)

	events, err := engine.History(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Succeeded, "Failure journaled")
	assert.NotEmpty(t, events[0].Error)
}

func TestBackupInsufficientSpace(t *testing.T) {
	realProbe := probeDevice
	probeDevice = func(string) (device.Device, error) {
		return device.Device{MountPoint: "/mnt/tiny", AvailableSpace: 4}, nil
	}
	defer func() { probeDevice = realProbe }()

	cfg := testConfig(t)
	cfg.SpaceCheck = true
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "much more than four bytes"})

	_, err := newTestEngine(t, cfg).Backup(context.Background(), "Save1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, stasherrors.IO), "Shortage is IO, got %v", err)
	assert.Contains(t, err.Error(), "insufficient space")

	entries, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "No archive written")
}

func TestBackupProbeFailureContinues(t *testing.T) {
	realProbe := probeDevice
	probeDevice = func(string) (device.Device, error) {
		return device.Device{}, fmt.Errorf("no usage for you")
	}
	defer func() { probeDevice = realProbe }()

	cfg := testConfig(t)
	cfg.SpaceCheck = true
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})

	path, err := newTestEngine(t, cfg).Backup(context.Background(), "")
	require.NoError(t, err, "Probe failure only warns")
	assert.FileExists(t, path)
}

func TestBackupSpaceCheckPasses(t *testing.T) {
	cfg := testConfig(t)
	cfg.SpaceCheck = true
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})

	path, err := newTestEngine(t, cfg).Backup(context.Background(), "")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestJournalUnavailable(t *testing.T) {
	realOpen := openJournal
	openJournal = func(string) (*sql.DB, error) {
		return nil, fmt.Errorf("disk I/O error")
	}
	defer func() { openJournal = realOpen }()

	cfg := testConfig(t)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})
	engine := newTestEngine(t, cfg)

	_, err := engine.Backup(context.Background(), "Save1")
	assert.NoError(t, err, "Backups work without a journal")

	_, err = engine.History(10)
	assert.True(t, errors.Is(err, stasherrors.NotValid), "History needs a journal, got %v", err)
}

func TestJournalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal = ""

	_, err := newTestEngine(t, cfg).History(0)
	assert.True(t, errors.Is(err, stasherrors.NotValid))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg.BackupDir), "journal.db"))
}

func TestNewEngineBadTitleID(t *testing.T) {
	cfg := testConfig(t)
	cfg.TitleID = "01"

	_, err := NewEngine(cfg, zerolog.Nop())
	assert.True(t, errors.Is(err, stasherrors.NotValid))
}

func TestRestoreWithBackupsInsideSaves(t *testing.T) {
	realNow := now
	stamp := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)
	now = func() time.Time {
		stamp = stamp.Add(time.Minute)
		return stamp
	}
	defer func() { now = realNow }()

	cfg := testConfig(t)
	cfg.BackupDir = filepath.Join(cfg.SourceDir, "Backups")
	writeTree(t, cfg.SourceDir, map[string]string{"a.txt": "A"})
	engine := newTestEngine(t, cfg)

	_, err := engine.Backup(context.Background(), "A")
	require.NoError(t, err)
	writeTree(t, cfg.SourceDir, map[string]string{"a.txt": "B"})
	_, err = engine.Backup(context.Background(), "B")
	require.NoError(t, err)

	writeTree(t, cfg.SourceDir, map[string]string{"a.txt": "ruined"})
	entry, restored, err := engine.Restore(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, "B", entry.Record.Label, "Newest backup first")

	data, err := os.ReadFile(filepath.Join(cfg.SourceDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(data), "Save data restored")

	entries, err := engine.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3, "Both backups survive the restore")
}

func TestBackupSpaceCheckLogsRemaining(t *testing.T) {
	realProbe := probeDevice
	probeDevice = func(string) (device.Device, error) {
		return device.Device{MountPoint: "/mnt/card", AvailableSpace: 1000}, nil
	}
	defer func() { probeDevice = realProbe }()

	cfg := testConfig(t)
	cfg.SpaceCheck = true
	cfg.Journal = ""
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": strings.Repeat("x", 100)})

	var buf bytes.Buffer
	engine, err := NewEngine(cfg, zerolog.New(&buf))
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.Backup(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"left":"900 B"`, "Free space after the archive logged")
	assert.Contains(t, buf.String(), `"needed":"100 B"`)
}

func TestClearHistory(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})
	engine := newTestEngine(t, cfg)

	_, err := engine.Backup(context.Background(), "")
	require.NoError(t, err)
	require.FileExists(t, cfg.Journal)

	require.NoError(t, engine.ClearHistory())
	assert.NoFileExists(t, cfg.Journal, "Journal deleted")

	_, err = engine.History(0)
	assert.True(t, errors.Is(err, stasherrors.NotValid), "No journal after clearing")

	fresh := newTestEngine(t, cfg)
	events, err := fresh.History(0)
	require.NoError(t, err)
	assert.Empty(t, events, "New journal starts empty")
}

func TestClearHistoryFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal = ""
	err := newTestEngine(t, cfg).ClearHistory()
	assert.True(t, errors.Is(err, stasherrors.NotValid), "Nothing to clear")

	realDelete := deleteJournal
	deleteJournal = func(string) error { return fmt.Errorf("permission denied") }
	defer func() { deleteJournal = realDelete }()

	err = newTestEngine(t, testConfig(t)).ClearHistory()
	assert.True(t, errors.Is(err, stasherrors.IO), "Delete failure is IO, got %v", err)
}

func TestRestoreCancelledIsNotNothingRestored(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.SourceDir, map[string]string{"main.dat": "x"})
	engine := newTestEngine(t, cfg)
	_, err := engine.Backup(context.Background(), "Save1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, restored, err := engine.Restore(ctx, "1")
	assert.False(t, restored)
	assert.True(t, errors.Is(err, stasherrors.Cancelled), "Interrupted restore is reported, got %v", err)
}
