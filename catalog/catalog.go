// Package catalog lists the backups found in a backup directory.
package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/maruel/natural"
	"github.com/samber/lo"

	"github.com/ammesonb/savestash/archive"
	stasherrors "github.com/ammesonb/savestash/errors"
	"github.com/ammesonb/savestash/record"
)

// GoBack is shown for the entry that leaves the selection without restoring
const GoBack = "Go back"

var readDir = os.ReadDir
var statFile = os.Stat

// Entry is one selectable line of a listing
type Entry struct {
	DisplayName     string
	ArchiveFilename string
	// Record is nil for the sentinel and for files the codec does not know
	Record *record.Record
	// Size of the archive in bytes
	Size int64

	sentinel bool
}

// IsSentinel reports whether the entry is the "go back" choice
func (e Entry) IsSentinel() bool {
	return e.sentinel
}

// IsOpaque reports whether the archive name could not be decoded
func (e Entry) IsOpaque() bool {
	return !e.sentinel && e.Record == nil
}

// Sentinel returns the "go back" entry
func Sentinel() Entry {
	return Entry{DisplayName: GoBack, sentinel: true}
}

// List returns the archives in backupDir with the sentinel first.
// Decoded backups follow, newest first, then files the codec could not
// decode in natural filename order. A missing backupDir is a NotFound error.
func List(backupDir string, codec record.Codec) ([]Entry, error) {
	dirEntries, err := readDir(backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFoundf("backup directory %q", backupDir)
		}
		return nil, errors.WithType(errors.Annotatef(err, "cannot list %q", backupDir), stasherrors.IO)
	}

	candidates := lo.Filter(dirEntries, func(d fs.DirEntry, _ int) bool {
		return strings.EqualFold(filepath.Ext(d.Name()), archive.Extension)
	})

	var decoded, opaque []Entry
	for _, d := range candidates {
		// Stat follows symlinks, a link to a regular archive is listed.
		info, err := statFile(filepath.Join(backupDir, d.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		name := d.Name()
		rec, ok := codec.Decode(name)
		if !ok {
			opaque = append(opaque, Entry{DisplayName: name, ArchiveFilename: name, Size: info.Size()})
			continue
		}
		decoded = append(decoded, Entry{
			DisplayName:     codec.DisplayName(rec),
			ArchiveFilename: name,
			Record:          &rec,
			Size:            info.Size(),
		})
	}

	sort.SliceStable(decoded, func(i, j int) bool {
		ti, tj := decoded[i].Record.Timestamp, decoded[j].Record.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return decoded[i].ArchiveFilename < decoded[j].ArchiveFilename
	})
	sort.SliceStable(opaque, func(i, j int) bool {
		return natural.Less(opaque[i].ArchiveFilename, opaque[j].ArchiveFilename)
	})

	entries := make([]Entry, 0, 1+len(decoded)+len(opaque))
	entries = append(entries, Sentinel())
	entries = append(entries, decoded...)
	return append(entries, opaque...), nil
}

// Select picks an entry by its index in entries or by archive filename
func Select(entries []Entry, selector string) (Entry, error) {
	if idx, err := strconv.Atoi(selector); err == nil {
		if idx < 0 || idx >= len(entries) {
			return Entry{}, errors.NotFoundf("backup #%d", idx)
		}
		return entries[idx], nil
	}

	entry, ok := lo.Find(entries, func(e Entry) bool {
		return !e.sentinel && e.ArchiveFilename == selector
	})
	if !ok {
		return Entry{}, errors.NotFoundf("backup %q", selector)
	}
	return entry, nil
}
