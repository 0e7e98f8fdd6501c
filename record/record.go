package record

import "time"

// DefaultTitleID identifies the save slot the default configuration backs up
const DefaultTitleID = "0000000000000001"

// DefaultTitle is the short game name shown in front of decoded backups
const DefaultTitle = "ACNH"

// Record contains the metadata of one backup archive
// Everything in it is recoverable from ArchiveFilename alone
type Record struct {
	// The 16 digit identifier of the backed-up title
	ID string
	// Optional, empty when the backup was made without one
	Label string
	// Local wall-clock time of the backup, second resolution
	Timestamp time.Time
	// Name of the archive inside the backup directory
	ArchiveFilename string
}

// HasLabel reports whether the backup was named by the user
func (rec Record) HasLabel() bool {
	return rec.Label != ""
}
