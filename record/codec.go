package record

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/juju/errors"

	stasherrors "github.com/ammesonb/savestash/errors"
)

const (
	dateLayout    = "2006-01-02"
	timeLayout    = "15-04-05"
	displayLayout = "2006-01-02 15:04:05"
	extension     = ".zip"
)

var titleIDPattern = regexp.MustCompile(`^\d{16}$`)

// Codec maps backup metadata to archive filenames and back
type Codec interface {
	// Encode returns the archive filename for a backup taken at timestamp
	// An empty label selects the unlabeled form
	Encode(label string, timestamp time.Time) string
	// Decode recovers the record for filename
	// ok is false when filename is not one of ours and must be shown as is
	Decode(filename string) (rec Record, ok bool)
	// DisplayName renders a decoded record for humans
	DisplayName(rec Record) string
}

// FilenameCodec stores the record in the archive filename itself:
//
//	<id>_<label>_<YYYY-MM-DD>_<HH-MM-SS>.zip
//	<id>_<YYYY-MM-DD>_<HH-MM-SS>.zip
type FilenameCodec struct {
	titleID  string
	title    string
	location *time.Location

	withLabel    *regexp.Regexp
	withoutLabel *regexp.Regexp
}

// NewFilenameCodec builds a codec for the given 16 digit title ID
// Timestamps are written and parsed in loc, time.Local when nil
func NewFilenameCodec(titleID, title string, loc *time.Location) (*FilenameCodec, error) {
	if !titleIDPattern.MatchString(titleID) {
		return nil, errors.NotValidf("title id %q (want 16 digits)", titleID)
	}
	if loc == nil {
		loc = time.Local
	}
	if title == "" {
		title = DefaultTitle
	}

	id := regexp.QuoteMeta(titleID)
	return &FilenameCodec{
		titleID:      titleID,
		title:        title,
		location:     loc,
		withLabel:    regexp.MustCompile(`^` + id + `_(.+)_(\d{4}-\d{2}-\d{2})_(\d{2}-\d{2}-\d{2})\.zip$`),
		withoutLabel: regexp.MustCompile(`^` + id + `_(\d{4}-\d{2}-\d{2})_(\d{2}-\d{2}-\d{2})\.zip$`),
	}, nil
}

// TitleID returns the identifier every encoded filename starts with
func (c *FilenameCodec) TitleID() string {
	return c.titleID
}

// Encode implements Codec
func (c *FilenameCodec) Encode(label string, timestamp time.Time) string {
	stamp := timestamp.In(c.location).Format(dateLayout + "_" + timeLayout)
	if label == "" {
		return fmt.Sprintf("%s_%s%s", c.titleID, stamp, extension)
	}
	return fmt.Sprintf("%s_%s_%s%s", c.titleID, label, stamp, extension)
}

// Decode implements Codec
// The unlabeled grammar is tried first. The label capture is greedy and the
// date/time is anchored to the end, so a label may itself contain '_' or
// something that looks like a date.
func (c *FilenameCodec) Decode(filename string) (Record, bool) {
	var label, date, clock string

	if m := c.withoutLabel.FindStringSubmatch(filename); m != nil {
		date, clock = m[1], m[2]
	} else if m := c.withLabel.FindStringSubmatch(filename); m != nil {
		label, date, clock = m[1], m[2], m[3]
	} else {
		return Record{}, false
	}

	timestamp, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, c.location)
	if err != nil {
		return Record{}, false
	}

	return Record{
		ID:              c.titleID,
		Label:           label,
		Timestamp:       timestamp,
		ArchiveFilename: filename,
	}, true
}

// DisplayName implements Codec
func (c *FilenameCodec) DisplayName(rec Record) string {
	stamp := rec.Timestamp.In(c.location).Format(displayLayout)
	if !rec.HasLabel() {
		return fmt.Sprintf("%s %s", c.title, stamp)
	}
	return fmt.Sprintf("%s %s %s", c.title, rec.Label, stamp)
}

// New creates the record for a backup taken now
func New(c Codec, titleID, label string, now time.Time) Record {
	now = now.Truncate(time.Second)
	return Record{
		ID:              titleID,
		Label:           label,
		Timestamp:       now,
		ArchiveFilename: c.Encode(label, now),
	}
}

// ValidateLabel rejects labels that cannot be a single filename component
// or would not survive a decode
func ValidateLabel(label string) error {
	if strings.ContainsAny(label, "/\\") || strings.IndexFunc(label, unicode.IsControl) >= 0 {
		return errors.WithType(
			errors.Errorf("label %q contains a path separator or control character", label),
			stasherrors.NotValid,
		)
	}
	return nil
}
