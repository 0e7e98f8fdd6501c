package mydb

import (
	"database/sql"
	"fmt"
	"time"
)

// EventBackup marks an archive being written
const EventBackup = "backup"

// EventRestore marks a save directory being restored
const EventRestore = "restore"

// Event is one journaled backup or restore attempt
type Event struct {
	EventID int64
	// EventBackup or EventRestore
	Kind string
	// Archive filename, relative to the backup directory
	Archive string
	Label   string
	// When the attempt began, stored with second resolution
	StartedAt time.Time
	Duration  time.Duration
	Succeeded bool
	// Error text of a failed attempt
	Error string
}

// AddEvent stores a new event and returns it with its ID set
func AddEvent(db *sql.DB, event Event) (Event, error) {
	if event.Kind != EventBackup && event.Kind != EventRestore {
		return Event{}, fmt.Errorf("%q is not a recognized event kind", event.Kind)
	}

	res, err := db.Exec(`
    INSERT INTO events (
      kind,
      archive,
      label,
      startedAt,
      durationMs,
      succeeded,
      error
    )
    VALUES ($1, $2, $3, $4, $5, $6, $7)
  `,
		event.Kind,
		event.Archive,
		event.Label,
		event.StartedAt.Unix(),
		event.Duration.Milliseconds(),
		event.Succeeded,
		event.Error,
	)
	if err != nil {
		return Event{}, err
	}

	event.EventID, err = res.LastInsertId()
	return event, err
}

// GetEvents returns up to limit events, newest first
// A limit of zero or less returns everything
func GetEvents(db *sql.DB, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
    SELECT eventID, kind, archive, label, startedAt, durationMs, succeeded, error
    FROM events
    ORDER BY startedAt DESC, eventID DESC
    LIMIT $1
  `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var (
			event      Event
			startedAt  int64
			durationMs int64
		)
		err := rows.Scan(
			&event.EventID,
			&event.Kind,
			&event.Archive,
			&event.Label,
			&startedAt,
			&durationMs,
			&event.Succeeded,
			&event.Error,
		)
		if err != nil {
			return nil, err
		}

		event.StartedAt = time.Unix(startedAt, 0)
		event.Duration = time.Duration(durationMs) * time.Millisecond
		events = append(events, event)
	}

	return events, rows.Err()
}
