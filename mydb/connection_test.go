package mydb

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test connection string is correct
func TestGetConnStr(t *testing.T) {
	conn := getConnStr("/test/foo")
	assert.Equal(t, "file:/test/foo?_foreign_keys=true", conn, "Expected connection string returned")
}

// Test opening database fails
func TestOpenDBFails(t *testing.T) {
	realOpen := openDB

	openDB = func(driver string, source string) (*sql.DB, error) {
		return nil, fmt.Errorf("RIP")
	}
	defer func() { openDB = realOpen }()

	_, err := OpenDB("/tmp/fail")
	assert.ErrorContains(t, err, "RIP", "Open failure returned")
}

// Test ping database fails
func TestPingDBFails(t *testing.T) {
	realPing := pingDB

	pingDB = func(db *sql.DB) error {
		return fmt.Errorf("Ping failed")
	}
	defer func() { pingDB = realPing }()

	_, err := OpenDB(filepath.Join(t.TempDir(), "journal.db"))
	assert.ErrorContains(t, err, "Ping failed", "Ping failure returned")
}

// Check success case, with migration checked
func TestOpenDBSuccess(t *testing.T) {
	realMigrate := checkMigration

	var migrated bool = false
	checkMigration = func(_ *sql.DB) error {
		migrated = true
		return nil
	}
	defer func() { checkMigration = realMigrate }()

	db, err := OpenDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, migrated, "Check migration called")
}

// Check if sqlite3 driver cannot be made
func TestMigrationDriverFails(t *testing.T) {
	realInstance := withInstance

	withInstance = func(_ *sql.DB, _ *sqlite3.Config) (database.Driver, error) {
		return nil, fmt.Errorf("No such file")
	}
	defer func() { withInstance = realInstance }()

	assert.EqualError(t, checkMigration(&sql.DB{}), "No such file", "Driver failure returned")
}

// Check migration source doesn't exist
func TestInvalidMigrationSource(t *testing.T) {
	realInstance := withInstance
	realGet := getMigrations

	withInstance = func(_ *sql.DB, _ *sqlite3.Config) (database.Driver, error) {
		return nil, nil
	}
	getMigrations = func() (source.Driver, error) {
		return nil, fmt.Errorf("Invalid location")
	}
	defer func() {
		withInstance = realInstance
		getMigrations = realGet
	}()

	assert.EqualError(t, checkMigration(&sql.DB{}), "Invalid location", "Source failure returned")
}

func TestMigrationInstanceFails(t *testing.T) {
	realInstance := withInstance
	realMigrate := migrateInstance

	withInstance = func(_ *sql.DB, _ *sqlite3.Config) (database.Driver, error) {
		return nil, nil
	}
	migrateInstance = func(_ string, _ source.Driver, _ string, _ database.Driver) (*migrate.Migrate, error) {
		return nil, fmt.Errorf("Bad migrate")
	}
	defer func() {
		withInstance = realInstance
		migrateInstance = realMigrate
	}()

	assert.EqualError(t, checkMigration(&sql.DB{}), "Bad migrate", "Migrate failure returned")
}

// Opening twice must not fail on already applied migrations
func TestOpenDBTwice(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	db, err := OpenDB(dbPath)
	require.NoError(t, err, "First open migrates")
	require.NoError(t, db.Close())

	db, err = OpenDB(dbPath)
	require.NoError(t, err, "Second open finds no change")
	require.NoError(t, db.Close())

	require.NoError(t, DeleteDB(dbPath))
	assert.NoFileExists(t, dbPath)
	assert.NoError(t, DeleteDB(dbPath), "Deleting a missing journal is fine")
}
