package mydb

import (
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Just included for the driver
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var openDB = sql.Open
var withInstance = sqlite3.WithInstance
var migrateInstance = migrate.NewWithInstance

// getConnStr returns a DSN for a given database path
func getConnStr(dbPath string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=true", dbPath)
}

// OpenDB opens the journal at dbPath, creating and migrating it as needed
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := openDB("sqlite3", getConnStr(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", dbPath, err)
	}

	if err = pingDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach journal %s: %w", dbPath, err)
	}

	if err = checkMigration(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal %s: %w", dbPath, err)
	}

	return db, nil
}

// DeleteDB removes the journal file at dbPath
func DeleteDB(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Pings a DB for liveliness - variable for mocking in tests
var pingDB = func(db *sql.DB) error {
	return db.Ping()
}

// Check database for any needed migrations
var checkMigration = func(db *sql.DB) error {
	driver, err := withInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}

	migrationSource, err := getMigrations()
	if err != nil {
		return err
	}

	migration, err := migrateInstance("iofs", migrationSource, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

var getMigrations = func() (source.Driver, error) {
	return iofs.New(migrations, "migrations")
}
