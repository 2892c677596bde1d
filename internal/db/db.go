package db

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "calorie_tracker.db"

// TimestampLayout is the UTC layout stored in created_at columns.
const TimestampLayout = "2006-01-02 15:04:05"

// Now returns the current server timestamp in TimestampLayout.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// Open opens (or creates) the SQLite database file and applies pending migrations.
// Migrations are versioned .sql files under internal/db/migrations:
//
//	0001_name.up.sql / 0001_name.down.sql
//
// Only new migrations are applied. Use RollbackLast to revert the last applied migration.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := configure(d, true); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := applyMigrations(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// OpenReadOnly opens an existing database without writing to it.
// The schema must already be migrated by a writer process.
func OpenReadOnly(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		dsn += "&mode=ro"
	} else {
		dsn += "?mode=ro"
	}
	d, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := configure(d, false); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func configure(d *sql.DB, writable bool) error {
	if err := d.Ping(); err != nil {
		return err
	}
	if writable {
		// journal_mode may not be supported for in-memory databases.
		_, _ = d.Exec(`PRAGMA journal_mode=WAL`)
	}
	if _, err := d.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return err
	}
	if _, err := d.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return err
	}
	return nil
}
