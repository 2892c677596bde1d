package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// noTxMarker as the first line of a script runs it outside a transaction.
const noTxMarker = "-- NO_TX"

type migration struct {
	version int
	name    string
	up      string
	down    string
}

var migrationName = regexp.MustCompile(`^(\d{4})_(.+)\.(up|down)\.sql$`)

// migrations lists the embedded scripts ordered by version.
func migrations() ([]migration, error) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	byVersion := map[int]*migration{}
	for _, file := range files {
		parts := migrationName.FindStringSubmatch(path.Base(file))
		if parts == nil {
			continue
		}
		v, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		m := byVersion[v]
		if m == nil {
			m = &migration{version: v, name: parts[2]}
			byVersion[v] = m
		}
		if parts[3] == "up" {
			m.up = file
		} else {
			m.down = file
		}
	}
	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

func ensureMigrationsTable(d *sql.DB) error {
	_, err := d.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
	)`)
	return err
}

// Version reports the highest applied migration, or 0 for a fresh database.
func Version(d *sql.DB) (int, error) {
	if err := ensureMigrationsTable(d); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := d.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func applyMigrations(d *sql.DB) error {
	all, err := migrations()
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(d); err != nil {
		return err
	}
	for _, m := range all {
		var applied bool
		if err := d.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, m.version).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}
		if m.up == "" {
			return fmt.Errorf("migration %04d_%s has no up script", m.version, m.name)
		}
		if err := runScript(d, m.up, `INSERT INTO schema_migrations(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("migration %04d_%s failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

// RollbackLast reverts the most recently applied migration. It is a no-op on
// a database with no applied migrations.
func RollbackLast(d *sql.DB) error {
	if d == nil {
		return errors.New("nil db")
	}
	v, err := Version(d)
	if err != nil || v == 0 {
		return err
	}
	all, err := migrations()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(m migration) bool { return m.version == v })
	if i < 0 || all[i].down == "" {
		return fmt.Errorf("no down migration found for version %d", v)
	}
	return runScript(d, all[i].down, `DELETE FROM schema_migrations WHERE version = ?`, v)
}

// runScript executes an embedded script together with its bookkeeping
// statement in one transaction, unless the script starts with noTxMarker.
func runScript(d *sql.DB, file, bookkeeping string, version int) error {
	raw, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	text := string(raw)
	if strings.HasPrefix(strings.TrimSpace(text), noTxMarker) {
		if _, err := d.Exec(text); err != nil {
			return err
		}
		_, err := d.Exec(bookkeeping, version)
		return err
	}

	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(text); err != nil {
		return err
	}
	if _, err := tx.Exec(bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}
