package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS url_records (
    id               INTEGER PRIMARY KEY,
    address          TEXT UNIQUE NOT NULL,
    title            TEXT DEFAULT '',
    domain           TEXT DEFAULT '',
    category         INTEGER NOT NULL DEFAULT 0,
    provenance       TEXT NOT NULL DEFAULT '',
    first_seen       DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_categorized DATETIME
);
CREATE TABLE IF NOT EXISTS url_events (
    id          INTEGER PRIMARY KEY,
    record_id   INTEGER NOT NULL REFERENCES url_records(id) ON DELETE CASCADE,
    event_type  TEXT NOT NULL,
    instance_id INTEGER DEFAULT 0,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "add saved flag to url_records",
		SQL:         `ALTER TABLE url_records ADD COLUMN saved BOOLEAN DEFAULT 0;`,
	},
	{
		Version:     3,
		Description: "index domain and event lookups",
		SQL: `
CREATE INDEX idx_url_records_domain ON url_records(domain);
CREATE INDEX idx_url_events_record ON url_events(record_id, created_at);`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	// Create parent directory if needed.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Pragmas go in the DSN so the driver applies them to every pooled
	// connection; a plain Exec only reaches the one connection the pool
	// hands out for that statement.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Run migrations.
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists, detects which
// migrations have already been applied, and runs any pending ones.
func runMigrations(db *sql.DB) error {
	// Create the migrations tracking table.
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	// Apply pending migrations in order.
	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabtriage/tabtriage.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabtriage", "tabtriage.db"), nil
}
