package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EntriesTable is the name of the single table backing the filesystem.
const EntriesTable = "entries"

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the entries table and its indexes.
// It is idempotent and can be run multiple times safely.
//
// Timestamps are stored as millisecond-precision text
// (strftime '%Y-%m-%d %H:%M:%f'). The accessed_at column and the
// str1/str2/int1/int2/num1/text1 columns are reserved and never written or
// read by any current operation; they are kept so the on-disk table stays
// compatible with earlier deployments.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			parent_id INTEGER NOT NULL DEFAULT 0,
			is_folder INTEGER NOT NULL DEFAULT 0,
			content TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			modified_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
			accessed_at TEXT,
			str1 TEXT,
			str2 TEXT,
			int1 INTEGER,
			int2 INTEGER,
			num1 REAL,
			text1 TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_is_folder ON entries(is_folder);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_modified ON entries(modified_at);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
