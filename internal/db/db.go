// Package db provides SQLite storage for mailwatch: fetch state, the
// credential cache, stored incidents and uploaded files.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Memory opens a private in-memory database, used by tests.
const Memory = ":memory:"

// DirName is the per-project directory holding the database.
const DirName = ".mailwatch"

// DB wraps a SQLite connection for mailwatch operations.
type DB struct {
	conn *sqlx.DB
	path string
}

// Open opens (or creates) a mailwatch database at the given path and
// applies any pending migrations.
func Open(dbPath string) (*DB, error) {
	if dbPath != Memory {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	conn, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One invocation, one connection. This also keeps :memory: databases
	// from splitting across pooled connections.
	conn.SetMaxOpenConns(1)

	d := &DB{conn: conn, path: dbPath}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DiscoverDB finds the mailwatch database by walking up from cwd.
// Returns the path to .mailwatch/mailwatch.db or empty string if not found.
func DiscoverDB() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName, "mailwatch.db")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// FindProjectRoot walks up from cwd looking for a .git directory.
func FindProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
