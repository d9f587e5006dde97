package db

import "fmt"

type migration struct {
	version int
	sql     string
}

// migrations are applied in order; each records its own version.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS state (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS incidents (
    id           TEXT PRIMARY KEY,
    mailbox      TEXT NOT NULL,
    message_id   TEXT NOT NULL,
    name         TEXT NOT NULL,
    details      TEXT,
    occurred     TEXT,
    labels       TEXT NOT NULL,
    attachments  TEXT NOT NULL,
    raw_json     TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    UNIQUE(mailbox, message_id)
);

CREATE INDEX IF NOT EXISTS idx_incidents_mailbox ON incidents(mailbox);
CREATE INDEX IF NOT EXISTS idx_incidents_occurred ON incidents(occurred DESC);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS files (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    size        INTEGER NOT NULL,
    content     BLOB NOT NULL,
    created_at  TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// migrate applies every migration newer than the recorded schema version.
func (d *DB) migrate() error {
	current := 0

	var tables int
	err := d.conn.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tables > 0 {
		if err := d.conn.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := d.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (d *DB) SchemaVersion() (int, error) {
	var v int
	err := d.conn.Get(&v, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	return v, err
}
