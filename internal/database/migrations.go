package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "briefs and user contexts",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS briefs (
    brief_id TEXT PRIMARY KEY,
    user_id TEXT,
    topic TEXT NOT NULL,
    depth INTEGER NOT NULL DEFAULT 3,
    executive_summary TEXT NOT NULL,
    source_count INTEGER NOT NULL DEFAULT 0,
    partial INTEGER NOT NULL DEFAULT 0,
    execution_time REAL NOT NULL DEFAULT 0,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    generated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_contexts (
    user_id TEXT PRIMARY KEY,
    summary TEXT NOT NULL DEFAULT '',
    brief_ids TEXT NOT NULL DEFAULT '[]',
    previous_topics TEXT NOT NULL DEFAULT '[]',
    key_themes TEXT NOT NULL DEFAULT '[]',
    preferred_depth INTEGER NOT NULL DEFAULT 3,
    last_interaction TEXT NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "index briefs by user",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_briefs_user ON briefs(user_id, generated_at)`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
