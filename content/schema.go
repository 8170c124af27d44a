// ABOUTME: Content database schema definitions
// ABOUTME: Handles SQLite table creation for entities, fields, settings, and metadata
package content

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	title TEXT,
	body TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);

CREATE TABLE IF NOT EXISTS fields (
	entity_id TEXT NOT NULL,
	selector TEXT NOT NULL,
	value TEXT,
	PRIMARY KEY (entity_id, selector)
);

CREATE TABLE IF NOT EXISTS field_settings (
	selector TEXT PRIMARY KEY,
	field_type TEXT NOT NULL,
	read_only INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS meta (
	entity_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT,
	PRIMARY KEY (entity_id, key)
);

CREATE INDEX IF NOT EXISTS idx_meta_key_value ON meta(key, value);

CREATE TABLE IF NOT EXISTS sequences (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
