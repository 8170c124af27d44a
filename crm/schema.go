// ABOUTME: CRM database schema definitions
// ABOUTME: Handles SQLite table creation and initialization
package crm

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_type TEXT NOT NULL,
	sub_types TEXT,
	display_name TEXT,
	first_name TEXT,
	last_name TEXT,
	nickname TEXT,
	email TEXT,
	custom TEXT,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_type ON contacts(contact_type);

CREATE TABLE IF NOT EXISTS activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_type TEXT NOT NULL,
	subject TEXT,
	details TEXT,
	target_contact_id INTEGER,
	activity_date DATETIME,
	custom TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);

CREATE TABLE IF NOT EXISTS addresses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER NOT NULL,
	location_type_id INTEGER NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	is_billing INTEGER NOT NULL DEFAULT 0,
	street_address TEXT,
	supplemental_address TEXT,
	city TEXT,
	postal_code TEXT,
	state_province TEXT,
	country TEXT,
	geo_code_1 TEXT,
	geo_code_2 TEXT,
	master_id INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_addresses_contact_id ON addresses(contact_id);
CREATE INDEX IF NOT EXISTS idx_addresses_master_id ON addresses(master_id);

CREATE TABLE IF NOT EXISTS phones (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER NOT NULL,
	location_type_id INTEGER NOT NULL,
	phone_type_id INTEGER NOT NULL DEFAULT 0,
	is_primary INTEGER NOT NULL DEFAULT 0,
	phone TEXT,
	phone_ext TEXT,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_phones_contact_id ON phones(contact_id);

CREATE TABLE IF NOT EXISTS ims (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER NOT NULL,
	location_type_id INTEGER NOT NULL,
	provider_id INTEGER NOT NULL DEFAULT 0,
	is_primary INTEGER NOT NULL DEFAULT 0,
	name TEXT,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_ims_contact_id ON ims(contact_id);

CREATE TABLE IF NOT EXISTS relationships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type_id INTEGER NOT NULL,
	contact_id_a INTEGER NOT NULL,
	contact_id_b INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (contact_id_a) REFERENCES contacts(id),
	FOREIGN KEY (contact_id_b) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_a ON relationships(contact_id_a);
CREATE INDEX IF NOT EXISTS idx_relationships_b ON relationships(contact_id_b);

CREATE TABLE IF NOT EXISTS custom_fields (
	id INTEGER PRIMARY KEY,
	group_id INTEGER NOT NULL,
	label TEXT
);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	op TEXT NOT NULL,
	object_name TEXT NOT NULL,
	object_id INTEGER NOT NULL,
	logged_at DATETIME NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
