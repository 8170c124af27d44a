// ABOUTME: Content field value database operations
// ABOUTME: Handles per-entity field values stored as JSON plus field settings
package content

import (
	"database/sql"
	"encoding/json"
)

// FieldSettings describes a registered field independent of any
// entity. ReadOnly fields are one-directional: CRM to content only.
type FieldSettings struct {
	Selector  string `json:"selector"`
	FieldType string `json:"field_type"`
	ReadOnly  bool   `json:"read_only"`
}

func GetField(db *sql.DB, selector, entityID string) (any, error) {
	var raw sql.NullString
	err := db.QueryRow(`SELECT value FROM fields WHERE entity_id = ? AND selector = ?`, entityID, selector).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw.String), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func UpdateField(db *sql.DB, selector string, value any, entityID string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO fields (entity_id, selector, value) VALUES (?, ?, ?)
		ON CONFLICT(entity_id, selector) DO UPDATE SET value = excluded.value
	`, entityID, selector, string(raw))
	return err
}

func GetFields(db *sql.DB, entityID string) (map[string]any, error) {
	rows, err := db.Query(`SELECT selector, value FROM fields WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var selector string
		var raw sql.NullString
		if err := rows.Scan(&selector, &raw); err != nil {
			return nil, err
		}
		if !raw.Valid || raw.String == "" {
			values[selector] = nil
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(raw.String), &value); err != nil {
			return nil, err
		}
		values[selector] = value
	}

	return values, rows.Err()
}

func RegisterFieldSettings(db *sql.DB, settings *FieldSettings) error {
	_, err := db.Exec(`
		INSERT INTO field_settings (selector, field_type, read_only) VALUES (?, ?, ?)
		ON CONFLICT(selector) DO UPDATE SET field_type = excluded.field_type, read_only = excluded.read_only
	`, settings.Selector, settings.FieldType, settings.ReadOnly)
	return err
}

func GetFieldSettings(db *sql.DB, selector string) (*FieldSettings, error) {
	settings := &FieldSettings{}
	err := db.QueryRow(`
		SELECT selector, field_type, read_only FROM field_settings WHERE selector = ?
	`, selector).Scan(&settings.Selector, &settings.FieldType, &settings.ReadOnly)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return settings, nil
}
