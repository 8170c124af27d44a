// ABOUTME: Custom field registry operations
// ABOUTME: Maps custom field ids to their owning custom groups
package crm

import (
	"database/sql"
)

// RegisterCustomField declares a custom field and the group it belongs
// to. Change notifications for custom values are grouped by group id,
// matching how the CRM fires one notification per group.
func RegisterCustomField(db *sql.DB, fieldID, groupID int, label string) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO custom_fields (id, group_id, label) VALUES (?, ?, ?)
	`, fieldID, groupID, label)
	return err
}

func GetCustomFieldGroup(db *sql.DB, fieldID int) (int, error) {
	var groupID int
	err := db.QueryRow(`SELECT group_id FROM custom_fields WHERE id = ?`, fieldID).Scan(&groupID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return groupID, nil
}
