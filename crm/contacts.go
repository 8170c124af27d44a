// ABOUTME: Contact database operations
// ABOUTME: Handles CRUD operations and custom field value storage for contacts
package crm

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/christianwach/crmsync/models"
)

func CreateContact(db *sql.DB, contact *models.Contact) error {
	now := time.Now()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	subTypes, err := encodeStrings(contact.SubTypes)
	if err != nil {
		return err
	}
	custom, err := encodeCustom(contact.Custom)
	if err != nil {
		return err
	}

	result, err := db.Exec(`
		INSERT INTO contacts (contact_type, sub_types, display_name, first_name, last_name, nickname, email, custom, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, contact.ContactType, subTypes, contact.DisplayName, contact.FirstName, contact.LastName,
		contact.Nickname, contact.Email, custom, contact.IsDeleted, contact.CreatedAt, contact.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	contact.ID = int(id)

	return nil
}

func GetContact(db *sql.DB, id int) (*models.Contact, error) {
	contact := &models.Contact{}
	var subTypes, custom sql.NullString

	err := db.QueryRow(`
		SELECT id, contact_type, sub_types, display_name, first_name, last_name, nickname, email, custom, is_deleted, created_at, updated_at
		FROM contacts WHERE id = ?
	`, id).Scan(
		&contact.ID,
		&contact.ContactType,
		&subTypes,
		&contact.DisplayName,
		&contact.FirstName,
		&contact.LastName,
		&contact.Nickname,
		&contact.Email,
		&custom,
		&contact.IsDeleted,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if subTypes.Valid && subTypes.String != "" {
		if err := json.Unmarshal([]byte(subTypes.String), &contact.SubTypes); err != nil {
			return nil, err
		}
	}
	if custom.Valid && custom.String != "" {
		if err := json.Unmarshal([]byte(custom.String), &contact.Custom); err != nil {
			return nil, err
		}
	}

	return contact, nil
}

// UpdateContact writes the full contact row. Custom values are merged
// into the stored set rather than replacing it, so a partial payload
// never wipes fields it does not mention.
func UpdateContact(db *sql.DB, contact *models.Contact) error {
	existing, err := GetContact(db, contact.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return sql.ErrNoRows
	}

	merged := existing.Custom
	if len(contact.Custom) > 0 {
		if merged == nil {
			merged = make(map[string]any, len(contact.Custom))
		}
		for key, value := range contact.Custom {
			merged[key] = value
		}
	}
	contact.Custom = merged

	contact.UpdatedAt = time.Now()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = existing.CreatedAt
	}

	subTypes, err := encodeStrings(contact.SubTypes)
	if err != nil {
		return err
	}
	custom, err := encodeCustom(contact.Custom)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		UPDATE contacts
		SET contact_type = ?, sub_types = ?, display_name = ?, first_name = ?, last_name = ?, nickname = ?, email = ?, custom = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?
	`, contact.ContactType, subTypes, contact.DisplayName, contact.FirstName, contact.LastName,
		contact.Nickname, contact.Email, custom, contact.IsDeleted, contact.UpdatedAt, contact.ID)

	return err
}

// DeleteContact soft-deletes the row; the CRM keeps contact history.
func DeleteContact(db *sql.DB, id int) error {
	_, err := db.Exec(`UPDATE contacts SET is_deleted = 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeCustom(custom map[string]any) (string, error) {
	if len(custom) == 0 {
		return "", nil
	}
	data, err := json.Marshal(custom)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
