// ABOUTME: Instant messenger database operations
// ABOUTME: Handles CRUD and single-primary enforcement for IM records
package crm

import (
	"database/sql"

	"github.com/christianwach/crmsync/models"
)

func CreateIM(db *sql.DB, im *models.InstantMessenger) error {
	result, err := db.Exec(`
		INSERT INTO ims (contact_id, location_type_id, provider_id, is_primary, name)
		VALUES (?, ?, ?, ?, ?)
	`, im.ContactID, im.LocationTypeID, im.ProviderID, im.IsPrimary, im.Name)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	im.ID = int(id)

	if im.IsPrimary {
		return clearOtherPrimaries(db, "ims", im.ContactID, im.ID)
	}

	return nil
}

func GetIM(db *sql.DB, id int) (*models.InstantMessenger, error) {
	im := &models.InstantMessenger{}

	err := db.QueryRow(`
		SELECT id, contact_id, location_type_id, provider_id, is_primary, name
		FROM ims WHERE id = ?
	`, id).Scan(
		&im.ID,
		&im.ContactID,
		&im.LocationTypeID,
		&im.ProviderID,
		&im.IsPrimary,
		&im.Name,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return im, nil
}

func GetIMs(db *sql.DB, contactID int) ([]models.InstantMessenger, error) {
	rows, err := db.Query(`
		SELECT id, contact_id, location_type_id, provider_id, is_primary, name
		FROM ims WHERE contact_id = ? ORDER BY id
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ims []models.InstantMessenger
	for rows.Next() {
		var im models.InstantMessenger
		if err := rows.Scan(
			&im.ID,
			&im.ContactID,
			&im.LocationTypeID,
			&im.ProviderID,
			&im.IsPrimary,
			&im.Name,
		); err != nil {
			return nil, err
		}
		ims = append(ims, im)
	}

	return ims, rows.Err()
}

func UpdateIM(db *sql.DB, im *models.InstantMessenger) error {
	_, err := db.Exec(`
		UPDATE ims
		SET contact_id = ?, location_type_id = ?, provider_id = ?, is_primary = ?, name = ?
		WHERE id = ?
	`, im.ContactID, im.LocationTypeID, im.ProviderID, im.IsPrimary, im.Name, im.ID)
	if err != nil {
		return err
	}

	if im.IsPrimary {
		return clearOtherPrimaries(db, "ims", im.ContactID, im.ID)
	}

	return nil
}

func DeleteIM(db *sql.DB, id int) error {
	_, err := db.Exec(`DELETE FROM ims WHERE id = ?`, id)
	return err
}
