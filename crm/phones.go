// ABOUTME: Phone database operations
// ABOUTME: Handles CRUD and single-primary enforcement for phone records
package crm

import (
	"database/sql"

	"github.com/christianwach/crmsync/models"
)

func CreatePhone(db *sql.DB, phone *models.Phone) error {
	result, err := db.Exec(`
		INSERT INTO phones (contact_id, location_type_id, phone_type_id, is_primary, phone, phone_ext)
		VALUES (?, ?, ?, ?, ?, ?)
	`, phone.ContactID, phone.LocationTypeID, phone.PhoneTypeID, phone.IsPrimary, phone.Number, phone.Extension)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	phone.ID = int(id)

	if phone.IsPrimary {
		return clearOtherPrimaries(db, "phones", phone.ContactID, phone.ID)
	}

	return nil
}

func GetPhone(db *sql.DB, id int) (*models.Phone, error) {
	phone := &models.Phone{}

	err := db.QueryRow(`
		SELECT id, contact_id, location_type_id, phone_type_id, is_primary, phone, phone_ext
		FROM phones WHERE id = ?
	`, id).Scan(
		&phone.ID,
		&phone.ContactID,
		&phone.LocationTypeID,
		&phone.PhoneTypeID,
		&phone.IsPrimary,
		&phone.Number,
		&phone.Extension,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return phone, nil
}

func GetPhones(db *sql.DB, contactID int) ([]models.Phone, error) {
	rows, err := db.Query(`
		SELECT id, contact_id, location_type_id, phone_type_id, is_primary, phone, phone_ext
		FROM phones WHERE contact_id = ? ORDER BY id
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phones []models.Phone
	for rows.Next() {
		var phone models.Phone
		if err := rows.Scan(
			&phone.ID,
			&phone.ContactID,
			&phone.LocationTypeID,
			&phone.PhoneTypeID,
			&phone.IsPrimary,
			&phone.Number,
			&phone.Extension,
		); err != nil {
			return nil, err
		}
		phones = append(phones, phone)
	}

	return phones, rows.Err()
}

func UpdatePhone(db *sql.DB, phone *models.Phone) error {
	_, err := db.Exec(`
		UPDATE phones
		SET contact_id = ?, location_type_id = ?, phone_type_id = ?, is_primary = ?, phone = ?, phone_ext = ?
		WHERE id = ?
	`, phone.ContactID, phone.LocationTypeID, phone.PhoneTypeID, phone.IsPrimary,
		phone.Number, phone.Extension, phone.ID)
	if err != nil {
		return err
	}

	if phone.IsPrimary {
		return clearOtherPrimaries(db, "phones", phone.ContactID, phone.ID)
	}

	return nil
}

func DeletePhone(db *sql.DB, id int) error {
	_, err := db.Exec(`DELETE FROM phones WHERE id = ?`, id)
	return err
}
