// ABOUTME: Address database operations
// ABOUTME: Handles CRUD, single-primary enforcement, and shared-address lookups
package crm

import (
	"database/sql"

	"github.com/christianwach/crmsync/models"
)

func CreateAddress(db *sql.DB, address *models.Address) error {
	result, err := db.Exec(`
		INSERT INTO addresses (contact_id, location_type_id, is_primary, is_billing, street_address, supplemental_address, city, postal_code, state_province, country, geo_code_1, geo_code_2, master_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, address.ContactID, address.LocationTypeID, address.IsPrimary, address.IsBilling,
		address.Street, address.Supplemental, address.City, address.PostalCode,
		address.StateProvince, address.Country, address.Latitude, address.Longitude, address.MasterID)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	address.ID = int(id)

	if address.IsPrimary {
		return clearOtherPrimaries(db, "addresses", address.ContactID, address.ID)
	}

	return nil
}

func GetAddress(db *sql.DB, id int) (*models.Address, error) {
	address := &models.Address{}

	err := db.QueryRow(`
		SELECT id, contact_id, location_type_id, is_primary, is_billing, street_address, supplemental_address, city, postal_code, state_province, country, geo_code_1, geo_code_2, master_id
		FROM addresses WHERE id = ?
	`, id).Scan(
		&address.ID,
		&address.ContactID,
		&address.LocationTypeID,
		&address.IsPrimary,
		&address.IsBilling,
		&address.Street,
		&address.Supplemental,
		&address.City,
		&address.PostalCode,
		&address.StateProvince,
		&address.Country,
		&address.Latitude,
		&address.Longitude,
		&address.MasterID,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return address, nil
}

func GetAddresses(db *sql.DB, contactID int) ([]models.Address, error) {
	rows, err := db.Query(`
		SELECT id, contact_id, location_type_id, is_primary, is_billing, street_address, supplemental_address, city, postal_code, state_province, country, geo_code_1, geo_code_2, master_id
		FROM addresses WHERE contact_id = ? ORDER BY id
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []models.Address
	for rows.Next() {
		var address models.Address
		if err := rows.Scan(
			&address.ID,
			&address.ContactID,
			&address.LocationTypeID,
			&address.IsPrimary,
			&address.IsBilling,
			&address.Street,
			&address.Supplemental,
			&address.City,
			&address.PostalCode,
			&address.StateProvince,
			&address.Country,
			&address.Latitude,
			&address.Longitude,
			&address.MasterID,
		); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}

	return addresses, rows.Err()
}

// GetSharedAddresses returns the addresses that designate the given
// address as their master.
func GetSharedAddresses(db *sql.DB, masterID int) ([]models.Address, error) {
	rows, err := db.Query(`
		SELECT id, contact_id, location_type_id, is_primary, is_billing, street_address, supplemental_address, city, postal_code, state_province, country, geo_code_1, geo_code_2, master_id
		FROM addresses WHERE master_id = ? ORDER BY id
	`, masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []models.Address
	for rows.Next() {
		var address models.Address
		if err := rows.Scan(
			&address.ID,
			&address.ContactID,
			&address.LocationTypeID,
			&address.IsPrimary,
			&address.IsBilling,
			&address.Street,
			&address.Supplemental,
			&address.City,
			&address.PostalCode,
			&address.StateProvince,
			&address.Country,
			&address.Latitude,
			&address.Longitude,
			&address.MasterID,
		); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}

	return addresses, rows.Err()
}

func UpdateAddress(db *sql.DB, address *models.Address) error {
	_, err := db.Exec(`
		UPDATE addresses
		SET contact_id = ?, location_type_id = ?, is_primary = ?, is_billing = ?, street_address = ?, supplemental_address = ?, city = ?, postal_code = ?, state_province = ?, country = ?, geo_code_1 = ?, geo_code_2 = ?, master_id = ?
		WHERE id = ?
	`, address.ContactID, address.LocationTypeID, address.IsPrimary, address.IsBilling,
		address.Street, address.Supplemental, address.City, address.PostalCode,
		address.StateProvince, address.Country, address.Latitude, address.Longitude,
		address.MasterID, address.ID)
	if err != nil {
		return err
	}

	if address.IsPrimary {
		return clearOtherPrimaries(db, "addresses", address.ContactID, address.ID)
	}

	return nil
}

func DeleteAddress(db *sql.DB, id int) error {
	_, err := db.Exec(`DELETE FROM addresses WHERE id = ?`, id)
	return err
}

// clearOtherPrimaries enforces the single-primary invariant within one
// contact's sub-record set.
func clearOtherPrimaries(db *sql.DB, table string, contactID, keepID int) error {
	_, err := db.Exec(`UPDATE `+table+` SET is_primary = 0 WHERE contact_id = ? AND id != ?`, contactID, keepID)
	return err
}
