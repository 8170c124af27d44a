// ABOUTME: Relationship database operations
// ABOUTME: Handles CRUD and directional queries between contacts
package crm

import (
	"database/sql"
	"time"

	"github.com/christianwach/crmsync/models"
)

func CreateRelationship(db *sql.DB, relationship *models.Relationship) error {
	now := time.Now()
	relationship.CreatedAt = now
	relationship.UpdatedAt = now

	result, err := db.Exec(`
		INSERT INTO relationships (type_id, contact_id_a, contact_id_b, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, relationship.TypeID, relationship.ContactA, relationship.ContactB,
		relationship.IsActive, relationship.CreatedAt, relationship.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	relationship.ID = int(id)

	return nil
}

func GetRelationship(db *sql.DB, id int) (*models.Relationship, error) {
	relationship := &models.Relationship{}

	err := db.QueryRow(`
		SELECT id, type_id, contact_id_a, contact_id_b, is_active, created_at, updated_at
		FROM relationships WHERE id = ?
	`, id).Scan(
		&relationship.ID,
		&relationship.TypeID,
		&relationship.ContactA,
		&relationship.ContactB,
		&relationship.IsActive,
		&relationship.CreatedAt,
		&relationship.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return relationship, nil
}

// FindRelationships returns all relationships of one type that involve
// the given contact on the source side of the given direction. For
// direction "ab" the contact is contact_id_a; for "ba" it is
// contact_id_b. Active and inactive rows are both returned so callers
// can reactivate historical edges instead of duplicating them.
func FindRelationships(db *sql.DB, contactID, typeID int, direction string) ([]models.Relationship, error) {
	column := "contact_id_a"
	if direction == models.DirectionBA {
		column = "contact_id_b"
	}

	rows, err := db.Query(`
		SELECT id, type_id, contact_id_a, contact_id_b, is_active, created_at, updated_at
		FROM relationships
		WHERE `+column+` = ? AND type_id = ?
		ORDER BY id
	`, contactID, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relationships []models.Relationship
	for rows.Next() {
		var relationship models.Relationship
		if err := rows.Scan(
			&relationship.ID,
			&relationship.TypeID,
			&relationship.ContactA,
			&relationship.ContactB,
			&relationship.IsActive,
			&relationship.CreatedAt,
			&relationship.UpdatedAt,
		); err != nil {
			return nil, err
		}
		relationships = append(relationships, relationship)
	}

	return relationships, rows.Err()
}

// SetRelationshipActive flips the is_active flag. Relationship rows
// are never deleted so relationship history survives deactivation.
func SetRelationshipActive(db *sql.DB, id int, active bool) error {
	_, err := db.Exec(`UPDATE relationships SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now(), id)
	return err
}
