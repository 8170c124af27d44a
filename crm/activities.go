// ABOUTME: Activity database operations
// ABOUTME: Handles CRUD operations and custom field value storage for activities
package crm

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/christianwach/crmsync/models"
)

func CreateActivity(db *sql.DB, activity *models.Activity) error {
	now := time.Now()
	activity.CreatedAt = now
	activity.UpdatedAt = now

	custom, err := encodeCustom(activity.Custom)
	if err != nil {
		return err
	}

	result, err := db.Exec(`
		INSERT INTO activities (activity_type, subject, details, target_contact_id, activity_date, custom, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, activity.ActivityType, activity.Subject, activity.Details, activity.TargetContactID,
		activity.ActivityDate, custom, activity.CreatedAt, activity.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	activity.ID = int(id)

	return nil
}

func GetActivity(db *sql.DB, id int) (*models.Activity, error) {
	activity := &models.Activity{}
	var custom sql.NullString
	var targetContactID sql.NullInt64

	err := db.QueryRow(`
		SELECT id, activity_type, subject, details, target_contact_id, activity_date, custom, created_at, updated_at
		FROM activities WHERE id = ?
	`, id).Scan(
		&activity.ID,
		&activity.ActivityType,
		&activity.Subject,
		&activity.Details,
		&targetContactID,
		&activity.ActivityDate,
		&custom,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if targetContactID.Valid {
		activity.TargetContactID = int(targetContactID.Int64)
	}
	if custom.Valid && custom.String != "" {
		if err := json.Unmarshal([]byte(custom.String), &activity.Custom); err != nil {
			return nil, err
		}
	}

	return activity, nil
}

// UpdateActivity writes the full activity row, merging custom values
// into the stored set like UpdateContact does.
func UpdateActivity(db *sql.DB, activity *models.Activity) error {
	existing, err := GetActivity(db, activity.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return sql.ErrNoRows
	}

	merged := existing.Custom
	if len(activity.Custom) > 0 {
		if merged == nil {
			merged = make(map[string]any, len(activity.Custom))
		}
		for key, value := range activity.Custom {
			merged[key] = value
		}
	}
	activity.Custom = merged

	activity.UpdatedAt = time.Now()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = existing.CreatedAt
	}

	custom, err := encodeCustom(activity.Custom)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		UPDATE activities
		SET activity_type = ?, subject = ?, details = ?, target_contact_id = ?, activity_date = ?, custom = ?, updated_at = ?
		WHERE id = ?
	`, activity.ActivityType, activity.Subject, activity.Details, activity.TargetContactID,
		activity.ActivityDate, custom, activity.UpdatedAt, activity.ID)

	return err
}
