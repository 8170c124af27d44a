// ABOUTME: Content entity database operations
// ABOUTME: Handles entity CRUD, id allocation, and per-entity metadata
package content

import (
	"database/sql"
	"fmt"
	"time"
)

// Entity kinds, derived from the id shape convention.
const (
	KindPost    = "post"
	KindUser    = "user"
	KindTerm    = "term"
	KindOption  = "option"
	KindUnknown = "unknown"
)

// Entity is one item in the content platform. Post ids are plain
// numerics; other kinds carry a prefix ("user_3", "term_7").
type Entity struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	EntityType string    `json:"entity_type"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// nextID allocates the next id in a named sequence.
func nextID(db *sql.DB, name string) (int, error) {
	_, err := db.Exec(`INSERT INTO sequences (name, value) VALUES (?, 0) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return 0, err
	}
	_, err = db.Exec(`UPDATE sequences SET value = value + 1 WHERE name = ?`, name)
	if err != nil {
		return 0, err
	}

	var value int
	err = db.QueryRow(`SELECT value FROM sequences WHERE name = ?`, name).Scan(&value)
	return value, err
}

func CreateEntity(db *sql.DB, entity *Entity) error {
	if entity.Kind == "" {
		entity.Kind = KindPost
	}

	if entity.ID == "" {
		n, err := nextID(db, entity.Kind)
		if err != nil {
			return err
		}
		switch entity.Kind {
		case KindPost:
			entity.ID = fmt.Sprintf("%d", n)
		default:
			entity.ID = fmt.Sprintf("%s_%d", entity.Kind, n)
		}
	}

	now := time.Now()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO entities (id, kind, entity_type, title, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entity.ID, entity.Kind, entity.EntityType, entity.Title, entity.Body, entity.CreatedAt, entity.UpdatedAt)

	return err
}

func GetEntity(db *sql.DB, id string) (*Entity, error) {
	entity := &Entity{}

	err := db.QueryRow(`
		SELECT id, kind, entity_type, title, body, created_at, updated_at
		FROM entities WHERE id = ?
	`, id).Scan(
		&entity.ID,
		&entity.Kind,
		&entity.EntityType,
		&entity.Title,
		&entity.Body,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return entity, nil
}

func UpdateEntity(db *sql.DB, entity *Entity) error {
	entity.UpdatedAt = time.Now()

	_, err := db.Exec(`
		UPDATE entities SET kind = ?, entity_type = ?, title = ?, body = ?, updated_at = ?
		WHERE id = ?
	`, entity.Kind, entity.EntityType, entity.Title, entity.Body, entity.UpdatedAt, entity.ID)

	return err
}

// ListEntities returns every entity of one entity type, or all
// entities when entityType is "".
func ListEntities(db *sql.DB, entityType string) ([]Entity, error) {
	query := `SELECT id, kind, entity_type, title, body, created_at, updated_at FROM entities ORDER BY id`
	args := []any{}
	if entityType != "" {
		query = `SELECT id, kind, entity_type, title, body, created_at, updated_at FROM entities WHERE entity_type = ? ORDER BY id`
		args = append(args, entityType)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var entity Entity
		if err := rows.Scan(
			&entity.ID,
			&entity.Kind,
			&entity.EntityType,
			&entity.Title,
			&entity.Body,
			&entity.CreatedAt,
			&entity.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

func GetMeta(db *sql.DB, entityID, key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM meta WHERE entity_id = ? AND key = ?`, entityID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func SetMeta(db *sql.DB, entityID, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO meta (entity_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(entity_id, key) DO UPDATE SET value = excluded.value
	`, entityID, key, value)
	return err
}

// FindAllByMeta returns the ids of every entity carrying the given
// metadata key/value pair, in id order.
func FindAllByMeta(db *sql.DB, key, value string) ([]string, error) {
	rows, err := db.Query(`SELECT entity_id FROM meta WHERE key = ? AND value = ? ORDER BY entity_id`, key, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// FindByMeta returns the id of the first entity carrying the given
// metadata key/value pair, or "" when none does.
func FindByMeta(db *sql.DB, key, value string) (string, error) {
	var entityID string
	err := db.QueryRow(`SELECT entity_id FROM meta WHERE key = ? AND value = ? ORDER BY entity_id LIMIT 1`, key, value).Scan(&entityID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return entityID, nil
}
