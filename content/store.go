// ABOUTME: Content Field Store contract and its SQLite-backed reference implementation
// ABOUTME: Store fires native save notifications the way the content platform's hooks would
package content

import (
	"database/sql"
	"fmt"
)

// SaveFunc receives native entity-save notifications.
type SaveFunc func(entityID string, ref *Entity, isUpdate bool)

// FieldsSavedFunc fires after all field values of one editor save have
// been persisted.
type FieldsSavedFunc func(entityID string)

// FieldStore is the per-entity field value contract the sync engine
// consumes. GetField returns (nil, nil) for absent values. UpdateField
// is a silent write: it does not fire save notifications, matching the
// platform's low-level field update primitive.
type FieldStore interface {
	GetField(selector, entityID string) (any, error)
	UpdateField(selector string, value any, entityID string) error
	GetFields(entityID string) (map[string]any, error)
	GetFieldSettings(selector string) (*FieldSettings, error)
}

// EntityStore is the entity and metadata contract. Entity writes fire
// native save notifications; callers mirroring CRM changes must
// suspend listeners around them.
type EntityStore interface {
	GetEntity(entityID string) (*Entity, error)
	CreateEntity(entity *Entity) error
	UpdateEntity(entity *Entity) error
	GetMeta(entityID, key string) (string, error)
	SetMeta(entityID, key, value string) error
	FindByMeta(key, value string) (string, error)
	FindAllByMeta(key, value string) ([]string, error)
}

// Store is the full content platform surface.
type Store interface {
	FieldStore
	EntityStore

	// SaveFields is the editor save path: persists every value and
	// then fires the fields-saved notification once.
	SaveFields(entityID string, values map[string]any) error
}

// SQLStore implements Store on SQLite.
type SQLStore struct {
	db            *sql.DB
	onSave        SaveFunc
	onFieldsSaved FieldsSavedFunc
}

func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) OnSave(fn SaveFunc) {
	s.onSave = fn
}

func (s *SQLStore) OnFieldsSaved(fn FieldsSavedFunc) {
	s.onFieldsSaved = fn
}

func (s *SQLStore) GetEntity(entityID string) (*Entity, error) {
	return GetEntity(s.db, entityID)
}

func (s *SQLStore) CreateEntity(entity *Entity) error {
	if err := CreateEntity(s.db, entity); err != nil {
		return err
	}
	if s.onSave != nil {
		s.onSave(entity.ID, entity, false)
	}
	return nil
}

func (s *SQLStore) UpdateEntity(entity *Entity) error {
	if entity.ID == "" {
		return fmt.Errorf("entity update requires an id")
	}
	if err := UpdateEntity(s.db, entity); err != nil {
		return err
	}
	if s.onSave != nil {
		s.onSave(entity.ID, entity, true)
	}
	return nil
}

func (s *SQLStore) GetField(selector, entityID string) (any, error) {
	return GetField(s.db, selector, entityID)
}

func (s *SQLStore) UpdateField(selector string, value any, entityID string) error {
	return UpdateField(s.db, selector, value, entityID)
}

func (s *SQLStore) GetFields(entityID string) (map[string]any, error) {
	return GetFields(s.db, entityID)
}

func (s *SQLStore) GetFieldSettings(selector string) (*FieldSettings, error) {
	return GetFieldSettings(s.db, selector)
}

func (s *SQLStore) SaveFields(entityID string, values map[string]any) error {
	for selector, value := range values {
		if err := UpdateField(s.db, selector, value, entityID); err != nil {
			return fmt.Errorf("failed to save field %q: %w", selector, err)
		}
	}
	if s.onFieldsSaved != nil {
		s.onFieldsSaved(entityID)
	}
	return nil
}

func (s *SQLStore) GetMeta(entityID, key string) (string, error) {
	return GetMeta(s.db, entityID, key)
}

func (s *SQLStore) SetMeta(entityID, key, value string) error {
	return SetMeta(s.db, entityID, key, value)
}

func (s *SQLStore) FindByMeta(key, value string) (string, error) {
	return FindByMeta(s.db, key, value)
}

func (s *SQLStore) FindAllByMeta(key, value string) ([]string, error) {
	return FindAllByMeta(s.db, key, value)
}
