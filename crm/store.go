// ABOUTME: CRM Data Service contract and its SQLite-backed reference implementation
// ABOUTME: Store wraps the package-level CRUD functions and fires native change notifications
package crm

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/christianwach/crmsync/models"
)

// Native notification phases and operations, as delivered to change
// callbacks. The CRM fires a pre notification before a row is written
// (no id on create) and a post notification after.
const (
	PhasePre  = "pre"
	PhasePost = "post"

	OpCreate = "create"
	OpEdit   = "edit"
	OpDelete = "delete"
)

// ChangeFunc receives native entity change notifications.
type ChangeFunc func(phase, op, objectName string, objectID int, ref any)

// CustomChangeFunc receives one notification per custom group whose
// field values changed on an entity.
type CustomChangeFunc func(op string, groupID, entityID int, fields []models.CustomFieldChange)

// RequestFunc marks the span of one native API call. It is invoked
// when a mutating call starts and the returned func when it completes,
// so an embedding can scope per-request state across the pre, custom,
// and post notifications the call fires.
type RequestFunc func() func()

// Service is the CRM Data Service contract the sync engine consumes.
// Get operations return (nil, nil) when the record is absent. Update
// operations require a persisted id and must tolerate payload keys for
// fields that do not belong to the entity sub-type.
type Service interface {
	GetContact(id int) (*models.Contact, error)
	CreateContact(contact *models.Contact) (*models.Contact, error)
	UpdateContact(contact *models.Contact) (*models.Contact, error)
	DeleteContact(id int) error

	GetActivity(id int) (*models.Activity, error)
	CreateActivity(activity *models.Activity) (*models.Activity, error)
	UpdateActivity(activity *models.Activity) (*models.Activity, error)

	GetAddress(id int) (*models.Address, error)
	GetAddresses(contactID int) ([]models.Address, error)
	GetSharedAddresses(masterID int) ([]models.Address, error)
	CreateAddress(address *models.Address) (*models.Address, error)
	UpdateAddress(address *models.Address) (*models.Address, error)
	DeleteAddress(id int) error

	GetPhone(id int) (*models.Phone, error)
	GetPhones(contactID int) ([]models.Phone, error)
	CreatePhone(phone *models.Phone) (*models.Phone, error)
	UpdatePhone(phone *models.Phone) (*models.Phone, error)
	DeletePhone(id int) error

	GetIM(id int) (*models.InstantMessenger, error)
	GetIMs(contactID int) ([]models.InstantMessenger, error)
	CreateIM(im *models.InstantMessenger) (*models.InstantMessenger, error)
	UpdateIM(im *models.InstantMessenger) (*models.InstantMessenger, error)
	DeleteIM(id int) error

	GetRelationship(id int) (*models.Relationship, error)
	FindRelationships(contactID, typeID int, direction string) ([]models.Relationship, error)
	CreateRelationship(relationship *models.Relationship) (*models.Relationship, error)
	SetRelationshipActive(id int, active bool) (*models.Relationship, error)
}

// Store implements Service on SQLite and fires native change
// notifications around every write, the way the CRM's own hook system
// would in an embedding.
type Store struct {
	db             *sql.DB
	onChange       ChangeFunc
	onCustomChange CustomChangeFunc
	onRequest      RequestFunc
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// OnChange registers the native entity change callback.
func (s *Store) OnChange(fn ChangeFunc) {
	s.onChange = fn
}

// OnCustomChange registers the custom-group change callback.
func (s *Store) OnCustomChange(fn CustomChangeFunc) {
	s.onCustomChange = fn
}

// OnRequest registers the request-span callback.
func (s *Store) OnRequest(fn RequestFunc) {
	s.onRequest = fn
}

func (s *Store) begin() func() {
	if s.onRequest == nil {
		return func() {}
	}
	return s.onRequest()
}

func (s *Store) notify(phase, op, objectName string, objectID int, ref any) {
	if s.onChange != nil {
		s.onChange(phase, op, objectName, objectID, ref)
	}
}

// notifyCustom fires one custom-group notification per group touched
// by the payload, in ascending group order. Fields not present in the
// registry are grouped under group 0.
func (s *Store) notifyCustom(op string, entityID int, custom map[string]any) {
	if s.onCustomChange == nil || len(custom) == 0 {
		return
	}

	byGroup := make(map[int][]models.CustomFieldChange)
	for key, value := range custom {
		var fieldID int
		if _, err := fmt.Sscanf(key, "custom_%d", &fieldID); err != nil {
			continue
		}
		groupID, err := GetCustomFieldGroup(s.db, fieldID)
		if err != nil {
			continue
		}
		byGroup[groupID] = append(byGroup[groupID], models.CustomFieldChange{
			FieldID: fieldID,
			GroupID: groupID,
			Value:   value,
		})
	}

	groupIDs := make([]int, 0, len(byGroup))
	for groupID := range byGroup {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Ints(groupIDs)

	for _, groupID := range groupIDs {
		fields := byGroup[groupID]
		sort.Slice(fields, func(i, j int) bool { return fields[i].FieldID < fields[j].FieldID })
		s.onCustomChange(op, groupID, entityID, fields)
	}
}

// --- Contacts ---

func (s *Store) GetContact(id int) (*models.Contact, error) {
	return GetContact(s.db, id)
}

func (s *Store) CreateContact(contact *models.Contact) (*models.Contact, error) {
	done := s.begin()
	defer done()

	s.notify(PhasePre, OpCreate, contact.ContactType, 0, contact)
	if err := CreateContact(s.db, contact); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpCreate, models.ObjectContact, contact.ID)

	// The custom notification fires before the post notification on
	// create; handlers that need the mapped counterpart must buffer.
	s.notifyCustom(OpCreate, contact.ID, contact.Custom)
	s.notify(PhasePost, OpCreate, contact.ContactType, contact.ID, contact)
	return contact, nil
}

func (s *Store) UpdateContact(contact *models.Contact) (*models.Contact, error) {
	done := s.begin()
	defer done()

	if contact.ID == 0 {
		return nil, fmt.Errorf("contact update requires an id")
	}
	existing, err := GetContact(s.db, contact.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("contact %d not found", contact.ID)
	}

	s.notify(PhasePre, OpEdit, contact.ContactType, contact.ID, existing)
	changedCustom := contact.Custom
	if err := UpdateContact(s.db, contact); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpEdit, models.ObjectContact, contact.ID)

	s.notifyCustom(OpEdit, contact.ID, changedCustom)
	s.notify(PhasePost, OpEdit, contact.ContactType, contact.ID, contact)
	return contact, nil
}

func (s *Store) DeleteContact(id int) error {
	done := s.begin()
	defer done()

	existing, err := GetContact(s.db, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	s.notify(PhasePre, OpDelete, existing.ContactType, id, existing)
	if err := DeleteContact(s.db, id); err != nil {
		return err
	}
	_ = LogWrite(s.db, OpDelete, models.ObjectContact, id)

	s.notify(PhasePost, OpDelete, existing.ContactType, id, existing)
	return nil
}

// --- Activities ---

func (s *Store) GetActivity(id int) (*models.Activity, error) {
	return GetActivity(s.db, id)
}

func (s *Store) CreateActivity(activity *models.Activity) (*models.Activity, error) {
	done := s.begin()
	defer done()

	s.notify(PhasePre, OpCreate, models.ObjectActivity, 0, activity)
	if err := CreateActivity(s.db, activity); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpCreate, models.ObjectActivity, activity.ID)

	s.notifyCustom(OpCreate, activity.ID, activity.Custom)
	s.notify(PhasePost, OpCreate, models.ObjectActivity, activity.ID, activity)
	return activity, nil
}

func (s *Store) UpdateActivity(activity *models.Activity) (*models.Activity, error) {
	done := s.begin()
	defer done()

	if activity.ID == 0 {
		return nil, fmt.Errorf("activity update requires an id")
	}
	existing, err := GetActivity(s.db, activity.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("activity %d not found", activity.ID)
	}

	s.notify(PhasePre, OpEdit, models.ObjectActivity, activity.ID, existing)
	changedCustom := activity.Custom
	if err := UpdateActivity(s.db, activity); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpEdit, models.ObjectActivity, activity.ID)

	s.notifyCustom(OpEdit, activity.ID, changedCustom)
	s.notify(PhasePost, OpEdit, models.ObjectActivity, activity.ID, activity)
	return activity, nil
}

// --- Addresses ---

func (s *Store) GetAddress(id int) (*models.Address, error) {
	return GetAddress(s.db, id)
}

func (s *Store) GetAddresses(contactID int) ([]models.Address, error) {
	return GetAddresses(s.db, contactID)
}

func (s *Store) GetSharedAddresses(masterID int) ([]models.Address, error) {
	return GetSharedAddresses(s.db, masterID)
}

func (s *Store) CreateAddress(address *models.Address) (*models.Address, error) {
	done := s.begin()
	defer done()

	s.notify(PhasePre, OpCreate, models.ObjectAddress, 0, address)
	if err := CreateAddress(s.db, address); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpCreate, models.ObjectAddress, address.ID)

	s.notify(PhasePost, OpCreate, models.ObjectAddress, address.ID, address)
	return address, nil
}

func (s *Store) UpdateAddress(address *models.Address) (*models.Address, error) {
	done := s.begin()
	defer done()

	if address.ID == 0 {
		return nil, fmt.Errorf("address update requires an id")
	}
	existing, err := GetAddress(s.db, address.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("address %d not found", address.ID)
	}

	s.notify(PhasePre, OpEdit, models.ObjectAddress, address.ID, existing)
	if err := UpdateAddress(s.db, address); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpEdit, models.ObjectAddress, address.ID)

	s.notify(PhasePost, OpEdit, models.ObjectAddress, address.ID, address)
	return address, nil
}

func (s *Store) DeleteAddress(id int) error {
	done := s.begin()
	defer done()

	existing, err := GetAddress(s.db, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	s.notify(PhasePre, OpDelete, models.ObjectAddress, id, existing)
	if err := DeleteAddress(s.db, id); err != nil {
		return err
	}
	_ = LogWrite(s.db, OpDelete, models.ObjectAddress, id)

	s.notify(PhasePost, OpDelete, models.ObjectAddress, id, existing)
	return nil
}

// --- Phones ---

func (s *Store) GetPhone(id int) (*models.Phone, error) {
	return GetPhone(s.db, id)
}

func (s *Store) GetPhones(contactID int) ([]models.Phone, error) {
	return GetPhones(s.db, contactID)
}

func (s *Store) CreatePhone(phone *models.Phone) (*models.Phone, error) {
	done := s.begin()
	defer done()

	s.notify(PhasePre, OpCreate, models.ObjectPhone, 0, phone)
	if err := CreatePhone(s.db, phone); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpCreate, models.ObjectPhone, phone.ID)

	s.notify(PhasePost, OpCreate, models.ObjectPhone, phone.ID, phone)
	return phone, nil
}

func (s *Store) UpdatePhone(phone *models.Phone) (*models.Phone, error) {
	done := s.begin()
	defer done()

	if phone.ID == 0 {
		return nil, fmt.Errorf("phone update requires an id")
	}
	existing, err := GetPhone(s.db, phone.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("phone %d not found", phone.ID)
	}

	s.notify(PhasePre, OpEdit, models.ObjectPhone, phone.ID, existing)
	if err := UpdatePhone(s.db, phone); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpEdit, models.ObjectPhone, phone.ID)

	s.notify(PhasePost, OpEdit, models.ObjectPhone, phone.ID, phone)
	return phone, nil
}

func (s *Store) DeletePhone(id int) error {
	done := s.begin()
	defer done()

	existing, err := GetPhone(s.db, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	s.notify(PhasePre, OpDelete, models.ObjectPhone, id, existing)
	if err := DeletePhone(s.db, id); err != nil {
		return err
	}
	_ = LogWrite(s.db, OpDelete, models.ObjectPhone, id)

	s.notify(PhasePost, OpDelete, models.ObjectPhone, id, existing)
	return nil
}

// --- Instant messengers ---

func (s *Store) GetIM(id int) (*models.InstantMessenger, error) {
	return GetIM(s.db, id)
}

func (s *Store) GetIMs(contactID int) ([]models.InstantMessenger, error) {
	return GetIMs(s.db, contactID)
}

func (s *Store) CreateIM(im *models.InstantMessenger) (*models.InstantMessenger, error) {
	done := s.begin()
	defer done()

	s.notify(PhasePre, OpCreate, models.ObjectIM, 0, im)
	if err := CreateIM(s.db, im); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpCreate, models.ObjectIM, im.ID)

	s.notify(PhasePost, OpCreate, models.ObjectIM, im.ID, im)
	return im, nil
}

func (s *Store) UpdateIM(im *models.InstantMessenger) (*models.InstantMessenger, error) {
	done := s.begin()
	defer done()

	if im.ID == 0 {
		return nil, fmt.Errorf("im update requires an id")
	}
	existing, err := GetIM(s.db, im.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("im %d not found", im.ID)
	}

	s.notify(PhasePre, OpEdit, models.ObjectIM, im.ID, existing)
	if err := UpdateIM(s.db, im); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpEdit, models.ObjectIM, im.ID)

	s.notify(PhasePost, OpEdit, models.ObjectIM, im.ID, im)
	return im, nil
}

func (s *Store) DeleteIM(id int) error {
	done := s.begin()
	defer done()

	existing, err := GetIM(s.db, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	s.notify(PhasePre, OpDelete, models.ObjectIM, id, existing)
	if err := DeleteIM(s.db, id); err != nil {
		return err
	}
	_ = LogWrite(s.db, OpDelete, models.ObjectIM, id)

	s.notify(PhasePost, OpDelete, models.ObjectIM, id, existing)
	return nil
}

// --- Relationships ---

func (s *Store) GetRelationship(id int) (*models.Relationship, error) {
	return GetRelationship(s.db, id)
}

func (s *Store) FindRelationships(contactID, typeID int, direction string) ([]models.Relationship, error) {
	return FindRelationships(s.db, contactID, typeID, direction)
}

func (s *Store) CreateRelationship(relationship *models.Relationship) (*models.Relationship, error) {
	done := s.begin()
	defer done()

	s.notify(PhasePre, OpCreate, models.ObjectRelationship, 0, relationship)
	if err := CreateRelationship(s.db, relationship); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpCreate, models.ObjectRelationship, relationship.ID)

	s.notify(PhasePost, OpCreate, models.ObjectRelationship, relationship.ID, relationship)
	return relationship, nil
}

func (s *Store) SetRelationshipActive(id int, active bool) (*models.Relationship, error) {
	done := s.begin()
	defer done()

	existing, err := GetRelationship(s.db, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("relationship %d not found", id)
	}

	s.notify(PhasePre, OpEdit, models.ObjectRelationship, id, existing)
	if err := SetRelationshipActive(s.db, id, active); err != nil {
		return nil, err
	}
	_ = LogWrite(s.db, OpEdit, models.ObjectRelationship, id)

	updated, err := GetRelationship(s.db, id)
	if err != nil {
		return nil, err
	}
	s.notify(PhasePost, OpEdit, models.ObjectRelationship, id, updated)
	return updated, nil
}
