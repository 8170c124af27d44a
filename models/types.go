// ABOUTME: Data models for CRM entities
// ABOUTME: Defines Contact, Activity, Address, Phone, InstantMessenger, and Relationship structs
package models

import "time"

// Contact is a CRM contact. ID is zero until the record is persisted.
// Custom holds custom field values keyed by their "custom_<N>" api name.
type Contact struct {
	ID          int            `json:"id"`
	ContactType string         `json:"contact_type"`
	SubTypes    []string       `json:"sub_types,omitempty"`
	DisplayName string         `json:"display_name"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	Nickname    string         `json:"nickname,omitempty"`
	Email       string         `json:"email,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
	IsDeleted   bool           `json:"is_deleted"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Activity struct {
	ID              int            `json:"id"`
	ActivityType    string         `json:"activity_type"`
	Subject         string         `json:"subject"`
	Details         string         `json:"details,omitempty"`
	TargetContactID int            `json:"target_contact_id,omitempty"`
	ActivityDate    *time.Time     `json:"activity_date,omitempty"`
	Custom          map[string]any `json:"custom,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Address is a repeatable sub-record of a Contact. MasterID, when
// non-zero, points at the address this one shares its data with.
type Address struct {
	ID             int    `json:"id"`
	ContactID      int    `json:"contact_id"`
	LocationTypeID int    `json:"location_type_id"`
	IsPrimary      bool   `json:"is_primary"`
	IsBilling      bool   `json:"is_billing"`
	Street         string `json:"street_address,omitempty"`
	Supplemental   string `json:"supplemental_address,omitempty"`
	City           string `json:"city,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
	StateProvince  string `json:"state_province,omitempty"`
	Country        string `json:"country,omitempty"`
	Latitude       string `json:"geo_code_1,omitempty"`
	Longitude      string `json:"geo_code_2,omitempty"`
	MasterID       int    `json:"master_id,omitempty"`
}

type Phone struct {
	ID             int    `json:"id"`
	ContactID      int    `json:"contact_id"`
	LocationTypeID int    `json:"location_type_id"`
	PhoneTypeID    int    `json:"phone_type_id"`
	IsPrimary      bool   `json:"is_primary"`
	Number         string `json:"phone,omitempty"`
	Extension      string `json:"phone_ext,omitempty"`
}

type InstantMessenger struct {
	ID             int    `json:"id"`
	ContactID      int    `json:"contact_id"`
	LocationTypeID int    `json:"location_type_id"`
	ProviderID     int    `json:"provider_id"`
	IsPrimary      bool   `json:"is_primary"`
	Name           string `json:"name,omitempty"`
}

// Relationship links ContactA to ContactB with a typed, directional
// edge. Rows are never deleted; IsActive is flipped instead so history
// is preserved.
type Relationship struct {
	ID        int       `json:"id"`
	TypeID    int       `json:"type_id"`
	ContactA  int       `json:"contact_id_a"`
	ContactB  int       `json:"contact_id_b"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomFieldChange is one changed custom field in a custom-group
// change notification.
type CustomFieldChange struct {
	FieldID int    `json:"custom_field_id"`
	GroupID int    `json:"custom_group_id"`
	Value   any    `json:"value"`
	Type    string `json:"type,omitempty"`
}

// Contact type constants.
const (
	ContactTypeIndividual   = "Individual"
	ContactTypeOrganization = "Organization"
	ContactTypeHousehold    = "Household"
)

// Relationship direction constants.
const (
	DirectionAB = "ab"
	DirectionBA = "ba"
)

// CRM object names as they appear in native change notifications.
const (
	ObjectContact      = "Contact"
	ObjectIndividual   = "Individual"
	ObjectOrganization = "Organization"
	ObjectHousehold    = "Household"
	ObjectActivity     = "Activity"
	ObjectAddress      = "Address"
	ObjectPhone        = "Phone"
	ObjectIM           = "Im"
	ObjectRelationship = "Relationship"
)

// TypeHierarchy returns the contact's full type hierarchy, base type
// first. Sub-types extend the base type, so a contact can satisfy
// several mapped content types at once.
func (c *Contact) TypeHierarchy() []string {
	types := []string{c.ContactType}
	return append(types, c.SubTypes...)
}

// IsContactObject reports whether a native object name denotes a
// contact of any type.
func IsContactObject(name string) bool {
	switch name {
	case ObjectContact, ObjectIndividual, ObjectOrganization, ObjectHousehold:
		return true
	}
	return false
}
