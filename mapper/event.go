// ABOUTME: Canonical event vocabulary for the dispatcher
// ABOUTME: Defines normalized change events and lifecycle events emitted by handlers
package mapper

import (
	"strconv"

	"github.com/google/uuid"
)

// Operation is the normalized change operation.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
	OpSync   Operation = "sync"
)

// Phase distinguishes pre-write from post-write notifications. The CRM
// fires both; some handlers need to act before the row exists.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Internal entity types carried by canonical events.
const (
	EntityContact      = "contact"
	EntityActivity     = "activity"
	EntityAddress      = "address"
	EntityPhone        = "phone"
	EntityIM           = "im"
	EntityRelationship = "relationship"
	EntityCustom       = "custom"
	EntityContent      = "entity"
	EntityFields       = "fields"
)

// Event is the canonical payload a native notification is normalized
// into before being re-broadcast internally.
type Event struct {
	ID         uuid.UUID
	Source     Platform
	Op         Operation
	Phase      Phase
	EntityType string
	EntityID   string
	Ref        any
	Extra      map[string]any
}

// CRMID returns the event's entity id as a CRM numeric id, or 0 when
// it does not parse.
func (e Event) CRMID() int {
	n, err := strconv.Atoi(e.EntityID)
	if err != nil {
		return 0
	}
	return n
}

// Lifecycle event actions emitted by sync handlers. These are the
// extension contract surrounding the engine: sibling handlers consume
// them to keep denormalized copies in step.
const (
	ActionRecordCreated = "record_created"
	ActionRecordUpdated = "record_updated"
	ActionRecordDeleted = "record_deleted"

	ActionRelationshipCreated     = "relationship_created"
	ActionRelationshipActivated   = "relationship_activated"
	ActionRelationshipDeactivated = "relationship_deactivated"

	ActionSyncedFromContent = "entity_synced_from_content"
	ActionSyncedFromCRM     = "entity_synced_from_crm"
)

// LifecycleEvent carries one completed sync action: the sub-record or
// entity payload plus the parent and content-field context it applies
// to.
type LifecycleEvent struct {
	ID         uuid.UUID
	Action     string
	RecordKind string
	Payload    any
	ParentID   int
	Selector   string
	ContentID  string
	Extra      map[string]any
}
