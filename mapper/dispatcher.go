// ABOUTME: Event Mapper dispatcher normalizing native change notifications
// ABOUTME: Filters, suspends the written-to platform, and re-broadcasts canonical events
package mapper

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/models"
)

// ListenerFunc handles one canonical event. Errors are logged by the
// dispatcher and never propagate to the native caller.
type ListenerFunc func(ctx *SyncContext, ev Event) error

// LifecycleFunc handles one lifecycle event.
type LifecycleFunc func(ctx *SyncContext, ev LifecycleEvent) error

type registration struct {
	source     Platform
	entityType string
	name       string
	fn         ListenerFunc
}

type lifecycleRegistration struct {
	action string
	name   string
	fn     LifecycleFunc
}

// Dispatcher owns the listener tables and the reentrancy guard. It is
// the only component allowed to suspend or resume listeners.
//
// Registration order is execution order; handlers that depend on
// earlier handlers having run register later.
type Dispatcher struct {
	guard     *Guard
	log       zerolog.Logger
	listeners []registration
	lifecycle []lifecycleRegistration
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		guard: &Guard{},
		log:   log,
	}
}

func (d *Dispatcher) Guard() *Guard {
	return d.guard
}

// Listen registers a listener for canonical events of one source
// platform and entity type. The name appears in diagnostics.
func (d *Dispatcher) Listen(source Platform, entityType, name string, fn ListenerFunc) {
	d.listeners = append(d.listeners, registration{
		source:     source,
		entityType: entityType,
		name:       name,
		fn:         fn,
	})
}

// OnLifecycle registers a listener for one lifecycle action.
func (d *Dispatcher) OnLifecycle(action, name string, fn LifecycleFunc) {
	d.lifecycle = append(d.lifecycle, lifecycleRegistration{
		action: action,
		name:   name,
		fn:     fn,
	})
}

// NativeCRMChange receives a native CRM change notification. Anything
// not of interest is dropped silently; matches are normalized and
// re-broadcast with content-platform listeners suspended.
func (d *Dispatcher) NativeCRMChange(ctx *SyncContext, phase, op, objectName string, objectID int, ref any) {
	if d.guard.Suspended(PlatformCRM) {
		d.log.Debug().Str("object", objectName).Str("op", op).Msg("crm listeners suspended, dropping notification")
		return
	}

	entityType := crmEntityType(objectName)
	if entityType == "" {
		return
	}

	operation, ok := normalizeOp(op)
	if !ok {
		return
	}
	eventPhase, ok := normalizePhase(phase)
	if !ok {
		d.log.Warn().Str("phase", phase).Str("object", objectName).Msg("malformed notification phase, dropping")
		return
	}
	if objectID <= 0 && !(eventPhase == PhasePre && operation == OpCreate) {
		d.log.Warn().Str("object", objectName).Str("op", op).Msg("notification missing object id, dropping")
		return
	}

	ev := Event{
		ID:         uuid.New(),
		Source:     PlatformCRM,
		Op:         operation,
		Phase:      eventPhase,
		EntityType: entityType,
		EntityID:   strconv.Itoa(objectID),
		Ref:        ref,
		Extra:      map[string]any{"object_name": objectName},
	}

	// A CRM change is mirrored into the content store, so content
	// listeners go quiet first.
	d.emit(ctx, PlatformContent, ev)
}

// NativeCRMCustomChange receives the per-group custom fields changed
// notification.
func (d *Dispatcher) NativeCRMCustomChange(ctx *SyncContext, op string, groupID, entityID int, fields []models.CustomFieldChange) {
	if d.guard.Suspended(PlatformCRM) {
		return
	}

	operation, ok := normalizeOp(op)
	if !ok {
		return
	}
	if entityID <= 0 || len(fields) == 0 {
		d.log.Warn().Int("group_id", groupID).Int("entity_id", entityID).Msg("malformed custom change notification, dropping")
		return
	}

	ev := Event{
		ID:         uuid.New(),
		Source:     PlatformCRM,
		Op:         operation,
		Phase:      PhasePost,
		EntityType: EntityCustom,
		EntityID:   strconv.Itoa(entityID),
		Ref:        fields,
		Extra:      map[string]any{"group_id": groupID},
	}

	d.emit(ctx, PlatformContent, ev)
}

// NativeContentSave receives the content platform's entity-save
// notification.
func (d *Dispatcher) NativeContentSave(ctx *SyncContext, entityID string, ref any, isUpdate bool) {
	if d.guard.Suspended(PlatformContent) {
		d.log.Debug().Str("entity_id", entityID).Msg("content listeners suspended, dropping notification")
		return
	}
	if entityID == "" {
		d.log.Warn().Msg("content save notification missing entity id, dropping")
		return
	}

	op := OpCreate
	if isUpdate {
		op = OpEdit
	}

	ev := Event{
		ID:         uuid.New(),
		Source:     PlatformContent,
		Op:         op,
		Phase:      PhasePost,
		EntityType: EntityContent,
		EntityID:   entityID,
		Ref:        ref,
	}

	// A content change is mirrored into the CRM.
	d.emit(ctx, PlatformCRM, ev)
}

// NativeContentFieldsSaved receives the fields-saved notification that
// follows an editor save once all field values are persisted.
func (d *Dispatcher) NativeContentFieldsSaved(ctx *SyncContext, entityID string) {
	if d.guard.Suspended(PlatformContent) {
		return
	}
	if entityID == "" {
		d.log.Warn().Msg("fields-saved notification missing entity id, dropping")
		return
	}

	ev := Event{
		ID:         uuid.New(),
		Source:     PlatformContent,
		Op:         OpSync,
		Phase:      PhasePost,
		EntityType: EntityFields,
		EntityID:   entityID,
	}

	d.emit(ctx, PlatformCRM, ev)
}

// EmitLifecycle broadcasts a lifecycle event to its listeners. Writes
// performed inside lifecycle listeners manage their own suspension.
func (d *Dispatcher) EmitLifecycle(ctx *SyncContext, ev LifecycleEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	for _, reg := range d.lifecycle {
		if reg.action != ev.Action {
			continue
		}
		d.safeLifecycleCall(ctx, reg, ev)
	}
}

// emit suspends the target platform's listeners, runs the matching
// handler chain, and resumes unconditionally. A handler failure must
// never abort the native platform's own save, so errors stop here.
func (d *Dispatcher) emit(ctx *SyncContext, target Platform, ev Event) {
	resume := d.guard.Suspend(target)
	defer resume()

	for _, reg := range d.listeners {
		if reg.source != ev.Source || reg.entityType != ev.EntityType {
			continue
		}
		d.safeCall(ctx, reg, ev)
	}
}

func (d *Dispatcher) safeCall(ctx *SyncContext, reg registration, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("listener", reg.name).
				Str("entity_type", ev.EntityType).
				Str("entity_id", ev.EntityID).
				Any("panic", r).
				Msg("listener panicked")
		}
	}()

	if err := reg.fn(ctx, ev); err != nil {
		d.log.Error().
			Err(err).
			Str("listener", reg.name).
			Str("op", string(ev.Op)).
			Str("entity_type", ev.EntityType).
			Str("entity_id", ev.EntityID).
			Msg("listener failed")
	}
}

func (d *Dispatcher) safeLifecycleCall(ctx *SyncContext, reg lifecycleRegistration, ev LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("listener", reg.name).
				Str("action", ev.Action).
				Any("panic", r).
				Msg("lifecycle listener panicked")
		}
	}()

	if err := reg.fn(ctx, ev); err != nil {
		d.log.Error().
			Err(err).
			Str("listener", reg.name).
			Str("action", ev.Action).
			Str("selector", ev.Selector).
			Int("parent_id", ev.ParentID).
			Msg("lifecycle listener failed")
	}
}

// crmEntityType maps a native CRM object name onto the internal event
// vocabulary. Unknown objects return "".
func crmEntityType(objectName string) string {
	if models.IsContactObject(objectName) {
		return EntityContact
	}
	switch objectName {
	case models.ObjectActivity:
		return EntityActivity
	case models.ObjectAddress:
		return EntityAddress
	case models.ObjectPhone:
		return EntityPhone
	case models.ObjectIM:
		return EntityIM
	case models.ObjectRelationship:
		return EntityRelationship
	}
	return ""
}

func normalizeOp(op string) (Operation, bool) {
	switch Operation(op) {
	case OpCreate, OpEdit, OpDelete, OpSync:
		return Operation(op), true
	}
	return "", false
}

func normalizePhase(phase string) (Phase, bool) {
	switch Phase(phase) {
	case PhasePre, PhasePost:
		return Phase(phase), true
	}
	return "", false
}
