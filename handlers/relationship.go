// ABOUTME: Relationship reconciliation handler
// ABOUTME: Classifies content-side partner lists into ignore, activate, deactivate, and create actions
package handlers

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/content"
	"github.com/christianwach/crmsync/crm"
	"github.com/christianwach/crmsync/mapper"
	"github.com/christianwach/crmsync/mapping"
	"github.com/christianwach/crmsync/models"
	"github.com/christianwach/crmsync/resolver"
)

type RelationshipHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewRelationshipHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "relationship").Logger(),
	}
}

func (h *RelationshipHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityFields, "relationship.fields-saved", h.onFieldsSaved)
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityRelationship, "relationship.crm-change", h.onCRMChange)

	// The reverse-direction field of the other participant is updated
	// through the lifecycle events, so a content-origin change on one
	// side lands on both.
	h.dispatcher.OnLifecycle(mapper.ActionRelationshipCreated, "relationship.sync-created", h.onLifecycle)
	h.dispatcher.OnLifecycle(mapper.ActionRelationshipActivated, "relationship.sync-activated", h.onLifecycle)
	h.dispatcher.OnLifecycle(mapper.ActionRelationshipDeactivated, "relationship.sync-deactivated", h.onLifecycle)
}

func (h *RelationshipHandler) onFieldsSaved(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ctx.Policy == mapper.PolicySkip {
		return nil
	}

	entity, err := h.content.GetEntity(ev.EntityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return nil
	}

	contactID, err := h.resolver.ContactIDFor(entity.ID)
	if err != nil {
		return err
	}
	if contactID == 0 {
		return nil
	}

	for _, fm := range h.cfg.RelationshipFieldsFor(entity.EntityType) {
		if fm.ReadOnly {
			continue
		}
		value, err := h.content.GetField(fm.Selector, entity.ID)
		if err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Msg("failed to read relationship field")
			continue
		}

		partnerIDs := h.resolvePartners(idStrings(value))
		h.Reconcile(ctx, contactID, fm, partnerIDs)
	}
	return nil
}

// resolvePartners maps partner content entity ids onto CRM contact
// ids. Unmapped partners are skipped: a reference to an unsynced entity
// cannot produce a relationship yet.
func (h *RelationshipHandler) resolvePartners(contentIDs []string) []int {
	var partners []int
	for _, contentID := range contentIDs {
		partnerID, err := h.resolver.ContactIDFor(contentID)
		if err != nil {
			h.log.Error().Err(err).Str("content_id", contentID).Msg("partner lookup failed")
			continue
		}
		if partnerID == 0 {
			h.log.Debug().Str("content_id", contentID).Msg("partner entity has no mapped contact, skipping")
			continue
		}
		partners = append(partners, partnerID)
	}
	return partners
}

// Reconcile classifies the desired partner set against the contact's
// existing relationships of the mapped type and direction. Existing
// active pairs are ignored, inactive ones reactivated, absent ones
// created, and active pairs no longer desired are deactivated. Rows
// are never deleted.
func (h *RelationshipHandler) Reconcile(ctx *mapper.SyncContext, contactID int, fm mapping.FieldMapping, partnerIDs []int) {
	existing, err := h.crm.FindRelationships(contactID, fm.RelationshipTypeID, fm.Direction)
	if err != nil {
		h.log.Error().Err(err).Int("contact_id", contactID).Int("type_id", fm.RelationshipTypeID).Msg("relationship lookup failed, assuming empty set")
		existing = nil
	}

	byPartner := make(map[int]models.Relationship, len(existing))
	for _, rel := range existing {
		byPartner[relationshipPartner(&rel, fm.Direction)] = rel
	}

	desired := make(map[int]bool, len(partnerIDs))
	for _, partnerID := range partnerIDs {
		desired[partnerID] = true

		current, ok := byPartner[partnerID]
		switch {
		case ok && current.IsActive:
			// Already in the desired state.
		case ok && !current.IsActive:
			activated, err := h.crm.SetRelationshipActive(current.ID, true)
			if err != nil {
				h.log.Error().Err(err).Int("relationship_id", current.ID).Msg("relationship activation failed")
				continue
			}
			h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
				Action:   mapper.ActionRelationshipActivated,
				Payload:  activated,
				ParentID: contactID,
			})
		default:
			relationship := &models.Relationship{
				TypeID:   fm.RelationshipTypeID,
				IsActive: true,
			}
			if fm.Direction == models.DirectionAB {
				relationship.ContactA = contactID
				relationship.ContactB = partnerID
			} else {
				relationship.ContactA = partnerID
				relationship.ContactB = contactID
			}

			created, err := h.crm.CreateRelationship(relationship)
			if err != nil {
				h.log.Error().Err(err).Int("contact_id", contactID).Int("partner_id", partnerID).Msg("relationship create failed")
				continue
			}
			h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
				Action:   mapper.ActionRelationshipCreated,
				Payload:  created,
				ParentID: contactID,
			})
		}
	}

	for partnerID, rel := range byPartner {
		if desired[partnerID] || !rel.IsActive {
			continue
		}
		deactivated, err := h.crm.SetRelationshipActive(rel.ID, false)
		if err != nil {
			h.log.Error().Err(err).Int("relationship_id", rel.ID).Msg("relationship deactivation failed")
			continue
		}
		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:   mapper.ActionRelationshipDeactivated,
			Payload:  deactivated,
			ParentID: contactID,
		})
	}
}

func (h *RelationshipHandler) onCRMChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ev.Phase == mapper.PhasePre {
		return nil
	}

	relationship, ok := ev.Ref.(*models.Relationship)
	if !ok {
		loaded, err := h.crm.GetRelationship(ev.CRMID())
		if err != nil || loaded == nil {
			return fmt.Errorf("failed to load relationship %s: %w", ev.EntityID, err)
		}
		relationship = loaded
	}

	// Route through the lifecycle events with no originating side, so
	// both participants' content fields are updated.
	action := ""
	switch ev.Op {
	case mapper.OpCreate:
		action = mapper.ActionRelationshipCreated
	case mapper.OpEdit:
		if relationship.IsActive {
			action = mapper.ActionRelationshipActivated
		} else {
			action = mapper.ActionRelationshipDeactivated
		}
	case mapper.OpDelete:
		action = mapper.ActionRelationshipDeactivated
	}
	if action == "" {
		return nil
	}

	h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
		Action:  action,
		Payload: relationship,
	})
	return nil
}

// onLifecycle mirrors one relationship change into the content fields
// of both participants, skipping the side the change originated from.
func (h *RelationshipHandler) onLifecycle(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	relationship, ok := ev.Payload.(*models.Relationship)
	if !ok {
		return nil
	}
	add := ev.Action != mapper.ActionRelationshipDeactivated

	if relationship.ContactA != ev.ParentID {
		h.updateSide(relationship.ContactA, models.DirectionAB, relationship, add)
	}
	if relationship.ContactB != ev.ParentID {
		h.updateSide(relationship.ContactB, models.DirectionBA, relationship, add)
	}
	return nil
}

// updateSide adds or removes the partner's content id in the matching
// relationship field of one participant's mapped entities.
func (h *RelationshipHandler) updateSide(contactID int, direction string, relationship *models.Relationship, add bool) {
	contact, err := h.crm.GetContact(contactID)
	if err != nil || contact == nil {
		return
	}

	partnerID := relationshipPartner(relationship, direction)
	partnerContentID := h.anyContentIDForContact(partnerID)
	if partnerContentID == "" {
		return
	}

	for _, contentType := range h.resolver.ContentTypesForContact(contact) {
		contentID, err := h.resolver.ContentIDForContact(contact.ID, contentType)
		if err != nil || contentID == "" {
			continue
		}
		fm := h.cfg.RelationshipFieldFor(contentType, relationship.TypeID, direction)
		if fm == nil {
			continue
		}

		value, err := h.content.GetField(fm.Selector, contentID)
		if err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Msg("failed to read relationship field")
			continue
		}

		ids := idStrings(value)
		updated, changed := adjustIDList(ids, partnerContentID, add)
		if !changed {
			continue
		}

		if err := h.content.UpdateField(fm.Selector, updated, contentID); err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Str("content_id", contentID).Msg("relationship field write failed")
		}
	}
}

// anyContentIDForContact returns the first mapped content entity id of
// a contact across its mapped content types, or "".
func (h *RelationshipHandler) anyContentIDForContact(contactID int) string {
	contact, err := h.crm.GetContact(contactID)
	if err != nil || contact == nil {
		return ""
	}
	for _, contentType := range h.resolver.ContentTypesForContact(contact) {
		contentID, err := h.resolver.ContentIDForContact(contactID, contentType)
		if err == nil && contentID != "" {
			return contentID
		}
	}
	return ""
}

// relationshipPartner returns the contact on the far side of the
// relationship as seen from the given direction.
func relationshipPartner(relationship *models.Relationship, direction string) int {
	if direction == models.DirectionAB {
		return relationship.ContactB
	}
	return relationship.ContactA
}

// idStrings normalizes a relationship field value into a list of
// content entity ids. Values arrive as strings or JSON numbers.
func idStrings(value any) []string {
	items, ok := value.([]any)
	if !ok {
		if s, ok := value.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	var ids []string
	for _, item := range items {
		s := stringify(item)
		if s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

// adjustIDList adds or removes one id, reporting whether the list
// changed.
func adjustIDList(ids []string, id string, add bool) ([]string, bool) {
	for i, existing := range ids {
		if existing != id {
			continue
		}
		if add {
			return ids, false
		}
		return append(ids[:i], ids[i+1:]...), true
	}
	if !add {
		return ids, false
	}
	return append(ids, id), true
}
