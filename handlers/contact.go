// ABOUTME: Contact sync handler
// ABOUTME: Keeps a content entity and its mapped CRM contact consistent in both directions
package handlers

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/content"
	"github.com/christianwach/crmsync/crm"
	"github.com/christianwach/crmsync/mapper"
	"github.com/christianwach/crmsync/mapping"
	"github.com/christianwach/crmsync/models"
	"github.com/christianwach/crmsync/resolver"
)

type ContactHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewContactHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *ContactHandler {
	return &ContactHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "contact").Logger(),
	}
}

// Register wires the handler into the dispatcher. The contact handler
// registers before the repeatable-record handlers: they rely on the
// mapped contact existing by the time their fields-saved listeners run.
func (h *ContactHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityContent, "contact.content-save", h.onContentSave)
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityFields, "contact.fields-saved", h.onFieldsSaved)
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityContact, "contact.crm-change", h.onCRMChange)
}

func (h *ContactHandler) onContentSave(ctx *mapper.SyncContext, ev mapper.Event) error {
	entity, err := h.content.GetEntity(ev.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load content entity %q: %w", ev.EntityID, err)
	}
	if entity == nil {
		return nil
	}

	contactType := h.cfg.ContactTypeFor(entity.EntityType)
	if contactType == "" {
		// Not mapped to a contact type. Nothing to do.
		return nil
	}

	_, err = h.SyncFromContent(ctx, entity, contactType)
	return err
}

// SyncFromContent creates or updates the CRM contact mapped to a
// content entity, using the entity's canonical fields.
func (h *ContactHandler) SyncFromContent(ctx *mapper.SyncContext, entity *content.Entity, contactType string) (*models.Contact, error) {
	contactID, err := h.resolver.ContactIDFor(entity.ID)
	if err != nil {
		return nil, err
	}

	first, last := splitName(entity.Title)

	if contactID == 0 {
		contact := &models.Contact{
			ContactType: contactType,
			DisplayName: entity.Title,
			FirstName:   first,
			LastName:    last,
		}
		created, err := h.crm.CreateContact(contact)
		if err != nil {
			return nil, fmt.Errorf("failed to create contact for %q: %w", entity.ID, err)
		}
		if err := h.resolver.SaveContactMapping(entity.ID, created.ID); err != nil {
			return nil, err
		}

		h.log.Info().Str("content_id", entity.ID).Int("contact_id", created.ID).Msg("created mapped contact")
		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:    mapper.ActionSyncedFromContent,
			Payload:   created,
			ParentID:  created.ID,
			ContentID: entity.ID,
		})
		return created, nil
	}

	// Canonical fields are always part of an update payload.
	contact := &models.Contact{
		ID:          contactID,
		ContactType: contactType,
		DisplayName: entity.Title,
		FirstName:   first,
		LastName:    last,
	}
	updated, err := h.crm.UpdateContact(contact)
	if err != nil {
		return nil, fmt.Errorf("failed to update contact %d: %w", contactID, err)
	}

	h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
		Action:    mapper.ActionSyncedFromContent,
		Payload:   updated,
		ParentID:  updated.ID,
		ContentID: entity.ID,
	})
	return updated, nil
}

func (h *ContactHandler) onFieldsSaved(ctx *mapper.SyncContext, ev mapper.Event) error {
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
	if h.cfg.ContactTypeFor(entity.EntityType) == "" {
		return nil
	}

	contactID, err := h.resolver.ContactIDFor(entity.ID)
	if err != nil {
		return err
	}
	if contactID == 0 {
		// The save notification creates the mapping before field values
		// land; a missing mapping here means the entity was never synced.
		return nil
	}

	values, err := h.content.GetFields(entity.ID)
	if err != nil {
		return fmt.Errorf("failed to load field values for %q: %w", entity.ID, err)
	}

	return h.SyncFieldsFromContent(ctx, contactID, entity.EntityType, values)
}

// SyncFieldsFromContent partitions the entity's field values into
// scalar and custom mappings and issues one combined CRM update.
// Repeatable-record and relationship fields are owned by their own
// handlers and skipped here. The payload may be a superset of the
// fields that apply to the contact's sub-type; the CRM ignores keys
// that do not apply.
func (h *ContactHandler) SyncFieldsFromContent(ctx *mapper.SyncContext, contactID int, contentType string, values map[string]any) error {
	if contactID == 0 {
		// Updating without an id would silently create a duplicate
		// contact, which is worse than a visible failure.
		h.log.Error().Str("content_type", contentType).Msg("field sync attempted without a contact id")
		return fmt.Errorf("field sync requires a contact id")
	}

	contact, err := h.crm.GetContact(contactID)
	if err != nil || contact == nil {
		return fmt.Errorf("failed to load contact %d: %w", contactID, err)
	}

	touched := false
	for selector, value := range values {
		fm := h.cfg.FieldBySelector(contentType, selector)
		if fm == nil {
			continue
		}
		switch fm.Kind {
		case mapping.KindScalar:
			applyContactScalar(contact, fm.CRMField, value)
			touched = true
		case mapping.KindCustom:
			if contact.Custom == nil {
				contact.Custom = make(map[string]any)
			}
			contact.Custom[fm.CustomKey()] = value
			touched = true
		default:
			// Repeatable records and relationships are delegated.
		}
	}

	if !touched {
		return nil
	}

	updated, err := h.crm.UpdateContact(contact)
	if err != nil {
		h.log.Error().Err(err).Int("contact_id", contactID).Msg("contact field update failed")
		return err
	}

	h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
		Action:   mapper.ActionSyncedFromContent,
		Payload:  updated,
		ParentID: updated.ID,
	})
	return nil
}

func (h *ContactHandler) onCRMChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ev.Phase == mapper.PhasePre {
		// Nothing to prime for contacts; the pre notification exists so
		// handlers that need the unpersisted payload can see it.
		return nil
	}

	switch ev.Op {
	case mapper.OpCreate, mapper.OpEdit:
		contact, ok := ev.Ref.(*models.Contact)
		if !ok {
			loaded, err := h.crm.GetContact(ev.CRMID())
			if err != nil || loaded == nil {
				return fmt.Errorf("failed to load contact %s: %w", ev.EntityID, err)
			}
			contact = loaded
		}
		return h.SyncFromCRM(ctx, contact)
	case mapper.OpDelete:
		// Content entity lifecycle on delete is owned by the platform,
		// not this engine.
		return nil
	}
	return nil
}

// SyncFromCRM mirrors a CRM contact change into every mapped content
// entity. The contact's type hierarchy can map to several content
// types; each one is synced.
func (h *ContactHandler) SyncFromCRM(ctx *mapper.SyncContext, contact *models.Contact) error {
	contentTypes := h.resolver.ContentTypesForContact(contact)
	if len(contentTypes) == 0 {
		return nil
	}

	for _, contentType := range contentTypes {
		contentID, err := h.resolver.EnsureContentEntityForContact(contact, contentType)
		if err != nil {
			h.log.Error().Err(err).Int("contact_id", contact.ID).Str("content_type", contentType).Msg("failed to resolve content entity")
			continue
		}

		if err := h.writeContactToContent(contact, contentID, contentType); err != nil {
			h.log.Error().Err(err).Int("contact_id", contact.ID).Str("content_id", contentID).Msg("failed to write contact to content")
			continue
		}

		// Later fields-saved notifications in this request are echoes
		// of this engine-driven write.
		ctx.Policy = mapper.PolicySkip

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:    mapper.ActionSyncedFromCRM,
			Payload:   contact,
			ParentID:  contact.ID,
			ContentID: contentID,
		})
	}
	return nil
}

func (h *ContactHandler) writeContactToContent(contact *models.Contact, contentID, contentType string) error {
	entity, err := h.content.GetEntity(contentID)
	if err != nil || entity == nil {
		return fmt.Errorf("content entity %q not found: %w", contentID, err)
	}

	entity.Title = contact.DisplayName
	if err := h.content.UpdateEntity(entity); err != nil {
		return err
	}

	for _, fm := range h.cfg.FieldsFor(contentType) {
		var value any
		switch fm.Kind {
		case mapping.KindScalar:
			value = contactScalar(contact, fm.CRMField)
		case mapping.KindCustom:
			v, ok := contact.Custom[fm.CustomKey()]
			if !ok {
				continue
			}
			value = v
		default:
			continue
		}

		fieldType := ""
		if settings, err := h.content.GetFieldSettings(fm.Selector); err == nil && settings != nil {
			fieldType = settings.FieldType
		}

		if err := h.content.UpdateField(fm.Selector, coerceForContent(fieldType, value), contentID); err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Str("content_id", contentID).Msg("field write failed")
		}
	}
	return nil
}

func applyContactScalar(contact *models.Contact, crmField string, value any) {
	s := stringify(value)
	switch crmField {
	case "display_name":
		contact.DisplayName = s
	case "first_name":
		contact.FirstName = s
	case "last_name":
		contact.LastName = s
	case "nickname":
		contact.Nickname = s
	case "email":
		contact.Email = s
	}
}

func contactScalar(contact *models.Contact, crmField string) any {
	switch crmField {
	case "display_name":
		return contact.DisplayName
	case "first_name":
		return contact.FirstName
	case "last_name":
		return contact.LastName
	case "nickname":
		return contact.Nickname
	case "email":
		return contact.Email
	}
	return nil
}

// splitName derives first and last name from an entity title. The
// first token is the first name, the remainder the last name.
func splitName(title string) (string, string) {
	parts := strings.Fields(title)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
