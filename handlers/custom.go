// ABOUTME: Custom field sync handler
// ABOUTME: Mirrors CRM custom-group changes into content fields, buffering pre-creation batches
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

type CustomFieldHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewCustomFieldHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *CustomFieldHandler {
	return &CustomFieldHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "custom").Logger(),
	}
}

func (h *CustomFieldHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityCustom, "custom.crm-change", h.onCustomChange)

	// During CRM-side contact creation the custom notification fires
	// before the mapped content entity exists. Buffered batches replay
	// here, after the contact handler has created the entity.
	h.dispatcher.OnLifecycle(mapper.ActionSyncedFromCRM, "custom.flush-pending", h.onEntitySynced)
}

func (h *CustomFieldHandler) onCustomChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	fields, ok := ev.Ref.([]models.CustomFieldChange)
	if !ok || len(fields) == 0 {
		return nil
	}
	contactID := ev.CRMID()
	groupID := 0
	if ev.Extra != nil {
		if g, ok := ev.Extra["group_id"].(int); ok {
			groupID = g
		}
	}

	contact, err := h.crm.GetContact(contactID)
	if err != nil || contact == nil {
		// Lookup failure means effectively absent; nothing to mirror.
		return nil
	}

	applied, err := h.applyBatch(contact, fields)
	if err != nil {
		return err
	}
	if !applied {
		ctx.BufferCustomBatch(mapper.PendingCustomBatch{
			Op:        string(ev.Op),
			GroupID:   groupID,
			ContactID: contactID,
			Fields:    fields,
		})
	}
	return nil
}

func (h *CustomFieldHandler) onEntitySynced(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.ParentID == 0 {
		return nil
	}
	batches := ctx.DrainCustomBatches(ev.ParentID)
	if len(batches) == 0 {
		return nil
	}

	contact, err := h.crm.GetContact(ev.ParentID)
	if err != nil || contact == nil {
		return fmt.Errorf("failed to load contact %d for custom flush: %w", ev.ParentID, err)
	}

	// Replay in original arrival order.
	for _, batch := range batches {
		if _, err := h.applyBatch(contact, batch.Fields); err != nil {
			h.log.Error().Err(err).Int("group_id", batch.GroupID).Int("contact_id", batch.ContactID).Msg("buffered custom batch failed")
		}
	}
	return nil
}

// applyBatch writes the changed custom values into every mapped
// content entity of the contact. It reports false when no mapped
// entity exists yet, so the caller can buffer the batch.
func (h *CustomFieldHandler) applyBatch(contact *models.Contact, fields []models.CustomFieldChange) (bool, error) {
	contentTypes := h.resolver.ContentTypesForContact(contact)
	if len(contentTypes) == 0 {
		// Contact type not mapped at all: a normal non-match, and
		// nothing to buffer either.
		return true, nil
	}

	applied := false
	for _, contentType := range contentTypes {
		contentID, err := h.resolver.ContentIDForContact(contact.ID, contentType)
		if err != nil {
			return applied, err
		}
		if contentID == "" {
			continue
		}

		for _, field := range fields {
			fm := h.cfg.FieldForCustomID(contentType, field.FieldID)
			if fm == nil {
				continue
			}

			fieldType := ""
			if settings, err := h.content.GetFieldSettings(fm.Selector); err == nil && settings != nil {
				fieldType = settings.FieldType
			}

			if err := h.content.UpdateField(fm.Selector, coerceForContent(fieldType, field.Value), contentID); err != nil {
				h.log.Error().Err(err).Str("selector", fm.Selector).Str("content_id", contentID).Msg("custom field write failed")
				continue
			}
		}
		applied = true
	}

	return applied, nil
}
