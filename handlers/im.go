// ABOUTME: Instant messenger reconciliation handler
// ABOUTME: Diffs content-side IM arrays against CRM records and mirrors CRM IM changes back
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

type IMHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewIMHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *IMHandler {
	return &IMHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "im").Logger(),
	}
}

func (h *IMHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityFields, "im.fields-saved", h.onFieldsSaved)
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityIM, "im.crm-change", h.onCRMChange)
	h.dispatcher.OnLifecycle(mapper.ActionRecordCreated, "im.record-created", h.onRecordCreated)
	h.dispatcher.OnLifecycle(mapper.ActionRecordUpdated, "im.record-updated", h.onRecordUpdated)
}

func (h *IMHandler) onFieldsSaved(ctx *mapper.SyncContext, ev mapper.Event) error {
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

	for _, fm := range h.cfg.RecordFieldsFor(entity.EntityType, mapping.RecordIM) {
		if fm.ReadOnly {
			continue
		}
		value, err := h.content.GetField(fm.Selector, entity.ID)
		if err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Msg("failed to read im field")
			continue
		}
		h.Reconcile(ctx, entity.ID, fm, rowsFromValue(value), contactID)
	}
	return nil
}

// Reconcile diffs the submitted row array against the contact's
// current CRM IM set and executes the resulting actions.
func (h *IMHandler) Reconcile(ctx *mapper.SyncContext, contentID string, fm mapping.FieldMapping, rows []map[string]any, contactID int) {
	existing, err := h.crm.GetIMs(contactID)
	if err != nil {
		h.log.Error().Err(err).Int("contact_id", contactID).Msg("im lookup failed, assuming empty set")
		existing = nil
	}

	byID := make(map[int]models.InstantMessenger, len(existing))
	existingIDs := make([]int, 0, len(existing))
	for _, im := range existing {
		byID[im.ID] = im
		existingIDs = append(existingIDs, im.ID)
	}

	plan := classifyRecords(rows, existingIDs)

	// A field's array owns only the records matching its qualifier;
	// records mapped to sibling IM fields are never delete candidates
	// here.
	owned := plan.deleteIDs[:0]
	for _, id := range plan.deleteIDs {
		record := byID[id]
		if fm.Qualifier.MatchesIM(&record) {
			owned = append(owned, id)
		}
	}
	plan.deleteIDs = owned

	for _, i := range plan.createIdx {
		im := imFromRow(rows[i], contactID, &fm)
		created, err := h.crm.CreateIM(im)
		if err != nil {
			h.log.Error().Err(err).Int("contact_id", contactID).Str("selector", fm.Selector).Msg("im create failed")
			continue
		}

		rows[i]["id"] = created.ID

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordCreated,
			RecordKind: string(mapping.RecordIM),
			Payload:    created,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
			Extra:      map[string]any{"row_index": i},
		})
	}

	for _, i := range plan.updateIdx {
		id := rowID(rows[i])
		current, ok := byID[id]
		if !ok {
			h.log.Error().Int("im_id", id).Int("contact_id", contactID).Msg("row references unknown im id")
			continue
		}

		desired := imFromRow(rows[i], contactID, &fm)
		desired.ID = id
		if imPayloadEqual(&current, desired) {
			continue
		}

		prev := current
		ctx.SnapshotIM(&prev)

		updated, err := h.crm.UpdateIM(desired)
		if err != nil {
			h.log.Error().Err(err).Int("im_id", id).Msg("im update failed")
			continue
		}

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordUpdated,
			RecordKind: string(mapping.RecordIM),
			Payload:    updated,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
			Extra: map[string]any{
				"toggle_primary": toggle(prev.IsPrimary, updated.IsPrimary),
			},
		})
	}

	for _, id := range plan.deleteIDs {
		record := byID[id]
		if err := h.crm.DeleteIM(id); err != nil {
			h.log.Error().Err(err).Int("im_id", id).Msg("im delete failed")
			continue
		}

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordDeleted,
			RecordKind: string(mapping.RecordIM),
			Payload:    &record,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
		})
	}
}

func (h *IMHandler) onRecordCreated(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.RecordKind != string(mapping.RecordIM) || ev.Selector == "" {
		return nil
	}
	im, ok := ev.Payload.(*models.InstantMessenger)
	if !ok {
		return nil
	}

	value, err := h.content.GetField(ev.Selector, ev.ContentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	idx := -1
	if ev.Extra != nil {
		if i, ok := ev.Extra["row_index"].(int); ok && i >= 0 && i < len(rows) {
			idx = i
		}
	}
	if idx == -1 {
		for i, row := range rows {
			if rowID(row) == 0 {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return nil
	}

	rows[idx]["id"] = im.ID
	if im.IsPrimary {
		for i := range rows {
			if i != idx {
				rows[i]["is_primary"] = false
			}
		}
	}

	return h.content.UpdateField(ev.Selector, rows, ev.ContentID)
}

func (h *IMHandler) onRecordUpdated(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.RecordKind != string(mapping.RecordIM) || ev.Selector == "" {
		return nil
	}
	im, ok := ev.Payload.(*models.InstantMessenger)
	if !ok {
		return nil
	}
	togglePrimary := ""
	if ev.Extra != nil {
		togglePrimary, _ = ev.Extra["toggle_primary"].(string)
	}
	if togglePrimary != "on" {
		return nil
	}

	value, err := h.content.GetField(ev.Selector, ev.ContentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)
	changed := false
	for i := range rows {
		if rowID(rows[i]) == im.ID {
			rows[i]["is_primary"] = true
		} else if rowBool(rows[i], "is_primary") {
			rows[i]["is_primary"] = false
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return h.content.UpdateField(ev.Selector, rows, ev.ContentID)
}

func (h *IMHandler) onCRMChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ev.Phase == mapper.PhasePre {
		if ev.Op == mapper.OpEdit {
			if im, ok := ev.Ref.(*models.InstantMessenger); ok {
				ctx.SnapshotIM(im)
			}
		}
		return nil
	}

	im, ok := ev.Ref.(*models.InstantMessenger)
	if !ok {
		loaded, err := h.crm.GetIM(ev.CRMID())
		if err != nil || loaded == nil {
			return fmt.Errorf("failed to load im %s: %w", ev.EntityID, err)
		}
		im = loaded
	}

	switch ev.Op {
	case mapper.OpCreate, mapper.OpEdit:
		return h.syncToContent(ctx, im)
	case mapper.OpDelete:
		return h.removeFromContent(ctx, im)
	}
	return nil
}

func (h *IMHandler) syncToContent(ctx *mapper.SyncContext, im *models.InstantMessenger) error {
	contact, err := h.crm.GetContact(im.ContactID)
	if err != nil || contact == nil {
		return nil
	}
	prev, hasPrev := ctx.PreviousIM(im.ID)

	for _, contentType := range h.resolver.ContentTypesForContact(contact) {
		contentID, err := h.resolver.ContentIDForContact(contact.ID, contentType)
		if err != nil {
			return err
		}
		if contentID == "" {
			continue
		}

		fields := h.cfg.RecordFieldsFor(contentType, mapping.RecordIM)
		for _, sentinelPass := range []bool{false, true} {
			for _, fm := range fields {
				if fm.Qualifier.IsSentinel() != sentinelPass {
					continue
				}
				matched := fm.Qualifier.MatchesIM(im)
				switch {
				case matched:
					if err := h.upsertRow(contentID, &fm, im); err != nil {
						h.log.Error().Err(err).Str("selector", fm.Selector).Msg("im row upsert failed")
					}
				case hasPrev && fm.Qualifier.MatchesIM(&prev):
					if err := h.removeRow(contentID, fm.Selector, im.ID); err != nil {
						h.log.Error().Err(err).Str("selector", fm.Selector).Msg("im row clear failed")
					}
				}
			}
		}
	}
	return nil
}

func (h *IMHandler) removeFromContent(ctx *mapper.SyncContext, im *models.InstantMessenger) error {
	contact, err := h.crm.GetContact(im.ContactID)
	if err != nil || contact == nil {
		return nil
	}

	for _, contentType := range h.resolver.ContentTypesForContact(contact) {
		contentID, err := h.resolver.ContentIDForContact(contact.ID, contentType)
		if err != nil {
			return err
		}
		if contentID == "" {
			continue
		}
		for _, fm := range h.cfg.RecordFieldsFor(contentType, mapping.RecordIM) {
			if err := h.removeRow(contentID, fm.Selector, im.ID); err != nil {
				h.log.Error().Err(err).Str("selector", fm.Selector).Msg("im row removal failed")
			}
		}
	}
	return nil
}

func (h *IMHandler) upsertRow(contentID string, fm *mapping.FieldMapping, im *models.InstantMessenger) error {
	value, err := h.content.GetField(fm.Selector, contentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	row := imRow(im)
	replaced := false
	for i := range rows {
		if rowID(rows[i]) == im.ID {
			rows[i] = row
			replaced = true
		} else if im.IsPrimary {
			rows[i]["is_primary"] = false
		}
	}
	if !replaced {
		rows = append(rows, row)
	}

	return h.content.UpdateField(fm.Selector, rows, contentID)
}

func (h *IMHandler) removeRow(contentID, selector string, imID int) error {
	value, err := h.content.GetField(selector, contentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	kept := rows[:0]
	removed := false
	for _, row := range rows {
		if rowID(row) == imID {
			removed = true
			continue
		}
		kept = append(kept, row)
	}
	if !removed {
		return nil
	}

	return h.content.UpdateField(selector, kept, contentID)
}

func imFromRow(row map[string]any, contactID int, fm *mapping.FieldMapping) *models.InstantMessenger {
	im := &models.InstantMessenger{
		ContactID:      contactID,
		LocationTypeID: rowInt(row, "location_type_id"),
		ProviderID:     rowInt(row, "provider_id"),
		IsPrimary:      rowBool(row, "is_primary"),
		Name:           rowString(row, "name"),
	}

	if im.LocationTypeID == 0 {
		im.LocationTypeID = fm.Qualifier.LocationTypeID
	}
	if fm.Qualifier.IsSentinel() && fm.Qualifier.Primary {
		im.IsPrimary = true
	}

	return im
}

func imRow(im *models.InstantMessenger) map[string]any {
	return map[string]any{
		"id":               im.ID,
		"location_type_id": im.LocationTypeID,
		"provider_id":      im.ProviderID,
		"is_primary":       im.IsPrimary,
		"name":             im.Name,
	}
}

func imPayloadEqual(a, b *models.InstantMessenger) bool {
	return a.LocationTypeID == b.LocationTypeID &&
		a.ProviderID == b.ProviderID &&
		a.IsPrimary == b.IsPrimary &&
		a.Name == b.Name
}
