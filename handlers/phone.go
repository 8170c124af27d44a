// ABOUTME: Phone reconciliation handler
// ABOUTME: Diffs content-side phone arrays against CRM records and mirrors CRM phone changes back
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

type PhoneHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewPhoneHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *PhoneHandler {
	return &PhoneHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "phone").Logger(),
	}
}

func (h *PhoneHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityFields, "phone.fields-saved", h.onFieldsSaved)
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityPhone, "phone.crm-change", h.onCRMChange)
	h.dispatcher.OnLifecycle(mapper.ActionRecordCreated, "phone.record-created", h.onRecordCreated)
	h.dispatcher.OnLifecycle(mapper.ActionRecordUpdated, "phone.record-updated", h.onRecordUpdated)
}

func (h *PhoneHandler) onFieldsSaved(ctx *mapper.SyncContext, ev mapper.Event) error {
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

	for _, fm := range h.cfg.RecordFieldsFor(entity.EntityType, mapping.RecordPhone) {
		if fm.ReadOnly {
			continue
		}
		value, err := h.content.GetField(fm.Selector, entity.ID)
		if err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Msg("failed to read phone field")
			continue
		}
		h.Reconcile(ctx, entity.ID, fm, rowsFromValue(value), contactID)
	}
	return nil
}

// Reconcile diffs the submitted row array against the contact's
// current CRM phone set and executes the resulting actions.
func (h *PhoneHandler) Reconcile(ctx *mapper.SyncContext, contentID string, fm mapping.FieldMapping, rows []map[string]any, contactID int) {
	existing, err := h.crm.GetPhones(contactID)
	if err != nil {
		h.log.Error().Err(err).Int("contact_id", contactID).Msg("phone lookup failed, assuming empty set")
		existing = nil
	}

	byID := make(map[int]models.Phone, len(existing))
	existingIDs := make([]int, 0, len(existing))
	for _, p := range existing {
		byID[p.ID] = p
		existingIDs = append(existingIDs, p.ID)
	}

	plan := classifyRecords(rows, existingIDs)

	// A field's array owns only the records matching its qualifier;
	// records mapped to sibling phone fields are never delete
	// candidates here.
	owned := plan.deleteIDs[:0]
	for _, id := range plan.deleteIDs {
		record := byID[id]
		if fm.Qualifier.MatchesPhone(&record) {
			owned = append(owned, id)
		}
	}
	plan.deleteIDs = owned

	for _, i := range plan.createIdx {
		phone := phoneFromRow(rows[i], contactID, &fm)
		created, err := h.crm.CreatePhone(phone)
		if err != nil {
			h.log.Error().Err(err).Int("contact_id", contactID).Str("selector", fm.Selector).Msg("phone create failed")
			continue
		}

		rows[i]["id"] = created.ID

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordCreated,
			RecordKind: string(mapping.RecordPhone),
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
			h.log.Error().Int("phone_id", id).Int("contact_id", contactID).Msg("row references unknown phone id")
			continue
		}

		desired := phoneFromRow(rows[i], contactID, &fm)
		desired.ID = id
		if phonePayloadEqual(&current, desired) {
			continue
		}

		prev := current
		ctx.SnapshotPhone(&prev)

		updated, err := h.crm.UpdatePhone(desired)
		if err != nil {
			h.log.Error().Err(err).Int("phone_id", id).Msg("phone update failed")
			continue
		}

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordUpdated,
			RecordKind: string(mapping.RecordPhone),
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
		if err := h.crm.DeletePhone(id); err != nil {
			h.log.Error().Err(err).Int("phone_id", id).Msg("phone delete failed")
			continue
		}

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordDeleted,
			RecordKind: string(mapping.RecordPhone),
			Payload:    &record,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
		})
	}
}

func (h *PhoneHandler) onRecordCreated(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.RecordKind != string(mapping.RecordPhone) || ev.Selector == "" {
		return nil
	}
	phone, ok := ev.Payload.(*models.Phone)
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

	rows[idx]["id"] = phone.ID
	if phone.IsPrimary {
		for i := range rows {
			if i != idx {
				rows[i]["is_primary"] = false
			}
		}
	}

	return h.content.UpdateField(ev.Selector, rows, ev.ContentID)
}

func (h *PhoneHandler) onRecordUpdated(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.RecordKind != string(mapping.RecordPhone) || ev.Selector == "" {
		return nil
	}
	phone, ok := ev.Payload.(*models.Phone)
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
		if rowID(rows[i]) == phone.ID {
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

func (h *PhoneHandler) onCRMChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ev.Phase == mapper.PhasePre {
		if ev.Op == mapper.OpEdit {
			if phone, ok := ev.Ref.(*models.Phone); ok {
				ctx.SnapshotPhone(phone)
			}
		}
		return nil
	}

	phone, ok := ev.Ref.(*models.Phone)
	if !ok {
		loaded, err := h.crm.GetPhone(ev.CRMID())
		if err != nil || loaded == nil {
			return fmt.Errorf("failed to load phone %s: %w", ev.EntityID, err)
		}
		phone = loaded
	}

	switch ev.Op {
	case mapper.OpCreate, mapper.OpEdit:
		return h.syncToContent(ctx, phone)
	case mapper.OpDelete:
		return h.removeFromContent(ctx, phone)
	}
	return nil
}

func (h *PhoneHandler) syncToContent(ctx *mapper.SyncContext, phone *models.Phone) error {
	contact, err := h.crm.GetContact(phone.ContactID)
	if err != nil || contact == nil {
		return nil
	}
	prev, hasPrev := ctx.PreviousPhone(phone.ID)

	for _, contentType := range h.resolver.ContentTypesForContact(contact) {
		contentID, err := h.resolver.ContentIDForContact(contact.ID, contentType)
		if err != nil {
			return err
		}
		if contentID == "" {
			continue
		}

		fields := h.cfg.RecordFieldsFor(contentType, mapping.RecordPhone)
		for _, sentinelPass := range []bool{false, true} {
			for _, fm := range fields {
				if fm.Qualifier.IsSentinel() != sentinelPass {
					continue
				}
				matched := fm.Qualifier.MatchesPhone(phone)
				switch {
				case matched:
					if err := h.upsertRow(contentID, &fm, phone); err != nil {
						h.log.Error().Err(err).Str("selector", fm.Selector).Msg("phone row upsert failed")
					}
				case hasPrev && fm.Qualifier.MatchesPhone(&prev):
					if err := h.removeRow(contentID, fm.Selector, phone.ID); err != nil {
						h.log.Error().Err(err).Str("selector", fm.Selector).Msg("phone row clear failed")
					}
				}
			}
		}
	}
	return nil
}

func (h *PhoneHandler) removeFromContent(ctx *mapper.SyncContext, phone *models.Phone) error {
	contact, err := h.crm.GetContact(phone.ContactID)
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
		for _, fm := range h.cfg.RecordFieldsFor(contentType, mapping.RecordPhone) {
			if err := h.removeRow(contentID, fm.Selector, phone.ID); err != nil {
				h.log.Error().Err(err).Str("selector", fm.Selector).Msg("phone row removal failed")
			}
		}
	}
	return nil
}

func (h *PhoneHandler) upsertRow(contentID string, fm *mapping.FieldMapping, phone *models.Phone) error {
	value, err := h.content.GetField(fm.Selector, contentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	row := phoneRow(phone)
	replaced := false
	for i := range rows {
		if rowID(rows[i]) == phone.ID {
			rows[i] = row
			replaced = true
		} else if phone.IsPrimary {
			rows[i]["is_primary"] = false
		}
	}
	if !replaced {
		rows = append(rows, row)
	}

	return h.content.UpdateField(fm.Selector, rows, contentID)
}

func (h *PhoneHandler) removeRow(contentID, selector string, phoneID int) error {
	value, err := h.content.GetField(selector, contentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	kept := rows[:0]
	removed := false
	for _, row := range rows {
		if rowID(row) == phoneID {
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

func phoneFromRow(row map[string]any, contactID int, fm *mapping.FieldMapping) *models.Phone {
	phone := &models.Phone{
		ContactID:      contactID,
		LocationTypeID: rowInt(row, "location_type_id"),
		PhoneTypeID:    rowInt(row, "phone_type_id"),
		IsPrimary:      rowBool(row, "is_primary"),
		Number:         rowString(row, "phone"),
		Extension:      rowString(row, "phone_ext"),
	}

	// The field's qualifier fills in what the row leaves implicit. A
	// composite qualifier pins all three components.
	if phone.LocationTypeID == 0 {
		phone.LocationTypeID = fm.Qualifier.LocationTypeID
	}
	if phone.PhoneTypeID == 0 {
		phone.PhoneTypeID = fm.Qualifier.PhoneTypeID
	}
	if fm.Qualifier.Primary {
		phone.IsPrimary = true
	}

	return phone
}

func phoneRow(phone *models.Phone) map[string]any {
	return map[string]any{
		"id":               phone.ID,
		"location_type_id": phone.LocationTypeID,
		"phone_type_id":    phone.PhoneTypeID,
		"is_primary":       phone.IsPrimary,
		"phone":            phone.Number,
		"phone_ext":        phone.Extension,
	}
}

func phonePayloadEqual(a, b *models.Phone) bool {
	return a.LocationTypeID == b.LocationTypeID &&
		a.PhoneTypeID == b.PhoneTypeID &&
		a.IsPrimary == b.IsPrimary &&
		a.Number == b.Number &&
		a.Extension == b.Extension
}
