// ABOUTME: Address reconciliation handler
// ABOUTME: Diffs content-side address arrays against CRM records and mirrors CRM address changes back
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

type AddressHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewAddressHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *AddressHandler {
	return &AddressHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "address").Logger(),
	}
}

func (h *AddressHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityFields, "address.fields-saved", h.onFieldsSaved)
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityAddress, "address.crm-change", h.onCRMChange)
	h.dispatcher.OnLifecycle(mapper.ActionRecordCreated, "address.record-created", h.onRecordCreated)
	h.dispatcher.OnLifecycle(mapper.ActionRecordUpdated, "address.record-updated", h.onRecordUpdated)
}

func (h *AddressHandler) onFieldsSaved(ctx *mapper.SyncContext, ev mapper.Event) error {
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

	for _, fm := range h.cfg.RecordFieldsFor(entity.EntityType, mapping.RecordAddress) {
		if !h.writable(&fm) {
			continue
		}
		value, err := h.content.GetField(fm.Selector, entity.ID)
		if err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Msg("failed to read address field")
			continue
		}
		h.Reconcile(ctx, entity.ID, fm, rowsFromValue(value), contactID)
	}
	return nil
}

// writable reports whether inbound content-to-CRM writes are allowed
// for this field. A primary-qualified field with the read-only flag
// set is one-directional: CRM to content only.
func (h *AddressHandler) writable(fm *mapping.FieldMapping) bool {
	if fm.ReadOnly {
		return false
	}
	if fm.Qualifier.IsSentinel() && fm.Qualifier.Primary {
		if settings, err := h.content.GetFieldSettings(fm.Selector); err == nil && settings != nil && settings.ReadOnly {
			return false
		}
	}
	return true
}

// Reconcile diffs the submitted row array against the contact's
// current CRM address set and executes the resulting create, update,
// and delete actions. Partial failures abandon the failing action and
// continue with the rest of the pass.
func (h *AddressHandler) Reconcile(ctx *mapper.SyncContext, contentID string, fm mapping.FieldMapping, rows []map[string]any, contactID int) {
	existing, err := h.crm.GetAddresses(contactID)
	if err != nil {
		// Lookup failure: treat the CRM set as empty and proceed.
		h.log.Error().Err(err).Int("contact_id", contactID).Msg("address lookup failed, assuming empty set")
		existing = nil
	}

	byID := make(map[int]models.Address, len(existing))
	existingIDs := make([]int, 0, len(existing))
	for _, a := range existing {
		byID[a.ID] = a
		existingIDs = append(existingIDs, a.ID)
	}

	plan := classifyRecords(rows, existingIDs)

	// A field's array owns only the records matching its qualifier.
	// Records mapped to sibling fields of the same kind are never
	// delete candidates here, whichever field's pass runs last.
	owned := plan.deleteIDs[:0]
	for _, id := range plan.deleteIDs {
		record := byID[id]
		if fm.Qualifier.MatchesAddress(&record) {
			owned = append(owned, id)
		}
	}
	plan.deleteIDs = owned

	for _, i := range plan.createIdx {
		address := addressFromRow(rows[i], contactID, &fm)
		created, err := h.crm.CreateAddress(address)
		if err != nil {
			h.log.Error().Err(err).Int("contact_id", contactID).Str("selector", fm.Selector).Msg("address create failed")
			continue
		}

		// The assigned id lands in the content array before any later
		// logic in this pass reads it.
		rows[i]["id"] = created.ID

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordCreated,
			RecordKind: string(mapping.RecordAddress),
			Payload:    created,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
			Extra:      map[string]any{"row_index": i},
		})
		h.propagateShared(ctx, created)
	}

	for _, i := range plan.updateIdx {
		id := rowID(rows[i])
		current, ok := byID[id]
		if !ok {
			// The row references an id the CRM does not have: an update
			// here would be a contract violation, so fail loudly.
			h.log.Error().Int("address_id", id).Int("contact_id", contactID).Msg("row references unknown address id")
			continue
		}

		desired := addressFromRow(rows[i], contactID, &fm)
		desired.ID = id
		desired.MasterID = current.MasterID
		if addressPayloadEqual(&current, desired) {
			continue
		}

		prev := current
		ctx.SnapshotAddress(&prev)

		updated, err := h.crm.UpdateAddress(desired)
		if err != nil {
			h.log.Error().Err(err).Int("address_id", id).Msg("address update failed")
			continue
		}

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordUpdated,
			RecordKind: string(mapping.RecordAddress),
			Payload:    updated,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
			Extra: map[string]any{
				"toggle_primary": toggle(prev.IsPrimary, updated.IsPrimary),
				"toggle_billing": toggle(prev.IsBilling, updated.IsBilling),
			},
		})
		h.propagateShared(ctx, updated)
	}

	for _, id := range plan.deleteIDs {
		record := byID[id]
		if err := h.crm.DeleteAddress(id); err != nil {
			h.log.Error().Err(err).Int("address_id", id).Msg("address delete failed")
			continue
		}

		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:     mapper.ActionRecordDeleted,
			RecordKind: string(mapping.RecordAddress),
			Payload:    &record,
			ParentID:   contactID,
			Selector:   fm.Selector,
			ContentID:  contentID,
		})
		h.propagateShared(ctx, &record)
	}
}

// onRecordCreated writes the CRM-assigned id back into the content
// array element so the next diff sees a stable id, and clears sibling
// primary flags when the new record is primary.
func (h *AddressHandler) onRecordCreated(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.RecordKind != string(mapping.RecordAddress) || ev.Selector == "" {
		return nil
	}
	address, ok := ev.Payload.(*models.Address)
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

	rows[idx]["id"] = address.ID
	if address.IsPrimary {
		for i := range rows {
			if i != idx {
				rows[i]["is_primary"] = false
			}
		}
	}

	return h.content.UpdateField(ev.Selector, rows, ev.ContentID)
}

// onRecordUpdated applies the primary-exclusivity pass to the content
// cache when a record just toggled primary on. Billing is not
// exclusive, so a billing toggle never clears siblings.
func (h *AddressHandler) onRecordUpdated(ctx *mapper.SyncContext, ev mapper.LifecycleEvent) error {
	if ev.RecordKind != string(mapping.RecordAddress) || ev.Selector == "" {
		return nil
	}
	address, ok := ev.Payload.(*models.Address)
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
		if rowID(rows[i]) == address.ID {
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

func (h *AddressHandler) onCRMChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ev.Phase == mapper.PhasePre {
		if ev.Op == mapper.OpEdit {
			if address, ok := ev.Ref.(*models.Address); ok {
				ctx.SnapshotAddress(address)
			}
		}
		return nil
	}

	address, ok := ev.Ref.(*models.Address)
	if !ok {
		loaded, err := h.crm.GetAddress(ev.CRMID())
		if err != nil || loaded == nil {
			return fmt.Errorf("failed to load address %s: %w", ev.EntityID, err)
		}
		address = loaded
	}

	switch ev.Op {
	case mapper.OpCreate, mapper.OpEdit:
		if err := h.syncToContent(ctx, address); err != nil {
			return err
		}
	case mapper.OpDelete:
		if err := h.removeFromContent(ctx, address); err != nil {
			return err
		}
	}

	h.propagateShared(ctx, address)
	return nil
}

// syncToContent updates every content field that the address belongs
// to. Match priority: literal location-type qualifier first, then the
// sentinel qualifiers, then changed-qualifier clearing for fields the
// record just moved away from. A record may match zero fields.
func (h *AddressHandler) syncToContent(ctx *mapper.SyncContext, address *models.Address) error {
	contact, err := h.crm.GetContact(address.ContactID)
	if err != nil || contact == nil {
		return nil
	}
	prev, hasPrev := ctx.PreviousAddress(address.ID)

	for _, contentType := range h.resolver.ContentTypesForContact(contact) {
		contentID, err := h.resolver.ContentIDForContact(contact.ID, contentType)
		if err != nil {
			return err
		}
		if contentID == "" {
			continue
		}

		fields := h.cfg.RecordFieldsFor(contentType, mapping.RecordAddress)

		// Literal qualifiers before sentinels.
		for _, sentinelPass := range []bool{false, true} {
			for _, fm := range fields {
				if fm.Qualifier.IsSentinel() != sentinelPass {
					continue
				}
				matched := fm.Qualifier.MatchesAddress(address)
				switch {
				case matched:
					if err := h.upsertRow(contentID, &fm, address); err != nil {
						h.log.Error().Err(err).Str("selector", fm.Selector).Msg("address row upsert failed")
					}
				case hasPrev && fm.Qualifier.MatchesAddress(&prev):
					// Qualifier changed away from this field: clear it.
					if err := h.removeRow(contentID, fm.Selector, address.ID); err != nil {
						h.log.Error().Err(err).Str("selector", fm.Selector).Msg("address row clear failed")
					}
				}
			}
		}
	}
	return nil
}

func (h *AddressHandler) removeFromContent(ctx *mapper.SyncContext, address *models.Address) error {
	contact, err := h.crm.GetContact(address.ContactID)
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
		for _, fm := range h.cfg.RecordFieldsFor(contentType, mapping.RecordAddress) {
			if err := h.removeRow(contentID, fm.Selector, address.ID); err != nil {
				h.log.Error().Err(err).Str("selector", fm.Selector).Msg("address row removal failed")
			}
		}
	}
	return nil
}

func (h *AddressHandler) upsertRow(contentID string, fm *mapping.FieldMapping, address *models.Address) error {
	value, err := h.content.GetField(fm.Selector, contentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	row := addressRow(address)
	replaced := false
	for i := range rows {
		if rowID(rows[i]) == address.ID {
			rows[i] = row
			replaced = true
		} else if address.IsPrimary {
			rows[i]["is_primary"] = false
		}
	}
	if !replaced {
		rows = append(rows, row)
	}

	return h.content.UpdateField(fm.Selector, rows, contentID)
}

func (h *AddressHandler) removeRow(contentID, selector string, addressID int) error {
	value, err := h.content.GetField(selector, contentID)
	if err != nil {
		return err
	}
	rows := rowsFromValue(value)

	kept := rows[:0]
	removed := false
	for _, row := range rows {
		if rowID(row) == addressID {
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

// propagateShared fans the master's data out to addresses that share
// it. Sharing is one level deep: addresses sharing a shared address do
// not receive a second hop.
func (h *AddressHandler) propagateShared(ctx *mapper.SyncContext, master *models.Address) {
	shared, err := h.crm.GetSharedAddresses(master.ID)
	if err != nil || len(shared) == 0 {
		return
	}

	for i := range shared {
		s := shared[i]
		s.Street = master.Street
		s.Supplemental = master.Supplemental
		s.City = master.City
		s.PostalCode = master.PostalCode
		s.StateProvince = master.StateProvince
		s.Country = master.Country
		s.Latitude = master.Latitude
		s.Longitude = master.Longitude

		// Suspend CRM listeners so the lockstep write cannot chain into
		// a second propagation hop.
		resume := h.dispatcher.Guard().Suspend(mapper.PlatformCRM)
		_, err := h.crm.UpdateAddress(&s)
		resume()
		if err != nil {
			h.log.Error().Err(err).Int("address_id", s.ID).Int("master_id", master.ID).Msg("shared address update failed")
			continue
		}

		if err := h.syncToContent(ctx, &s); err != nil {
			h.log.Error().Err(err).Int("address_id", s.ID).Msg("shared address content sync failed")
		}
	}
}

func addressFromRow(row map[string]any, contactID int, fm *mapping.FieldMapping) *models.Address {
	address := &models.Address{
		ContactID:      contactID,
		LocationTypeID: rowInt(row, "location_type_id"),
		IsPrimary:      rowBool(row, "is_primary"),
		IsBilling:      rowBool(row, "is_billing"),
		Street:         rowString(row, "street_address"),
		Supplemental:   rowString(row, "supplemental_address"),
		City:           rowString(row, "city"),
		PostalCode:     rowString(row, "postal_code"),
		StateProvince:  rowString(row, "state_province"),
		Country:        rowString(row, "country"),
		Latitude:       rowString(row, "geo_code_1"),
		Longitude:      rowString(row, "geo_code_2"),
	}

	// The field's qualifier fills in what the row leaves implicit.
	if address.LocationTypeID == 0 {
		address.LocationTypeID = fm.Qualifier.LocationTypeID
	}
	if fm.Qualifier.IsSentinel() {
		if fm.Qualifier.Primary {
			address.IsPrimary = true
		}
		if fm.Qualifier.Billing {
			address.IsBilling = true
		}
	}

	return address
}

func addressRow(address *models.Address) map[string]any {
	return map[string]any{
		"id":                   address.ID,
		"location_type_id":     address.LocationTypeID,
		"is_primary":           address.IsPrimary,
		"is_billing":           address.IsBilling,
		"street_address":       address.Street,
		"supplemental_address": address.Supplemental,
		"city":                 address.City,
		"postal_code":          address.PostalCode,
		"state_province":       address.StateProvince,
		"country":              address.Country,
		"geo_code_1":           address.Latitude,
		"geo_code_2":           address.Longitude,
	}
}

func addressPayloadEqual(a, b *models.Address) bool {
	return a.LocationTypeID == b.LocationTypeID &&
		a.IsPrimary == b.IsPrimary &&
		a.IsBilling == b.IsBilling &&
		a.Street == b.Street &&
		a.Supplemental == b.Supplemental &&
		a.City == b.City &&
		a.PostalCode == b.PostalCode &&
		a.StateProvince == b.StateProvince &&
		a.Country == b.Country &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude
}
