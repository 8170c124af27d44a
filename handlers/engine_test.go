// ABOUTME: Integration test suite for the assembled sync engine
// ABOUTME: Exercises both sync directions, reconciliation, reentrancy, and buffered custom batches
package handlers

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/content"
	"github.com/christianwach/crmsync/crm"
	"github.com/christianwach/crmsync/mapping"
	"github.com/christianwach/crmsync/models"
)

const engineConfigYAML = `
entity_types:
  - content_type: student
    contact_type: Individual
  - content_type: meeting
    activity_type: Meeting

fields:
  - {selector: field_agenda, content_type: meeting, kind: scalar, crm_field: details}
  - {selector: field_first, content_type: student, kind: scalar, crm_field: first_name}
  - {selector: field_colour, content_type: student, kind: custom, custom_id: 3}
  - {selector: field_home_addresses, content_type: student, kind: address, qualifier: "1"}
  - {selector: field_work_addresses, content_type: student, kind: address, qualifier: "2"}
  - {selector: field_primary_address, content_type: student, kind: address, qualifier: primary, read_only: true}
  - {selector: field_main_phone, content_type: student, kind: phone, qualifier: 1_1_2}
  - {selector: field_children, content_type: student, kind: relationship, relationship_type: 7, direction: ab}
  - {selector: field_parents, content_type: student, kind: relationship, relationship_type: 7, direction: ba}
`

type testEnv struct {
	engine       *Engine
	crmStore     *crm.Store
	contentStore *content.SQLStore
	crmDB        *sql.DB
	contentDB    *sql.DB
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()

	crmDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open CRM database: %v", err)
	}
	crmDB.SetMaxOpenConns(1)
	t.Cleanup(func() { crmDB.Close() })
	if err := crm.InitSchema(crmDB); err != nil {
		t.Fatalf("Failed to initialize CRM schema: %v", err)
	}
	if err := crm.RegisterCustomField(crmDB, 3, 1, "Favourite Colour"); err != nil {
		t.Fatalf("Failed to register custom field: %v", err)
	}

	contentDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open content database: %v", err)
	}
	contentDB.SetMaxOpenConns(1)
	t.Cleanup(func() { contentDB.Close() })
	if err := content.InitSchema(contentDB); err != nil {
		t.Fatalf("Failed to initialize content schema: %v", err)
	}

	cfg, err := mapping.Parse([]byte(engineConfigYAML))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	crmStore := crm.NewStore(crmDB)
	contentStore := content.NewStore(contentDB)
	engine := NewEngine(crmStore, contentStore, cfg, zerolog.Nop())

	return &testEnv{
		engine:       engine,
		crmStore:     crmStore,
		contentStore: contentStore,
		crmDB:        crmDB,
		contentDB:    contentDB,
	}
}

func (e *testEnv) createStudent(t *testing.T, title string) (*content.Entity, int) {
	t.Helper()

	entity := &content.Entity{EntityType: "student", Title: title}
	if err := e.contentStore.CreateEntity(entity); err != nil {
		t.Fatalf("Failed to create entity: %v", err)
	}

	contactID, err := e.engine.Resolver().ContactIDFor(entity.ID)
	if err != nil {
		t.Fatalf("Failed to resolve contact: %v", err)
	}
	if contactID == 0 {
		t.Fatal("Expected entity save to create a mapped contact")
	}
	return entity, contactID
}

func (e *testEnv) countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func (e *testEnv) addressWrites(t *testing.T) int {
	t.Helper()
	entries, err := crm.GetSyncLog(e.crmDB, 100)
	if err != nil {
		t.Fatalf("Failed to read sync log: %v", err)
	}
	n := 0
	for _, entry := range entries {
		if entry.ObjectName == models.ObjectAddress {
			n++
		}
	}
	return n
}

func TestContentSaveCreatesContact(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	contact, err := env.crmStore.GetContact(contactID)
	if err != nil || contact == nil {
		t.Fatalf("Expected mapped contact to exist: %v", err)
	}
	if contact.DisplayName != "Alice Smith" || contact.FirstName != "Alice" || contact.LastName != "Smith" {
		t.Errorf("Expected name derived from title, got %+v", contact)
	}

	// The contact creation must not echo back into a second entity.
	if n := env.countRows(t, env.contentDB, "entities"); n != 1 {
		t.Errorf("Expected 1 content entity, got %d", n)
	}

	// Saving again updates rather than duplicates.
	entity.Title = "Alice Jones"
	if err := env.contentStore.UpdateEntity(entity); err != nil {
		t.Fatalf("Failed to update entity: %v", err)
	}
	if n := env.countRows(t, env.crmDB, "contacts"); n != 1 {
		t.Errorf("Expected 1 contact after resave, got %d", n)
	}
	contact, _ = env.crmStore.GetContact(contactID)
	if contact.LastName != "Jones" {
		t.Errorf("Expected last name updated, got %q", contact.LastName)
	}
}

func TestContentSaveCreatesActivity(t *testing.T) {
	env := setupEngine(t)

	entity := &content.Entity{EntityType: "meeting", Title: "Kickoff", Body: "Agenda draft"}
	if err := env.contentStore.CreateEntity(entity); err != nil {
		t.Fatalf("Failed to create entity: %v", err)
	}

	activityID, err := env.engine.Resolver().ActivityIDFor(entity.ID)
	if err != nil {
		t.Fatalf("Failed to resolve activity: %v", err)
	}
	if activityID == 0 {
		t.Fatal("Expected entity save to create a mapped activity")
	}

	activity, err := env.crmStore.GetActivity(activityID)
	if err != nil || activity == nil {
		t.Fatalf("Expected mapped activity to exist: %v", err)
	}
	if activity.ActivityType != "Meeting" || activity.Subject != "Kickoff" || activity.Details != "Agenda draft" {
		t.Errorf("Expected activity populated from entity, got %+v", activity)
	}

	// Field sync targets the mapped scalar.
	if err := env.contentStore.SaveFields(entity.ID, map[string]any{"field_agenda": "Final agenda"}); err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}
	activity, _ = env.crmStore.GetActivity(activityID)
	if activity.Details != "Final agenda" {
		t.Errorf("Expected details synced from field, got %q", activity.Details)
	}

	// CRM-side edits mirror back into the entity.
	activity.Subject = "Kickoff (rescheduled)"
	if _, err := env.crmStore.UpdateActivity(activity); err != nil {
		t.Fatalf("Failed to update activity: %v", err)
	}
	entity, _ = env.contentStore.GetEntity(entity.ID)
	if entity.Title != "Kickoff (rescheduled)" {
		t.Errorf("Expected title mirrored from activity, got %q", entity.Title)
	}
}

func TestFieldsSavedSyncsScalarsAndCustoms(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	err := env.contentStore.SaveFields(entity.ID, map[string]any{
		"field_first":  "Alicia",
		"field_colour": "blue",
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	contact, err := env.crmStore.GetContact(contactID)
	if err != nil || contact == nil {
		t.Fatalf("Failed to load contact: %v", err)
	}
	if contact.FirstName != "Alicia" {
		t.Errorf("Expected first name synced, got %q", contact.FirstName)
	}
	if contact.Custom["custom_3"] != "blue" {
		t.Errorf("Expected custom_3 synced, got %v", contact.Custom["custom_3"])
	}
}

func TestAddressReconciliation(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	// Create via content save.
	err := env.contentStore.SaveFields(entity.ID, map[string]any{
		"field_home_addresses": []any{
			map[string]any{"street_address": "1 Main St", "city": "Chicago"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	addresses, err := env.crmStore.GetAddresses(contactID)
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	if len(addresses) != 1 {
		t.Fatalf("Expected 1 address, got %d", len(addresses))
	}
	if addresses[0].City != "Chicago" {
		t.Errorf("Expected city Chicago, got %q", addresses[0].City)
	}
	// The field's literal qualifier fills in the location type the row
	// left implicit.
	if addresses[0].LocationTypeID != 1 {
		t.Errorf("Expected location type 1 from qualifier, got %d", addresses[0].LocationTypeID)
	}

	// Id write-back: the content row now carries the CRM id.
	value, err := env.contentStore.GetField("field_home_addresses", entity.ID)
	if err != nil {
		t.Fatalf("Failed to read field: %v", err)
	}
	rows := rowsFromValue(value)
	if len(rows) != 1 || rowID(rows[0]) != addresses[0].ID {
		t.Fatalf("Expected CRM id written back into content row, got %v", rows)
	}

	writesBefore := env.addressWrites(t)

	// Resaving the written-back value is a no-op.
	if err := env.contentStore.SaveFields(entity.ID, map[string]any{"field_home_addresses": value}); err != nil {
		t.Fatalf("Failed to resave fields: %v", err)
	}
	if got := env.addressWrites(t); got != writesBefore {
		t.Errorf("Expected idempotent resave, address writes went %d -> %d", writesBefore, got)
	}

	// Omitting the row deletes the record.
	if err := env.contentStore.SaveFields(entity.ID, map[string]any{"field_home_addresses": []any{}}); err != nil {
		t.Fatalf("Failed to save empty field: %v", err)
	}
	addresses, _ = env.crmStore.GetAddresses(contactID)
	if len(addresses) != 0 {
		t.Errorf("Expected deletion by omission, got %d addresses", len(addresses))
	}
}

func TestAddressFieldsScopedByQualifier(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	// One row in each of two address fields, saved in a single pass.
	// Each field's reconcile must only ever delete records matching its
	// own qualifier, so neither pass may remove the other's record.
	err := env.contentStore.SaveFields(entity.ID, map[string]any{
		"field_home_addresses": []any{
			map[string]any{"street_address": "1 Main St", "city": "Chicago"},
		},
		"field_work_addresses": []any{
			map[string]any{"street_address": "500 Office Pkwy", "city": "Chicago"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	addresses, err := env.crmStore.GetAddresses(contactID)
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	if len(addresses) != 2 {
		t.Fatalf("Expected both fields' addresses to survive the save, got %d: %+v", len(addresses), addresses)
	}
	byLoc := map[int]string{}
	for _, a := range addresses {
		byLoc[a.LocationTypeID] = a.Street
	}
	if byLoc[1] != "1 Main St" || byLoc[2] != "500 Office Pkwy" {
		t.Errorf("Expected one address per qualifier, got %v", byLoc)
	}

	// Clearing one field deletes only the records it owns.
	if err := env.contentStore.SaveFields(entity.ID, map[string]any{"field_home_addresses": []any{}}); err != nil {
		t.Fatalf("Failed to clear home field: %v", err)
	}
	addresses, _ = env.crmStore.GetAddresses(contactID)
	if len(addresses) != 1 || addresses[0].LocationTypeID != 2 {
		t.Errorf("Expected only the home address deleted, got %+v", addresses)
	}
}

func TestAddressMultiRowCreateWritesBackEveryID(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	err := env.contentStore.SaveFields(entity.ID, map[string]any{
		"field_home_addresses": []any{
			map[string]any{"street_address": "1 Main St", "city": "Chicago"},
			map[string]any{"street_address": "2 Oak Ave", "city": "Chicago"},
			map[string]any{"street_address": "3 Pine Rd", "city": "Chicago"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	addresses, err := env.crmStore.GetAddresses(contactID)
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	if len(addresses) != 3 {
		t.Fatalf("Expected 3 addresses, got %d", len(addresses))
	}
	streetByID := map[int]string{}
	for _, a := range addresses {
		streetByID[a.ID] = a.Street
	}

	// Each content row carries the id of its own CRM record, not a
	// sibling's.
	value := mustField(t, env, "field_home_addresses", entity.ID)
	rows := rowsFromValue(value)
	if len(rows) != 3 {
		t.Fatalf("Expected 3 content rows, got %d", len(rows))
	}
	seen := map[int]bool{}
	for _, row := range rows {
		id := rowID(row)
		if id == 0 {
			t.Fatalf("Expected every row to carry a written-back id, got %v", rows)
		}
		if seen[id] {
			t.Fatalf("Expected distinct ids per row, got %v", rows)
		}
		seen[id] = true
		if streetByID[id] != rowString(row, "street_address") {
			t.Errorf("Row id %d street %q does not match its CRM record %q", id, rowString(row, "street_address"), streetByID[id])
		}
	}

	// The written-back value resaves without further CRM writes.
	writesBefore := env.addressWrites(t)
	if err := env.contentStore.SaveFields(entity.ID, map[string]any{"field_home_addresses": value}); err != nil {
		t.Fatalf("Failed to resave fields: %v", err)
	}
	if got := env.addressWrites(t); got != writesBefore {
		t.Errorf("Expected stable multi-row resave, address writes went %d -> %d", writesBefore, got)
	}
}

func TestNewPrimaryAddressClearsSiblingFlag(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	first, err := env.crmStore.CreateAddress(&models.Address{
		ContactID:      contactID,
		LocationTypeID: 1,
		IsPrimary:      true,
		Street:         "1 Main St",
		City:           "Chicago",
	})
	if err != nil {
		t.Fatalf("Failed to create address: %v", err)
	}

	// The CRM sync cached the record, primary flag included.
	value := mustField(t, env, "field_home_addresses", entity.ID)
	rows, ok := value.([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("Expected one cached row, got %v", value)
	}

	// Appending a new primary row must hand the flag over: the new
	// record becomes primary on both sides, the old row's cached flag is
	// cleared.
	rows = append(rows, map[string]any{"street_address": "9 New St", "city": "Chicago", "is_primary": true})
	if err := env.contentStore.SaveFields(entity.ID, map[string]any{"field_home_addresses": rows}); err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	addresses, err := env.crmStore.GetAddresses(contactID)
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	if len(addresses) != 2 {
		t.Fatalf("Expected 2 addresses, got %d", len(addresses))
	}
	for _, a := range addresses {
		if a.ID == first.ID && a.IsPrimary {
			t.Error("Expected the old address to lose its primary flag")
		}
		if a.ID != first.ID && !a.IsPrimary {
			t.Error("Expected the new address to be primary")
		}
	}

	saved := rowsFromValue(mustField(t, env, "field_home_addresses", entity.ID))
	if len(saved) != 2 {
		t.Fatalf("Expected 2 content rows, got %d", len(saved))
	}
	for _, row := range saved {
		if rowID(row) == first.ID && rowBool(row, "is_primary") {
			t.Error("Expected the old row's cached primary flag cleared")
		}
		if rowID(row) != first.ID && !rowBool(row, "is_primary") {
			t.Error("Expected the new row flagged primary")
		}
	}
}

func TestReadOnlyFieldNotPushedToCRM(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	err := env.contentStore.SaveFields(entity.ID, map[string]any{
		"field_primary_address": []any{
			map[string]any{"street_address": "9 Side St", "city": "Oslo"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	addresses, err := env.crmStore.GetAddresses(contactID)
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	if len(addresses) != 0 {
		t.Errorf("Expected read-only field to stay one-directional, got %d addresses", len(addresses))
	}
}

func TestCRMAddressChangeSyncsToContent(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	created, err := env.crmStore.CreateAddress(&models.Address{
		ContactID:      contactID,
		LocationTypeID: 1,
		IsPrimary:      true,
		Street:         "1 Main St",
		City:           "Chicago",
	})
	if err != nil {
		t.Fatalf("Failed to create address: %v", err)
	}

	// The address matches both the literal field and the primary field.
	home := rowsFromValue(mustField(t, env, "field_home_addresses", entity.ID))
	primary := rowsFromValue(mustField(t, env, "field_primary_address", entity.ID))
	if len(home) != 1 || rowString(home[0], "city") != "Chicago" {
		t.Errorf("Expected home field populated, got %v", home)
	}
	if len(primary) != 1 || rowID(primary[0]) != created.ID {
		t.Errorf("Expected primary field populated, got %v", primary)
	}

	// Moving the record away from both qualifiers clears both fields.
	created.LocationTypeID = 2
	created.IsPrimary = false
	if _, err := env.crmStore.UpdateAddress(created); err != nil {
		t.Fatalf("Failed to update address: %v", err)
	}

	home = rowsFromValue(mustField(t, env, "field_home_addresses", entity.ID))
	primary = rowsFromValue(mustField(t, env, "field_primary_address", entity.ID))
	if len(home) != 0 {
		t.Errorf("Expected home field cleared after qualifier change, got %v", home)
	}
	if len(primary) != 0 {
		t.Errorf("Expected primary field cleared after toggle off, got %v", primary)
	}
}

func TestCRMContactCreateFlushesBufferedCustoms(t *testing.T) {
	env := setupEngine(t)

	// The custom notification fires before the post notification, so no
	// mapped entity exists when it arrives; the batch must be buffered
	// and flushed once the entity is created.
	contact, err := env.crmStore.CreateContact(&models.Contact{
		ContactType: models.ContactTypeIndividual,
		DisplayName: "Bob Jones",
		Custom:      map[string]any{"custom_3": "red"},
	})
	if err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	contentID, err := env.engine.Resolver().ContentIDForContact(contact.ID, "student")
	if err != nil {
		t.Fatalf("Failed to resolve content entity: %v", err)
	}
	if contentID == "" {
		t.Fatal("Expected CRM contact creation to create a mapped entity")
	}

	entity, err := env.contentStore.GetEntity(contentID)
	if err != nil || entity == nil {
		t.Fatalf("Failed to load entity: %v", err)
	}
	if entity.Title != "Bob Jones" {
		t.Errorf("Expected title from display name, got %q", entity.Title)
	}

	colour := mustField(t, env, "field_colour", contentID)
	if colour != "red" {
		t.Errorf("Expected custom value flushed into content field, got %v", colour)
	}

	// The entity creation must not echo back into a second contact.
	if n := env.countRows(t, env.crmDB, "contacts"); n != 1 {
		t.Errorf("Expected 1 contact, got %d", n)
	}
}

func TestPhoneQualifierCompletion(t *testing.T) {
	env := setupEngine(t)

	entity, contactID := env.createStudent(t, "Alice Smith")

	err := env.contentStore.SaveFields(entity.ID, map[string]any{
		"field_main_phone": []any{
			map[string]any{"phone": "555-0100"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	phones, err := env.crmStore.GetPhones(contactID)
	if err != nil {
		t.Fatalf("Failed to list phones: %v", err)
	}
	if len(phones) != 1 {
		t.Fatalf("Expected 1 phone, got %d", len(phones))
	}
	p := phones[0]
	// The composite qualifier pins primary, location type, and phone
	// type for rows that leave them implicit.
	if !p.IsPrimary || p.LocationTypeID != 1 || p.PhoneTypeID != 2 {
		t.Errorf("Expected composite qualifier completion, got %+v", p)
	}
	if p.Number != "555-0100" {
		t.Errorf("Expected number synced, got %q", p.Number)
	}
}

func TestRelationshipLifecycle(t *testing.T) {
	env := setupEngine(t)

	alice, aliceID := env.createStudent(t, "Alice Smith")
	carol, carolID := env.createStudent(t, "Carol Smith")

	// Alice names Carol as a child.
	err := env.contentStore.SaveFields(alice.ID, map[string]any{
		"field_children": []any{carol.ID},
	})
	if err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}

	rels, err := env.crmStore.FindRelationships(aliceID, 7, models.DirectionAB)
	if err != nil {
		t.Fatalf("Failed to find relationships: %v", err)
	}
	if len(rels) != 1 || !rels[0].IsActive {
		t.Fatalf("Expected one active relationship, got %v", rels)
	}
	if rels[0].ContactB != carolID {
		t.Errorf("Expected contact B %d, got %d", carolID, rels[0].ContactB)
	}

	// Carol's reverse-direction field now references Alice.
	parents := idStrings(mustField(t, env, "field_parents", carol.ID))
	if len(parents) != 1 || parents[0] != alice.ID {
		t.Errorf("Expected Carol's parents field to reference Alice, got %v", parents)
	}

	// Removing the reference deactivates, never deletes.
	if err := env.contentStore.SaveFields(alice.ID, map[string]any{"field_children": []any{}}); err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}
	rels, _ = env.crmStore.FindRelationships(aliceID, 7, models.DirectionAB)
	if len(rels) != 1 {
		t.Fatalf("Expected relationship row preserved, got %d", len(rels))
	}
	if rels[0].IsActive {
		t.Error("Expected relationship deactivated")
	}
	parents = idStrings(mustField(t, env, "field_parents", carol.ID))
	if len(parents) != 0 {
		t.Errorf("Expected Carol's parents field cleared, got %v", parents)
	}

	// Re-adding reactivates the same row.
	if err := env.contentStore.SaveFields(alice.ID, map[string]any{"field_children": []any{carol.ID}}); err != nil {
		t.Fatalf("Failed to save fields: %v", err)
	}
	again, _ := env.crmStore.FindRelationships(aliceID, 7, models.DirectionAB)
	if len(again) != 1 || !again[0].IsActive {
		t.Fatalf("Expected same relationship reactivated, got %v", again)
	}
	if again[0].ID != rels[0].ID {
		t.Errorf("Expected reactivation of row %d, got new row %d", rels[0].ID, again[0].ID)
	}
}

func TestSharedAddressPropagation(t *testing.T) {
	env := setupEngine(t)

	alice, aliceID := env.createStudent(t, "Alice Smith")
	_, bobID := env.createStudent(t, "Bob Smith")

	master, err := env.crmStore.CreateAddress(&models.Address{
		ContactID:      bobID,
		LocationTypeID: 1,
		Street:         "1 Main St",
		City:           "Chicago",
	})
	if err != nil {
		t.Fatalf("Failed to create master address: %v", err)
	}

	shared, err := env.crmStore.CreateAddress(&models.Address{
		ContactID:      aliceID,
		LocationTypeID: 1,
		Street:         "1 Main St",
		City:           "Chicago",
		MasterID:       master.ID,
	})
	if err != nil {
		t.Fatalf("Failed to create shared address: %v", err)
	}

	// Editing the master fans out to the sharer, one hop.
	master.Street = "2 Oak Ave"
	if _, err := env.crmStore.UpdateAddress(master); err != nil {
		t.Fatalf("Failed to update master address: %v", err)
	}

	reloaded, err := env.crmStore.GetAddress(shared.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("Failed to load shared address: %v", err)
	}
	if reloaded.Street != "2 Oak Ave" {
		t.Errorf("Expected shared address in lockstep, got %q", reloaded.Street)
	}

	rows := rowsFromValue(mustField(t, env, "field_home_addresses", alice.ID))
	if len(rows) != 1 || rowString(rows[0], "street_address") != "2 Oak Ave" {
		t.Errorf("Expected Alice's content field updated via sharing, got %v", rows)
	}
}

func mustField(t *testing.T, env *testEnv, selector, entityID string) any {
	t.Helper()
	value, err := env.contentStore.GetField(selector, entityID)
	if err != nil {
		t.Fatalf("Failed to read field %q: %v", selector, err)
	}
	return value
}
