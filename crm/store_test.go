// ABOUTME: Test suite for the Store notification behavior
// ABOUTME: Verifies pre/post ordering and custom-group notification grouping
package crm

import (
	"testing"

	"github.com/christianwach/crmsync/models"
)

func TestStoreNotificationOrderOnCreate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := RegisterCustomField(db, 3, 1, "Favourite Colour"); err != nil {
		t.Fatalf("Failed to register custom field: %v", err)
	}

	store := NewStore(db)

	var order []string
	store.OnChange(func(phase, op, objectName string, objectID int, ref any) {
		order = append(order, phase)
		if phase == PhasePre && objectID != 0 {
			t.Errorf("Expected no id on pre-create, got %d", objectID)
		}
		if phase == PhasePost && objectID == 0 {
			t.Error("Expected id on post-create")
		}
	})
	store.OnCustomChange(func(op string, groupID, entityID int, fields []models.CustomFieldChange) {
		order = append(order, "custom")
		if groupID != 1 {
			t.Errorf("Expected group 1, got %d", groupID)
		}
		if entityID == 0 {
			t.Error("Expected entity id on custom notification")
		}
	})

	contact := &models.Contact{
		ContactType: models.ContactTypeIndividual,
		DisplayName: "Alice",
		Custom:      map[string]any{"custom_3": "blue"},
	}
	if _, err := store.CreateContact(contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	// The custom notification fires between pre and post.
	want := []string{"pre", "custom", "post"}
	if len(order) != len(want) {
		t.Fatalf("Expected notifications %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected notifications %v, got %v", want, order)
		}
	}
}

func TestStoreCustomNotificationGrouping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// Two fields in group 1, one in group 2.
	if err := RegisterCustomField(db, 1, 1, "A"); err != nil {
		t.Fatalf("Failed to register custom field: %v", err)
	}
	if err := RegisterCustomField(db, 2, 1, "B"); err != nil {
		t.Fatalf("Failed to register custom field: %v", err)
	}
	if err := RegisterCustomField(db, 5, 2, "C"); err != nil {
		t.Fatalf("Failed to register custom field: %v", err)
	}

	store := NewStore(db)

	type batch struct {
		groupID int
		count   int
	}
	var batches []batch
	store.OnCustomChange(func(op string, groupID, entityID int, fields []models.CustomFieldChange) {
		batches = append(batches, batch{groupID: groupID, count: len(fields)})
	})

	contact := &models.Contact{
		ContactType: models.ContactTypeIndividual,
		DisplayName: "Bob",
		Custom: map[string]any{
			"custom_1": "x",
			"custom_2": "y",
			"custom_5": "z",
		},
	}
	if _, err := store.CreateContact(contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("Expected one notification per group, got %d", len(batches))
	}
	if batches[0].groupID != 1 || batches[0].count != 2 {
		t.Errorf("Expected group 1 with 2 fields first, got group %d with %d", batches[0].groupID, batches[0].count)
	}
	if batches[1].groupID != 2 || batches[1].count != 1 {
		t.Errorf("Expected group 2 with 1 field second, got group %d with %d", batches[1].groupID, batches[1].count)
	}
}

func TestStoreUpdateRequiresID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)

	if _, err := store.UpdateContact(&models.Contact{DisplayName: "No ID"}); err == nil {
		t.Error("Expected update without id to fail")
	}
	if _, err := store.UpdateAddress(&models.Address{City: "Nowhere"}); err == nil {
		t.Error("Expected address update without id to fail")
	}
}

func TestStoreWritesAppendSyncLog(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)

	contact := &models.Contact{ContactType: models.ContactTypeIndividual, DisplayName: "Carol"}
	if _, err := store.CreateContact(contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}
	contact.Nickname = "C"
	if _, err := store.UpdateContact(contact); err != nil {
		t.Fatalf("Failed to update contact: %v", err)
	}

	entries, err := GetSyncLog(db, 10)
	if err != nil {
		t.Fatalf("Failed to read sync log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Op != OpEdit {
		t.Errorf("Expected newest entry to be edit, got %q", entries[0].Op)
	}
}
