// ABOUTME: Test suite for contact database operations
// ABOUTME: Verifies CRUD, custom value merging, and soft deletion
package crm

import (
	"testing"

	"github.com/christianwach/crmsync/models"
)

func TestCreateContact(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	contact := &models.Contact{
		ContactType: models.ContactTypeIndividual,
		SubTypes:    []string{"Student"},
		DisplayName: "Alice Smith",
		FirstName:   "Alice",
		LastName:    "Smith",
		Email:       "alice@example.com",
		Custom:      map[string]any{"custom_3": "blue"},
	}

	if err := CreateContact(db, contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}
	if contact.ID == 0 {
		t.Error("Expected ID to be assigned")
	}
	if contact.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	loaded, err := GetContact(db, contact.ID)
	if err != nil {
		t.Fatalf("Failed to get contact: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected contact to exist")
	}
	if loaded.DisplayName != "Alice Smith" {
		t.Errorf("Expected display name 'Alice Smith', got %q", loaded.DisplayName)
	}
	if len(loaded.SubTypes) != 1 || loaded.SubTypes[0] != "Student" {
		t.Errorf("Expected sub types [Student], got %v", loaded.SubTypes)
	}
	if loaded.Custom["custom_3"] != "blue" {
		t.Errorf("Expected custom_3 'blue', got %v", loaded.Custom["custom_3"])
	}
}

func TestGetContactMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	contact, err := GetContact(db, 999)
	if err != nil {
		t.Fatalf("Expected no error for missing contact, got: %v", err)
	}
	if contact != nil {
		t.Error("Expected nil for missing contact")
	}
}

func TestUpdateContactMergesCustom(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	contact := &models.Contact{
		ContactType: models.ContactTypeIndividual,
		DisplayName: "Bob Jones",
		Custom:      map[string]any{"custom_1": "a", "custom_2": "b"},
	}
	if err := CreateContact(db, contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	// A partial payload mentioning only custom_2 must not wipe custom_1.
	update := &models.Contact{
		ID:          contact.ID,
		ContactType: models.ContactTypeIndividual,
		DisplayName: "Bob Jones",
		Custom:      map[string]any{"custom_2": "changed"},
	}
	if err := UpdateContact(db, update); err != nil {
		t.Fatalf("Failed to update contact: %v", err)
	}

	loaded, err := GetContact(db, contact.ID)
	if err != nil {
		t.Fatalf("Failed to get contact: %v", err)
	}
	if loaded.Custom["custom_1"] != "a" {
		t.Errorf("Expected custom_1 preserved as 'a', got %v", loaded.Custom["custom_1"])
	}
	if loaded.Custom["custom_2"] != "changed" {
		t.Errorf("Expected custom_2 'changed', got %v", loaded.Custom["custom_2"])
	}
}

func TestDeleteContactIsSoft(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	contact := &models.Contact{ContactType: models.ContactTypeIndividual, DisplayName: "Carol"}
	if err := CreateContact(db, contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	if err := DeleteContact(db, contact.ID); err != nil {
		t.Fatalf("Failed to delete contact: %v", err)
	}

	loaded, err := GetContact(db, contact.ID)
	if err != nil {
		t.Fatalf("Failed to get contact: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected soft-deleted contact to remain readable")
	}
	if !loaded.IsDeleted {
		t.Error("Expected IsDeleted to be set")
	}
}

func TestTypeHierarchy(t *testing.T) {
	contact := &models.Contact{
		ContactType: models.ContactTypeIndividual,
		SubTypes:    []string{"Student", "Parent"},
	}

	hierarchy := contact.TypeHierarchy()
	if len(hierarchy) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %v", len(hierarchy), hierarchy)
	}
	if hierarchy[0] != models.ContactTypeIndividual {
		t.Errorf("Expected base type first, got %q", hierarchy[0])
	}
}
