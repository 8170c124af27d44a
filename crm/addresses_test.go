// ABOUTME: Test suite for address database operations
// ABOUTME: Verifies primary exclusivity and shared-address lookups
package crm

import (
	"testing"

	"github.com/christianwach/crmsync/models"
)

func TestCreateAddressPrimaryExclusive(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	contact := &models.Contact{ContactType: models.ContactTypeIndividual, DisplayName: "Alice"}
	if err := CreateContact(db, contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	first := &models.Address{ContactID: contact.ID, LocationTypeID: 1, IsPrimary: true, City: "Chicago"}
	if err := CreateAddress(db, first); err != nil {
		t.Fatalf("Failed to create first address: %v", err)
	}

	second := &models.Address{ContactID: contact.ID, LocationTypeID: 2, IsPrimary: true, City: "Berlin"}
	if err := CreateAddress(db, second); err != nil {
		t.Fatalf("Failed to create second address: %v", err)
	}

	addresses, err := GetAddresses(db, contact.ID)
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	if len(addresses) != 2 {
		t.Fatalf("Expected 2 addresses, got %d", len(addresses))
	}

	primaries := 0
	for _, a := range addresses {
		if a.IsPrimary {
			primaries++
			if a.ID != second.ID {
				t.Errorf("Expected address %d to be primary, got %d", second.ID, a.ID)
			}
		}
	}
	if primaries != 1 {
		t.Errorf("Expected exactly one primary address, got %d", primaries)
	}
}

func TestUpdateAddressPrimaryExclusive(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	contact := &models.Contact{ContactType: models.ContactTypeIndividual, DisplayName: "Bob"}
	if err := CreateContact(db, contact); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}

	first := &models.Address{ContactID: contact.ID, LocationTypeID: 1, IsPrimary: true}
	second := &models.Address{ContactID: contact.ID, LocationTypeID: 2}
	if err := CreateAddress(db, first); err != nil {
		t.Fatalf("Failed to create first address: %v", err)
	}
	if err := CreateAddress(db, second); err != nil {
		t.Fatalf("Failed to create second address: %v", err)
	}

	second.IsPrimary = true
	if err := UpdateAddress(db, second); err != nil {
		t.Fatalf("Failed to update address: %v", err)
	}

	reloaded, err := GetAddress(db, first.ID)
	if err != nil {
		t.Fatalf("Failed to get first address: %v", err)
	}
	if reloaded.IsPrimary {
		t.Error("Expected first address to lose primary after second became primary")
	}
}

func TestGetSharedAddresses(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	alice := &models.Contact{ContactType: models.ContactTypeIndividual, DisplayName: "Alice"}
	org := &models.Contact{ContactType: models.ContactTypeOrganization, DisplayName: "ACME"}
	if err := CreateContact(db, alice); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}
	if err := CreateContact(db, org); err != nil {
		t.Fatalf("Failed to create org: %v", err)
	}

	master := &models.Address{ContactID: org.ID, LocationTypeID: 3, Street: "1 Main St"}
	if err := CreateAddress(db, master); err != nil {
		t.Fatalf("Failed to create master address: %v", err)
	}

	shared := &models.Address{ContactID: alice.ID, LocationTypeID: 3, Street: "1 Main St", MasterID: master.ID}
	if err := CreateAddress(db, shared); err != nil {
		t.Fatalf("Failed to create shared address: %v", err)
	}

	results, err := GetSharedAddresses(db, master.ID)
	if err != nil {
		t.Fatalf("Failed to get shared addresses: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 shared address, got %d", len(results))
	}
	if results[0].ID != shared.ID {
		t.Errorf("Expected shared address %d, got %d", shared.ID, results[0].ID)
	}

	// The master itself shares nothing.
	none, err := GetSharedAddresses(db, shared.ID)
	if err != nil {
		t.Fatalf("Failed to get shared addresses: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no second-hop sharers, got %d", len(none))
	}
}
