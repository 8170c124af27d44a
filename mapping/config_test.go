// ABOUTME: Test suite for mapping configuration parsing
// ABOUTME: Verifies qualifier resolution, YAML loading, lookups, and validation failures
package mapping

import (
	"testing"

	"github.com/christianwach/crmsync/models"
)

func TestParseQualifier(t *testing.T) {
	// Sentinel: primary.
	q, err := ParseQualifier("primary", RecordAddress)
	if err != nil {
		t.Fatalf("Failed to parse primary qualifier: %v", err)
	}
	if !q.Primary || !q.IsSentinel() {
		t.Errorf("Expected primary sentinel, got %+v", q)
	}

	// Sentinel: billing, addresses only.
	q, err = ParseQualifier("billing", RecordAddress)
	if err != nil {
		t.Fatalf("Failed to parse billing qualifier: %v", err)
	}
	if !q.Billing {
		t.Errorf("Expected billing sentinel, got %+v", q)
	}
	if _, err := ParseQualifier("billing", RecordPhone); err == nil {
		t.Error("Expected billing qualifier to be rejected for phones")
	}

	// Literal location type id.
	q, err = ParseQualifier("3", RecordIM)
	if err != nil {
		t.Fatalf("Failed to parse literal qualifier: %v", err)
	}
	if q.LocationTypeID != 3 || q.IsSentinel() {
		t.Errorf("Expected literal location type 3, got %+v", q)
	}
	if _, err := ParseQualifier("0", RecordAddress); err == nil {
		t.Error("Expected zero location type to be rejected")
	}

	// Phone composite key.
	q, err = ParseQualifier("1_2_3", RecordPhone)
	if err != nil {
		t.Fatalf("Failed to parse composite qualifier: %v", err)
	}
	if !q.Primary || q.LocationTypeID != 2 || q.PhoneTypeID != 3 {
		t.Errorf("Expected composite 1_2_3, got %+v", q)
	}
	if q.IsSentinel() {
		t.Error("Expected composite qualifier not to be a sentinel")
	}
	if _, err := ParseQualifier("1_2_3", RecordAddress); err == nil {
		t.Error("Expected composite qualifier to be rejected for addresses")
	}

	if _, err := ParseQualifier("whatever", RecordAddress); err == nil {
		t.Error("Expected unrecognized qualifier to be rejected")
	}
}

func TestQualifierMatching(t *testing.T) {
	literal, _ := ParseQualifier("2", RecordAddress)
	primary, _ := ParseQualifier("primary", RecordAddress)
	billing, _ := ParseQualifier("billing", RecordAddress)

	address := &models.Address{LocationTypeID: 2, IsPrimary: true}
	if !literal.MatchesAddress(address) {
		t.Error("Expected literal match on location type 2")
	}
	if !primary.MatchesAddress(address) {
		t.Error("Expected primary match")
	}
	if billing.MatchesAddress(address) {
		t.Error("Expected no billing match")
	}

	// A literal qualifier ignores the flags.
	other := &models.Address{LocationTypeID: 5, IsPrimary: true}
	if literal.MatchesAddress(other) {
		t.Error("Expected no literal match on location type 5")
	}

	composite, _ := ParseQualifier("0_1_2", RecordPhone)
	phone := &models.Phone{LocationTypeID: 1, PhoneTypeID: 2, IsPrimary: false}
	if !composite.MatchesPhone(phone) {
		t.Error("Expected composite match")
	}
	phone.IsPrimary = true
	if composite.MatchesPhone(phone) {
		t.Error("Expected composite mismatch when primary differs")
	}
}

const testConfigYAML = `
entity_types:
  - content_type: student
    contact_type: Individual
  - content_type: meeting
    activity_type: Meeting

fields:
  - selector: field_first
    content_type: student
    kind: scalar
    crm_field: first_name
  - selector: field_colour
    content_type: student
    kind: custom
    custom_id: 3
  - selector: field_home_address
    content_type: student
    kind: address
    qualifier: primary
    read_only: true
  - selector: field_work_phone
    content_type: student
    kind: phone
    qualifier: 1_2_3
  - selector: field_children
    content_type: student
    kind: relationship
    relationship_type: 7
    direction: ab
`

func TestParseConfig(t *testing.T) {
	cfg, err := Parse([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if got := cfg.ContactTypeFor("student"); got != "Individual" {
		t.Errorf("Expected contact type Individual, got %q", got)
	}
	if got := cfg.ActivityTypeFor("meeting"); got != "Meeting" {
		t.Errorf("Expected activity type Meeting, got %q", got)
	}
	if got := cfg.ContactTypeFor("meeting"); got != "" {
		t.Errorf("Expected no contact type for activity-mapped type, got %q", got)
	}

	fm := cfg.FieldBySelector("student", "field_first")
	if fm == nil || fm.Kind != KindScalar || fm.CRMField != "first_name" {
		t.Errorf("Expected scalar mapping to first_name, got %+v", fm)
	}

	fm = cfg.FieldForCustomID("student", 3)
	if fm == nil || fm.Selector != "field_colour" {
		t.Errorf("Expected custom mapping for field 3, got %+v", fm)
	}
	if fm.CustomKey() != "custom_3" {
		t.Errorf("Expected payload key custom_3, got %q", fm.CustomKey())
	}

	records := cfg.RecordFieldsFor("student", RecordAddress)
	if len(records) != 1 || !records[0].ReadOnly || !records[0].Qualifier.Primary {
		t.Errorf("Expected one read-only primary address field, got %+v", records)
	}

	phones := cfg.RecordFieldsFor("student", RecordPhone)
	if len(phones) != 1 || phones[0].Qualifier.PhoneTypeID != 3 {
		t.Errorf("Expected composite phone field, got %+v", phones)
	}

	rel := cfg.RelationshipFieldFor("student", 7, models.DirectionAB)
	if rel == nil || rel.Selector != "field_children" {
		t.Errorf("Expected relationship mapping, got %+v", rel)
	}
	if cfg.RelationshipFieldFor("student", 7, models.DirectionBA) != nil {
		t.Error("Expected no mapping for the reverse direction")
	}
}

func TestContentTypesForContactTypes(t *testing.T) {
	cfg, err := Parse([]byte(`
entity_types:
  - content_type: person
    contact_type: Individual
  - content_type: student
    contact_type: Student
`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	// A contact whose hierarchy carries both types maps to both content
	// types.
	matched := cfg.ContentTypesForContactTypes([]string{"Individual", "Student"})
	if len(matched) != 2 {
		t.Fatalf("Expected 2 content types, got %v", matched)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"both targets", `
entity_types:
  - content_type: student
    contact_type: Individual
    activity_type: Meeting
`},
		{"no target", `
entity_types:
  - content_type: student
`},
		{"duplicate selector", `
entity_types:
  - content_type: student
    contact_type: Individual
fields:
  - {selector: f, content_type: student, kind: scalar, crm_field: email}
  - {selector: f, content_type: student, kind: scalar, crm_field: nickname}
`},
		{"bad direction", `
entity_types:
  - content_type: student
    contact_type: Individual
fields:
  - {selector: f, content_type: student, kind: relationship, relationship_type: 1, direction: sideways}
`},
		{"scalar without target", `
entity_types:
  - content_type: student
    contact_type: Individual
fields:
  - {selector: f, content_type: student, kind: scalar}
`},
	}

	for _, tc := range cases {
		if _, err := Parse([]byte(tc.yaml)); err == nil {
			t.Errorf("Expected %s config to be rejected", tc.name)
		}
	}
}
