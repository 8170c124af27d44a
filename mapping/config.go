// ABOUTME: Administrator mapping configuration loading
// ABOUTME: Parses YAML entity-type and field mappings into resolved form
package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/christianwach/crmsync/models"
)

// EntityTypeMapping pairs one content entity type with either a CRM
// contact type or a CRM activity type.
type EntityTypeMapping struct {
	ContentType  string `yaml:"content_type"`
	ContactType  string `yaml:"contact_type,omitempty"`
	ActivityType string `yaml:"activity_type,omitempty"`
}

type rawField struct {
	Selector         string `yaml:"selector"`
	ContentType      string `yaml:"content_type"`
	Kind             string `yaml:"kind"`
	CRMField         string `yaml:"crm_field,omitempty"`
	CustomID         int    `yaml:"custom_id,omitempty"`
	Qualifier        string `yaml:"qualifier,omitempty"`
	RelationshipType int    `yaml:"relationship_type,omitempty"`
	Direction        string `yaml:"direction,omitempty"`
	ReadOnly         bool   `yaml:"read_only,omitempty"`
}

type rawConfig struct {
	EntityTypes []EntityTypeMapping `yaml:"entity_types"`
	Fields      []rawField          `yaml:"fields"`
}

// Config is the resolved mapping configuration. Field mappings are
// resolved into their tagged variant once here, never re-inspected.
type Config struct {
	EntityTypes []EntityTypeMapping
	Fields      []FieldMapping
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config: %w", err)
	}

	cfg := &Config{EntityTypes: raw.EntityTypes}

	for _, rf := range raw.Fields {
		field, err := resolveField(rf)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", rf.Selector, err)
		}
		cfg.Fields = append(cfg.Fields, field)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolveField(rf rawField) (FieldMapping, error) {
	field := FieldMapping{
		Selector:    rf.Selector,
		ContentType: rf.ContentType,
		ReadOnly:    rf.ReadOnly,
	}

	switch rf.Kind {
	case "scalar":
		field.Kind = KindScalar
		field.CRMField = rf.CRMField
	case "custom":
		field.Kind = KindCustom
		field.CustomFieldID = rf.CustomID
	case "address", "phone", "im":
		field.Kind = KindRecord
		field.Record = RecordKind(rf.Kind)
		qualifier, err := ParseQualifier(rf.Qualifier, field.Record)
		if err != nil {
			return field, err
		}
		field.Qualifier = qualifier
	case "relationship":
		field.Kind = KindRelationship
		field.RelationshipTypeID = rf.RelationshipType
		field.Direction = rf.Direction
	default:
		return field, fmt.Errorf("unknown mapping kind %q", rf.Kind)
	}

	return field, nil
}

// ContactTypeFor returns the CRM contact type mapped to a content
// type, or "" when the content type is not contact-mapped.
func (c *Config) ContactTypeFor(contentType string) string {
	for _, et := range c.EntityTypes {
		if et.ContentType == contentType && et.ContactType != "" {
			return et.ContactType
		}
	}
	return ""
}

// ActivityTypeFor returns the CRM activity type mapped to a content
// type, or "" when the content type is not activity-mapped.
func (c *Config) ActivityTypeFor(contentType string) string {
	for _, et := range c.EntityTypes {
		if et.ContentType == contentType && et.ActivityType != "" {
			return et.ActivityType
		}
	}
	return ""
}

// ContentTypesForContactTypes returns every content type mapped to any
// of the given contact types. A contact's sub-type hierarchy can map
// to several content types at once, so callers must iterate the result
// rather than assume one match.
func (c *Config) ContentTypesForContactTypes(contactTypes []string) []string {
	var matched []string
	for _, et := range c.EntityTypes {
		if et.ContactType == "" {
			continue
		}
		for _, ct := range contactTypes {
			if et.ContactType == ct {
				matched = append(matched, et.ContentType)
				break
			}
		}
	}
	return matched
}

// ContentTypeForActivityType returns the content type mapped to an
// activity type, or "" when unmapped.
func (c *Config) ContentTypeForActivityType(activityType string) string {
	for _, et := range c.EntityTypes {
		if et.ActivityType == activityType {
			return et.ContentType
		}
	}
	return ""
}

// FieldsFor returns the field mappings declared for one content type.
func (c *Config) FieldsFor(contentType string) []FieldMapping {
	var fields []FieldMapping
	for _, f := range c.Fields {
		if f.ContentType == contentType {
			fields = append(fields, f)
		}
	}
	return fields
}

// FieldBySelector returns the mapping for one selector within a
// content type, or nil.
func (c *Config) FieldBySelector(contentType, selector string) *FieldMapping {
	for i := range c.Fields {
		if c.Fields[i].ContentType == contentType && c.Fields[i].Selector == selector {
			return &c.Fields[i]
		}
	}
	return nil
}

// FieldForCustomID returns the custom-kind mapping for a CRM custom
// field id within a content type, or nil.
func (c *Config) FieldForCustomID(contentType string, customFieldID int) *FieldMapping {
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.ContentType == contentType && f.Kind == KindCustom && f.CustomFieldID == customFieldID {
			return f
		}
	}
	return nil
}

// RecordFieldsFor returns the record-kind mappings of one sub-entity
// type for a content type.
func (c *Config) RecordFieldsFor(contentType string, record RecordKind) []FieldMapping {
	var fields []FieldMapping
	for _, f := range c.Fields {
		if f.ContentType == contentType && f.Kind == KindRecord && f.Record == record {
			fields = append(fields, f)
		}
	}
	return fields
}

// RelationshipFieldsFor returns every relationship-kind mapping
// declared for a content type.
func (c *Config) RelationshipFieldsFor(contentType string) []FieldMapping {
	var fields []FieldMapping
	for _, f := range c.Fields {
		if f.ContentType == contentType && f.Kind == KindRelationship {
			fields = append(fields, f)
		}
	}
	return fields
}

// RelationshipFieldFor returns the relationship mapping for a type and
// direction within a content type, or nil.
func (c *Config) RelationshipFieldFor(contentType string, typeID int, direction string) *FieldMapping {
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.ContentType == contentType && f.Kind == KindRelationship &&
			f.RelationshipTypeID == typeID && f.Direction == direction {
			return f
		}
	}
	return nil
}

// Validate checks the resolved configuration for contradictions.
func (c *Config) Validate() error {
	for _, et := range c.EntityTypes {
		if et.ContentType == "" {
			return fmt.Errorf("entity type mapping missing content_type")
		}
		if et.ContactType == "" && et.ActivityType == "" {
			return fmt.Errorf("entity type %q maps to neither a contact type nor an activity type", et.ContentType)
		}
		if et.ContactType != "" && et.ActivityType != "" {
			return fmt.Errorf("entity type %q maps to both a contact type and an activity type", et.ContentType)
		}
	}

	seen := make(map[string]bool)
	for _, f := range c.Fields {
		if f.Selector == "" {
			return fmt.Errorf("field mapping missing selector")
		}
		if f.ContentType == "" {
			return fmt.Errorf("field %q missing content_type", f.Selector)
		}
		key := f.ContentType + "/" + f.Selector
		if seen[key] {
			return fmt.Errorf("duplicate field mapping for %q", key)
		}
		seen[key] = true

		switch f.Kind {
		case KindScalar:
			if f.CRMField == "" {
				return fmt.Errorf("scalar field %q missing crm_field", f.Selector)
			}
		case KindCustom:
			if f.CustomFieldID <= 0 {
				return fmt.Errorf("custom field %q missing custom_id", f.Selector)
			}
		case KindRelationship:
			if f.RelationshipTypeID <= 0 {
				return fmt.Errorf("relationship field %q missing relationship_type", f.Selector)
			}
			if f.Direction != models.DirectionAB && f.Direction != models.DirectionBA {
				return fmt.Errorf("relationship field %q has invalid direction %q", f.Selector, f.Direction)
			}
		}
	}

	return nil
}
