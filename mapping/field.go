// ABOUTME: Field mapping kinds and qualifier parsing
// ABOUTME: Resolves raw mapping config into a tagged variant, parsed once at load
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/christianwach/crmsync/models"
)

// Kind discriminates what a content field is mapped to.
type Kind int

const (
	// KindScalar maps to a single CRM scalar field by name.
	KindScalar Kind = iota
	// KindCustom maps to a CRM custom field by numeric id.
	KindCustom
	// KindRecord maps to a repeatable CRM sub-entity plus a qualifier.
	KindRecord
	// KindRelationship maps to a relationship type and direction.
	KindRelationship
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindCustom:
		return "custom"
	case KindRecord:
		return "record"
	case KindRelationship:
		return "relationship"
	}
	return "unknown"
}

// RecordKind names a repeatable sub-entity type.
type RecordKind string

const (
	RecordAddress RecordKind = "address"
	RecordPhone   RecordKind = "phone"
	RecordIM      RecordKind = "im"
)

// Sentinel qualifier tokens. These denote constraint-based matches
// (at most one active record satisfies them) rather than literal
// location-type ids.
const (
	QualifierPrimary = "primary"
	QualifierBilling = "billing"
)

// Qualifier identifies which sub-record a content field represents:
// a literal location-type id, a sentinel token, or (phones only) a
// composite "<primary>_<locationType>_<phoneType>" key.
type Qualifier struct {
	Raw            string
	LocationTypeID int
	Primary        bool
	Billing        bool
	PhoneTypeID    int
	composite      bool
}

// ParseQualifier resolves a raw qualifier string for the given record
// kind. Billing and composite qualifiers are only legal where the
// record kind supports them.
func ParseQualifier(raw string, record RecordKind) (Qualifier, error) {
	q := Qualifier{Raw: raw}

	switch raw {
	case QualifierPrimary:
		q.Primary = true
		return q, nil
	case QualifierBilling:
		if record != RecordAddress {
			return q, fmt.Errorf("billing qualifier is only valid for address fields, got %q", record)
		}
		q.Billing = true
		return q, nil
	}

	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return q, fmt.Errorf("location type id must be positive, got %d", n)
		}
		q.LocationTypeID = n
		return q, nil
	}

	// Phone composite key: "<primary>_<locationType>_<phoneType>".
	if record == RecordPhone {
		parts := strings.Split(raw, "_")
		if len(parts) == 3 {
			primary, err1 := strconv.Atoi(parts[0])
			locType, err2 := strconv.Atoi(parts[1])
			phoneType, err3 := strconv.Atoi(parts[2])
			if err1 == nil && err2 == nil && err3 == nil {
				q.Primary = primary != 0
				q.LocationTypeID = locType
				q.PhoneTypeID = phoneType
				q.composite = true
				return q, nil
			}
		}
	}

	return q, fmt.Errorf("unrecognized qualifier %q for record kind %q", raw, record)
}

// IsSentinel reports whether the qualifier is a constraint-based match
// rather than a literal location-type id.
func (q Qualifier) IsSentinel() bool {
	return !q.composite && q.LocationTypeID == 0 && (q.Primary || q.Billing)
}

// MatchesAddress reports whether the address satisfies the qualifier.
func (q Qualifier) MatchesAddress(a *models.Address) bool {
	if q.LocationTypeID != 0 {
		return a.LocationTypeID == q.LocationTypeID
	}
	if q.Primary {
		return a.IsPrimary
	}
	if q.Billing {
		return a.IsBilling
	}
	return false
}

// MatchesPhone reports whether the phone satisfies the qualifier. A
// composite qualifier matches on all three of its components.
func (q Qualifier) MatchesPhone(p *models.Phone) bool {
	if q.composite {
		return p.IsPrimary == q.Primary &&
			p.LocationTypeID == q.LocationTypeID &&
			p.PhoneTypeID == q.PhoneTypeID
	}
	if q.LocationTypeID != 0 {
		return p.LocationTypeID == q.LocationTypeID
	}
	if q.Primary {
		return p.IsPrimary
	}
	return false
}

// MatchesIM reports whether the IM record satisfies the qualifier.
func (q Qualifier) MatchesIM(im *models.InstantMessenger) bool {
	if q.LocationTypeID != 0 {
		return im.LocationTypeID == q.LocationTypeID
	}
	if q.Primary {
		return im.IsPrimary
	}
	return false
}

// FieldMapping associates one content field selector with its CRM
// counterpart. Exactly one of the kind-specific sections is populated,
// according to Kind.
type FieldMapping struct {
	Selector    string
	ContentType string
	Kind        Kind
	ReadOnly    bool

	// KindScalar
	CRMField string

	// KindCustom
	CustomFieldID int

	// KindRecord
	Record    RecordKind
	Qualifier Qualifier

	// KindRelationship
	RelationshipTypeID int
	Direction          string
}

// CustomKey returns the payload key for a custom-mapped field.
func (f *FieldMapping) CustomKey() string {
	return fmt.Sprintf("custom_%d", f.CustomFieldID)
}
