// ABOUTME: Entity Resolver classifying content ids and resolving mapped entity pairs
// ABOUTME: Owns mapped-pair metadata and guarded auto-creation of counterpart entities
package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/content"
	"github.com/christianwach/crmsync/mapper"
	"github.com/christianwach/crmsync/mapping"
	"github.com/christianwach/crmsync/models"
)

// Metadata keys storing the Mapped Entity Pair on the content side.
const (
	MetaContactID  = "crm_contact_id"
	MetaActivityID = "crm_activity_id"
)

// EntityKind classifies an opaque content-entity identifier by its
// shape. Pure function, no I/O.
func EntityKind(contentID string) string {
	if contentID == "" {
		return content.KindUnknown
	}
	if contentID == "option" || contentID == "options" {
		return content.KindOption
	}
	if _, err := strconv.Atoi(contentID); err == nil {
		return content.KindPost
	}
	for _, kind := range []string{content.KindUser, content.KindTerm} {
		prefix := kind + "_"
		if strings.HasPrefix(contentID, prefix) {
			if _, err := strconv.Atoi(contentID[len(prefix):]); err == nil {
				return kind
			}
		}
	}
	return content.KindUnknown
}

// Resolver resolves mapped entity pairs between the two platforms and
// creates missing counterpart content entities on demand.
type Resolver struct {
	store content.Store
	cfg   *mapping.Config
	guard *mapper.Guard
	log   zerolog.Logger
}

func New(store content.Store, cfg *mapping.Config, guard *mapper.Guard, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		cfg:   cfg,
		guard: guard,
		log:   log.With().Str("component", "resolver").Logger(),
	}
}

// ContactIDFor returns the CRM contact id mapped to a content entity,
// or 0 when unmapped. Unmapped is a normal outcome, not an error.
func (r *Resolver) ContactIDFor(contentID string) (int, error) {
	return r.crmIDFor(contentID, MetaContactID)
}

// ActivityIDFor returns the CRM activity id mapped to a content
// entity, or 0 when unmapped.
func (r *Resolver) ActivityIDFor(contentID string) (int, error) {
	return r.crmIDFor(contentID, MetaActivityID)
}

func (r *Resolver) crmIDFor(contentID, metaKey string) (int, error) {
	value, err := r.store.GetMeta(contentID, metaKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s for %q: %w", metaKey, contentID, err)
	}
	if value == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("malformed %s %q on %q: %w", metaKey, value, contentID, err)
	}
	return id, nil
}

// SaveContactMapping persists the mapped entity pair.
func (r *Resolver) SaveContactMapping(contentID string, contactID int) error {
	return r.store.SetMeta(contentID, MetaContactID, strconv.Itoa(contactID))
}

// SaveActivityMapping persists the mapped entity pair.
func (r *Resolver) SaveActivityMapping(contentID string, activityID int) error {
	return r.store.SetMeta(contentID, MetaActivityID, strconv.Itoa(activityID))
}

// ContentIDForContact returns the content entity of the given type
// mapped to a contact, or "". A contact can map to entities of several
// content types, so the lookup is type-scoped.
func (r *Resolver) ContentIDForContact(contactID int, contentType string) (string, error) {
	return r.contentIDFor(MetaContactID, strconv.Itoa(contactID), contentType)
}

// ContentIDForActivity returns the content entity of the given type
// mapped to an activity, or "". An activity maps to at most one
// entity, so a single-match lookup suffices.
func (r *Resolver) ContentIDForActivity(activityID int, contentType string) (string, error) {
	id, err := r.store.FindByMeta(MetaActivityID, strconv.Itoa(activityID))
	if err != nil {
		return "", fmt.Errorf("mapped pair lookup failed: %w", err)
	}
	if id == "" {
		return "", nil
	}
	entity, err := r.store.GetEntity(id)
	if err != nil {
		return "", err
	}
	if entity == nil || entity.EntityType != contentType {
		return "", nil
	}
	return id, nil
}

func (r *Resolver) contentIDFor(metaKey, metaValue, contentType string) (string, error) {
	ids, err := r.store.FindAllByMeta(metaKey, metaValue)
	if err != nil {
		return "", fmt.Errorf("mapped pair lookup failed: %w", err)
	}
	for _, id := range ids {
		entity, err := r.store.GetEntity(id)
		if err != nil {
			return "", err
		}
		if entity != nil && entity.EntityType == contentType {
			return id, nil
		}
	}
	return "", nil
}

// ContentTypesForContact returns every content type mapped to any type
// in the contact's hierarchy. Callers iterate all of them; a contact
// whose sub-type extends a mapped base type can be mapped to several
// content types simultaneously.
func (r *Resolver) ContentTypesForContact(c *models.Contact) []string {
	return r.cfg.ContentTypesForContactTypes(c.TypeHierarchy())
}

// EnsureContentEntityForContact finds the mapped content entity of one
// type, creating it when absent. Creation happens with content
// listeners suspended so the new entity's own save notification cannot
// re-enter the dispatcher.
func (r *Resolver) EnsureContentEntityForContact(contact *models.Contact, contentType string) (string, error) {
	contentID, err := r.ContentIDForContact(contact.ID, contentType)
	if err != nil {
		return "", err
	}
	if contentID != "" {
		return contentID, nil
	}

	entity := &content.Entity{
		Kind:       content.KindPost,
		EntityType: contentType,
		Title:      contact.DisplayName,
	}

	resume := r.guard.Suspend(mapper.PlatformContent)
	defer resume()

	if err := r.store.CreateEntity(entity); err != nil {
		return "", fmt.Errorf("failed to create content entity for contact %d: %w", contact.ID, err)
	}
	if err := r.SaveContactMapping(entity.ID, contact.ID); err != nil {
		return "", err
	}

	r.log.Info().
		Int("contact_id", contact.ID).
		Str("content_id", entity.ID).
		Str("content_type", contentType).
		Msg("created mapped content entity")

	return entity.ID, nil
}

// EnsureContentEntityForActivity is the activity counterpart of
// EnsureContentEntityForContact.
func (r *Resolver) EnsureContentEntityForActivity(activity *models.Activity, contentType string) (string, error) {
	contentID, err := r.ContentIDForActivity(activity.ID, contentType)
	if err != nil {
		return "", err
	}
	if contentID != "" {
		return contentID, nil
	}

	entity := &content.Entity{
		Kind:       content.KindPost,
		EntityType: contentType,
		Title:      activity.Subject,
		Body:       activity.Details,
	}

	resume := r.guard.Suspend(mapper.PlatformContent)
	defer resume()

	if err := r.store.CreateEntity(entity); err != nil {
		return "", fmt.Errorf("failed to create content entity for activity %d: %w", activity.ID, err)
	}
	if err := r.SaveActivityMapping(entity.ID, activity.ID); err != nil {
		return "", err
	}

	r.log.Info().
		Int("activity_id", activity.ID).
		Str("content_id", entity.ID).
		Str("content_type", contentType).
		Msg("created mapped content entity")

	return entity.ID, nil
}
