// ABOUTME: Activity sync handler
// ABOUTME: Keeps an activity-mapped content entity and its CRM activity consistent
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

type ActivityHandler struct {
	crm        crm.Service
	content    content.Store
	cfg        *mapping.Config
	resolver   *resolver.Resolver
	dispatcher *mapper.Dispatcher
	log        zerolog.Logger
}

func NewActivityHandler(crmSvc crm.Service, store content.Store, cfg *mapping.Config, res *resolver.Resolver, d *mapper.Dispatcher, log zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		crm:        crmSvc,
		content:    store,
		cfg:        cfg,
		resolver:   res,
		dispatcher: d,
		log:        log.With().Str("handler", "activity").Logger(),
	}
}

func (h *ActivityHandler) Register() {
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityContent, "activity.content-save", h.onContentSave)
	h.dispatcher.Listen(mapper.PlatformContent, mapper.EntityFields, "activity.fields-saved", h.onFieldsSaved)
	h.dispatcher.Listen(mapper.PlatformCRM, mapper.EntityActivity, "activity.crm-change", h.onCRMChange)
}

func (h *ActivityHandler) onContentSave(ctx *mapper.SyncContext, ev mapper.Event) error {
	entity, err := h.content.GetEntity(ev.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load content entity %q: %w", ev.EntityID, err)
	}
	if entity == nil {
		return nil
	}

	activityType := h.cfg.ActivityTypeFor(entity.EntityType)
	if activityType == "" {
		return nil
	}

	_, err = h.SyncFromContent(ctx, entity, activityType)
	return err
}

// SyncFromContent creates or updates the CRM activity mapped to a
// content entity. Title becomes the subject, body the details.
func (h *ActivityHandler) SyncFromContent(ctx *mapper.SyncContext, entity *content.Entity, activityType string) (*models.Activity, error) {
	activityID, err := h.resolver.ActivityIDFor(entity.ID)
	if err != nil {
		return nil, err
	}

	if activityID == 0 {
		activity := &models.Activity{
			ActivityType: activityType,
			Subject:      entity.Title,
			Details:      entity.Body,
		}
		created, err := h.crm.CreateActivity(activity)
		if err != nil {
			return nil, fmt.Errorf("failed to create activity for %q: %w", entity.ID, err)
		}
		if err := h.resolver.SaveActivityMapping(entity.ID, created.ID); err != nil {
			return nil, err
		}

		h.log.Info().Str("content_id", entity.ID).Int("activity_id", created.ID).Msg("created mapped activity")
		h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
			Action:    mapper.ActionSyncedFromContent,
			Payload:   created,
			ParentID:  created.ID,
			ContentID: entity.ID,
		})
		return created, nil
	}

	activity := &models.Activity{
		ID:           activityID,
		ActivityType: activityType,
		Subject:      entity.Title,
		Details:      entity.Body,
	}
	updated, err := h.crm.UpdateActivity(activity)
	if err != nil {
		return nil, fmt.Errorf("failed to update activity %d: %w", activityID, err)
	}

	h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
		Action:    mapper.ActionSyncedFromContent,
		Payload:   updated,
		ParentID:  updated.ID,
		ContentID: entity.ID,
	})
	return updated, nil
}

func (h *ActivityHandler) onFieldsSaved(ctx *mapper.SyncContext, ev mapper.Event) error {
	// The policy flag is set by the contact and activity CRM-change
	// handlers earlier in the same request. It defaults to sync; no
	// handler relies on it being unset.
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
	if h.cfg.ActivityTypeFor(entity.EntityType) == "" {
		return nil
	}

	activityID, err := h.resolver.ActivityIDFor(entity.ID)
	if err != nil {
		return err
	}
	if activityID == 0 {
		return nil
	}

	values, err := h.content.GetFields(entity.ID)
	if err != nil {
		return fmt.Errorf("failed to load field values for %q: %w", entity.ID, err)
	}

	return h.SyncFieldsFromContent(ctx, activityID, entity.EntityType, values)
}

// SyncFieldsFromContent issues one combined activity update covering
// the scalar- and custom-mapped fields of the entity.
func (h *ActivityHandler) SyncFieldsFromContent(ctx *mapper.SyncContext, activityID int, contentType string, values map[string]any) error {
	if activityID == 0 {
		h.log.Error().Str("content_type", contentType).Msg("field sync attempted without an activity id")
		return fmt.Errorf("field sync requires an activity id")
	}

	activity, err := h.crm.GetActivity(activityID)
	if err != nil || activity == nil {
		return fmt.Errorf("failed to load activity %d: %w", activityID, err)
	}

	touched := false
	for selector, value := range values {
		fm := h.cfg.FieldBySelector(contentType, selector)
		if fm == nil {
			continue
		}
		switch fm.Kind {
		case mapping.KindScalar:
			applyActivityScalar(activity, fm.CRMField, value)
			touched = true
		case mapping.KindCustom:
			if activity.Custom == nil {
				activity.Custom = make(map[string]any)
			}
			activity.Custom[fm.CustomKey()] = value
			touched = true
		}
	}

	if !touched {
		return nil
	}

	updated, err := h.crm.UpdateActivity(activity)
	if err != nil {
		h.log.Error().Err(err).Int("activity_id", activityID).Msg("activity field update failed")
		return err
	}

	h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
		Action:   mapper.ActionSyncedFromContent,
		Payload:  updated,
		ParentID: updated.ID,
	})
	return nil
}

func (h *ActivityHandler) onCRMChange(ctx *mapper.SyncContext, ev mapper.Event) error {
	if ev.Phase == mapper.PhasePre {
		return nil
	}

	switch ev.Op {
	case mapper.OpCreate, mapper.OpEdit:
		activity, ok := ev.Ref.(*models.Activity)
		if !ok {
			loaded, err := h.crm.GetActivity(ev.CRMID())
			if err != nil || loaded == nil {
				return fmt.Errorf("failed to load activity %s: %w", ev.EntityID, err)
			}
			activity = loaded
		}
		return h.SyncFromCRM(ctx, activity)
	}
	return nil
}

// SyncFromCRM mirrors a CRM activity change into its mapped content
// entity, creating the entity when absent.
func (h *ActivityHandler) SyncFromCRM(ctx *mapper.SyncContext, activity *models.Activity) error {
	contentType := h.cfg.ContentTypeForActivityType(activity.ActivityType)
	if contentType == "" {
		return nil
	}

	contentID, err := h.resolver.EnsureContentEntityForActivity(activity, contentType)
	if err != nil {
		return err
	}

	entity, err := h.content.GetEntity(contentID)
	if err != nil || entity == nil {
		return fmt.Errorf("content entity %q not found: %w", contentID, err)
	}

	entity.Title = activity.Subject
	entity.Body = activity.Details
	if err := h.content.UpdateEntity(entity); err != nil {
		return err
	}

	for _, fm := range h.cfg.FieldsFor(contentType) {
		var value any
		switch fm.Kind {
		case mapping.KindScalar:
			value = activityScalar(activity, fm.CRMField)
		case mapping.KindCustom:
			v, ok := activity.Custom[fm.CustomKey()]
			if !ok {
				continue
			}
			value = v
		default:
			continue
		}

		fieldType := ""
		if settings, err := h.content.GetFieldSettings(fm.Selector); err == nil && settings != nil {
			fieldType = settings.FieldType
		}

		if err := h.content.UpdateField(fm.Selector, coerceForContent(fieldType, value), contentID); err != nil {
			h.log.Error().Err(err).Str("selector", fm.Selector).Str("content_id", contentID).Msg("field write failed")
		}
	}

	ctx.Policy = mapper.PolicySkip

	h.dispatcher.EmitLifecycle(ctx, mapper.LifecycleEvent{
		Action:    mapper.ActionSyncedFromCRM,
		Payload:   activity,
		ParentID:  activity.ID,
		ContentID: contentID,
	})
	return nil
}

func applyActivityScalar(activity *models.Activity, crmField string, value any) {
	s := stringify(value)
	switch crmField {
	case "subject":
		activity.Subject = s
	case "details":
		activity.Details = s
	}
}

func activityScalar(activity *models.Activity, crmField string) any {
	switch crmField {
	case "subject":
		return activity.Subject
	case "details":
		return activity.Details
	}
	return nil
}
