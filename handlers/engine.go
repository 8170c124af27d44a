// ABOUTME: Engine assembly and native-callback wiring
// ABOUTME: Binds the stores to the dispatcher and scopes one sync context per native request
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

// Engine assembles the dispatcher, resolver, and sync handlers and
// binds both stores' native notifications into the pipeline.
//
// Native notifications are synchronous and can nest (a handler write
// triggers further notifications); every notification inside one
// top-level request shares a single sync context. The engine is not
// safe for concurrent use from multiple goroutines.
type Engine struct {
	crmStore     *crm.Store
	contentStore *content.SQLStore
	cfg          *mapping.Config
	dispatcher   *mapper.Dispatcher
	resolver     *resolver.Resolver
	log          zerolog.Logger

	depth     int
	activeCtx *mapper.SyncContext

	contacts      *ContactHandler
	activities    *ActivityHandler
	custom        *CustomFieldHandler
	addresses     *AddressHandler
	phones        *PhoneHandler
	ims           *IMHandler
	relationships *RelationshipHandler
}

func NewEngine(crmStore *crm.Store, contentStore *content.SQLStore, cfg *mapping.Config, log zerolog.Logger) *Engine {
	d := mapper.NewDispatcher(log)
	res := resolver.New(contentStore, cfg, d.Guard(), log)

	e := &Engine{
		crmStore:     crmStore,
		contentStore: contentStore,
		cfg:          cfg,
		dispatcher:   d,
		resolver:     res,
		log:          log.With().Str("component", "engine").Logger(),
	}

	e.contacts = NewContactHandler(crmStore, contentStore, cfg, res, d, log)
	e.activities = NewActivityHandler(crmStore, contentStore, cfg, res, d, log)
	e.custom = NewCustomFieldHandler(crmStore, contentStore, cfg, res, d, log)
	e.addresses = NewAddressHandler(crmStore, contentStore, cfg, res, d, log)
	e.phones = NewPhoneHandler(crmStore, contentStore, cfg, res, d, log)
	e.ims = NewIMHandler(crmStore, contentStore, cfg, res, d, log)
	e.relationships = NewRelationshipHandler(crmStore, contentStore, cfg, res, d, log)

	// Registration order is execution order. The contact and activity
	// handlers run first so the mapped pair exists by the time the
	// sub-record handlers process the same save.
	e.contacts.Register()
	e.activities.Register()
	e.custom.Register()
	e.addresses.Register()
	e.phones.Register()
	e.ims.Register()
	e.relationships.Register()

	e.bind()
	return e
}

func (e *Engine) Dispatcher() *mapper.Dispatcher {
	return e.dispatcher
}

func (e *Engine) Resolver() *resolver.Resolver {
	return e.resolver
}

// bind attaches the engine to both stores' native notification
// callbacks.
func (e *Engine) bind() {
	// One CRM API call fires pre, custom, and post notifications; the
	// request span keeps them on a single sync context so state set
	// during one notification (buffered batches, snapshots) is visible
	// to the later ones.
	e.crmStore.OnRequest(func() func() {
		_, done := e.withRequest()
		return done
	})
	e.crmStore.OnChange(func(phase, op, objectName string, objectID int, ref any) {
		ctx, done := e.withRequest()
		defer done()
		e.dispatcher.NativeCRMChange(ctx, phase, op, objectName, objectID, ref)
	})
	e.crmStore.OnCustomChange(func(op string, groupID, entityID int, fields []models.CustomFieldChange) {
		ctx, done := e.withRequest()
		defer done()
		e.dispatcher.NativeCRMCustomChange(ctx, op, groupID, entityID, fields)
	})
	e.contentStore.OnSave(func(entityID string, ref *content.Entity, isUpdate bool) {
		ctx, done := e.withRequest()
		defer done()
		e.dispatcher.NativeContentSave(ctx, entityID, ref, isUpdate)
	})
	e.contentStore.OnFieldsSaved(func(entityID string) {
		ctx, done := e.withRequest()
		defer done()
		e.dispatcher.NativeContentFieldsSaved(ctx, entityID)
	})
}

// withRequest returns the sync context for the current native request,
// creating one when this is the outermost notification. Nested
// notifications share the outer context; it is discarded when the
// outermost notification returns.
func (e *Engine) withRequest() (*mapper.SyncContext, func()) {
	if e.depth == 0 {
		e.activeCtx = mapper.NewSyncContext()
	}
	e.depth++
	ctx := e.activeCtx
	return ctx, func() {
		e.depth--
		if e.depth == 0 {
			e.activeCtx = nil
		}
	}
}

// SyncEntityFromContent pushes one content entity through the full
// content-to-CRM pipeline, as if it had just been saved in the editor.
// Used by the bulk sync command.
func (e *Engine) SyncEntityFromContent(entityID string) error {
	entity, err := e.contentStore.GetEntity(entityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("content entity %q not found", entityID)
	}

	ctx, done := e.withRequest()
	defer done()

	e.dispatcher.NativeContentSave(ctx, entity.ID, entity, true)
	e.dispatcher.NativeContentFieldsSaved(ctx, entity.ID)
	return nil
}

// SyncContactFromCRM pushes one CRM contact through the full
// CRM-to-content pipeline.
func (e *Engine) SyncContactFromCRM(contactID int) error {
	contact, err := e.crmStore.GetContact(contactID)
	if err != nil {
		return err
	}
	if contact == nil {
		return fmt.Errorf("contact %d not found", contactID)
	}

	ctx, done := e.withRequest()
	defer done()

	e.dispatcher.NativeCRMChange(ctx, crm.PhasePost, crm.OpEdit, contact.ContactType, contact.ID, contact)
	return nil
}
