// ABOUTME: Test suite for the dispatcher
// ABOUTME: Verifies normalization, suspension during emit, panic containment, and lifecycle fan-out
package mapper

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/christianwach/crmsync/models"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(zerolog.Nop())
}

func TestNativeCRMChangeNormalization(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	var got []Event
	d.Listen(PlatformCRM, EntityContact, "test", func(ctx *SyncContext, ev Event) error {
		got = append(got, ev)
		return nil
	})

	contact := &models.Contact{ID: 7}
	d.NativeCRMChange(ctx, "post", "edit", models.ObjectIndividual, 7, contact)

	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	ev := got[0]
	if ev.Op != OpEdit || ev.Phase != PhasePost {
		t.Errorf("Expected post/edit, got %s/%s", ev.Phase, ev.Op)
	}
	if ev.EntityType != EntityContact {
		t.Errorf("Expected contact entity type for Individual object, got %q", ev.EntityType)
	}
	if ev.CRMID() != 7 {
		t.Errorf("Expected CRM id 7, got %d", ev.CRMID())
	}
	if ev.Extra["object_name"] != models.ObjectIndividual {
		t.Errorf("Expected object name carried in extra, got %v", ev.Extra["object_name"])
	}
}

func TestNativeCRMChangeDropsMalformed(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	calls := 0
	d.Listen(PlatformCRM, EntityContact, "test", func(ctx *SyncContext, ev Event) error {
		calls++
		return nil
	})

	// Unknown object, unknown op, bad phase, missing id on post.
	d.NativeCRMChange(ctx, "post", "edit", "Membership", 1, nil)
	d.NativeCRMChange(ctx, "post", "merge", models.ObjectContact, 1, nil)
	d.NativeCRMChange(ctx, "during", "edit", models.ObjectContact, 1, nil)
	d.NativeCRMChange(ctx, "post", "edit", models.ObjectContact, 0, nil)

	if calls != 0 {
		t.Errorf("Expected malformed notifications dropped, got %d calls", calls)
	}

	// Missing id is legal only on pre-create.
	d.NativeCRMChange(ctx, "pre", "create", models.ObjectContact, 0, nil)
	if calls != 1 {
		t.Errorf("Expected pre-create without id to pass, got %d calls", calls)
	}
}

func TestEmitSuspendsTargetPlatform(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	var suspendedDuring bool
	d.Listen(PlatformContent, EntityContent, "test", func(ctx *SyncContext, ev Event) error {
		// Handlers of a content-origin event write to the CRM, so CRM
		// listeners must be off while they run.
		suspendedDuring = d.Guard().Suspended(PlatformCRM)
		return nil
	})

	d.NativeContentSave(ctx, "1", nil, false)

	if !suspendedDuring {
		t.Error("Expected CRM listeners suspended during content-origin emit")
	}
	if d.Guard().Suspended(PlatformCRM) {
		t.Error("Expected CRM listeners resumed after emit")
	}
}

func TestSuspendedSourceDropsNotification(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	calls := 0
	d.Listen(PlatformCRM, EntityContact, "test", func(ctx *SyncContext, ev Event) error {
		calls++
		return nil
	})

	resume := d.Guard().Suspend(PlatformCRM)
	d.NativeCRMChange(ctx, "post", "edit", models.ObjectContact, 1, nil)
	resume()

	if calls != 0 {
		t.Errorf("Expected notification dropped while source suspended, got %d calls", calls)
	}
}

func TestListenerPanicAndErrorContained(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	order := []string{}
	d.Listen(PlatformCRM, EntityContact, "panics", func(ctx *SyncContext, ev Event) error {
		order = append(order, "panics")
		panic("boom")
	})
	d.Listen(PlatformCRM, EntityContact, "errors", func(ctx *SyncContext, ev Event) error {
		order = append(order, "errors")
		return errors.New("handler failure")
	})
	d.Listen(PlatformCRM, EntityContact, "runs", func(ctx *SyncContext, ev Event) error {
		order = append(order, "runs")
		return nil
	})

	// Must not panic, and later listeners still run.
	d.NativeCRMChange(ctx, "post", "edit", models.ObjectContact, 1, nil)

	if len(order) != 3 {
		t.Fatalf("Expected all 3 listeners to run, got %v", order)
	}
	if d.Guard().Suspended(PlatformContent) {
		t.Error("Expected suspension released after panicking listener")
	}
}

func TestListenerRegistrationOrder(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		n := name
		d.Listen(PlatformContent, EntityFields, n, func(ctx *SyncContext, ev Event) error {
			order = append(order, n)
			return nil
		})
	}

	d.NativeContentFieldsSaved(ctx, "1")

	if len(order) != 3 || order[0] != "first" || order[2] != "third" {
		t.Errorf("Expected registration order preserved, got %v", order)
	}
}

func TestEmitLifecycleFiltersByAction(t *testing.T) {
	d := testDispatcher()
	ctx := NewSyncContext()

	created, updated := 0, 0
	d.OnLifecycle(ActionRecordCreated, "created", func(ctx *SyncContext, ev LifecycleEvent) error {
		created++
		return nil
	})
	d.OnLifecycle(ActionRecordUpdated, "updated", func(ctx *SyncContext, ev LifecycleEvent) error {
		updated++
		return nil
	})

	d.EmitLifecycle(ctx, LifecycleEvent{Action: ActionRecordCreated})

	if created != 1 || updated != 0 {
		t.Errorf("Expected only the created listener to fire, got created=%d updated=%d", created, updated)
	}
}
