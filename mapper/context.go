// ABOUTME: Per-request sync context threaded through the handler chain
// ABOUTME: Holds the sync policy, pending custom-field batches, and pre-edit snapshots
package mapper

import (
	"github.com/christianwach/crmsync/models"
)

// SyncPolicy is the request-scoped short-circuit flag. It defaults to
// PolicySync; later-firing handlers check it explicitly rather than
// relying on unset-ness.
type SyncPolicy int

const (
	PolicySync SyncPolicy = iota
	PolicySkip
)

// PendingCustomBatch is one custom-group change notification buffered
// because the mapped content entity did not exist yet when it arrived.
type PendingCustomBatch struct {
	Op        string
	GroupID   int
	ContactID int
	Fields    []models.CustomFieldChange
}

// SyncContext carries all request-scoped state. A fresh context is
// created per native request; nothing in it survives the request, so
// state cannot leak between unrelated entities.
type SyncContext struct {
	Policy SyncPolicy

	pendingCustom []PendingCustomBatch

	prevAddresses map[int]models.Address
	prevPhones    map[int]models.Phone
	prevIMs       map[int]models.InstantMessenger
}

func NewSyncContext() *SyncContext {
	return &SyncContext{Policy: PolicySync}
}

// BufferCustomBatch appends one batch, preserving arrival order.
func (c *SyncContext) BufferCustomBatch(batch PendingCustomBatch) {
	c.pendingCustom = append(c.pendingCustom, batch)
}

// DrainCustomBatches returns the buffered batches in arrival order and
// clears the buffer, so a flush happens at most once.
func (c *SyncContext) DrainCustomBatches(contactID int) []PendingCustomBatch {
	var drained, kept []PendingCustomBatch
	for _, batch := range c.pendingCustom {
		if batch.ContactID == contactID {
			drained = append(drained, batch)
		} else {
			kept = append(kept, batch)
		}
	}
	c.pendingCustom = kept
	return drained
}

// SnapshotAddress stores the pre-edit state of an address for toggle
// detection later in the same request.
func (c *SyncContext) SnapshotAddress(a *models.Address) {
	if a == nil || a.ID == 0 {
		return
	}
	if c.prevAddresses == nil {
		c.prevAddresses = make(map[int]models.Address)
	}
	c.prevAddresses[a.ID] = *a
}

// PreviousAddress returns the pre-edit snapshot, if one was captured.
func (c *SyncContext) PreviousAddress(id int) (models.Address, bool) {
	a, ok := c.prevAddresses[id]
	return a, ok
}

func (c *SyncContext) SnapshotPhone(p *models.Phone) {
	if p == nil || p.ID == 0 {
		return
	}
	if c.prevPhones == nil {
		c.prevPhones = make(map[int]models.Phone)
	}
	c.prevPhones[p.ID] = *p
}

func (c *SyncContext) PreviousPhone(id int) (models.Phone, bool) {
	p, ok := c.prevPhones[id]
	return p, ok
}

func (c *SyncContext) SnapshotIM(im *models.InstantMessenger) {
	if im == nil || im.ID == 0 {
		return
	}
	if c.prevIMs == nil {
		c.prevIMs = make(map[int]models.InstantMessenger)
	}
	c.prevIMs[im.ID] = *im
}

func (c *SyncContext) PreviousIM(id int) (models.InstantMessenger, bool) {
	im, ok := c.prevIMs[id]
	return im, ok
}
