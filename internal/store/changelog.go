package store

import (
	"sync"

	"github.com/quillnote/core/internal/models"
)

// OutgoingQueue is the log of local changes awaiting push. One pending record
// is kept per resource: successive local edits coalesce into the latest
// version, a delete supersedes a pending edit, and a create followed by more
// edits stays a create so the remote side sees the item exactly once.
type OutgoingQueue struct {
	mu         sync.Mutex
	order      []string // resource ids, oldest first
	byResource map[string]*models.ChangeRecord
}

func NewOutgoingQueue() *OutgoingQueue {
	return &OutgoingQueue{byResource: make(map[string]*models.ChangeRecord)}
}

// Push records a local change, coalescing with any pending record for the
// same resource.
func (q *OutgoingQueue) Push(rec *models.ChangeRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, ok := q.byResource[rec.ResourceID]
	if !ok {
		q.byResource[rec.ResourceID] = rec
		q.order = append(q.order, rec.ResourceID)
		return
	}

	// An unsynced create stays a create regardless of later edits.
	if prev.Op == models.OpCreate && rec.Op == models.OpUpdate {
		rec.Op = models.OpCreate
	}
	q.byResource[rec.ResourceID] = rec
}

// Snapshot returns up to limit pending records, oldest first. limit <= 0
// means all.
func (q *OutgoingQueue) Snapshot(limit int) []*models.ChangeRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.ChangeRecord, 0, len(q.order))
	for _, id := range q.order {
		if rec, ok := q.byResource[id]; ok {
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// Remove drops the pending record with the given change id, if still queued.
func (q *OutgoingQueue) Remove(changeID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for resourceID, rec := range q.byResource {
		if rec.ID == changeID {
			q.drop(resourceID)
			return
		}
	}
}

// DropResource discards the pending record for a resource, returning it if
// one was queued. Used when a remote change wins a conflict.
func (q *OutgoingQueue) DropResource(resourceID string) *models.ChangeRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec := q.byResource[resourceID]
	if rec != nil {
		q.drop(resourceID)
	}
	return rec
}

// Pending reports whether the resource has a queued local change.
func (q *OutgoingQueue) Pending(resourceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byResource[resourceID]
	return ok
}

// Len returns the number of queued records.
func (q *OutgoingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byResource)
}

// drop must be called with q.mu held.
func (q *OutgoingQueue) drop(resourceID string) {
	delete(q.byResource, resourceID)
	for i, id := range q.order {
		if id == resourceID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
