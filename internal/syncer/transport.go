// Package syncer drives the poll/push cycles against the remote service:
// applying incoming change batches, replaying queued local mutations, and
// resolving conflicts. One background worker owns the state machine; all
// network calls carry explicit timeouts.
package syncer

import (
	"context"

	"github.com/quillnote/core/internal/models"
)

// ChangeBatch is the result of one poll: zero or more envelopes plus the
// cursor to resume from.
type ChangeBatch struct {
	Envelopes []*models.Envelope `json:"envelopes"`
	Cursor    string             `json:"cursor"`
}

// PushItem pairs a queued change record with its freshly sealed envelope.
type PushItem struct {
	ChangeID string           `json:"change_id"`
	Op       models.Op        `json:"op"`
	Envelope *models.Envelope `json:"envelope"`
}

// Ack is the service's verdict on one pushed item. A rejected item (stale
// base version) is fed back through reconciliation rather than failing the
// batch.
type Ack struct {
	ChangeID   string `json:"change_id"`
	ResourceID string `json:"resource_id"`
	Version    int64  `json:"version"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
}

// Transport performs the actual network I/O against the remote service. Both
// calls are expected to respect context deadlines; failures are classified by
// wrapping common.ErrNetworkTransient or common.ErrNetworkFatal.
type Transport interface {
	// Poll fetches the change batch after sinceCursor. An empty batch with
	// the same cursor means nothing new.
	Poll(ctx context.Context, sinceCursor string) (*ChangeBatch, error)

	// Push transmits local changes and returns one ack per item.
	Push(ctx context.Context, items []*PushItem) ([]*Ack, error)

	// FetchWrappedKey re-fetches the caller's wrapped copy of a resource key
	// generation, used to recover from a locally unknown key id.
	FetchWrappedKey(ctx context.Context, resourceID string, keyID int) ([]byte, error)
}
