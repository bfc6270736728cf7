// Package store is the in-memory authoritative model of all resources, each
// tagged with sync metadata. It mediates every read and write, delegates
// durability to a Persistence implementation, and keeps the outgoing change
// log. Only ciphertext and metadata ever reach persistence.
package store

import (
	"context"

	"github.com/quillnote/core/internal/models"
)

// Persistence durably stores encrypted envelopes. Implementations must never
// be handed plaintext keys or plaintext content; the store only passes sealed
// envelopes through. I/O failures are wrapped as common.ErrStorage by
// implementations.
type Persistence interface {
	// Get returns the stored envelope, or common.ErrNotFound.
	Get(ctx context.Context, typ models.ResourceType, id string) (*models.Envelope, error)

	// Put stores or replaces an envelope.
	Put(ctx context.Context, env *models.Envelope) error

	// Delete removes an envelope. Deleting an absent record is not an error.
	Delete(ctx context.Context, typ models.ResourceType, id string) error

	// ListAll returns every stored envelope of a type.
	ListAll(ctx context.Context, typ models.ResourceType) ([]*models.Envelope, error)

	// DeleteAll removes every stored envelope atomically.
	DeleteAll(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
