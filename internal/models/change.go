package models

import "time"

// Op is the operation carried by a change record.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Origin marks where a change was produced.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

// ChangeRecord is one unit of the sync log. Records are totally ordered per
// resource by Version; the ULID in ID additionally gives a stable global
// ordering for the outgoing queue.
type ChangeRecord struct {
	ID         string       `json:"id"`
	ResourceID string       `json:"resource_id"`
	Type       ResourceType `json:"type"`
	Op         Op           `json:"op"`
	Version    int64        `json:"version"`
	Origin     Origin       `json:"-"`
	ModifiedAt time.Time    `json:"modified_at"`

	// Envelope carries the encrypted item for remote-origin changes; local
	// changes are sealed fresh at push time.
	Envelope *Envelope `json:"envelope,omitempty"`
}

// Envelope is the wire and persistence form of a synced item: ciphertext and
// the metadata needed to route and decrypt it. KeyID lets the receiver select
// the correct keyring entry before attempting decryption.
type Envelope struct {
	ID         string       `json:"id"`
	Type       ResourceType `json:"type"`
	SpaceID    string       `json:"space_id"`
	KeyID      int          `json:"key_id"`
	Version    int64        `json:"version"`
	Nonce      []byte       `json:"nonce"`
	Ciphertext []byte       `json:"ciphertext"`
	MAC        []byte       `json:"mac"`
	Deleted    bool         `json:"deleted,omitempty"`
	ModifiedAt time.Time    `json:"modified_at"`

	// Dirty marks a locally-mutated, not-yet-acknowledged item. It is stored
	// by the local persistence layer but never sent on the wire.
	Dirty bool `json:"-"`
}
