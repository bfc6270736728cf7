// Package models defines the entities of the encrypted data model: spaces,
// boards, notes, files, invites and membership records, plus the sync-level
// change records and the wire envelope. Plaintext payload structs here are
// what gets JSON-marshalled and encrypted; they never reach persistence or
// the wire unencrypted.
package models

import "time"

// ResourceType discriminates entities in the item store and on the wire.
type ResourceType string

const (
	TypeUser   ResourceType = "user"
	TypeSpace  ResourceType = "space"
	TypeBoard  ResourceType = "board"
	TypeNote   ResourceType = "note"
	TypeFile   ResourceType = "file"
	TypeInvite ResourceType = "invite"
	TypeMember ResourceType = "member"
)

// User is an account. The master key pair is immutable once created; the
// private half is stored only encrypted under the user's master key.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	PublicKey     []byte `json:"public_key"`
	EncPrivateKey []byte `json:"enc_private_key,omitempty"`
	PrivKeyNonce  []byte `json:"priv_key_nonce,omitempty"`
	PrivKeyMAC    []byte `json:"priv_key_mac,omitempty"`
	Salt          []byte `json:"salt,omitempty"`
}

// Space is the top-level container: the unit of key ownership and membership.
type Space struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	// KeyID is the current symmetric key generation; it only ever advances.
	KeyID     int       `json:"key_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Board groups notes inside a space. KeyID zero means the board inherits the
// space key.
type Board struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
	Name    string `json:"name"`
	KeyID   int    `json:"key_id,omitempty"`
}

// Note is the primary content unit.
type Note struct {
	ID       string   `json:"id"`
	SpaceID  string   `json:"space_id"`
	BoardIDs []string `json:"board_ids,omitempty"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Tags     []string `json:"tags,omitempty"`
}

// File is a binary attachment; its ciphertext blob lives outside the item
// store and is referenced by BlobRef. The blob is sealed under the space key
// generation recorded here, with its nonce and mac kept on the record.
// Lifecycle is tied to the owning note.
type File struct {
	ID      string `json:"id"`
	NoteID  string `json:"note_id"`
	SpaceID string `json:"space_id"`
	BlobRef string `json:"blob_ref"`
	Size    int64  `json:"size"`
	KeyID   int    `json:"key_id"`
	Nonce   []byte `json:"nonce,omitempty"`
	MAC     []byte `json:"mac,omitempty"`
}

// Invite is a pending membership grant carrying the space key wrapped for the
// invitee. It becomes a Member record on acceptance and expires past its TTL.
type Invite struct {
	ID         string    `json:"id"`
	SpaceID    string    `json:"space_id"`
	InviterID  string    `json:"inviter_id"`
	InviteeID  string    `json:"invitee_id"`
	Role       Role      `json:"role"`
	KeyID      int       `json:"key_id"`
	WrappedKey []byte    `json:"wrapped_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Member records a user's role on a resource.
type Member struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	SpaceID    string    `json:"space_id"`
	Role       Role      `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
}
