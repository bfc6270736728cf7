// Package keyring holds the user's master key pair and, per resource, the
// current symmetric content key plus the historical generations still needed
// to decrypt older ciphertext. It is the only component permitted to hold
// plaintext key material, and it holds it in memory only.
package keyring

import (
	"context"
	"fmt"
	"sync"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/cryptox"
	"github.com/quillnote/core/internal/logging"
)

// Recipient identifies a member a key must be wrapped for.
type Recipient struct {
	UserID    string
	PublicKey []byte
}

// WrappedKey is a resource key encrypted for one recipient.
type WrappedKey struct {
	UserID  string
	KeyID   int
	Wrapped []byte
}

// RefetchFunc is called when a key id is unknown locally so the sync engine
// can queue a re-fetch of the wrapped key. It must not block.
type RefetchFunc func(resourceID string, keyID int)

type slot struct {
	keys    map[int][]byte
	current int
}

// Keyring maps (resource id, key id) to symmetric keys. Lookup is read-mostly
// and safe for concurrent use; Rekey and AcceptWrappedKey take the write
// side.
type Keyring struct {
	mu    sync.RWMutex
	slots map[string]*slot

	pub  []byte
	priv []byte

	refetch RefetchFunc
	log     logging.Logger
}

// New constructs a keyring around the user's master key pair.
func New(pub, priv []byte, log logging.Logger) *Keyring {
	return &Keyring{
		slots: make(map[string]*slot),
		pub:   pub,
		priv:  priv,
		log:   log,
	}
}

// SetRefetch installs the wrapped-key re-fetch hook.
func (k *Keyring) SetRefetch(fn RefetchFunc) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.refetch = fn
}

// PublicKey returns the user's master public key.
func (k *Keyring) PublicKey() []byte { return k.pub }

// CreateKey generates generation 1 for a newly created resource and returns
// its key id.
func (k *Keyring) CreateKey(resourceID string) (int, error) {
	key, err := cryptox.GenerateKey()
	if err != nil {
		return 0, fmt.Errorf("generate resource key: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.slots[resourceID]; ok {
		return 0, fmt.Errorf("%w: key slot for %s", common.ErrAlreadyExists, resourceID)
	}
	k.slots[resourceID] = &slot{keys: map[int][]byte{1: key}, current: 1}
	return 1, nil
}

// CurrentKey returns the active key generation for the resource.
func (k *Keyring) CurrentKey(resourceID string) (int, []byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.slots[resourceID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: no keys for %s", common.ErrKeyUnavailable, resourceID)
	}
	return s.current, s.keys[s.current], nil
}

// KeyByID returns a specific key generation. An unknown key id is a
// recoverable condition: the re-fetch hook is invoked and the caller gets
// common.ErrKeyUnavailable.
func (k *Keyring) KeyByID(ctx context.Context, resourceID string, keyID int) ([]byte, error) {
	k.mu.RLock()
	s, ok := k.slots[resourceID]
	var key []byte
	if ok {
		key = s.keys[keyID]
	}
	refetch := k.refetch
	k.mu.RUnlock()

	if key == nil {
		if refetch != nil {
			refetch(resourceID, keyID)
		}
		k.log.Warn(ctx, "key generation unknown, re-fetch queued",
			"resource_id", resourceID, "key_id", keyID)
		return nil, fmt.Errorf("%w: %s generation %d", common.ErrKeyUnavailable, resourceID, keyID)
	}
	return key, nil
}

// Rekey generates a new key generation for the resource and wraps it for
// every remaining member. Old generations are retained so already-synced
// ciphertext stays decryptable until it is re-encrypted.
func (k *Keyring) Rekey(resourceID string, recipients []Recipient) (int, []WrappedKey, error) {
	key, err := cryptox.GenerateKey()
	if err != nil {
		return 0, nil, fmt.Errorf("generate resource key: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[resourceID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: no keys for %s", common.ErrKeyUnavailable, resourceID)
	}
	newID := s.current + 1

	wrapped := make([]WrappedKey, 0, len(recipients))
	for _, r := range recipients {
		w, err := cryptox.WrapKey(r.PublicKey, key)
		if err != nil {
			return 0, nil, fmt.Errorf("wrap key for %s: %w", r.UserID, err)
		}
		wrapped = append(wrapped, WrappedKey{UserID: r.UserID, KeyID: newID, Wrapped: w})
	}

	s.keys[newID] = key
	s.current = newID
	return newID, wrapped, nil
}

// WrapCurrent wraps the resource's active key for one recipient, e.g. when
// creating an invite.
func (k *Keyring) WrapCurrent(resourceID string, recipient Recipient) (*WrappedKey, error) {
	keyID, key, err := k.CurrentKey(resourceID)
	if err != nil {
		return nil, err
	}
	w, err := cryptox.WrapKey(recipient.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("wrap key for %s: %w", recipient.UserID, err)
	}
	return &WrappedKey{UserID: recipient.UserID, KeyID: keyID, Wrapped: w}, nil
}

// AcceptWrappedKey unwraps a key received via an invite (or a key re-fetch)
// with the user's private key and inserts it at the given generation. The
// active generation advances if the new one is higher.
func (k *Keyring) AcceptWrappedKey(resourceID string, keyID int, wrapped []byte) error {
	key, err := cryptox.UnwrapKey(k.pub, k.priv, wrapped)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[resourceID]
	if !ok {
		s = &slot{keys: make(map[int][]byte)}
		k.slots[resourceID] = s
	}
	s.keys[keyID] = key
	if keyID > s.current {
		s.current = keyID
	}
	return nil
}

// Forget drops all generations for a resource, e.g. after its deletion is
// acknowledged. Key material is wiped.
func (k *Keyring) Forget(resourceID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.slots[resourceID]; ok {
		for _, key := range s.keys {
			cryptox.Wipe(key)
		}
		delete(k.slots, resourceID)
	}
}

// Close wipes all key material, including the master private key.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, s := range k.slots {
		for _, key := range s.keys {
			cryptox.Wipe(key)
		}
	}
	k.slots = make(map[string]*slot)
	cryptox.Wipe(k.priv)
}
