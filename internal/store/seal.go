package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/cryptox"
	"github.com/quillnote/core/internal/keyring"
	"github.com/quillnote/core/internal/models"
)

// Sealer converts between plaintext payloads and wire envelopes using the
// keyring and the configured cipher backend. Content keys are per space;
// every item in a space is sealed under the space's current generation.
//
// Invites are the one exception: their envelope body travels unencrypted
// (key id 0) because the invitee does not hold the space key yet. The
// invite's secret, the content key itself, is already asymmetrically wrapped
// for the invitee alone.
type Sealer struct {
	ring   *keyring.Keyring
	cipher cryptox.Cipher
}

// NewSealer constructs a sealer over the given keyring and cipher backend.
func NewSealer(ring *keyring.Keyring, cipher cryptox.Cipher) *Sealer {
	return &Sealer{ring: ring, cipher: cipher}
}

// Seal encrypts a payload into an envelope under the space's current key.
func (s *Sealer) Seal(ctx context.Context, item *Item, payload any) (*models.Envelope, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s %s: %w", item.Type, item.ID, err)
	}

	env := &models.Envelope{
		ID:         item.ID,
		Type:       item.Type,
		SpaceID:    item.SpaceID,
		Version:    item.Version,
		Deleted:    item.Deleted,
		ModifiedAt: item.ModifiedAt,
	}

	if item.Type == models.TypeInvite {
		env.Ciphertext = plaintext
		return env, nil
	}

	keyID, key, err := s.ring.CurrentKey(item.SpaceID)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, mac, err := s.cipher.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal %s %s: %w", item.Type, item.ID, err)
	}

	env.KeyID = keyID
	env.Nonce = nonce
	env.Ciphertext = ciphertext
	env.MAC = mac
	return env, nil
}

// Open decrypts an envelope and unmarshals the payload struct for its type.
// A missing key generation surfaces as common.ErrKeyUnavailable (and queues a
// re-fetch); a failed MAC as common.ErrTamperDetected.
func (s *Sealer) Open(ctx context.Context, env *models.Envelope) (any, error) {
	var plaintext []byte
	if env.Type == models.TypeInvite {
		plaintext = env.Ciphertext
	} else {
		key, err := s.ring.KeyByID(ctx, env.SpaceID, env.KeyID)
		if err != nil {
			return nil, err
		}
		plaintext, err = s.cipher.Decrypt(key, env.Nonce, env.Ciphertext, env.MAC)
		if err != nil {
			return nil, err
		}
	}

	payload, err := newPayload(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plaintext, payload); err != nil {
		return nil, fmt.Errorf("%w: %s %s payload: %v", common.ErrTamperDetected, env.Type, env.ID, err)
	}
	return payload, nil
}

func newPayload(typ models.ResourceType) (any, error) {
	switch typ {
	case models.TypeUser:
		return &models.User{}, nil
	case models.TypeSpace:
		return &models.Space{}, nil
	case models.TypeBoard:
		return &models.Board{}, nil
	case models.TypeNote:
		return &models.Note{}, nil
	case models.TypeFile:
		return &models.File{}, nil
	case models.TypeInvite:
		return &models.Invite{}, nil
	case models.TypeMember:
		return &models.Member{}, nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", typ)
	}
}
