package cryptox

import (
	"crypto/rand"
	"fmt"

	"github.com/quillnote/core/internal/common"
	"golang.org/x/crypto/nacl/box"
)

// BoxKeySize is the length of the asymmetric key halves used for key wrap.
const BoxKeySize = 32

// NewKeyPair generates a fresh asymmetric key pair for key wrapping.
func NewKeyPair() (pub, priv []byte, err error) {
	pubKey, privKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	return pubKey[:], privKey[:], nil
}

// WrapKey encrypts a symmetric key for a specific recipient using an
// anonymous sealed box. Only the holder of the matching private key can
// unwrap it.
func WrapKey(recipientPub, key []byte) ([]byte, error) {
	pub, err := toBoxKey(recipientPub)
	if err != nil {
		return nil, err
	}
	wrapped, err := box.SealAnonymous(nil, key, pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey recovers a symmetric key from a sealed box using the recipient's
// own key pair. A malformed or foreign wrap yields common.ErrUnwrapFailed.
func UnwrapKey(ownPub, ownPriv, wrapped []byte) ([]byte, error) {
	pub, err := toBoxKey(ownPub)
	if err != nil {
		return nil, err
	}
	priv, err := toBoxKey(ownPriv)
	if err != nil {
		return nil, err
	}
	key, ok := box.OpenAnonymous(nil, wrapped, pub, priv)
	if !ok {
		return nil, common.ErrUnwrapFailed
	}
	return key, nil
}

func toBoxKey(b []byte) (*[BoxKeySize]byte, error) {
	if len(b) != BoxKeySize {
		return nil, fmt.Errorf("%w: bad key length %d", common.ErrUnwrapFailed, len(b))
	}
	var k [BoxKeySize]byte
	copy(k[:], b)
	return &k, nil
}
