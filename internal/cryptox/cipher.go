// Package cryptox is the engine's crypto primitives adapter: authenticated
// symmetric encryption, asymmetric key wrap for sharing, and password-based
// key derivation. All operations are pure functions over byte buffers; no
// function retains key material after returning.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/quillnote/core/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the symmetric key length used by both cipher backends.
const KeySize = 32

// Cipher is an authenticated symmetric encryption backend. The MAC is carried
// detached from the ciphertext so the wire envelope keeps nonce, ciphertext
// and mac as separate fields. Implementations are stateless and safe for
// concurrent use; the backend is selected once at engine construction.
type Cipher interface {
	// Name identifies the backend (recorded for diagnostics only).
	Name() string

	// Encrypt seals plaintext under key with a fresh random nonce.
	Encrypt(key, plaintext []byte) (nonce, ciphertext, mac []byte, err error)

	// Decrypt opens ciphertext. Any authentication failure is reported as
	// common.ErrTamperDetected; no partial plaintext is ever returned.
	Decrypt(key, nonce, ciphertext, mac []byte) ([]byte, error)
}

// AESGCM implements Cipher over AES-256-GCM.
type AESGCM struct{}

func (AESGCM) Name() string { return "aes-256-gcm" }

func (AESGCM) Encrypt(key, plaintext []byte) ([]byte, []byte, []byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	return seal(aead, plaintext)
}

func (AESGCM) Decrypt(key, nonce, ciphertext, mac []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return open(aead, nonce, ciphertext, mac)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}
	return aead, nil
}

// XChaCha20Poly1305 implements Cipher over XChaCha20-Poly1305. The extended
// 24-byte nonce makes random nonces safe at any volume.
type XChaCha20Poly1305 struct{}

func (XChaCha20Poly1305) Name() string { return "xchacha20-poly1305" }

func (XChaCha20Poly1305) Encrypt(key, plaintext []byte) ([]byte, []byte, []byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("xchacha cipher: %w", err)
	}
	return seal(aead, plaintext)
}

func (XChaCha20Poly1305) Decrypt(key, nonce, ciphertext, mac []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha cipher: %w", err)
	}
	return open(aead, nonce, ciphertext, mac)
}

// CipherByName resolves a configured backend name. Accepted values are
// "aesgcm" and "xchacha20poly1305".
func CipherByName(name string) (Cipher, error) {
	switch name {
	case "aesgcm":
		return AESGCM{}, nil
	case "xchacha20poly1305":
		return XChaCha20Poly1305{}, nil
	default:
		return nil, fmt.Errorf("unknown cipher backend %q", name)
	}
}

// seal encrypts with a fresh nonce and splits the AEAD tag off the sealed
// output so callers get a detached mac.
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, []byte, []byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	cut := len(sealed) - aead.Overhead()
	return nonce, sealed[:cut], sealed[cut:], nil
}

// open re-joins ciphertext and mac and opens them. It fails closed: any
// mismatch, including a wrong-length nonce, yields ErrTamperDetected.
func open(aead cipher.AEAD, nonce, ciphertext, mac []byte) ([]byte, error) {
	if len(nonce) != aead.NonceSize() || len(mac) != aead.Overhead() {
		return nil, common.ErrTamperDetected
	}
	sealed := make([]byte, 0, len(ciphertext)+len(mac))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, mac...)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrTamperDetected
	}
	return plaintext, nil
}
