package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of the random salt used for key derivation.
const SaltSize = 16

// DeriveKey stretches a passphrase into a symmetric master key using
// argon2id. The same (passphrase, salt) pair always yields the same key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier produces a value safe to send to the server for password
// verification; it cannot be reversed into the master key.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// GenerateKey returns a fresh random symmetric key.
func GenerateKey() ([]byte, error) {
	return RandBytes(KeySize)
}

// RandBytes returns n cryptographically random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read rng: %w", err)
	}
	return b, nil
}

// Wipe overwrites the slice with zeros. Used to remove key material from
// memory after use. A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
