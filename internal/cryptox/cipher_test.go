package cryptox

import (
	"testing"

	"github.com/quillnote/core/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ciphers() map[string]Cipher {
	return map[string]Cipher{
		"aesgcm":  AESGCM{},
		"xchacha": XChaCha20Poly1305{},
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	for name, c := range ciphers() {
		t.Run(name, func(t *testing.T) {
			key, err := GenerateKey()
			require.NoError(t, err)

			plaintext := []byte("hello, spaces and boards")
			nonce, ciphertext, mac, err := c.Encrypt(key, plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, ciphertext)

			got, err := c.Decrypt(key, nonce, ciphertext, mac)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestCipher_TamperFailsClosed(t *testing.T) {
	for name, c := range ciphers() {
		t.Run(name, func(t *testing.T) {
			key, err := GenerateKey()
			require.NoError(t, err)

			nonce, ciphertext, mac, err := c.Encrypt(key, []byte("sensitive"))
			require.NoError(t, err)

			// Flip every byte of the ciphertext and the mac in turn.
			for i := range ciphertext {
				mangled := append([]byte(nil), ciphertext...)
				mangled[i] ^= 0xff
				_, err := c.Decrypt(key, nonce, mangled, mac)
				assert.ErrorIs(t, err, common.ErrTamperDetected)
			}
			for i := range mac {
				mangled := append([]byte(nil), mac...)
				mangled[i] ^= 0xff
				_, err := c.Decrypt(key, nonce, ciphertext, mangled)
				assert.ErrorIs(t, err, common.ErrTamperDetected)
			}
		})
	}
}

func TestCipher_WrongKey(t *testing.T) {
	for name, c := range ciphers() {
		t.Run(name, func(t *testing.T) {
			key, err := GenerateKey()
			require.NoError(t, err)
			other, err := GenerateKey()
			require.NoError(t, err)

			nonce, ciphertext, mac, err := c.Encrypt(key, []byte("x"))
			require.NoError(t, err)

			_, err = c.Decrypt(other, nonce, ciphertext, mac)
			assert.ErrorIs(t, err, common.ErrTamperDetected)
		})
	}
}

func TestCipher_BadNonceLength(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	_, ciphertext, mac, err := AESGCM{}.Encrypt(key, []byte("x"))
	require.NoError(t, err)

	_, err = AESGCM{}.Decrypt(key, []byte("short"), ciphertext, mac)
	assert.ErrorIs(t, err, common.ErrTamperDetected)
}

func TestWrapKey_RoundTrip(t *testing.T) {
	pub, priv, err := NewKeyPair()
	require.NoError(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(pub, key)
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), string(key))

	got, err := UnwrapKey(pub, priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestUnwrapKey_ForeignKeyFails(t *testing.T) {
	pub, _, err := NewKeyPair()
	require.NoError(t, err)
	otherPub, otherPriv, err := NewKeyPair()
	require.NoError(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	wrapped, err := WrapKey(pub, key)
	require.NoError(t, err)

	_, err = UnwrapKey(otherPub, otherPriv, wrapped)
	assert.ErrorIs(t, err, common.ErrUnwrapFailed)
}

func TestUnwrapKey_BadLengths(t *testing.T) {
	_, err := UnwrapKey([]byte("short"), []byte("short"), []byte("junk"))
	assert.ErrorIs(t, err, common.ErrUnwrapFailed)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := RandBytes(SaltSize)
	require.NoError(t, err)

	k1 := DeriveKey([]byte("correct horse"), salt)
	k2 := DeriveKey([]byte("correct horse"), salt)
	k3 := DeriveKey([]byte("battery staple"), salt)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, KeySize)
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	Wipe(nil) // must not panic
}
