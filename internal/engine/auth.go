package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/cryptox"
	"github.com/quillnote/core/internal/models"
	"github.com/quillnote/core/internal/syncer/httpapi"
)

// credentials is validated before any key derivation work.
type credentials struct {
	Username   string `validate:"required,min=3,max=64"`
	Passphrase string `validate:"required,min=8"`
}

// Join creates a new account. The master key pair is generated locally; the
// private half leaves the device only encrypted under the passphrase-derived
// master key, and the server receives a verifier it cannot reverse.
func (e *Engine) Join(ctx context.Context, username, passphrase string) (*models.User, error) {
	if err := e.validate.Struct(credentials{Username: username, Passphrase: passphrase}); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	cipher, err := cryptox.CipherByName(e.cfg.CipherBackend)
	if err != nil {
		return nil, err
	}

	salt, err := cryptox.RandBytes(cryptox.SaltSize)
	if err != nil {
		return nil, err
	}
	masterKey := cryptox.DeriveKey([]byte(passphrase), salt)
	verifier := cryptox.MakeVerifier(masterKey)

	pub, priv, err := cryptox.NewKeyPair()
	if err != nil {
		return nil, err
	}
	nonce, encPriv, mac, err := cipher.Encrypt(masterKey, priv)
	if err != nil {
		return nil, err
	}

	sess, err := e.remote.Register(ctx, &httpapi.RegisterRequest{
		Username:      username,
		Verifier:      verifier,
		Salt:          salt,
		PublicKey:     pub,
		EncPrivateKey: encPriv,
		PrivKeyNonce:  nonce,
		PrivKeyMAC:    mac,
	})
	if err != nil {
		return nil, err
	}
	if sess.User == nil {
		return nil, fmt.Errorf("%w: registration returned no user", common.ErrAuthenticationFailed)
	}

	if err := e.unlock(ctx, sess.User, masterKey, priv); err != nil {
		return nil, err
	}
	return sess.User, nil
}

// Login authenticates an existing account and unseals the master private key
// locally. A wrong passphrase either fails verification at the server or
// fails to open the encrypted private key; both surface as
// ErrAuthenticationFailed.
func (e *Engine) Login(ctx context.Context, username, passphrase string) (*models.User, error) {
	if err := e.validate.Struct(credentials{Username: username, Passphrase: passphrase}); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	cipher, err := cryptox.CipherByName(e.cfg.CipherBackend)
	if err != nil {
		return nil, err
	}

	salt, err := e.remote.GetSalt(ctx, username)
	if err != nil {
		return nil, err
	}
	masterKey := cryptox.DeriveKey([]byte(passphrase), salt)
	verifier := cryptox.MakeVerifier(masterKey)

	sess, err := e.remote.Login(ctx, &httpapi.LoginRequest{Username: username, Verifier: verifier})
	if err != nil {
		return nil, err
	}
	if sess.User == nil {
		return nil, fmt.Errorf("%w: login returned no user", common.ErrAuthenticationFailed)
	}

	priv, err := cipher.Decrypt(masterKey, sess.User.PrivKeyNonce, sess.User.EncPrivateKey, sess.User.PrivKeyMAC)
	if err != nil {
		if errors.Is(err, common.ErrTamperDetected) {
			return nil, fmt.Errorf("%w: could not unseal private key", common.ErrAuthenticationFailed)
		}
		return nil, err
	}

	if err := e.unlock(ctx, sess.User, masterKey, priv); err != nil {
		return nil, err
	}
	return sess.User, nil
}
