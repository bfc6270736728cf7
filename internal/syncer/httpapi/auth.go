package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quillnote/core/internal/models"
)

// Tokens is a session token pair issued by the service.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest creates an account. The verifier is derived from the master
// key and cannot be reversed into it; the private key travels only encrypted.
type RegisterRequest struct {
	Username      string `json:"username"`
	Verifier      []byte `json:"verifier"`
	Salt          []byte `json:"salt"`
	PublicKey     []byte `json:"public_key"`
	EncPrivateKey []byte `json:"enc_private_key"`
	PrivKeyNonce  []byte `json:"priv_key_nonce"`
	PrivKeyMAC    []byte `json:"priv_key_mac"`
}

// LoginRequest authenticates with the password verifier.
type LoginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

// Session is the service's response to a successful login.
type Session struct {
	User   *models.User `json:"user"`
	Tokens Tokens       `json:"tokens"`
}

// Register creates a new account and returns an authenticated session.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", req, &sess, false); err != nil {
		return nil, err
	}
	c.SetTokens(sess.Tokens.AccessToken, sess.Tokens.RefreshToken)
	return &sess, nil
}

// Login authenticates and returns the session, including the user record with
// the encrypted private key to unlock locally.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", req, &sess, false); err != nil {
		return nil, err
	}
	c.SetTokens(sess.Tokens.AccessToken, sess.Tokens.RefreshToken)
	return &sess, nil
}

// GetSalt fetches the key-derivation salt for a username, needed before login
// to derive the verifier on a fresh device.
func (c *Client) GetSalt(ctx context.Context, username string) ([]byte, error) {
	path := "/api/v1/auth/salt?username=" + url.QueryEscape(username)
	var out struct {
		Salt []byte `json:"salt"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out.Salt, nil
}

// FetchPublicKey looks up another user's master public key, used to wrap a
// space key for an invite.
func (c *Client) FetchPublicKey(ctx context.Context, userID string) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/users/%s/pubkey", url.PathEscape(userID))
	var out struct {
		PublicKey []byte `json:"public_key"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.PublicKey, nil
}

func (c *Client) refreshSession(ctx context.Context, refresh string) (*Tokens, error) {
	req := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refresh}
	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", req, &tokens, false); err != nil {
		return nil, err
	}
	return &tokens, nil
}
