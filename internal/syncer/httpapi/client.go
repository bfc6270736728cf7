// Package httpapi implements the remote service protocol over HTTP+JSON. It
// provides the sync transport (change polling, push, wrapped-key fetch) and
// the account endpoints (registration, login, salt and public key lookup).
// Every call carries the access token and respects the caller's context.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/keyring"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/syncer"
)

// Client talks to the remote service. It implements syncer.Transport.
type Client struct {
	base string
	http *http.Client
	log  logging.Logger

	tokenMu sync.Mutex
	access  string
	refresh string
}

// New constructs a client for the given base URL, e.g. "https://api.example.com".
func New(base string, timeout time.Duration, log logging.Logger) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
		log:  log.With("component", "httpapi"),
	}
}

// SetTokens installs the session tokens, e.g. from a persisted session.
func (c *Client) SetTokens(access, refresh string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.access = access
	c.refresh = refresh
}

// Tokens returns the current session tokens.
func (c *Client) Tokens() (access, refresh string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.access, c.refresh
}

// Poll fetches the change batch after sinceCursor.
func (c *Client) Poll(ctx context.Context, sinceCursor string) (*syncer.ChangeBatch, error) {
	path := "/api/v1/sync/changes"
	if sinceCursor != "" {
		path += "?cursor=" + url.QueryEscape(sinceCursor)
	}
	var batch syncer.ChangeBatch
	if err := c.do(ctx, http.MethodGet, path, nil, &batch, true); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Push transmits local changes and returns one ack per item.
func (c *Client) Push(ctx context.Context, items []*syncer.PushItem) ([]*syncer.Ack, error) {
	var acks []*syncer.Ack
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync/changes", items, &acks, true); err != nil {
		return nil, err
	}
	return acks, nil
}

// FetchWrappedKey re-fetches the caller's wrapped copy of a resource key
// generation.
func (c *Client) FetchWrappedKey(ctx context.Context, resourceID string, keyID int) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/keys/%s/%d", url.PathEscape(resourceID), keyID)
	var out struct {
		Wrapped []byte `json:"wrapped"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Wrapped, nil
}

// PublishWrappedKeys uploads a new key generation's wrapped copies after a
// rekey so every remaining member can fetch theirs.
func (c *Client) PublishWrappedKeys(ctx context.Context, resourceID string, keys []keyring.WrappedKey) error {
	uploads := make([]wrappedKeyUpload, 0, len(keys))
	for _, k := range keys {
		uploads = append(uploads, wrappedKeyUpload{UserID: k.UserID, KeyID: k.KeyID, Wrapped: k.Wrapped})
	}
	path := fmt.Sprintf("/api/v1/keys/%s", url.PathEscape(resourceID))
	return c.do(ctx, http.MethodPost, path, uploads, nil, true)
}

type wrappedKeyUpload struct {
	UserID  string `json:"user_id"`
	KeyID   int    `json:"key_id"`
	Wrapped []byte `json:"wrapped"`
}

// do performs one JSON round-trip. Authenticated calls fail fast with
// common.ErrTokenExpired when the access token is already expired locally and
// cannot be refreshed, saving a doomed round-trip.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	var token string
	if authed {
		var err error
		token, err = c.freshToken(ctx)
		if err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", common.ErrNetworkTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", common.ErrNetworkTransient, method, path, err)
	}
	return nil
}

// freshToken returns a usable access token, refreshing it first when the
// local expiry check says it is stale.
func (c *Client) freshToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	access, refresh := c.access, c.refresh
	c.tokenMu.Unlock()

	if access == "" {
		return "", fmt.Errorf("%w: not logged in", common.ErrAuthenticationFailed)
	}
	if !tokenExpired(access) {
		return access, nil
	}
	if refresh == "" {
		return "", fmt.Errorf("%w: access token expired", common.ErrTokenExpired)
	}

	tokens, err := c.refreshSession(ctx, refresh)
	if err != nil {
		return "", err
	}
	c.SetTokens(tokens.AccessToken, tokens.RefreshToken)
	c.log.Debug(ctx, "session refreshed")
	return tokens.AccessToken, nil
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; verification is the server's job. Malformed tokens count as
// expired so they are refreshed rather than sent.
func tokenExpired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	// Refresh slightly early so the token does not expire mid-flight.
	return time.Until(exp.Time) < 30*time.Second
}

// classifyStatus maps an HTTP error status onto the sync retry policy.
func classifyStatus(method, path string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := fmt.Sprintf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(b))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", common.ErrTokenExpired, detail)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", common.ErrPermissionDenied, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, detail)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, detail)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", common.ErrNetworkTransient, detail)
	default:
		return fmt.Errorf("%w: %s", common.ErrNetworkFatal, detail)
	}
}

var _ syncer.Transport = (*Client)(nil)
