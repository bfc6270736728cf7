package keyring

import (
	"context"
	"testing"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/cryptox"
	"github.com/quillnote/core/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	pub, priv, err := cryptox.NewKeyPair()
	require.NoError(t, err)
	return New(pub, priv, logging.NewNopLogger())
}

func TestCreateKey_And_CurrentKey(t *testing.T) {
	k := newTestKeyring(t)

	keyID, err := k.CreateKey("space1")
	require.NoError(t, err)
	assert.Equal(t, 1, keyID)

	id, key, err := k.CurrentKey("space1")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Len(t, key, cryptox.KeySize)

	// Second create for the same resource is rejected.
	_, err = k.CreateKey("space1")
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	// Unknown resource.
	_, _, err = k.CurrentKey("nope")
	assert.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestKeyByID_UnknownGenerationQueuesRefetch(t *testing.T) {
	k := newTestKeyring(t)
	_, err := k.CreateKey("space1")
	require.NoError(t, err)

	var gotResource string
	var gotKeyID int
	k.SetRefetch(func(resourceID string, keyID int) {
		gotResource = resourceID
		gotKeyID = keyID
	})

	_, err = k.KeyByID(context.Background(), "space1", 7)
	assert.ErrorIs(t, err, common.ErrKeyUnavailable)
	assert.Equal(t, "space1", gotResource)
	assert.Equal(t, 7, gotKeyID)

	// Known generation resolves without touching the hook.
	gotKeyID = 0
	_, err = k.KeyByID(context.Background(), "space1", 1)
	require.NoError(t, err)
	assert.Zero(t, gotKeyID)
}

func TestRekey_AdvancesGenerationAndRetainsOldKeys(t *testing.T) {
	k := newTestKeyring(t)
	_, err := k.CreateKey("space1")
	require.NoError(t, err)
	_, oldKey, err := k.CurrentKey("space1")
	require.NoError(t, err)

	memberPub, memberPriv, err := cryptox.NewKeyPair()
	require.NoError(t, err)

	newID, wrapped, err := k.Rekey("space1", []Recipient{{UserID: "u2", PublicKey: memberPub}})
	require.NoError(t, err)
	assert.Equal(t, 2, newID)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "u2", wrapped[0].UserID)
	assert.Equal(t, 2, wrapped[0].KeyID)

	// The member can unwrap the new generation.
	got, err := cryptox.UnwrapKey(memberPub, memberPriv, wrapped[0].Wrapped)
	require.NoError(t, err)
	_, current, err := k.CurrentKey("space1")
	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.NotEqual(t, oldKey, got)

	// Old generation stays decryptable.
	stale, err := k.KeyByID(context.Background(), "space1", 1)
	require.NoError(t, err)
	assert.Equal(t, oldKey, stale)
}

func TestAcceptWrappedKey(t *testing.T) {
	owner := newTestKeyring(t)
	_, err := owner.CreateKey("space1")
	require.NoError(t, err)

	invitee := newTestKeyring(t)
	wrapped, err := owner.WrapCurrent("space1", Recipient{UserID: "u2", PublicKey: invitee.PublicKey()})
	require.NoError(t, err)

	require.NoError(t, invitee.AcceptWrappedKey("space1", wrapped.KeyID, wrapped.Wrapped))

	id, key, err := invitee.CurrentKey("space1")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	_, ownerKey, err := owner.CurrentKey("space1")
	require.NoError(t, err)
	assert.Equal(t, ownerKey, key)
}

func TestAcceptWrappedKey_ForeignWrapFails(t *testing.T) {
	owner := newTestKeyring(t)
	_, err := owner.CreateKey("space1")
	require.NoError(t, err)

	invitee := newTestKeyring(t)
	bystander := newTestKeyring(t)

	wrapped, err := owner.WrapCurrent("space1", Recipient{UserID: "u2", PublicKey: invitee.PublicKey()})
	require.NoError(t, err)

	err = bystander.AcceptWrappedKey("space1", wrapped.KeyID, wrapped.Wrapped)
	assert.ErrorIs(t, err, common.ErrUnwrapFailed)
}

func TestRevokeThenReinvite_YieldsHigherKeyID(t *testing.T) {
	owner := newTestKeyring(t)
	_, err := owner.CreateKey("space1")
	require.NoError(t, err)

	memberPub, _, err := cryptox.NewKeyPair()
	require.NoError(t, err)

	// Revocation re-keys for the remaining membership.
	rekeyedID, _, err := owner.Rekey("space1", []Recipient{{UserID: "u3", PublicKey: memberPub}})
	require.NoError(t, err)

	// Re-inviting the revoked user wraps the post-revocation generation.
	invitee := newTestKeyring(t)
	wrapped, err := owner.WrapCurrent("space1", Recipient{UserID: "u2", PublicKey: invitee.PublicKey()})
	require.NoError(t, err)
	assert.Greater(t, wrapped.KeyID, 1)
	assert.Equal(t, rekeyedID, wrapped.KeyID)
}

func TestForgetAndClose_WipeMaterial(t *testing.T) {
	k := newTestKeyring(t)
	_, err := k.CreateKey("space1")
	require.NoError(t, err)

	k.Forget("space1")
	_, _, err = k.CurrentKey("space1")
	assert.ErrorIs(t, err, common.ErrKeyUnavailable)

	_, err = k.CreateKey("space2")
	require.NoError(t, err)
	k.Close()
	_, _, err = k.CurrentKey("space2")
	assert.ErrorIs(t, err, common.ErrKeyUnavailable)
}
