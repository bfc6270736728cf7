// Package collab manages sharing: invites carrying wrapped space keys,
// membership lifecycle, role changes, and the key rotation that follows a
// revocation so a removed member cannot read anything written afterwards.
package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/core/internal/access"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/keyring"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/models"
	"github.com/quillnote/core/internal/store"
)

// PublicKeyDirectory resolves another user's master public key, needed to
// wrap a space key for them.
type PublicKeyDirectory interface {
	FetchPublicKey(ctx context.Context, userID string) ([]byte, error)
}

// KeyPublisher uploads wrapped key copies after a rekey so remaining members
// can fetch their generation.
type KeyPublisher interface {
	PublishWrappedKeys(ctx context.Context, resourceID string, keys []keyring.WrappedKey) error
}

// Manager performs all sharing operations for one logged-in user.
type Manager struct {
	store     *store.Store
	ring      *keyring.Keyring
	perm      *access.Engine
	pubkeys   PublicKeyDirectory
	publisher KeyPublisher
	userID    string
	inviteTTL time.Duration
	log       logging.Logger
}

// New constructs a sharing manager.
func New(
	st *store.Store,
	ring *keyring.Keyring,
	perm *access.Engine,
	pubkeys PublicKeyDirectory,
	publisher KeyPublisher,
	userID string,
	inviteTTL time.Duration,
	log logging.Logger,
) *Manager {
	return &Manager{
		store:     st,
		ring:      ring,
		perm:      perm,
		pubkeys:   pubkeys,
		publisher: publisher,
		userID:    userID,
		inviteTTL: inviteTTL,
		log:       log.With("component", "collab"),
	}
}

// Invite wraps the space's current key for the invitee and queues an invite
// record. Requires admin capability; granting the admin role itself requires
// ownership. The invite expires after the configured TTL.
func (m *Manager) Invite(ctx context.Context, spaceID, inviteeID string, role models.Role) (*models.Invite, error) {
	if role < models.RoleViewer || role > models.RoleAdmin {
		return nil, fmt.Errorf("%w: role %s cannot be granted by invite", common.ErrValidation, role)
	}
	action := models.ActionManage
	if role == models.RoleAdmin {
		action = models.ActionOwn
	}
	if err := m.perm.Authorize(m.userID, spaceID, action); err != nil {
		return nil, err
	}
	if m.perm.Capability(inviteeID, spaceID) != models.RoleNone {
		return nil, fmt.Errorf("%w: %s is already a member of %s", common.ErrAlreadyExists, inviteeID, spaceID)
	}

	pub, err := m.pubkeys.FetchPublicKey(ctx, inviteeID)
	if err != nil {
		return nil, fmt.Errorf("fetch public key for %s: %w", inviteeID, err)
	}
	wrapped, err := m.ring.WrapCurrent(spaceID, keyring.Recipient{UserID: inviteeID, PublicKey: pub})
	if err != nil {
		return nil, err
	}

	invite := &models.Invite{
		ID:         uuid.NewString(),
		SpaceID:    spaceID,
		InviterID:  m.userID,
		InviteeID:  inviteeID,
		Role:       role,
		KeyID:      wrapped.KeyID,
		WrappedKey: wrapped.Wrapped,
		ExpiresAt:  time.Now().UTC().Add(m.inviteTTL),
	}
	if _, err := m.store.ApplyLocal(ctx, models.TypeInvite, invite.ID, spaceID, models.OpCreate, invite); err != nil {
		return nil, err
	}
	m.log.Info(ctx, "invite created",
		"space_id", spaceID, "invitee_id", inviteeID, "role", role.String())
	return invite, nil
}

// Accept unwraps the key from an invite addressed to this user, installs it
// in the keyring, and queues the membership record. The consumed invite is
// deleted.
func (m *Manager) Accept(ctx context.Context, inviteID string) (*models.Member, error) {
	item, err := m.store.Get(models.TypeInvite, inviteID)
	if err != nil {
		return nil, err
	}
	invite, ok := item.Payload.(*models.Invite)
	if !ok || item.Deleted {
		return nil, fmt.Errorf("%w: invite %s", common.ErrNotFound, inviteID)
	}
	if invite.InviteeID != m.userID {
		return nil, fmt.Errorf("%w: invite %s is not addressed to %s",
			common.ErrPermissionDenied, inviteID, m.userID)
	}
	if time.Now().UTC().After(invite.ExpiresAt) {
		return nil, fmt.Errorf("%w: invite %s expired at %s",
			common.ErrInviteExpired, inviteID, invite.ExpiresAt.Format(time.RFC3339))
	}

	if err := m.ring.AcceptWrappedKey(invite.SpaceID, invite.KeyID, invite.WrappedKey); err != nil {
		return nil, err
	}

	member := &models.Member{
		ID:         uuid.NewString(),
		UserID:     m.userID,
		ResourceID: invite.SpaceID,
		SpaceID:    invite.SpaceID,
		Role:       invite.Role,
		JoinedAt:   time.Now().UTC(),
	}
	if _, err := m.store.ApplyLocal(ctx, models.TypeMember, member.ID, invite.SpaceID, models.OpCreate, member); err != nil {
		return nil, err
	}
	if _, err := m.store.ApplyLocal(ctx, models.TypeInvite, inviteID, invite.SpaceID, models.OpDelete, nil); err != nil {
		return nil, err
	}
	m.log.Info(ctx, "invite accepted", "space_id", invite.SpaceID, "role", invite.Role.String())
	return member, nil
}

// Revoke removes a member and rotates the space key so the removed member's
// old key cannot read anything written afterwards. The new generation is
// wrapped for every remaining member and published.
func (m *Manager) Revoke(ctx context.Context, spaceID, memberUserID string) error {
	if err := m.perm.Authorize(m.userID, spaceID, models.ActionManage); err != nil {
		return err
	}
	if m.ownerOf(spaceID) == memberUserID {
		return fmt.Errorf("%w: the owner of %s cannot be revoked", common.ErrValidation, spaceID)
	}

	var record *models.Member
	for _, member := range m.store.Members(spaceID) {
		if member.UserID == memberUserID {
			record = member
			break
		}
	}
	if record == nil {
		return fmt.Errorf("%w: %s is not a member of %s", common.ErrNotFound, memberUserID, spaceID)
	}

	if _, err := m.store.ApplyLocal(ctx, models.TypeMember, record.ID, spaceID, models.OpDelete, nil); err != nil {
		return err
	}
	return m.rotateKey(ctx, spaceID)
}

// ChangeRole updates a member's role. The owner's implicit role can only
// change through TransferOwnership.
func (m *Manager) ChangeRole(ctx context.Context, spaceID, memberUserID string, role models.Role) error {
	if role < models.RoleViewer || role > models.RoleAdmin {
		return fmt.Errorf("%w: role %s cannot be assigned", common.ErrValidation, role)
	}
	action := models.ActionManage
	if role == models.RoleAdmin {
		action = models.ActionOwn
	}
	if err := m.perm.Authorize(m.userID, spaceID, action); err != nil {
		return err
	}
	if m.ownerOf(spaceID) == memberUserID {
		return fmt.Errorf("%w: change of the owner role requires an ownership transfer", common.ErrValidation)
	}

	for _, member := range m.store.Members(spaceID) {
		if member.UserID != memberUserID {
			continue
		}
		updated := *member
		updated.Role = role
		_, err := m.store.ApplyLocal(ctx, models.TypeMember, member.ID, spaceID, models.OpUpdate, &updated)
		return err
	}
	return fmt.Errorf("%w: %s is not a member of %s", common.ErrNotFound, memberUserID, spaceID)
}

// TransferOwnership hands the space to another member. The previous owner
// keeps admin capability through an explicit membership record, since the
// implicit owner role moves with the space.
func (m *Manager) TransferOwnership(ctx context.Context, spaceID, newOwnerID string) error {
	if err := m.perm.Authorize(m.userID, spaceID, models.ActionOwn); err != nil {
		return err
	}
	if m.perm.Capability(newOwnerID, spaceID) == models.RoleNone {
		return fmt.Errorf("%w: %s is not a member of %s", common.ErrNotFound, newOwnerID, spaceID)
	}

	item, err := m.store.Get(models.TypeSpace, spaceID)
	if err != nil {
		return err
	}
	space, ok := item.Payload.(*models.Space)
	if !ok {
		return fmt.Errorf("%w: space %s", common.ErrNotFound, spaceID)
	}

	updated := *space
	updated.OwnerID = newOwnerID
	if _, err := m.store.ApplyLocal(ctx, models.TypeSpace, spaceID, spaceID, models.OpUpdate, &updated); err != nil {
		return err
	}

	demoted := &models.Member{
		ID:         uuid.NewString(),
		UserID:     m.userID,
		ResourceID: spaceID,
		SpaceID:    spaceID,
		Role:       models.RoleAdmin,
		JoinedAt:   time.Now().UTC(),
	}
	if _, err := m.store.ApplyLocal(ctx, models.TypeMember, demoted.ID, spaceID, models.OpCreate, demoted); err != nil {
		return err
	}
	m.log.Info(ctx, "ownership transferred", "space_id", spaceID, "new_owner_id", newOwnerID)
	return nil
}

// ExpireInvites deletes invites issued by this user that passed their TTL.
// Returns the number of invites removed.
func (m *Manager) ExpireInvites(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired := 0
	for _, item := range m.store.ListType(models.TypeInvite) {
		invite, ok := item.Payload.(*models.Invite)
		if !ok || invite.InviterID != m.userID || now.Before(invite.ExpiresAt) {
			continue
		}
		if _, err := m.store.ApplyLocal(ctx, models.TypeInvite, invite.ID, invite.SpaceID, models.OpDelete, nil); err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		m.log.Info(ctx, "expired invites removed", "count", expired)
	}
	return expired, nil
}

// rotateKey advances the space key generation, wrapping the new key for
// every remaining member plus this user, and publishes the wrapped copies.
func (m *Manager) rotateKey(ctx context.Context, spaceID string) error {
	recipients := []keyring.Recipient{{UserID: m.userID, PublicKey: m.ring.PublicKey()}}
	for _, member := range m.store.Members(spaceID) {
		pub, err := m.pubkeys.FetchPublicKey(ctx, member.UserID)
		if err != nil {
			return fmt.Errorf("fetch public key for %s: %w", member.UserID, err)
		}
		recipients = append(recipients, keyring.Recipient{UserID: member.UserID, PublicKey: pub})
	}

	newID, wrapped, err := m.ring.Rekey(spaceID, recipients)
	if err != nil {
		return err
	}
	if err := m.publisher.PublishWrappedKeys(ctx, spaceID, wrapped); err != nil {
		return err
	}

	item, err := m.store.Get(models.TypeSpace, spaceID)
	if err != nil {
		return err
	}
	if space, ok := item.Payload.(*models.Space); ok {
		updated := *space
		updated.KeyID = newID
		if _, err := m.store.ApplyLocal(ctx, models.TypeSpace, spaceID, spaceID, models.OpUpdate, &updated); err != nil {
			return err
		}
	}
	m.log.Info(ctx, "space key rotated", "space_id", spaceID, "key_id", newID)
	return nil
}

func (m *Manager) ownerOf(spaceID string) string {
	item, err := m.store.Get(models.TypeSpace, spaceID)
	if err != nil {
		return ""
	}
	if space, ok := item.Payload.(*models.Space); ok {
		return space.OwnerID
	}
	return ""
}
