package engine

import (
	"context"
	"fmt"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
)

// InviteCmd invites another user into a space.
type InviteCmd struct {
	SpaceID   string      `validate:"required"`
	InviteeID string      `validate:"required"`
	Role      models.Role `validate:"min=1,max=3"`
}

// InviteUser wraps the space key for the invitee and queues the invite.
func (e *Engine) InviteUser(ctx context.Context, cmd InviteCmd) (*models.Invite, error) {
	if _, err := e.session(); err != nil {
		return nil, err
	}
	if err := e.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return e.collab.Invite(ctx, cmd.SpaceID, cmd.InviteeID, cmd.Role)
}

// AcceptInvite consumes an invite addressed to this user and joins the space.
func (e *Engine) AcceptInvite(ctx context.Context, inviteID string) (*models.Member, error) {
	if _, err := e.session(); err != nil {
		return nil, err
	}
	member, err := e.collab.Accept(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	// Pull the space content we could not read before.
	e.syncer.TriggerSync()
	return member, nil
}

// RevokeMember removes a member from a space and rotates its key.
func (e *Engine) RevokeMember(ctx context.Context, spaceID, userID string) error {
	if _, err := e.session(); err != nil {
		return err
	}
	return e.collab.Revoke(ctx, spaceID, userID)
}

// ChangeMemberRole updates a member's role on a space.
func (e *Engine) ChangeMemberRole(ctx context.Context, spaceID, userID string, role models.Role) error {
	if _, err := e.session(); err != nil {
		return err
	}
	return e.collab.ChangeRole(ctx, spaceID, userID, role)
}

// TransferOwnership hands a space to another member.
func (e *Engine) TransferOwnership(ctx context.Context, spaceID, newOwnerID string) error {
	if _, err := e.session(); err != nil {
		return err
	}
	return e.collab.TransferOwnership(ctx, spaceID, newOwnerID)
}

// ForceSync requests an immediate sync cycle, cancelling one in flight.
func (e *Engine) ForceSync(ctx context.Context) error {
	if _, err := e.session(); err != nil {
		return err
	}
	e.syncer.TriggerSync()
	return nil
}

// PauseSync stops new sync cycles; local operations keep queueing.
func (e *Engine) PauseSync(ctx context.Context) error {
	if _, err := e.session(); err != nil {
		return err
	}
	e.syncer.Pause()
	return nil
}

// ResumeSync re-enables sync cycles and clears a halted state.
func (e *Engine) ResumeSync(ctx context.Context) error {
	if _, err := e.session(); err != nil {
		return err
	}
	e.syncer.Resume()
	return nil
}

// Profile is a snapshot of the logged-in user's world for UI consumption.
type Profile struct {
	User           *models.User
	Spaces         []*models.Space
	Boards         []*models.Board
	SyncState      string
	SyncHalted     bool
	PendingChanges int
}

// Profile returns the current profile snapshot.
func (e *Engine) Profile(ctx context.Context) (*Profile, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}

	p := &Profile{
		User:           user,
		SyncState:      e.syncer.State().String(),
		SyncHalted:     e.syncer.Halted(),
		PendingChanges: e.store.Queue().Len(),
	}
	for _, item := range e.store.ListType(models.TypeSpace) {
		if space, ok := item.Payload.(*models.Space); ok {
			if e.perm.Capability(user.ID, space.ID) != models.RoleNone {
				p.Spaces = append(p.Spaces, space)
			}
		}
	}
	for _, item := range e.store.ListType(models.TypeBoard) {
		if board, ok := item.Payload.(*models.Board); ok {
			if e.perm.Capability(user.ID, board.ID) != models.RoleNone {
				p.Boards = append(p.Boards, board)
			}
		}
	}
	return p, nil
}

// WipeLocalData erases every locally cached item and the search index. The
// session and key material survive; the next sync cycle re-downloads the
// profile from the service.
func (e *Engine) WipeLocalData(ctx context.Context) error {
	if _, err := e.session(); err != nil {
		return err
	}

	e.syncer.Pause()
	defer e.syncer.Resume()

	if err := e.store.WipeLocal(ctx); err != nil {
		return err
	}
	e.index.Rebuild(nil)
	e.syncer.SetCursor("")
	e.log.Info(ctx, "local data wiped")
	return nil
}
