package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/quillnote/core/internal/engine"
	"github.com/quillnote/core/internal/models"
)

// Invite prompts for an invitee and role and invites them to the working
// space.
func (a *App) Invite(ctx context.Context) error {
	if !a.requireSpace() {
		return nil
	}
	inviteeID, err := getSimpleText(a.reader, "Invitee user ID", os.Stdout)
	if err != nil {
		return err
	}
	roleText, err := getSimpleText(a.reader, "Role (1=viewer, 2=editor, 3=admin)", os.Stdout)
	if err != nil {
		return err
	}
	role, err := strconv.Atoi(roleText)
	if err != nil {
		fmt.Println("Role must be a number between 1 and 3")
		return nil
	}

	invite, err := a.engine.InviteUser(ctx, engine.InviteCmd{
		SpaceID:   a.spaceID,
		InviteeID: inviteeID,
		Role:      models.Role(role),
	})
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Printf("Invite %s sent, expires %s\n", invite.ID, invite.ExpiresAt.Format("2006-01-02"))
	return nil
}

// Accept accepts a pending invite by ID.
func (a *App) Accept(ctx context.Context, inviteID string) error {
	member, err := a.engine.AcceptInvite(ctx, inviteID)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	a.spaceID = member.SpaceID
	fmt.Printf("Joined space %s as %s\n", member.SpaceID, member.Role)
	return nil
}

// Sync triggers a sync cycle immediately.
func (a *App) Sync(ctx context.Context) error {
	if err := a.engine.ForceSync(ctx); err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Sync triggered")
	return nil
}

// Pause suspends background sync.
func (a *App) Pause(ctx context.Context) error {
	if err := a.engine.PauseSync(ctx); err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Sync paused")
	return nil
}

// Resume restores background sync.
func (a *App) Resume(ctx context.Context) error {
	if err := a.engine.ResumeSync(ctx); err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Println("Sync resumed")
	return nil
}

// Status prints the session and sync state.
func (a *App) Status(ctx context.Context) error {
	profile, err := a.engine.Profile(ctx)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Printf("User: %s (%s)\n", profile.User.Username, profile.User.ID)
	fmt.Printf("Spaces: %d, boards: %d\n", len(profile.Spaces), len(profile.Boards))
	fmt.Printf("Sync: %s, pending changes: %d\n", profile.SyncState, profile.PendingChanges)
	if profile.SyncHalted {
		fmt.Println("Sync is halted after repeated failures; 'sync' restarts it")
	}
	return nil
}

// Wipe erases the local cache after confirmation. The account and server-side
// data are untouched; the next sync re-downloads everything.
func (a *App) Wipe(ctx context.Context) error {
	answer, err := getSimpleText(a.reader, "Erase all local data? Type 'yes' to confirm", os.Stdout)
	if err != nil {
		return err
	}
	if answer != "yes" {
		fmt.Println("Aborted")
		return nil
	}
	if err := a.engine.WipeLocalData(ctx); err != nil {
		fmt.Println(err.Error())
		return err
	}
	a.spaceID = ""
	fmt.Println("Local data wiped")
	return nil
}
