package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
)

type pendingChange struct {
	env      *models.Envelope
	attempts int
}

func pendingKey(env *models.Envelope) string {
	return fmt.Sprintf("%s:%d", env.ID, env.Version)
}

// typeRank orders a batch so records that grant access (membership, invites)
// land before the content that depends on them.
func typeRank(typ models.ResourceType) int {
	switch typ {
	case models.TypeUser:
		return 0
	case models.TypeMember:
		return 1
	case models.TypeInvite:
		return 2
	case models.TypeSpace:
		return 3
	case models.TypeBoard:
		return 4
	case models.TypeNote:
		return 5
	default:
		return 6
	}
}

func sortEnvelopes(envs []*models.Envelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		ri, rj := typeRank(envs[i].Type), typeRank(envs[j].Type)
		if ri != rj {
			return ri < rj
		}
		if envs[i].ID != envs[j].ID {
			return envs[i].ID < envs[j].ID
		}
		// Per-resource changes apply in strictly increasing version order.
		return envs[i].Version < envs[j].Version
	})
}

// reconcile applies a remote change batch plus any previously quarantined
// changes. A failure on one change never blocks the rest: the offending
// change is quarantined (or dropped) and processing continues. Only storage
// failures and cancellation abort the pass.
func (s *Syncer) reconcile(ctx context.Context, incoming []*models.Envelope) error {
	envs := make([]*models.Envelope, 0, len(incoming)+len(s.pending))
	for _, p := range s.pending {
		envs = append(envs, p.env)
	}
	envs = append(envs, incoming...)
	sortEnvelopes(envs)

	for _, env := range envs {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.applyRemote(ctx, env)
		switch {
		case err == nil:
			delete(s.pending, pendingKey(env))
		case errors.Is(err, common.ErrStorage) || errors.Is(err, context.Canceled):
			return err
		default:
			s.quarantine(ctx, env, err)
		}
	}
	return nil
}

// applyRemote decrypts, authorizes and applies one remote change.
func (s *Syncer) applyRemote(ctx context.Context, env *models.Envelope) error {
	var payload any
	if !env.Deleted {
		var err error
		payload, err = s.sealer.Open(ctx, env)
		if err != nil {
			return err
		}
	}

	if err := s.authorizeRemote(env, payload); err != nil {
		return err
	}

	applied, err := s.store.ApplyRemote(ctx, env, payload, false)
	if errors.Is(err, common.ErrVersionConflict) {
		return s.resolveConflict(ctx, env, payload)
	}
	if err != nil {
		return err
	}
	if applied {
		s.log.Debug(ctx, "remote change applied",
			"type", string(env.Type), "id", env.ID, "version", env.Version)
	}
	return nil
}

// authorizeRemote is the inbound permission gate. Records that concern the
// user directly (their invites, their membership grants, spaces they own) are
// self-authorizing; everything else requires at least viewer capability on
// the owning space.
func (s *Syncer) authorizeRemote(env *models.Envelope, payload any) error {
	switch p := payload.(type) {
	case *models.Invite:
		if p.InviteeID == s.userID || p.InviterID == s.userID {
			return nil
		}
	case *models.Member:
		if p.UserID == s.userID {
			return nil
		}
	case *models.Space:
		if p.OwnerID == s.userID {
			return nil
		}
	case *models.User:
		return nil
	}
	if env.SpaceID == "" {
		return nil
	}
	return s.perm.Authorize(s.userID, env.SpaceID, models.ActionRead)
}

// resolveConflict applies last-writer-wins between a remote change and a
// pending local dirty edit. A remote deletion always wins; otherwise the
// later modification timestamp does. When the remote side wins, the losing
// local edit is dropped from the outgoing queue.
func (s *Syncer) resolveConflict(ctx context.Context, env *models.Envelope, payload any) error {
	local, err := s.store.Get(env.Type, env.ID)
	if err != nil {
		_, err := s.store.ApplyRemote(ctx, env, payload, true)
		return err
	}

	remoteWins := env.Deleted || !env.ModifiedAt.Before(local.ModifiedAt)
	if !remoteWins {
		s.log.Info(ctx, "conflict: local edit is newer, remote change superseded",
			"type", string(env.Type), "id", env.ID)
		return nil
	}

	if _, err := s.store.ApplyRemote(ctx, env, payload, true); err != nil {
		return err
	}
	s.log.Info(ctx, "conflict resolved in favor of remote",
		"type", string(env.Type), "id", env.ID, "version", env.Version)
	if s.onConflict != nil {
		s.onConflict(env.ID)
	}
	return nil
}

// quarantine isolates one failing remote change. Tampered or unauthorized
// changes are dropped outright; recoverable failures (unknown key
// generation) are retried on following cycles up to the attempt cap.
func (s *Syncer) quarantine(ctx context.Context, env *models.Envelope, cause error) {
	if errors.Is(cause, common.ErrTamperDetected) || errors.Is(cause, common.ErrPermissionDenied) {
		s.log.Warn(ctx, "remote change dropped",
			"type", string(env.Type), "id", env.ID, "version", env.Version, "error", cause)
		delete(s.pending, pendingKey(env))
		return
	}

	key := pendingKey(env)
	p := s.pending[key]
	if p == nil {
		p = &pendingChange{env: env}
		s.pending[key] = p
	}
	p.attempts++
	if p.attempts >= s.cfg.QuarantineAttempts {
		s.log.Warn(ctx, "remote change dropped after repeated failures",
			"type", string(env.Type), "id", env.ID, "version", env.Version,
			"attempts", p.attempts, "error", cause)
		delete(s.pending, key)
		return
	}
	s.log.Warn(ctx, "remote change quarantined",
		"type", string(env.Type), "id", env.ID, "version", env.Version,
		"attempt", p.attempts, "error", cause)
}
