package syncer

import (
	"context"
	"errors"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
)

// push replays queued local changes to the service. Each item is sealed
// fresh at push time so the envelope always reflects the latest local state
// and the current key generation. Acknowledged changes leave the queue;
// rejected ones stay dirty and are settled by the next reconcile pass, which
// sees the remote version they lost to.
func (s *Syncer) push(ctx context.Context) error {
	recs := s.store.Queue().Snapshot(s.cfg.PushBatchSize)
	if len(recs) == 0 {
		return nil
	}

	items := make([]*PushItem, 0, len(recs))
	byChangeID := make(map[string]*models.ChangeRecord, len(recs))
	for _, rec := range recs {
		item, err := s.store.Get(rec.Type, rec.ResourceID)
		if err != nil {
			// The resource vanished underneath its queued change (e.g. a
			// forced remote delete); nothing left to push.
			s.store.Queue().Remove(rec.ID)
			continue
		}
		env, err := s.sealer.Seal(ctx, item, item.Payload)
		if err != nil {
			if errors.Is(err, common.ErrKeyUnavailable) {
				s.log.Warn(ctx, "push deferred, space key not yet available",
					"type", string(rec.Type), "id", rec.ResourceID)
				continue
			}
			return err
		}
		items = append(items, &PushItem{ChangeID: rec.ID, Op: rec.Op, Envelope: env})
		byChangeID[rec.ID] = rec
	}
	if len(items) == 0 {
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.NetTimeout)
	acks, err := s.transport.Push(pctx, items)
	cancel()
	if err != nil {
		return err
	}

	for _, ack := range acks {
		rec, ok := byChangeID[ack.ChangeID]
		if !ok {
			continue
		}
		if !ack.OK {
			s.log.Warn(ctx, "push rejected by service",
				"type", string(rec.Type), "id", rec.ResourceID,
				"version", rec.Version, "reason", ack.Reason)
			continue
		}
		if err := s.store.CommitAck(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
