package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/models"
)

const lockStripes = 64

// Item is the latest known state of one resource plus its sync metadata.
type Item struct {
	ID         string
	Type       models.ResourceType
	SpaceID    string
	Version    int64
	Dirty      bool
	Deleted    bool
	ModifiedAt time.Time

	// Payload is the decrypted payload struct (*models.Note etc.). It is nil
	// when the item could not be decrypted yet (stale key generation).
	Payload any
}

// Indexer receives plaintext note updates as the store applies changes, so a
// derived search index stays consistent. Calls happen under the resource's
// critical section.
type Indexer interface {
	UpsertNote(note *models.Note)
	DeleteNote(id string)
}

// Store holds the authoritative in-memory model. Mutations take a
// resource-scoped exclusive critical section (striped by id) so unrelated
// resources stay concurrently accessible; reads take the shared map lock
// only.
type Store struct {
	mu      sync.RWMutex
	items   map[models.ResourceType]map[string]*Item
	byID    map[string]*Item
	members map[string]map[string]*models.Member // resource id -> user id -> member

	stripes [lockStripes]sync.Mutex

	queue   *OutgoingQueue
	persist Persistence
	sealer  *Sealer
	index   Indexer
	log     logging.Logger
}

// New constructs a store over the given persistence and sealer. index may be
// nil when no search index is attached.
func New(persist Persistence, sealer *Sealer, index Indexer, log logging.Logger) *Store {
	return &Store{
		items:   make(map[models.ResourceType]map[string]*Item),
		byID:    make(map[string]*Item),
		members: make(map[string]map[string]*models.Member),
		queue:   NewOutgoingQueue(),
		persist: persist,
		sealer:  sealer,
		index:   index,
		log:     log,
	}
}

// Queue exposes the outgoing change log to the sync engine.
func (s *Store) Queue() *OutgoingQueue { return s.queue }

func (s *Store) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.stripes[h.Sum32()%lockStripes]
}

// Get returns the item, including tombstones. Callers that must not see
// deleted items check Item.Deleted.
func (s *Store) Get(typ models.ResourceType, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[typ][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", common.ErrNotFound, typ, id)
	}
	return item, nil
}

// ListType returns all live (non-tombstoned) items of a type.
func (s *Store) ListType(typ models.ResourceType) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Item, 0, len(s.items[typ]))
	for _, item := range s.items[typ] {
		if !item.Deleted {
			out = append(out, item)
		}
	}
	return out
}

// ApplyLocal applies a caller-originated mutation: the version increments,
// the dirty flag is set, the sealed envelope is persisted, and the change is
// queued for push. Deletions tombstone the item; it is purged only once the
// remote side acknowledges the delete. On any error there is no partial
// effect.
func (s *Store) ApplyLocal(
	ctx context.Context,
	typ models.ResourceType, id, spaceID string,
	op models.Op, payload any,
) (*Item, error) {
	lock := s.stripe(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing := s.byID[id]
	s.mu.RUnlock()

	now := time.Now().UTC()
	item := &Item{
		ID:         id,
		Type:       typ,
		SpaceID:    spaceID,
		Version:    1,
		Dirty:      true,
		ModifiedAt: now,
		Payload:    payload,
	}
	if existing != nil {
		item.Version = existing.Version + 1
		if op == models.OpDelete {
			item.Payload = existing.Payload
		}
	} else if op == models.OpDelete {
		return nil, fmt.Errorf("%w: cannot delete %s %s", common.ErrNotFound, typ, id)
	}
	item.Deleted = op == models.OpDelete

	env, err := s.sealer.Seal(ctx, item, item.Payload)
	if err != nil {
		return nil, err
	}
	env.Dirty = true
	if err := s.persist.Put(ctx, env); err != nil {
		return nil, err
	}

	s.commit(item)
	s.queue.Push(&models.ChangeRecord{
		ID:         ulid.Make().String(),
		ResourceID: id,
		Type:       typ,
		Op:         op,
		Version:    item.Version,
		Origin:     models.OriginLocal,
		ModifiedAt: now,
	})
	return item, nil
}

// ApplyRemote applies a change received from the remote service. Stale
// versions are idempotent no-ops. If a local dirty edit is pending and force
// is false, common.ErrVersionConflict is returned and nothing changes; the
// reconciler then decides the winner and either re-applies with force (which
// also discards the pending local change) or skips the remote change.
func (s *Store) ApplyRemote(ctx context.Context, env *models.Envelope, payload any, force bool) (bool, error) {
	lock := s.stripe(env.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing := s.byID[env.ID]
	s.mu.RUnlock()

	if existing != nil && !force {
		if s.queue.Pending(env.ID) {
			return false, fmt.Errorf("%w: %s has a pending local edit", common.ErrVersionConflict, env.ID)
		}
		if env.Version <= existing.Version {
			return false, nil
		}
	}

	if env.Deleted {
		// The remote side already reflects the delete; purge outright.
		if err := s.persist.Delete(ctx, env.Type, env.ID); err != nil {
			return false, err
		}
		if force {
			s.queue.DropResource(env.ID)
		}
		s.remove(env.Type, env.ID)
		return true, nil
	}

	if err := s.persist.Put(ctx, env); err != nil {
		return false, err
	}

	item := &Item{
		ID:         env.ID,
		Type:       env.Type,
		SpaceID:    env.SpaceID,
		Version:    env.Version,
		ModifiedAt: env.ModifiedAt,
		Payload:    payload,
	}
	if force {
		s.queue.DropResource(env.ID)
	}
	s.commit(item)
	return true, nil
}

// CommitAck clears the dirty flag after the remote service acknowledged the
// pushed change, and purges acknowledged tombstones.
func (s *Store) CommitAck(ctx context.Context, rec *models.ChangeRecord) error {
	lock := s.stripe(rec.ResourceID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	item := s.byID[rec.ResourceID]
	s.mu.RUnlock()

	s.queue.Remove(rec.ID)
	if item == nil {
		return nil
	}

	// A newer local edit may have arrived while the push was in flight; its
	// own change record is still queued, so the item stays dirty.
	if item.Version != rec.Version {
		return nil
	}

	if item.Deleted {
		if err := s.persist.Delete(ctx, item.Type, item.ID); err != nil {
			return err
		}
		s.remove(item.Type, item.ID)
		return nil
	}

	env, err := s.persist.Get(ctx, item.Type, item.ID)
	if err == nil {
		env.Dirty = false
		if err := s.persist.Put(ctx, env); err != nil {
			return err
		}
	}

	s.mu.Lock()
	item.Dirty = false
	s.mu.Unlock()
	return nil
}

// Load rebuilds the in-memory model from persistence at startup. Items whose
// key generation is not locally known are kept encrypted-only (nil payload)
// and a key re-fetch is queued by the keyring; tampered records are skipped.
// Dirty envelopes re-enter the outgoing queue.
func (s *Store) Load(ctx context.Context) error {
	order := []models.ResourceType{
		models.TypeUser, models.TypeSpace, models.TypeBoard,
		models.TypeMember, models.TypeNote, models.TypeFile, models.TypeInvite,
	}
	for _, typ := range order {
		envs, err := s.persist.ListAll(ctx, typ)
		if err != nil {
			return err
		}
		for _, env := range envs {
			payload, err := s.sealer.Open(ctx, env)
			if err != nil {
				s.log.Warn(ctx, "could not open persisted item",
					"type", string(env.Type), "id", env.ID, "error", err)
				payload = nil
			}
			item := &Item{
				ID:         env.ID,
				Type:       env.Type,
				SpaceID:    env.SpaceID,
				Version:    env.Version,
				Dirty:      env.Dirty,
				Deleted:    env.Deleted,
				ModifiedAt: env.ModifiedAt,
				Payload:    payload,
			}
			s.commit(item)
			if env.Dirty {
				op := models.OpUpdate
				if env.Deleted {
					op = models.OpDelete
				}
				s.queue.Push(&models.ChangeRecord{
					ID:         ulid.Make().String(),
					ResourceID: env.ID,
					Type:       env.Type,
					Op:         op,
					Version:    env.Version,
					Origin:     models.OriginLocal,
					ModifiedAt: env.ModifiedAt,
				})
			}
		}
	}
	return nil
}

// commit installs an item into the maps and keeps the derived member and
// search indexes in step.
func (s *Store) commit(item *Item) {
	s.mu.Lock()
	if s.items[item.Type] == nil {
		s.items[item.Type] = make(map[string]*Item)
	}
	s.items[item.Type][item.ID] = item
	s.byID[item.ID] = item

	if member, ok := item.Payload.(*models.Member); ok && !item.Deleted {
		if s.members[member.ResourceID] == nil {
			s.members[member.ResourceID] = make(map[string]*models.Member)
		}
		s.members[member.ResourceID][member.UserID] = member
	}
	if member, ok := item.Payload.(*models.Member); ok && item.Deleted {
		delete(s.members[member.ResourceID], member.UserID)
	}
	s.mu.Unlock()

	if s.index != nil {
		if note, ok := item.Payload.(*models.Note); ok {
			if item.Deleted {
				s.index.DeleteNote(item.ID)
			} else {
				s.index.UpsertNote(note)
			}
		}
	}
}

// remove purges an item entirely.
func (s *Store) remove(typ models.ResourceType, id string) {
	s.mu.Lock()
	item := s.byID[id]
	delete(s.items[typ], id)
	delete(s.byID, id)
	if item != nil {
		if member, ok := item.Payload.(*models.Member); ok {
			delete(s.members[member.ResourceID], member.UserID)
		}
	}
	s.mu.Unlock()

	if s.index != nil && typ == models.TypeNote {
		s.index.DeleteNote(id)
	}
}

// Members returns the membership records of a resource.
func (s *Store) Members(resourceID string) []*models.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Member, 0, len(s.members[resourceID]))
	for _, m := range s.members[resourceID] {
		out = append(out, m)
	}
	return out
}

// Lineage implements access.Directory: the resource id followed by its
// ancestors up to the owning space, traversed by id lookup.
func (s *Store) Lineage(resourceID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.byID[resourceID]
	if !ok {
		return []string{resourceID}
	}
	switch payload := item.Payload.(type) {
	case *models.Note:
		lineage := append([]string{resourceID}, payload.BoardIDs...)
		return append(lineage, payload.SpaceID)
	case *models.Board:
		return []string{resourceID, payload.SpaceID}
	case *models.File:
		note, ok := s.byID[payload.NoteID]
		if ok {
			if n, ok := note.Payload.(*models.Note); ok {
				lineage := append([]string{resourceID, payload.NoteID}, n.BoardIDs...)
				return append(lineage, n.SpaceID)
			}
		}
		return []string{resourceID, payload.SpaceID}
	default:
		return []string{resourceID}
	}
}

// RoleOf implements access.Directory: direct membership grants, plus the
// implicit owner role of a space's owner.
func (s *Store) RoleOf(userID, resourceID string) models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := models.RoleNone
	if m, ok := s.members[resourceID][userID]; ok {
		best = m.Role
	}
	if item, ok := s.byID[resourceID]; ok {
		if space, ok := item.Payload.(*models.Space); ok && space.OwnerID == userID {
			best = models.RoleOwner
		}
	}
	return best
}

// WipeLocal clears the in-memory model and removes all persisted envelopes.
func (s *Store) WipeLocal(ctx context.Context) error {
	if err := s.persist.DeleteAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.items = make(map[models.ResourceType]map[string]*Item)
	s.byID = make(map[string]*Item)
	s.members = make(map[string]map[string]*models.Member)
	s.mu.Unlock()
	return nil
}
