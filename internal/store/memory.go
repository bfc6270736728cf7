package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
)

// MemoryPersistence is an in-memory Persistence implementation, used for
// ephemeral engine instances and in tests.
type MemoryPersistence struct {
	mu   sync.RWMutex
	envs map[models.ResourceType]map[string]*models.Envelope
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{envs: make(map[models.ResourceType]map[string]*models.Envelope)}
}

func (m *MemoryPersistence) Get(ctx context.Context, typ models.ResourceType, id string) (*models.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.envs[typ][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", common.ErrNotFound, typ, id)
	}
	cp := *env
	return &cp, nil
}

func (m *MemoryPersistence) Put(ctx context.Context, env *models.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.envs[env.Type] == nil {
		m.envs[env.Type] = make(map[string]*models.Envelope)
	}
	cp := *env
	m.envs[env.Type][env.ID] = &cp
	return nil
}

func (m *MemoryPersistence) Delete(ctx context.Context, typ models.ResourceType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.envs[typ], id)
	return nil
}

func (m *MemoryPersistence) ListAll(ctx context.Context, typ models.ResourceType) ([]*models.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Envelope, 0, len(m.envs[typ]))
	for _, env := range m.envs[typ] {
		cp := *env
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryPersistence) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envs = make(map[models.ResourceType]map[string]*models.Envelope)
	return nil
}

func (m *MemoryPersistence) Close() error { return nil }
