package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
)

// MemoryRepository implements CartRefRepository in process memory. It backs
// single-instance deployments without MongoDB and the package tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	refs map[string]domain.CartRef // sessionID -> ref
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		refs: make(map[string]domain.CartRef),
		now:  time.Now,
	}
}

func (m *MemoryRepository) Get(_ context.Context, sessionID string) (*domain.CartRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.refs[sessionID]
	if !ok || m.now().Sub(ref.UpdatedAt) > refTTL {
		return nil, ErrRefNotFound
	}
	return &ref, nil
}

func (m *MemoryRepository) Save(_ context.Context, ref *domain.CartRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref.UpdatedAt = m.now()
	m.refs[ref.SessionID] = *ref
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.refs[sessionID]; !ok {
		return ErrRefNotFound
	}
	delete(m.refs, sessionID)
	return nil
}

func (m *MemoryRepository) DeleteByCartID(_ context.Context, cartID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for sessionID, ref := range m.refs {
		if ref.CartID == cartID {
			delete(m.refs, sessionID)
			deleted++
		}
	}
	return deleted, nil
}
