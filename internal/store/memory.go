package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/paygate/internal/payment"
)

// Memory is the default volatile store.
type Memory struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]payment.Payment
	byKey map[string]uuid.UUID
}

func NewMemory() *Memory {
	return &Memory{
		byID:  make(map[uuid.UUID]payment.Payment),
		byKey: make(map[string]uuid.UUID),
	}
}

func (m *Memory) Save(_ context.Context, p payment.Payment) error {
	if err := checkPersistable(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	if p.IdempotencyKey != "" {
		if _, taken := m.byKey[p.IdempotencyKey]; !taken {
			m.byKey[p.IdempotencyKey] = p.ID
		}
	}
	return nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (payment.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return payment.Payment{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) FindByIdempotencyKey(_ context.Context, key string) (payment.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return payment.Payment{}, ErrNotFound
	}
	p, ok := m.byID[id]
	if !ok {
		return payment.Payment{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Close() error { return nil }
