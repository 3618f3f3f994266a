package guestcart

import (
	"context"
	"sync"

	"storefront-core/internal/domain"
)

// MemoryRepo keeps guest carts in process memory, in the persisted byte format.
// Used by tests and local runs without Postgres or Redis.
type MemoryRepo struct {
	mu    sync.Mutex
	carts map[string][]byte
}

func NewMemory() *MemoryRepo {
	return &MemoryRepo{carts: make(map[string][]byte)}
}

func (m *MemoryRepo) Load(_ context.Context, guestID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	raw, ok := m.carts[guestID]
	m.mu.Unlock()
	if !ok {
		return []domain.CartLine{}, nil
	}
	return DecodeLines(raw)
}

func (m *MemoryRepo) Save(_ context.Context, guestID string, lines []domain.CartLine) error {
	raw, err := EncodeLines(lines)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.carts[guestID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, guestID string) error {
	m.mu.Lock()
	delete(m.carts, guestID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepo) Ping(context.Context) error { return nil }

// Raw returns the stored bytes for guestID.
func (m *MemoryRepo) Raw(guestID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.carts[guestID]
	return raw, ok
}
