// Package liveness records the last heartbeat seen for each room.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
)

type Memory struct {
	mu    sync.RWMutex
	stamp map[domain.RoomName]time.Time
}

var _ core.Liveness = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{stamp: make(map[domain.RoomName]time.Time)}
}

func (m *Memory) Touch(_ context.Context, room domain.RoomName, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.stamp[room]; ok && prev.After(at) {
		return nil
	}
	m.stamp[room] = at
	return nil
}

func (m *Memory) LastSeen(_ context.Context, room domain.RoomName) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.stamp[room]
	return at, ok, nil
}

func (m *Memory) Forget(_ context.Context, room domain.RoomName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stamp, room)
	return nil
}
