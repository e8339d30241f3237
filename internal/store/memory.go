package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory keeps rooms in a map. Contents are lost on restart.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Room
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Room), now: time.Now}
}

func (m *Memory) Create(_ context.Context, id string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return Room{}, fmt.Errorf("store: room %q already exists", id)
	}
	now := m.now()
	r := Room{ID: id, CreatedAt: now, UpdatedAt: now}
	m.rooms[id] = r
	return r, nil
}

func (m *Memory) Get(_ context.Context, id string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return r, nil
}

func (m *Memory) SaveCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	r.Code = code
	r.UpdatedAt = m.now()
	m.rooms[id] = r
	return nil
}

func (m *Memory) Close() {}
