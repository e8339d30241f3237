// Package store persists rooms for the relay.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrRoomNotFound is returned for unknown room ids.
var ErrRoomNotFound = errors.New("store: room not found")

// Room is a persisted room and its latest document.
type Room struct {
	ID        string
	Code      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is implemented by Memory and Postgres.
type Store interface {
	// Create inserts an empty room.
	Create(ctx context.Context, id string) (Room, error)
	Get(ctx context.Context, id string) (Room, error)
	// SaveCode replaces the room's document.
	SaveCode(ctx context.Context, id, code string) error
	Close()
}
