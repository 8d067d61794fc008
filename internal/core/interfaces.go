package core

import (
	"context"
	"io"
	"time"

	"github.com/abhimm5/chatapp/internal/domain"
)

// UserFilter narrows find/deleteMany over identities. Zero fields match everything.
type UserFilter struct {
	Status       domain.Status
	ActiveBefore time.Time
}

// UserStore is the durable side of the identity registry.
// Lookups return domain.ErrNotFound on a miss; I/O failures wrap domain.ErrStorageUnavailable.
type UserStore interface {
	FindUser(ctx context.Context, username string) (*domain.Identity, error)
	FindUserByConnection(ctx context.Context, conn domain.ConnectionID) (*domain.Identity, error)
	FindUsers(ctx context.Context, filter UserFilter) ([]domain.Identity, error)
	UpsertUser(ctx context.Context, id domain.Identity) error
	DeleteUser(ctx context.Context, username string) error
	DeleteUsers(ctx context.Context, filter UserFilter) (int64, error)
}

// RoomStore is the durable side of the room directory.
type RoomStore interface {
	FindRoom(ctx context.Context, name domain.RoomName) (*domain.Room, error)
	FindRooms(ctx context.Context) ([]domain.Room, error)
	InsertRoom(ctx context.Context, room domain.Room) error
	UpdateRoom(ctx context.Context, room domain.Room) error
	DeleteRoom(ctx context.Context, name domain.RoomName) error
	DeleteRooms(ctx context.Context) (int64, error)
}

type Store interface {
	UserStore
	RoomStore
	Close(ctx context.Context) error
}

// Liveness keeps the last heartbeat seen for each room.
type Liveness interface {
	Touch(ctx context.Context, room domain.RoomName, at time.Time) error
	LastSeen(ctx context.Context, room domain.RoomName) (time.Time, bool, error)
	Forget(ctx context.Context, room domain.RoomName) error
}

// FileStorage keeps uploaded avatars. Refs are public URL paths.
type FileStorage interface {
	Store(ctx context.Context, ext string, r io.Reader) (ref string, err error)
	Delete(ctx context.Context, ref string) error
}
