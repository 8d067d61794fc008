package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/abhimm5/chatapp/internal/app/writebehind"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const roomAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func roomKey(name domain.RoomName) string { return "room:" + string(name) }

// RoomManagerImpl is the room directory: a mirror of live rooms over the durable room store.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]core.RoomService

	store    core.RoomStore
	writes   *writebehind.Scheduler
	liveness core.Liveness
	loads    singleflight.Group
	newID    func() string
	now      func() time.Time
}

func NewRoomManager(store core.RoomStore, writes *writebehind.Scheduler, liveness core.Liveness) (*RoomManagerImpl, error) {
	gen, err := nanoid.CustomASCII(roomAlphabet, 16)
	if err != nil {
		return nil, fmt.Errorf("room id generator: %w", err)
	}
	return &RoomManagerImpl{
		rooms:    make(map[domain.RoomName]core.RoomService),
		store:    store,
		writes:   writes,
		liveness: liveness,
		newID:    gen,
		now:      time.Now,
	}, nil
}

func (f *RoomManagerImpl) SetClock(now func() time.Time) { f.now = now }

// Load warms the mirror from the store. Stored rooms without members are dropped.
func (f *RoomManagerImpl) Load(ctx context.Context) error {
	rooms, err := f.store.FindRooms(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	loaded := 0
	for _, room := range rooms {
		if len(room.Members) == 0 {
			f.deleteStored(ctx, room.Name)
			continue
		}
		f.mu.Lock()
		if _, ok := f.rooms[room.Name]; !ok {
			f.rooms[room.Name] = core.NewRoomService(room)
			loaded++
		}
		f.mu.Unlock()
	}
	log.Info().Str("module", "app.rooms").Int("rooms", loaded).Msg("mirror warmed")
	return nil
}

func (f *RoomManagerImpl) Get(ctx context.Context, name domain.RoomName) (core.RoomService, error) {
	f.mu.RLock()
	room, ok := f.rooms[name]
	f.mu.RUnlock()
	if ok {
		return room, nil
	}

	v, err, _ := f.loads.Do(string(name), func() (any, error) {
		stored, err := f.store.FindRoom(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(stored.Members) == 0 {
			f.deleteStored(ctx, name)
			return nil, domain.ErrNotFound
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if cur, ok := f.rooms[name]; ok {
			return cur, nil
		}
		svc := core.NewRoomService(*stored)
		f.rooms[name] = svc
		log.Debug().Str("module", "app.rooms").Str("room", string(name)).Msg("rehydrated room")
		return svc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", name, err)
	}
	return v.(core.RoomService), nil
}

// CreateRoom stores a fresh room synchronously before it becomes visible in the mirror.
func (f *RoomManagerImpl) CreateRoom(ctx context.Context, capacity int, founders ...domain.Member) (domain.Room, error) {
	if capacity < 0 {
		return domain.Room{}, domain.ErrInvalidGroupSize
	}
	now := f.now()
	room := domain.Room{
		Name:      f.uniqueName(now),
		Capacity:  capacity,
		Members:   founders,
		CreatedAt: now,
	}
	err := f.writes.Now(ctx, roomKey(room.Name), func(ctx context.Context) error {
		return f.store.InsertRoom(ctx, room)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	svc := core.NewRoomService(room)
	f.mu.Lock()
	f.rooms[room.Name] = svc
	f.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("room", string(room.Name)).Int("capacity", capacity).
		Int("members", len(founders)).Msg("room created")
	return svc.Snapshot(), nil
}

func (f *RoomManagerImpl) uniqueName(now time.Time) domain.RoomName {
	for {
		name := domain.RoomName(fmt.Sprintf("room_%s_%d", f.newID(), now.UnixMilli()))
		f.mu.RLock()
		_, taken := f.rooms[name]
		f.mu.RUnlock()
		if !taken {
			return name
		}
	}
}

// AddMember commits m into the room. Fixing an elastic capacity is written through at once.
func (f *RoomManagerImpl) AddMember(ctx context.Context, name domain.RoomName, m domain.Member, preference int) (domain.Room, error) {
	return f.add(ctx, name, func(svc core.RoomService) (domain.Room, bool, error) {
		return svc.AddMember(m, preference)
	})
}

// AddSized is the matchmaking commit for a sized request. It refuses with
// ErrRoomFull when the room no longer suits size.
func (f *RoomManagerImpl) AddSized(ctx context.Context, name domain.RoomName, m domain.Member, size int) (domain.Room, error) {
	return f.add(ctx, name, func(svc core.RoomService) (domain.Room, bool, error) {
		return svc.AddSized(m, size)
	})
}

func (f *RoomManagerImpl) add(ctx context.Context, name domain.RoomName, join func(core.RoomService) (domain.Room, bool, error)) (domain.Room, error) {
	svc, err := f.Get(ctx, name)
	if err != nil {
		return domain.Room{}, err
	}
	snap, fixed, err := join(svc)
	if err != nil {
		return snap, fmt.Errorf("join %s: %w", name, err)
	}
	if fixed {
		if err := f.writes.Now(ctx, roomKey(name), f.saveTask(name)); err != nil {
			log.Warn().Str("module", "app.rooms").Err(err).Str("room", string(name)).Msg("capacity write failed")
			f.persist(name)
		}
		return snap, nil
	}
	f.persist(name)
	return snap, nil
}

// RemoveMember drops username. deleted reports that the room emptied and is gone.
func (f *RoomManagerImpl) RemoveMember(ctx context.Context, name domain.RoomName, username string) (domain.Room, bool, error) {
	svc, err := f.Get(ctx, name)
	if err != nil {
		return domain.Room{}, false, err
	}
	snap, removed := svc.RemoveMember(username)
	if !removed {
		return snap, false, nil
	}
	if len(snap.Members) == 0 {
		if err := f.deleteRoom(ctx, name, svc); err != nil {
			return snap, true, err
		}
		return snap, true, nil
	}
	f.persist(name)
	return snap, false, nil
}

func (f *RoomManagerImpl) Validate(ctx context.Context, name domain.RoomName, username string) (domain.Validation, error) {
	svc, err := f.Get(ctx, name)
	if err != nil {
		return domain.ValidationFull, err
	}
	return svc.Validate(username), nil
}

// List returns open rooms ordered by creation time.
func (f *RoomManagerImpl) List() []domain.Room {
	f.mu.RLock()
	out := make([]domain.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		if r.Closed() {
			continue
		}
		out = append(out, r.Snapshot())
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (f *RoomManagerImpl) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}

// SweepEmpty deletes every room without members, in the mirror and in the store.
func (f *RoomManagerImpl) SweepEmpty(ctx context.Context) (int, error) {
	f.mu.RLock()
	candidates := make(map[domain.RoomName]core.RoomService, len(f.rooms))
	for name, r := range f.rooms {
		candidates[name] = r
	}
	f.mu.RUnlock()

	var errs []error
	swept := 0
	for name, svc := range candidates {
		if !svc.CloseIfEmpty() {
			continue
		}
		if err := f.deleteRoom(ctx, name, svc); err != nil {
			errs = append(errs, err)
			continue
		}
		swept++
	}

	stored, err := f.store.FindRooms(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep rooms: %w", err))
	}
	for _, room := range stored {
		if len(room.Members) > 0 {
			continue
		}
		f.mu.RLock()
		_, live := f.rooms[room.Name]
		f.mu.RUnlock()
		if live {
			continue
		}
		if f.deleteStored(ctx, room.Name) {
			swept++
		}
	}
	if swept > 0 {
		log.Info().Str("module", "app.rooms").Int("rooms", swept).Msg("swept empty rooms")
	}
	return swept, errors.Join(errs...)
}

func (f *RoomManagerImpl) Reset(ctx context.Context) error {
	f.writes.CancelPrefix("room:")
	f.mu.Lock()
	old := f.rooms
	f.rooms = make(map[domain.RoomName]core.RoomService)
	f.mu.Unlock()
	for name, svc := range old {
		svc.Close()
		f.forget(ctx, name)
	}
	n, err := f.store.DeleteRooms(ctx)
	if err != nil {
		return fmt.Errorf("reset rooms: %w", err)
	}
	log.Info().Str("module", "app.rooms").Int64("deleted", n).Msg("rooms reset")
	return nil
}

// Heartbeat stamps the room as alive.
func (f *RoomManagerImpl) Heartbeat(ctx context.Context, name domain.RoomName) error {
	if _, err := f.Get(ctx, name); err != nil {
		return err
	}
	return f.liveness.Touch(ctx, name, f.now())
}

func (f *RoomManagerImpl) LastHeartbeat(ctx context.Context, name domain.RoomName) (time.Time, bool, error) {
	return f.liveness.LastSeen(ctx, name)
}

func (f *RoomManagerImpl) deleteRoom(ctx context.Context, name domain.RoomName, svc core.RoomService) error {
	f.mu.Lock()
	if cur, ok := f.rooms[name]; ok && cur == svc {
		delete(f.rooms, name)
	}
	f.mu.Unlock()

	err := f.writes.Now(ctx, roomKey(name), func(ctx context.Context) error {
		if err := f.store.DeleteRoom(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	f.forget(ctx, name)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", name, err)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room deleted")
	return nil
}

func (f *RoomManagerImpl) deleteStored(ctx context.Context, name domain.RoomName) bool {
	err := f.writes.Now(ctx, roomKey(name), func(ctx context.Context) error {
		return f.store.DeleteRoom(ctx, name)
	})
	f.forget(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("module", "app.rooms").Err(err).Str("room", string(name)).Msg("failed to delete stored room")
		return false
	}
	return err == nil
}

func (f *RoomManagerImpl) forget(ctx context.Context, name domain.RoomName) {
	if err := f.liveness.Forget(ctx, name); err != nil {
		log.Warn().Str("module", "app.rooms").Err(err).Str("room", string(name)).Msg("failed to drop liveness")
	}
}

func (f *RoomManagerImpl) persist(name domain.RoomName) {
	f.writes.Schedule(roomKey(name), f.saveTask(name))
}

// saveTask writes the mirror state of the room as of execution time.
func (f *RoomManagerImpl) saveTask(name domain.RoomName) writebehind.Task {
	return func(ctx context.Context) error {
		f.mu.RLock()
		svc, ok := f.rooms[name]
		f.mu.RUnlock()
		if !ok || svc.Closed() {
			return nil
		}
		return f.store.UpdateRoom(ctx, svc.Snapshot())
	}
}
