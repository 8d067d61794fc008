package core

import (
	"slices"
	"sync"

	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// Capacity and membership are checked and changed under one lock,
// so a room never holds more members than its capacity.
type roomImpl struct {
	mu     sync.RWMutex
	room   domain.Room
	closed bool
}

func NewRoomService(room domain.Room) RoomService {
	room.Members = slices.Clone(room.Members)
	return &roomImpl{room: room}
}

func (r *roomImpl) Name() domain.RoomName { return r.room.Name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.room.Members)
}

func (r *roomImpl) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *roomImpl) Snapshot() domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *roomImpl) snapshotLocked() domain.Room {
	snap := r.room
	snap.Members = slices.Clone(r.room.Members)
	return snap
}

func (r *roomImpl) AddMember(m domain.Member, preference int) (domain.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.snapshotLocked(), false, domain.ErrRoomClosed
	}
	if r.room.Has(m.Username) {
		return r.snapshotLocked(), false, domain.ErrAlreadyMember
	}
	if r.room.Full() {
		return r.snapshotLocked(), false, domain.ErrRoomFull
	}
	fixed := false
	if r.room.Elastic() && preference > len(r.room.Members) {
		r.room.Capacity = preference
		fixed = true
	}
	r.room.Members = append(r.room.Members, m)
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("user", m.Username).
		Int("members", len(r.room.Members)).Int("capacity", r.room.Capacity).Msg("member added")
	return r.snapshotLocked(), fixed, nil
}

func (r *roomImpl) AddSized(m domain.Member, size int) (domain.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.snapshotLocked(), false, domain.ErrRoomClosed
	}
	if r.room.Has(m.Username) {
		return r.snapshotLocked(), false, domain.ErrAlreadyMember
	}
	fits := r.room.Capacity == size && !r.room.Full()
	fixes := r.room.Elastic() && len(r.room.Members) == 1
	if !fits && !fixes {
		return r.snapshotLocked(), false, domain.ErrRoomFull
	}
	if fixes {
		r.room.Capacity = size
	}
	r.room.Members = append(r.room.Members, m)
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("user", m.Username).
		Int("members", len(r.room.Members)).Int("capacity", r.room.Capacity).Msg("member matched")
	return r.snapshotLocked(), fixes, nil
}

func (r *roomImpl) RemoveMember(username string) (domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.room.Members, func(m domain.Member) bool { return m.Username == username })
	if idx < 0 {
		return r.snapshotLocked(), false
	}
	r.room.Members = slices.Delete(r.room.Members, idx, idx+1)
	if len(r.room.Members) == 0 {
		r.closed = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("user", username).
		Int("members", len(r.room.Members)).Msg("member removed")
	return r.snapshotLocked(), true
}

func (r *roomImpl) Validate(username string) domain.Validation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.room.Has(username) {
		return domain.ValidationAlreadyMember
	}
	if r.closed || r.room.Full() {
		return domain.ValidationFull
	}
	return domain.ValidationJoinable
}

func (r *roomImpl) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.room.Members) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *roomImpl) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
