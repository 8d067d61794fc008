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
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

func userKey(username string) string { return "user:" + username }

// Registration is what a client announces on setUser.
type Registration struct {
	Username         string
	ConnectionID     domain.ConnectionID
	DesiredGroupSize int
	RoomHint         domain.RoomName
	AvatarRef        string
}

// Registry is the in-memory identity mirror in front of the durable user store.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*domain.Identity
	byConn map[domain.ConnectionID]string

	store  core.UserStore
	files  core.FileStorage
	writes *writebehind.Scheduler
	loads  singleflight.Group
	now    func() time.Time
}

func NewRegistry(store core.UserStore, files core.FileStorage, writes *writebehind.Scheduler) *Registry {
	return &Registry{
		users:  make(map[string]*domain.Identity),
		byConn: make(map[domain.ConnectionID]string),
		store:  store,
		files:  files,
		writes: writes,
		now:    time.Now,
	}
}

func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// RegisterOrRefresh creates the identity or brings an existing one back online
// under a new connection.
func (r *Registry) RegisterOrRefresh(ctx context.Context, reg Registration) (domain.Identity, error) {
	if err := domain.ValidateUsername(reg.Username); err != nil {
		return domain.Identity{}, err
	}
	if reg.DesiredGroupSize < 0 {
		return domain.Identity{}, domain.ErrInvalidGroupSize
	}
	if _, err := r.Lookup(ctx, reg.Username); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, err
	}

	now := r.now()
	r.mu.Lock()
	id, ok := r.users[reg.Username]
	if !ok {
		id, _ = domain.NewIdentity(reg.Username, reg.ConnectionID, now)
		r.users[reg.Username] = id
		log.Info().Str("module", "app.registry").Str("user", reg.Username).Msg("created new identity")
	} else if id.ConnectionID != reg.ConnectionID {
		if r.byConn[id.ConnectionID] == reg.Username {
			delete(r.byConn, id.ConnectionID)
		}
	}
	id.ConnectionID = reg.ConnectionID
	id.Status = domain.StatusOnline
	id.CurrentRoom = reg.RoomHint
	id.DesiredGroupSize = reg.DesiredGroupSize
	id.LastActiveAt = now
	if reg.AvatarRef != "" {
		id.AvatarRef = reg.AvatarRef
	}
	r.byConn[reg.ConnectionID] = reg.Username
	out := *id
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("user", out.Username).Str("conn", string(out.ConnectionID)).
		Str("room", string(out.CurrentRoom)).Msg("identity online")
	r.persist(out.Username)
	return out, nil
}

func (r *Registry) Lookup(ctx context.Context, username string) (domain.Identity, error) {
	r.mu.RLock()
	id, ok := r.users[username]
	if ok {
		out := *id
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()
	return r.rehydrate(ctx, username, func(ctx context.Context) (*domain.Identity, error) {
		return r.store.FindUser(ctx, username)
	})
}

// LookupByConnection resolves the identity currently bound to conn.
// A connection that has been superseded by a reconnect resolves to nothing.
func (r *Registry) LookupByConnection(ctx context.Context, conn domain.ConnectionID) (domain.Identity, error) {
	r.mu.RLock()
	if name, ok := r.byConn[conn]; ok {
		if id, ok := r.users[name]; ok && id.ConnectionID == conn {
			out := *id
			r.mu.RUnlock()
			return out, nil
		}
	}
	r.mu.RUnlock()

	id, err := r.rehydrate(ctx, "conn:"+string(conn), func(ctx context.Context) (*domain.Identity, error) {
		return r.store.FindUserByConnection(ctx, conn)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	if id.ConnectionID != conn {
		return domain.Identity{}, fmt.Errorf("connection %s: %w", conn, domain.ErrNotFound)
	}
	return id, nil
}

// rehydrate loads a missing identity once per key and installs it in the mirror
// unless a newer copy arrived meanwhile.
func (r *Registry) rehydrate(ctx context.Context, key string, load func(context.Context) (*domain.Identity, error)) (domain.Identity, error) {
	v, err, _ := r.loads.Do(key, func() (any, error) {
		found, err := load(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.users[found.Username]; ok {
			return *cur, nil
		}
		r.users[found.Username] = found
		if found.Online() {
			r.byConn[found.ConnectionID] = found.Username
		}
		log.Debug().Str("module", "app.registry").Str("user", found.Username).Msg("rehydrated identity")
		return *found, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup %s: %w", key, err)
	}
	return v.(domain.Identity), nil
}

// MarkOffline keeps the identity for a grace period so a reconnect can resume it.
func (r *Registry) MarkOffline(ctx context.Context, conn domain.ConnectionID) (domain.Identity, error) {
	return r.updateByConnection(ctx, conn, func(id *domain.Identity) {
		id.Status = domain.StatusOffline
		delete(r.byConn, conn)
	})
}

// Touch records a heartbeat.
func (r *Registry) Touch(ctx context.Context, conn domain.ConnectionID) (domain.Identity, error) {
	return r.updateByConnection(ctx, conn, func(id *domain.Identity) {
		id.Status = domain.StatusOnline
	})
}

func (r *Registry) updateByConnection(ctx context.Context, conn domain.ConnectionID, fn func(*domain.Identity)) (domain.Identity, error) {
	found, err := r.LookupByConnection(ctx, conn)
	if err != nil {
		return domain.Identity{}, err
	}
	out, err := r.update(found.Username, func(id *domain.Identity) error {
		if id.ConnectionID != conn {
			return fmt.Errorf("connection %s: %w", conn, domain.ErrNotFound)
		}
		fn(id)
		id.LastActiveAt = r.now()
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	r.persist(out.Username)
	return out, nil
}

func (r *Registry) SetRoom(ctx context.Context, username string, room domain.RoomName) error {
	return r.mutate(ctx, username, func(id *domain.Identity) error {
		id.CurrentRoom = room
		return nil
	})
}

func (r *Registry) SetGroupSize(ctx context.Context, username string, size int) error {
	if size < 0 {
		return domain.ErrInvalidGroupSize
	}
	return r.mutate(ctx, username, func(id *domain.Identity) error {
		id.DesiredGroupSize = size
		return nil
	})
}

// SetAvatar replaces the avatar ref and returns the previous one.
func (r *Registry) SetAvatar(ctx context.Context, username, ref string) (string, error) {
	var prev string
	err := r.mutate(ctx, username, func(id *domain.Identity) error {
		prev = id.AvatarRef
		id.AvatarRef = ref
		return nil
	})
	return prev, err
}

func (r *Registry) mutate(ctx context.Context, username string, fn func(*domain.Identity) error) error {
	if _, err := r.Lookup(ctx, username); err != nil {
		return err
	}
	if _, err := r.update(username, fn); err != nil {
		return err
	}
	r.persist(username)
	return nil
}

func (r *Registry) update(username string, fn func(*domain.Identity) error) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.users[username]
	if !ok {
		return domain.Identity{}, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	if err := fn(id); err != nil {
		return domain.Identity{}, err
	}
	return *id, nil
}

// Connection returns the live connection of username, if it is online.
func (r *Registry) Connection(username string) (domain.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[username]
	if !ok || !id.Online() {
		return "", false
	}
	return id.ConnectionID, true
}

// Remove hard deletes username from the mirror and the store, then drops its uploaded avatar.
func (r *Registry) Remove(ctx context.Context, username string) error {
	found, err := r.Lookup(ctx, username)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	r.mu.Lock()
	if id, ok := r.users[username]; ok {
		if r.byConn[id.ConnectionID] == username {
			delete(r.byConn, id.ConnectionID)
		}
		delete(r.users, username)
	}
	r.mu.Unlock()

	err = r.writes.Now(ctx, userKey(username), func(ctx context.Context) error {
		if err := r.store.DeleteUser(ctx, username); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove user %s: %w", username, err)
	}
	if found.HasCustomAvatar() && r.files != nil {
		if err := r.files.Delete(ctx, found.AvatarRef); err != nil {
			log.Warn().Str("module", "app.registry").Err(err).Str("user", username).Msg("failed to delete avatar")
		}
	}
	log.Info().Str("module", "app.registry").Str("user", username).Msg("identity removed")
	return nil
}

// Stale lists offline identities idle since before cutoff.
// The mirror wins over the store for identities present in both.
func (r *Registry) Stale(ctx context.Context, cutoff time.Time) ([]domain.Identity, error) {
	return r.collect(ctx, core.UserFilter{Status: domain.StatusOffline, ActiveBefore: cutoff})
}

// PurgeBefore deletes every identity idle since before cutoff, online or not.
func (r *Registry) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	victims, err := r.collect(ctx, core.UserFilter{ActiveBefore: cutoff})
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, id := range victims {
		if err := r.Remove(ctx, id.Username); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (r *Registry) collect(ctx context.Context, filter core.UserFilter) ([]domain.Identity, error) {
	match := func(id domain.Identity) bool {
		if filter.Status != "" && id.Status != filter.Status {
			return false
		}
		return id.LastActiveAt.Before(filter.ActiveBefore)
	}

	r.mu.RLock()
	known := make(map[string]struct{}, len(r.users))
	var out []domain.Identity
	for name, id := range r.users {
		known[name] = struct{}{}
		if match(*id) {
			out = append(out, *id)
		}
	}
	r.mu.RUnlock()

	stored, err := r.store.FindUsers(ctx, filter)
	if err != nil {
		return out, fmt.Errorf("find users: %w", err)
	}
	for _, id := range stored {
		if _, ok := known[id.Username]; !ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Reset wipes every identity from the mirror and the store.
func (r *Registry) Reset(ctx context.Context) error {
	r.writes.CancelPrefix("user:")
	r.mu.Lock()
	r.users = make(map[string]*domain.Identity)
	r.byConn = make(map[domain.ConnectionID]string)
	r.mu.Unlock()
	n, err := r.store.DeleteUsers(ctx, core.UserFilter{})
	if err != nil {
		return fmt.Errorf("reset users: %w", err)
	}
	log.Info().Str("module", "app.registry").Int64("deleted", n).Msg("identities reset")
	return nil
}

func (r *Registry) All() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, len(r.users))
	for _, id := range r.users {
		out = append(out, *id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (r *Registry) persist(username string) {
	r.writes.Schedule(userKey(username), func(ctx context.Context) error {
		r.mu.RLock()
		id, ok := r.users[username]
		var snap domain.Identity
		if ok {
			snap = *id
		}
		r.mu.RUnlock()
		if !ok {
			return nil
		}
		return r.store.UpsertUser(ctx, snap)
	})
}
