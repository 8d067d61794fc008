// Package orch coordinates identities, rooms and client notifications.
package orch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const DefaultImageDelay = 2 * time.Second

// Orchestrator is the session coordinator. Flows touching one identity are
// serialized per username; message relay never takes that lock.
type Orchestrator struct {
	Registry   *app.Registry
	Rooms      *app.RoomManagerImpl
	Matcher    *app.Matchmaker
	Notifier   core.Notifier
	Files      core.FileStorage
	Policy     app.Policy
	ImageDelay time.Duration

	locks  core.KeyedMutex
	timers conc.WaitGroup
}

func (o *Orchestrator) lock(username string) func() {
	return o.locks.Lock(username)
}

// Register handles setUser. CurrentRoom ends up as the room that actually
// holds the identity: the hint if it is still a member there, else the room
// it was in before the reconnect, else none and the client has to join again.
func (o *Orchestrator) Register(ctx context.Context, reg app.Registration) (domain.Identity, error) {
	unlock := o.lock(reg.Username)
	defer unlock()

	prev, err := o.Registry.Lookup(ctx, reg.Username)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, err
	}
	id, err := o.Registry.RegisterOrRefresh(ctx, reg)
	if err != nil {
		return domain.Identity{}, err
	}
	if held := o.heldRoom(ctx, id.Username, id.CurrentRoom, prev.CurrentRoom); held != id.CurrentRoom {
		log.Info().Str("module", "orch").Str("user", id.Username).Str("hint", string(id.CurrentRoom)).
			Str("room", string(held)).Msg("room hint replaced")
		if err := o.Registry.SetRoom(ctx, id.Username, held); err != nil {
			return domain.Identity{}, err
		}
		id.CurrentRoom = held
	}
	o.send(id.ConnectionID, core.NewRoomList(o.Rooms.List()))
	return id, nil
}

// heldRoom returns the first candidate that still counts username as a member.
func (o *Orchestrator) heldRoom(ctx context.Context, username string, candidates ...domain.RoomName) domain.RoomName {
	for _, room := range candidates {
		if room == "" {
			continue
		}
		if v, err := o.Rooms.Validate(ctx, room, username); err == nil && v == domain.ValidationAlreadyMember {
			return room
		}
	}
	return ""
}

// Disconnect only marks the identity offline. The expiry sweeper evicts it
// if it does not come back within the idle period.
func (o *Orchestrator) Disconnect(ctx context.Context, conn domain.ConnectionID) error {
	id, err := o.Registry.MarkOffline(ctx, conn)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	log.Info().Str("module", "orch").Str("user", id.Username).Str("conn", string(conn)).Msg("identity offline")
	return nil
}

func (o *Orchestrator) Heartbeat(ctx context.Context, conn domain.ConnectionID, room domain.RoomName) error {
	if _, err := o.Registry.Touch(ctx, conn); err != nil {
		return err
	}
	if room == "" {
		return nil
	}
	if err := o.Rooms.Heartbeat(ctx, room); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (o *Orchestrator) ListRooms() []domain.Room {
	return o.Rooms.List()
}

// RemoveUser leaves the current room, then hard deletes the identity.
func (o *Orchestrator) RemoveUser(ctx context.Context, username string) error {
	unlock := o.lock(username)
	defer unlock()

	id, err := o.Registry.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if id.CurrentRoom != "" {
		if err := o.leave(ctx, id, id.CurrentRoom, core.ReasonLeft); err != nil {
			return err
		}
	}
	if err := o.Registry.Remove(ctx, username); err != nil {
		return err
	}
	o.broadcastRooms()
	return nil
}

// DataClean wipes every identity and room.
func (o *Orchestrator) DataClean(ctx context.Context) error {
	if err := o.Registry.Reset(ctx); err != nil {
		return err
	}
	if err := o.Rooms.Reset(ctx); err != nil {
		return err
	}
	log.Warn().Str("module", "orch").Msg("all data cleaned")
	o.broadcastRooms()
	return nil
}

// SetAvatar stores an uploaded image and points username at it.
func (o *Orchestrator) SetAvatar(ctx context.Context, username, ext string, r io.Reader) (string, error) {
	if o.Files == nil {
		return "", fmt.Errorf("avatar upload: %w", domain.ErrStorageUnavailable)
	}
	unlock := o.lock(username)
	defer unlock()

	if _, err := o.Registry.Lookup(ctx, username); err != nil {
		return "", err
	}
	ref, err := o.Files.Store(ctx, ext, r)
	if err != nil {
		return "", err
	}
	prev, err := o.Registry.SetAvatar(ctx, username, ref)
	if err != nil {
		_ = o.Files.Delete(ctx, ref)
		return "", err
	}
	if prev != "" && prev != domain.DefaultAvatar && prev != ref {
		if err := o.Files.Delete(ctx, prev); err != nil {
			log.Warn().Str("module", "orch").Err(err).Str("ref", prev).Msg("failed to delete old avatar")
		}
	}
	return ref, nil
}

// Wait blocks until delayed deliveries have run.
func (o *Orchestrator) Wait() {
	if r := o.timers.WaitAndRecover(); r != nil {
		log.Error().Str("module", "orch").Str("panic", r.String()).Msg("timer panicked")
	}
}

func (o *Orchestrator) send(conn domain.ConnectionID, event any) {
	if conn == "" {
		return
	}
	if err := o.Notifier.Send(conn, event); err != nil {
		log.Debug().Str("module", "orch").Err(err).Str("conn", string(conn)).Msg("send failed")
	}
}

func (o *Orchestrator) sendTo(username string, event any) {
	if conn, ok := o.Registry.Connection(username); ok {
		o.send(conn, event)
	}
}

func (o *Orchestrator) broadcastRooms() {
	o.Notifier.Broadcast(core.NewRoomList(o.Rooms.List()))
}
