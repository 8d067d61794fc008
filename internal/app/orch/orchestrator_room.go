package orch

import (
	"context"
	"errors"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

// ValidateRoom is read-only.
func (o *Orchestrator) ValidateRoom(ctx context.Context, username string, room domain.RoomName) (domain.Validation, error) {
	if _, err := o.Registry.Lookup(ctx, username); err != nil {
		return domain.ValidationFull, err
	}
	return o.Rooms.Validate(ctx, room, username)
}

// JoinRoom moves username into room. Joining a room it is already in succeeds again.
// A non-nil size replaces the stored group size preference first.
// The previous room is left only once the new membership is committed.
func (o *Orchestrator) JoinRoom(ctx context.Context, username string, room domain.RoomName, size *int) (domain.Room, error) {
	unlock := o.lock(username)
	defer unlock()

	if size != nil {
		if err := o.Registry.SetGroupSize(ctx, username, *size); err != nil {
			return domain.Room{}, err
		}
	}
	id, err := o.Registry.Lookup(ctx, username)
	if err != nil {
		return domain.Room{}, err
	}
	v, err := o.Rooms.Validate(ctx, room, username)
	if err != nil {
		return domain.Room{}, err
	}
	switch v {
	case domain.ValidationAlreadyMember:
		return o.rejoined(ctx, id, room)
	case domain.ValidationFull:
		return domain.Room{}, domain.ErrRoomFull
	}

	snap, err := o.Rooms.AddMember(ctx, room, domain.NewMember(id), id.DesiredGroupSize)
	switch {
	case errors.Is(err, domain.ErrAlreadyMember):
		return o.rejoined(ctx, id, room)
	case errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrRoomClosed):
		return domain.Room{}, domain.ErrRoomFull
	case err != nil:
		return domain.Room{}, err
	}
	if id.CurrentRoom != "" && id.CurrentRoom != room {
		if err := o.leave(ctx, id, id.CurrentRoom, core.ReasonLeft); err != nil {
			return snap, err
		}
	}
	if err := o.Registry.SetRoom(ctx, username, room); err != nil {
		return snap, err
	}

	joined := core.UserJoined{Type: core.EventUserJoined, Username: username, Room: room}
	for _, other := range snap.Others(username) {
		o.sendTo(other, joined)
	}
	o.broadcastRooms()
	o.send(id.ConnectionID, core.RedirectToChat{Type: core.EventRedirectToChat, Room: room})
	log.Info().Str("module", "orch").Str("user", username).Str("room", string(room)).Msg("joined room")
	return snap, nil
}

func (o *Orchestrator) rejoined(ctx context.Context, id domain.Identity, room domain.RoomName) (domain.Room, error) {
	if id.CurrentRoom != room {
		if err := o.Registry.SetRoom(ctx, id.Username, room); err != nil {
			return domain.Room{}, err
		}
	}
	svc, err := o.Rooms.Get(ctx, room)
	if err != nil {
		return domain.Room{}, err
	}
	o.send(id.ConnectionID, core.RedirectToChat{Type: core.EventRedirectToChat, Room: room})
	return svc.Snapshot(), nil
}

// LeaveRoom is a no-op unless the identity behind conn currently sits in room.
func (o *Orchestrator) LeaveRoom(ctx context.Context, conn domain.ConnectionID, room domain.RoomName, reason string) error {
	found, err := o.Registry.LookupByConnection(ctx, conn)
	if err != nil {
		return err
	}
	unlock := o.lock(found.Username)
	defer unlock()

	id, err := o.Registry.Lookup(ctx, found.Username)
	if err != nil {
		return err
	}
	if room == "" || id.CurrentRoom != room {
		return nil
	}
	if err := o.leave(ctx, id, room, reason); err != nil {
		return err
	}
	if _, err := o.Rooms.SweepEmpty(ctx); err != nil {
		log.Warn().Str("module", "orch").Err(err).Msg("empty room sweep failed")
	}
	o.broadcastRooms()
	return nil
}

// leave must run under the identity's lock.
func (o *Orchestrator) leave(ctx context.Context, id domain.Identity, room domain.RoomName, reason string) error {
	if reason == "" {
		reason = core.ReasonLeft
	}
	if svc, err := o.Rooms.Get(ctx, room); err == nil {
		ev := core.UserStatusChange{Type: core.EventUserStatusChange, Username: id.Username, Reason: reason, Room: room}
		for _, other := range svc.Snapshot().Others(id.Username) {
			o.sendTo(other, ev)
		}
	}
	if err := o.Registry.SetRoom(ctx, id.Username, ""); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	_, deleted, err := o.Rooms.RemoveMember(ctx, room, id.Username)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	log.Info().Str("module", "orch").Str("user", id.Username).Str("room", string(room)).Str("reason", reason).
		Bool("room_deleted", deleted).Msg("left room")
	return nil
}

// RandomConnect runs matchmaking for username and tells every member who else is there.
func (o *Orchestrator) RandomConnect(ctx context.Context, username string, size int) (app.Match, error) {
	unlock := o.lock(username)
	defer unlock()

	if size >= 0 {
		if err := o.Registry.SetGroupSize(ctx, username, size); err != nil {
			return app.Match{}, err
		}
	}
	match, err := o.Matcher.RandomConnect(ctx, username, size)
	if err != nil {
		return app.Match{}, err
	}
	if match.Created {
		o.sendTo(username, core.SetNewRoom{Type: core.EventSetNewRoom, Room: match.Room.Name})
	}
	for _, m := range match.Room.Members {
		o.sendTo(m.Username, core.StartChat{
			Type:   core.EventStartChat,
			Others: match.Room.Others(m.Username),
			Room:   match.Room.Name,
		})
	}
	o.broadcastRooms()
	return match, nil
}

// SendIntro announces everyone present in room. A requester who is not in
// the room only learns that it is not there.
func (o *Orchestrator) SendIntro(ctx context.Context, username string, room domain.RoomName) error {
	id, err := o.Registry.Lookup(ctx, username)
	if err != nil {
		return err
	}
	var snap domain.Room
	if room != "" {
		if svc, err := o.Rooms.Get(ctx, room); err == nil {
			snap = svc.Snapshot()
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if !snap.Has(username) {
		o.send(id.ConnectionID, core.NewIntro(username, "is not here"))
		return nil
	}
	for _, present := range snap.Members {
		intro := core.NewIntro(present.Username, "is connected")
		for _, to := range snap.Members {
			o.sendTo(to.Username, intro)
		}
	}
	return nil
}
