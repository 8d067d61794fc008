package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

// Match is the room a randomConnect request ended up in.
type Match struct {
	Room    domain.Room
	Created bool
}

type Matchmaker struct {
	Registry *Registry
	Rooms    *RoomManagerImpl
}

func NewMatchmaker(registry *Registry, rooms *RoomManagerImpl) *Matchmaker {
	return &Matchmaker{Registry: registry, Rooms: rooms}
}

// RandomConnect places username into an existing room compatible with size,
// or a new room when none fits. size 0 means no preference.
func (m *Matchmaker) RandomConnect(ctx context.Context, username string, size int) (Match, error) {
	id, err := m.Registry.Lookup(ctx, username)
	if err != nil {
		return Match{}, err
	}
	if id.CurrentRoom != "" && m.Rooms.Count() > 0 {
		return Match{}, domain.ErrAlreadyInRoom
	}
	if size == 1 || size < 0 {
		return Match{}, domain.ErrInvalidGroupSize
	}

	member := domain.NewMember(id)
	match, err := m.commit(ctx, member, size)
	if err != nil {
		return Match{}, err
	}
	if err := m.Registry.SetRoom(ctx, username, match.Room.Name); err != nil {
		return match, fmt.Errorf("bind room: %w", err)
	}
	if err := m.Registry.SetGroupSize(ctx, username, size); err != nil {
		return match, fmt.Errorf("bind group size: %w", err)
	}
	log.Info().Str("module", "app.matchmaker").Str("user", username).Str("room", string(match.Room.Name)).
		Int("size", size).Bool("created", match.Created).Msg("matched")
	return match, nil
}

func (m *Matchmaker) commit(ctx context.Context, member domain.Member, size int) (Match, error) {
	if name, ok := SelectRoom(m.Rooms.List(), member.Username, size); ok {
		add := m.Rooms.AddMember
		if size > 0 {
			add = m.Rooms.AddSized
		}
		room, err := add(ctx, name, member, size)
		if err == nil {
			return Match{Room: room}, nil
		}
		if !lostRace(err) {
			return Match{}, err
		}
		log.Debug().Str("module", "app.matchmaker").Err(err).Str("room", string(name)).Msg("candidate lost, creating room")
	}
	room, err := m.Rooms.CreateRoom(ctx, size, member)
	if err != nil {
		return Match{}, err
	}
	return Match{Room: room, Created: true}, nil
}

func lostRace(err error) bool {
	return errors.Is(err, domain.ErrRoomFull) ||
		errors.Is(err, domain.ErrRoomClosed) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyMember)
}

// SelectRoom picks the best candidate for username out of rooms.
// With a size it wants an exact-capacity room with a free seat, else an elastic
// room holding a single occupant. Without one it takes the least occupied
// open room, oldest first. Empty rooms and rooms username is already in never qualify.
func SelectRoom(rooms []domain.Room, username string, size int) (domain.RoomName, bool) {
	candidates := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if len(r.Members) == 0 || r.Has(username) || r.Full() {
			continue
		}
		candidates = append(candidates, r)
	}

	if size > 0 {
		for _, r := range candidates {
			if r.Capacity == size {
				return r.Name, true
			}
		}
		for _, r := range candidates {
			if r.Elastic() && len(r.Members) == 1 {
				return r.Name, true
			}
		}
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].Members) != len(candidates[j].Members) {
			return len(candidates[i].Members) < len(candidates[j].Members)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0].Name, true
}
