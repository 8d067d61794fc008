package core

import "github.com/abhimm5/chatapp/internal/domain"

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []domain.Member
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	Username  string `json:"username"`
	AvatarRef string `json:"profilePic"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	Snapshot() domain.Room
	MemberCount() int
	Closed() bool

	// AddMember appends m unless the room is full, closed or already holds m.
	// An elastic room adopts preference as its capacity when it still fits;
	// fixed reports whether that happened.
	AddMember(m domain.Member, preference int) (snap domain.Room, fixed bool, err error)
	// AddSized commits a sized randomConnect request: an exact-capacity room
	// with a free seat, or an elastic room that still holds a single member,
	// which then takes size as its capacity. Anything else is ErrRoomFull.
	AddSized(m domain.Member, size int) (snap domain.Room, fixed bool, err error)
	// RemoveMember drops username. The room closes itself when the last member leaves.
	RemoveMember(username string) (snap domain.Room, removed bool)
	Validate(username string) domain.Validation
	// CloseIfEmpty closes the room only when nobody is in it.
	CloseIfEmpty() bool
	Close()
}

type RoomInfo struct {
	Name        domain.RoomName `json:"roomName"`
	Capacity    int             `json:"userLimit,omitempty"`
	Members     []MemberDTO     `json:"users"`
	MemberCount int             `json:"client_count"`
}

func NewRoomInfo(r domain.Room) RoomInfo {
	members := make([]MemberDTO, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, MemberDTO{Username: m.Username, AvatarRef: m.AvatarRef})
	}
	return RoomInfo{
		Name:        r.Name,
		Capacity:    r.Capacity,
		Members:     members,
		MemberCount: len(r.Members),
	}
}
