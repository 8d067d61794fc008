package domain

import "time"

type RoomName string

// Room is a read-only snapshot of a chat group.
// Capacity 0 marks an elastic room whose size is not fixed yet.
type Room struct {
	Name      RoomName  `json:"roomName"`
	Capacity  int       `json:"capacity"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r Room) Elastic() bool { return r.Capacity == 0 }

func (r Room) Full() bool {
	return r.Capacity > 0 && len(r.Members) >= r.Capacity
}

func (r Room) Has(username string) bool {
	for _, m := range r.Members {
		if m.Username == username {
			return true
		}
	}
	return false
}

func (r Room) Usernames() []string {
	out := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m.Username)
	}
	return out
}

// Others lists every member except username, in join order.
func (r Room) Others(username string) []string {
	out := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		if m.Username != username {
			out = append(out, m.Username)
		}
	}
	return out
}

// Validation is the read-only outcome of checking whether a user may enter a room.
type Validation int

const (
	ValidationJoinable Validation = iota
	ValidationAlreadyMember
	ValidationFull
)

func (v Validation) String() string {
	switch v {
	case ValidationAlreadyMember:
		return "already_member"
	case ValidationFull:
		return "full"
	default:
		return "joinable"
	}
}
