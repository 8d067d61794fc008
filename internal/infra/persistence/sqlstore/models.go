package sqlstore

import (
	"time"

	"github.com/abhimm5/chatapp/internal/domain"
)

// UserModel is the users table row.
type UserModel struct {
	Username         string    `gorm:"primaryKey;size:36"`
	ConnectionID     string    `gorm:"size:64;index"`
	Status           string    `gorm:"size:16;index;not null"`
	DesiredGroupSize int       `gorm:"not null;default:0"`
	CurrentRoom      string    `gorm:"size:128"`
	LastActiveAt     time.Time `gorm:"index"`
	AvatarRef        string    `gorm:"size:255"`
}

func (UserModel) TableName() string {
	return "users"
}

type MemberDoc struct {
	Username     string `json:"username"`
	AvatarRef    string `json:"profilePic"`
	ConnectionID string `json:"socketID"`
}

// RoomModel keeps members inline as JSON, the way rooms embed users in a document store.
type RoomModel struct {
	Name      string      `gorm:"primaryKey;size:128"`
	Capacity  int         `gorm:"not null;default:0"`
	Members   []MemberDoc `gorm:"serializer:json"`
	CreatedAt time.Time
}

func (RoomModel) TableName() string {
	return "rooms"
}

func fromIdentity(id domain.Identity) UserModel {
	return UserModel{
		Username:         id.Username,
		ConnectionID:     string(id.ConnectionID),
		Status:           string(id.Status),
		DesiredGroupSize: id.DesiredGroupSize,
		CurrentRoom:      string(id.CurrentRoom),
		LastActiveAt:     id.LastActiveAt.UTC(),
		AvatarRef:        id.AvatarRef,
	}
}

func (m UserModel) toIdentity() domain.Identity {
	return domain.Identity{
		Username:         m.Username,
		ConnectionID:     domain.ConnectionID(m.ConnectionID),
		Status:           domain.Status(m.Status),
		DesiredGroupSize: m.DesiredGroupSize,
		CurrentRoom:      domain.RoomName(m.CurrentRoom),
		LastActiveAt:     m.LastActiveAt,
		AvatarRef:        m.AvatarRef,
	}
}

func fromRoom(r domain.Room) RoomModel {
	members := make([]MemberDoc, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, MemberDoc{
			Username:     m.Username,
			AvatarRef:    m.AvatarRef,
			ConnectionID: string(m.ConnectionID),
		})
	}
	return RoomModel{
		Name:      string(r.Name),
		Capacity:  r.Capacity,
		Members:   members,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (m RoomModel) toRoom() domain.Room {
	members := make([]domain.Member, 0, len(m.Members))
	for _, d := range m.Members {
		members = append(members, domain.Member{
			Username:     d.Username,
			AvatarRef:    d.AvatarRef,
			ConnectionID: domain.ConnectionID(d.ConnectionID),
		})
	}
	return domain.Room{
		Name:      domain.RoomName(m.Name),
		Capacity:  m.Capacity,
		Members:   members,
		CreatedAt: m.CreatedAt,
	}
}
