package mongostore

import (
	"time"

	"github.com/abhimm5/chatapp/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Username   string             `bson:"username"`
	SocketID   string             `bson:"socketID"`
	Status     string             `bson:"status"`
	ChatLimit  int                `bson:"chatLimit"`
	Room       string             `bson:"room"`
	LastActive time.Time          `bson:"lastActive"`
	ProfilePic string             `bson:"profilePic"`
}

type memberDoc struct {
	Username   string `bson:"username"`
	ProfilePic string `bson:"profilePic"`
	SocketID   string `bson:"socketID"`
}

type roomDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	RoomName  string             `bson:"roomName"`
	Users     []memberDoc        `bson:"users"`
	UserLimit int                `bson:"userLimit"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func toUserDoc(id domain.Identity) userDoc {
	return userDoc{
		Username:   id.Username,
		SocketID:   string(id.ConnectionID),
		Status:     string(id.Status),
		ChatLimit:  id.DesiredGroupSize,
		Room:       string(id.CurrentRoom),
		LastActive: id.LastActiveAt.UTC(),
		ProfilePic: id.AvatarRef,
	}
}

func (d userDoc) identity() domain.Identity {
	return domain.Identity{
		Username:         d.Username,
		ConnectionID:     domain.ConnectionID(d.SocketID),
		Status:           domain.Status(d.Status),
		DesiredGroupSize: d.ChatLimit,
		CurrentRoom:      domain.RoomName(d.Room),
		LastActiveAt:     d.LastActive,
		AvatarRef:        d.ProfilePic,
	}
}

func toRoomDoc(r domain.Room) roomDoc {
	users := make([]memberDoc, 0, len(r.Members))
	for _, m := range r.Members {
		users = append(users, memberDoc{Username: m.Username, ProfilePic: m.AvatarRef, SocketID: string(m.ConnectionID)})
	}
	return roomDoc{
		RoomName:  string(r.Name),
		Users:     users,
		UserLimit: r.Capacity,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (d roomDoc) room() domain.Room {
	members := make([]domain.Member, 0, len(d.Users))
	for _, u := range d.Users {
		members = append(members, domain.Member{
			Username:     u.Username,
			AvatarRef:    u.ProfilePic,
			ConnectionID: domain.ConnectionID(u.SocketID),
		})
	}
	return domain.Room{
		Name:      domain.RoomName(d.RoomName),
		Capacity:  d.UserLimit,
		Members:   members,
		CreatedAt: d.CreatedAt,
	}
}
