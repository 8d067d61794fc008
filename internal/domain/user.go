// Package domain contains entity without logic, just meta-data
package domain

import "time"

const (
	MaxUsernameLen = 36
	DefaultAvatar  = "/avatars/default_avatar.png"
)

// ConnectionID is an opaque transport-session handle. It changes on every reconnect.
type ConnectionID string

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Identity is one chat participant. Username is the durable key,
// ConnectionID is only meaningful while Status is online.
type Identity struct {
	Username         string       `json:"username"`
	ConnectionID     ConnectionID `json:"connectionId"`
	Status           Status       `json:"status"`
	DesiredGroupSize int          `json:"desiredGroupSize,omitempty"` // 0 means no preference
	CurrentRoom      RoomName     `json:"currentRoom,omitempty"`
	LastActiveAt     time.Time    `json:"lastActiveAt"`
	AvatarRef        string       `json:"avatarRef"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in the registry.
func NewIdentity(username string, conn ConnectionID, now time.Time) (*Identity, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return &Identity{
		Username:     username,
		ConnectionID: conn,
		Status:       StatusOnline,
		LastActiveAt: now,
		AvatarRef:    DefaultAvatar,
	}, nil
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func (i Identity) Online() bool { return i.Status == StatusOnline }

// HasCustomAvatar reports whether the avatar points at an uploaded file.
func (i Identity) HasCustomAvatar() bool {
	return i.AvatarRef != "" && i.AvatarRef != DefaultAvatar
}
