package domain

import "errors"

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")

	ErrNotFound           = errors.New("not found")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyMember      = errors.New("already a member of the room")
	ErrAlreadyInRoom      = errors.New("already in a room")
	ErrInvalidGroupSize   = errors.New("invalid group size")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRoomClosed is returned when a join loses the race against the last member leaving.
	ErrRoomClosed = errors.New("room closed")
)
