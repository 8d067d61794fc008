package signal

import (
	"errors"

	"github.com/abhimm5/chatapp/internal/domain"
)

// reason turns a domain error into the text shown to the client.
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, domain.ErrAlreadyInRoom):
		return "You are already in a room, leave it first"
	case errors.Is(err, domain.ErrInvalidGroupSize):
		return "Group size must be at least 2"
	case errors.Is(err, domain.ErrUsernameEmpty):
		return "Username is required"
	case errors.Is(err, domain.ErrUsernameTooLong):
		return "Username is too long"
	case errors.Is(err, domain.ErrNotFound):
		return "Room or user not found"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "Service temporarily unavailable"
	default:
		return "Something went wrong"
	}
}
