package core

import (
	"errors"

	"github.com/abhimm5/chatapp/internal/domain"
)

var (
	// ErrBackPressure means the peer's send buffer is full and the frame was dropped.
	ErrBackPressure = errors.New("send buffer full")
	ErrNoConnection = errors.New("connection not found")
)

// Frame is a raw serialized event.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Notifier delivers events to client connections.
// Send is fire-and-forget: it never blocks on a slow peer.
type Notifier interface {
	Send(conn domain.ConnectionID, event any) error
	Broadcast(event any)
	Disconnect(conn domain.ConnectionID)
}
