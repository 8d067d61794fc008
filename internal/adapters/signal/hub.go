package signal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

// Hub maps connection ids to live sockets and implements core.Notifier.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]core.SignalConnection
}

var _ core.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{conns: make(map[domain.ConnectionID]core.SignalConnection)}
}

func (h *Hub) Attach(id domain.ConnectionID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
}

// Detach forgets id if it still points at conn.
func (h *Hub) Detach(id domain.ConnectionID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[id]; ok && cur == conn {
		delete(h.conns, id)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Send(id domain.ConnectionID, event any) error {
	h.mu.RLock()
	conn, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", id, core.ErrNoConnection)
	}
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return conn.TrySend(b)
}

func (h *Hub) Broadcast(event any) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.hub").Msg("broadcast marshal")
		return
	}
	h.mu.RLock()
	conns := make([]core.SignalConnection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.TrySend(b)
	}
}

// Disconnect closes the socket; its read pump then runs the normal disconnect path.
func (h *Hub) Disconnect(id domain.ConnectionID) {
	h.mu.RLock()
	conn, ok := h.conns[id]
	h.mu.RUnlock()
	if ok {
		log.Warn().Str("module", "signal.hub").Str("conn", string(id)).Msg("closing connection")
		conn.Close()
	}
}
