package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/abhimm5/chatapp/internal/app/orch"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type roomHandlers struct {
	orch *orch.Orchestrator
}

func (h *roomHandlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, core.NewRoomList(h.orch.ListRooms()))
}

type roomDetail struct {
	core.RoomInfo
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
}

func (h *roomHandlers) Get(c *gin.Context) {
	name := domain.RoomName(c.Param("name"))
	svc, err := h.orch.Rooms.Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(name)).Msg("get room")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	out := roomDetail{RoomInfo: core.NewRoomInfo(svc.Snapshot())}
	if at, ok, err := h.orch.Rooms.LastHeartbeat(c.Request.Context(), name); err == nil && ok {
		out.LastHeartbeat = &at
	}
	c.JSON(http.StatusOK, out)
}
