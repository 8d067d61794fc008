package signal

import (
	"context"

	"github.com/abhimm5/chatapp/internal/app"
	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

type setUserPayload struct {
	Username         string          `json:"username" validate:"required,max=36"`
	DesiredGroupSize *int            `json:"desiredGroupSize" validate:"omitempty,min=0"`
	Room             domain.RoomName `json:"room"`
	ProfilePic       string          `json:"profilePic" validate:"omitempty,max=255"`
}

func (ctl *SignalWSController) handleSetUser(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p setUserPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	id, err := ctl.Orch.Register(ctx, app.Registration{
		Username:         p.Username,
		ConnectionID:     conn.id,
		DesiredGroupSize: size(p.DesiredGroupSize),
		RoomHint:         p.Room,
		AvatarRef:        p.ProfilePic,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", p.Username).Msg("setUser failed")
		ctl.sendJSON(conn, core.NewFailure(core.EventError, reason(err)))
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("user", id.Username).Msg("setUser")
}

type heartbeatPayload struct {
	RoomName domain.RoomName `json:"roomName"`
}

func (ctl *SignalWSController) handleHeartbeat(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p heartbeatPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if err := ctl.Orch.Heartbeat(ctx, conn.id, p.RoomName); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("heartbeat")
	}
}

type removeUserPayload struct {
	Username string `json:"username" validate:"required,max=36"`
}

func (ctl *SignalWSController) handleRemoveUser(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p removeUserPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if err := ctl.Orch.RemoveUser(ctx, p.Username); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", p.Username).Msg("removeUser failed")
		ctl.sendJSON(conn, core.NewFailure(core.EventError, reason(err)))
	}
}

func (ctl *SignalWSController) handleDataClean(ctx context.Context, conn *WsSignalConn) {
	if err := ctl.Orch.DataClean(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("dataClean failed")
		ctl.sendJSON(conn, core.NewFailure(core.EventError, reason(err)))
	}
}

// size maps an absent group size to 0.
func size(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
