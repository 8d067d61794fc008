package signal

import (
	"context"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	Username         string          `json:"username" validate:"required,max=36"`
	DesiredGroupSize *int            `json:"desiredGroupSize"`
	RoomName         domain.RoomName `json:"roomName" validate:"required"`
}

func (ctl *SignalWSController) handleValidateRoom(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p roomPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	v, err := ctl.Orch.ValidateRoom(ctx, p.Username, p.RoomName)
	if err != nil {
		ctl.sendJSON(conn, core.NewFailure(core.EventRoomValidationError, reason(err)))
		return
	}
	switch v {
	case domain.ValidationAlreadyMember:
		ctl.sendJSON(conn, core.RedirectToChat{Type: core.EventRedirectToChat, Room: p.RoomName})
	case domain.ValidationFull:
		ctl.sendJSON(conn, core.NewFailure(core.EventRoomValidationError, reason(domain.ErrRoomFull)))
	default:
		ctl.sendJSON(conn, core.RoomValidationSuccess{Type: core.EventRoomValidationSuccess, Room: p.RoomName})
	}
}

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p roomPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if _, err := ctl.Orch.JoinRoom(ctx, p.Username, p.RoomName, p.DesiredGroupSize); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("user", p.Username).Str("room", string(p.RoomName)).Msg("join refused")
		ctl.sendJSON(conn, core.NewFailure(core.EventRoomValidationError, reason(err)))
	}
}

type randomConnectPayload struct {
	Username         string `json:"username" validate:"required,max=36"`
	DesiredGroupSize *int   `json:"desiredGroupSize"`
}

func (ctl *SignalWSController) handleRandomConnect(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p randomConnectPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if _, err := ctl.Orch.RandomConnect(ctx, p.Username, size(p.DesiredGroupSize)); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("user", p.Username).Msg("randomConnect refused")
		ctl.sendJSON(conn, core.NewFailure(core.EventRandomConnectError, reason(err)))
	}
}

type leaveRoomPayload struct {
	RoomName domain.RoomName `json:"roomName" validate:"required"`
	Reason   string          `json:"reason" validate:"max=128"`
}

func (ctl *SignalWSController) handleLeaveRoom(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p leaveRoomPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if err := ctl.Orch.LeaveRoom(ctx, conn.id, p.RoomName, p.Reason); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(p.RoomName)).Msg("leaveRoom failed")
		ctl.sendJSON(conn, core.NewFailure(core.EventError, reason(err)))
	}
}

type introPayload struct {
	Username string          `json:"username" validate:"required,max=36"`
	RoomName domain.RoomName `json:"roomName"`
}

func (ctl *SignalWSController) handleIntro(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p introPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	if err := ctl.Orch.SendIntro(ctx, p.Username, p.RoomName); err != nil {
		ctl.sendJSON(conn, core.NewFailure(core.EventError, reason(err)))
	}
}

func (ctl *SignalWSController) handleGetRooms(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.NewRoomList(ctl.Orch.ListRooms()))
}
