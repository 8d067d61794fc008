package signal

import "github.com/abhimm5/chatapp/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{
		Type: core.EventPong,
	})
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, reason string) {
	ctl.sendJSON(conn, core.NewFailure(core.EventError, reason))
}
