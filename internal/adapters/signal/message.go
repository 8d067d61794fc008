package signal

import (
	"context"

	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
)

type sendMessagePayload struct {
	User        string `json:"user"`
	Text        string `json:"text" validate:"max=4096"`
	IsImage     bool   `json:"isImage"`
	Image       string `json:"image"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,max=2048"`
	IsEmoji     bool   `json:"isEmoji"`
	RemoveEmoji bool   `json:"removeEmoji"`
	Enter       bool   `json:"enter"`
}

func (p sendMessagePayload) body() domain.Payload {
	switch {
	case p.IsImage:
		return domain.ImagePayload{Data: p.Image, URL: p.ImageURL, Caption: p.Text}
	case p.IsEmoji:
		return domain.EmojiPayload{Emoji: p.Text, Remove: p.RemoveEmoji}
	default:
		return domain.TextPayload{Text: p.Text, Enter: p.Enter}
	}
}

// handleSendMessage relays on behalf of the identity bound to this socket.
// The user field of the payload is not trusted.
func (ctl *SignalWSController) handleSendMessage(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p sendMessagePayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	id, err := ctl.Orch.Registry.LookupByConnection(ctx, conn.id)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("message from unknown connection")
		return
	}
	res, err := ctl.Orch.Relay(ctx, domain.Message{From: id.Username, Body: p.body()})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", id.Username).Msg("relay failed")
		return
	}
	log.Debug().Str("module", "signal").Str("user", id.Username).Int("sent", res.SendTo).
		Int("dropped", len(res.Dropped)).Msg("relayed")
}
