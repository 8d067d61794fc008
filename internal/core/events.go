package core

import "github.com/abhimm5/chatapp/internal/domain"

// Outbound event names.
const (
	EventRoomList              = "roomList"
	EventUserJoined            = "userJoined"
	EventUserStatusChange      = "userStatusChange"
	EventStartChat             = "startChat"
	EventReceiveMessage        = "receiveMessage"
	EventSetNewRoom            = "setNewRoom"
	EventRedirectToChat        = "redirectToChat"
	EventRoomValidationSuccess = "roomValidationSuccess"
	EventRoomValidationError   = "roomValidationError"
	EventRandomConnectError    = "randomConnectError"
	EventError                 = "error"
	EventPong                  = "pong"
)

const (
	ReasonLeft         = "left the room"
	ReasonDisconnected = "disconnected"
)

type RoomList struct {
	Type  string     `json:"type"`
	Rooms []RoomInfo `json:"rooms"`
}

func NewRoomList(rooms []domain.Room) RoomList {
	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, NewRoomInfo(r))
	}
	return RoomList{Type: EventRoomList, Rooms: infos}
}

type UserJoined struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Room     domain.RoomName `json:"room"`
}

type UserStatusChange struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Reason   string          `json:"reason"`
	Room     domain.RoomName `json:"room"`
}

// StartChat is personalized: Others never contains the recipient.
type StartChat struct {
	Type   string          `json:"type"`
	Others []string        `json:"others"`
	Room   domain.RoomName `json:"roomName"`
}

type SetNewRoom struct {
	Type string          `json:"type"`
	Room domain.RoomName `json:"roomName"`
}

type RedirectToChat struct {
	Type string          `json:"type"`
	Room domain.RoomName `json:"roomName"`
}

type RoomValidationSuccess struct {
	Type string          `json:"type"`
	Room domain.RoomName `json:"roomName"`
}

// Failure is shared by every named error event.
type Failure struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ReceiveMessage is the flat wire shape of a relayed chat payload.
type ReceiveMessage struct {
	Type           string `json:"type"`
	User           string `json:"user"`
	Text           string `json:"text,omitempty"`
	IsImage        bool   `json:"isImage,omitempty"`
	Image          string `json:"image,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	IsEmoji        bool   `json:"isEmoji,omitempty"`
	RemoveEmoji    bool   `json:"removeEmoji,omitempty"`
	Enter          bool   `json:"enter,omitempty"`
	IsImageLoading bool   `json:"isImageLoading,omitempty"`
	Intro          bool   `json:"intro,omitempty"`
}

func NewReceiveMessage(msg domain.Message) ReceiveMessage {
	out := ReceiveMessage{Type: EventReceiveMessage, User: msg.From}
	switch body := msg.Body.(type) {
	case domain.TextPayload:
		out.Text = body.Text
		out.Enter = body.Enter
	case domain.EmojiPayload:
		out.Text = body.Emoji
		out.IsEmoji = true
		out.RemoveEmoji = body.Remove
	case domain.ImagePayload:
		out.Text = body.Caption
		out.IsImage = true
		out.Image = body.Data
		out.ImageURL = body.URL
	}
	return out
}

func NewImagePlaceholder(from string) ReceiveMessage {
	return ReceiveMessage{Type: EventReceiveMessage, User: from, IsImageLoading: true}
}

func NewIntro(username, text string) ReceiveMessage {
	return ReceiveMessage{Type: EventReceiveMessage, User: username, Text: text, Intro: true}
}

func NewFailure(event, reason string) Failure {
	return Failure{Type: event, Reason: reason}
}
