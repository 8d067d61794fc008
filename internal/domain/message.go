package domain

// Payload is the body of a chat message. Exactly one of
// TextPayload, EmojiPayload or ImagePayload.
type Payload interface {
	isPayload()
}

type TextPayload struct {
	Text  string
	Enter bool
}

type EmojiPayload struct {
	Emoji  string
	Remove bool
}

// ImagePayload carries either inline image data or a URL.
type ImagePayload struct {
	Data    string
	URL     string
	Caption string
}

func (TextPayload) isPayload()  {}
func (EmojiPayload) isPayload() {}
func (ImagePayload) isPayload() {}

type Message struct {
	From string
	Body Payload
}

func (m Message) IsImage() bool {
	_, ok := m.Body.(ImagePayload)
	return ok
}
