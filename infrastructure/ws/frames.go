package ws

import (
	"time"

	"github.com/samber/lo"

	"ajar-messaging/domain"
)

// Frame types sent to clients. Inbound payloads are plain text; the
// gateway only speaks JSON on the way out.
const (
	FrameHistory   = "history"
	FrameMessage   = "message"
	FrameDeparture = "departure"
	FrameError     = "error"
)

type MessagePayload struct {
	ID     string    `json:"id"`
	Room   string    `json:"room"`
	Sender string    `json:"sender"`
	Body   string    `json:"body"`
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`
}

type Frame struct {
	Type     string           `json:"type"`
	Message  *MessagePayload  `json:"message,omitempty"`
	Messages []MessagePayload `json:"messages,omitempty"`
	Notice   string           `json:"notice,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func toPayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:     m.ID.String(),
		Room:   string(m.Room),
		Sender: m.Sender,
		Body:   m.Body,
		Seq:    m.Seq,
		At:     m.At,
	}
}

func toPayloads(messages []domain.Message) []MessagePayload {
	return lo.Map(messages, func(m domain.Message, _ int) MessagePayload { return toPayload(m) })
}
