// Package sink hosts the event consumers fed by the fanout worker.
package sink

import (
	"context"
	"log/slog"

	"ajar-messaging/domain"
	"ajar-messaging/domain/event"
	"ajar-messaging/infrastructure/search"
)

// SearchSink feeds persisted messages into the full-text index.
type SearchSink struct {
	index *search.MessageIndex
	log   *slog.Logger
}

func NewSearchSink(index *search.MessageIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		return s.index.Index(toMessage(evt))
	default:
		return nil
	}
}

func toMessage(evt event.MessagePosted) domain.Message {
	return domain.Message{
		ID:     evt.ID,
		Room:   evt.Room,
		Sender: evt.Sender,
		Body:   evt.Body,
		Seq:    evt.Seq,
		At:     evt.At,
	}
}
