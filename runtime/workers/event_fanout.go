package workers

import (
	"context"
	"log/slog"
	"time"

	"ajar-messaging/contract"
	"ajar-messaging/domain/event"
)

// EventFanout drains the domain-event channel and hands each event to
// every registered sink.
//
// It provides best-effort fan-out with no delivery, ordering, durability
// or retry guarantees. EventFanout is not a message broker: it serves
// observability and side effects such as the search index, never core
// messaging logic. Persist and broadcast happened before the event was
// even emitted.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to each sink under a per-sink deadline, so a
// slow sink cannot stall the pipeline for the others.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Error("sink failed to consume event",
				"room", evt.RoomID(),
				"error", err)
		}
		cancel()
	}
}
