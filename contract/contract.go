//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"ajar-messaging/domain"
	"ajar-messaging/domain/event"
)

// Conn is one client's duplex text channel. The core is agnostic to the
// transport behind it; the production implementation wraps a websocket.
//
// SendMessage and SendNotice must fail fast rather than block the caller:
// a slow or dead peer surfaces as an error, which the room treats as an
// implicit disconnect.
type Conn interface {
	// SendHistory replays prior messages in ascending append order. The
	// room calls it before registration completes, which is what puts
	// history frames ahead of any live broadcast on the wire.
	SendHistory(history []domain.Message) error
	SendMessage(msg domain.Message) error
	SendNotice(notice string) error
	// Receive blocks until the next inbound payload or the connection
	// closes, in which case it returns an error.
	Receive() (string, error)
	Closed() bool
	Close() error
}

// EventSink consumes domain events fanned out by the event pipeline.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
