// Package event defines the domain events emitted by rooms after the
// member-facing work (persist, broadcast) has completed. They feed
// in-process sinks only: search indexing, monitoring. Delivery of events
// is best-effort and never part of the messaging contract.
package event

import (
	"time"

	"github.com/google/uuid"

	"ajar-messaging/domain"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is emitted once a message has been persisted and broadcast.
type MessagePosted struct {
	ID     uuid.UUID
	Room   domain.RoomID
	Sender string
	Body   string
	Seq    uint64
	At     time.Time
}

func (e MessagePosted) RoomID() domain.RoomID { return e.Room }

// MemberLeft is emitted when a member is removed from a room, whether by
// explicit leave, transport close, or a failed delivery.
type MemberLeft struct {
	Room        domain.RoomID
	DisplayName string
	At          time.Time
}

func (e MemberLeft) RoomID() domain.RoomID { return e.Room }

// DeliveryFailed is emitted when a broadcast to one member fails and that
// member is evicted as a consequence.
type DeliveryFailed struct {
	Room        domain.RoomID
	DisplayName string
	At          time.Time
}

func (e DeliveryFailed) RoomID() domain.RoomID { return e.Room }
