// Package domain contains core concepts of the messaging system.
// This file defines Message records and related rules.
// Messages are immutable once appended and are never deleted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one immutable chat record.
//
// Seq is the append marker assigned by the message store: it increases
// monotonically per room and defines both replay order and broadcast order.
// Sender is the display name at the time of sending, not a stable identity.
type Message struct {
	ID     uuid.UUID
	Room   RoomID
	Sender string
	Body   string
	Seq    uint64
	At     time.Time
}
