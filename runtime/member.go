package runtime

import (
	"github.com/google/uuid"

	"ajar-messaging/contract"
)

// MemberState tracks the lifecycle of one connection's participation in a
// room: Joining -> Active -> Departed. Departed is terminal; re-joining
// means a brand new Member.
type MemberState int

const (
	StateJoining MemberState = iota
	StateActive
	StateDeparted
)

// Member is one active connection inside a room, tagged with the display
// name supplied at connection time. Display names are neither unique nor
// authenticated: the same name may hold several simultaneous connections,
// each with its own Member.
//
// The state field is guarded by the owning room's mutex. No component
// other than the room may mutate a Member once it has joined.
type Member struct {
	ID          uuid.UUID
	DisplayName string
	conn        contract.Conn
	state       MemberState
}

func NewMember(conn contract.Conn, displayName string) *Member {
	return &Member{
		ID:          uuid.New(),
		DisplayName: displayName,
		conn:        conn,
		state:       StateJoining,
	}
}

func (m *Member) Conn() contract.Conn { return m.conn }
