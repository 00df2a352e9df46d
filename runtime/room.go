package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ajar-messaging/domain"
	"ajar-messaging/domain/event"
	"ajar-messaging/errors"
	"ajar-messaging/infrastructure/storage"
	"ajar-messaging/moderation"
)

// Room owns the member set of one conversation and serializes everything
// that touches it. A single room-scoped mutex covers membership changes,
// the snapshot-then-register sequence of Join and the append-then-broadcast
// sequence of Post, which is exactly what keeps broadcast order equal to
// append order and makes a join snapshot gap-free. Distinct rooms never
// share a lock.
type Room struct {
	id         domain.RoomID
	mu         sync.Mutex
	log        *slog.Logger
	members    map[*Member]struct{}
	repository storage.IMessageRepository
	moderator  *moderation.Moderator
	events     chan<- event.DomainEvent
}

func newRoom(id domain.RoomID, repository storage.IMessageRepository,
	moderator *moderation.Moderator, events chan<- event.DomainEvent, log *slog.Logger) *Room {
	return &Room{
		id:         id,
		log:        log,
		members:    make(map[*Member]struct{}),
		repository: repository,
		moderator:  moderator,
		events:     events,
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Join replays the room's history to the member and registers it, both
// under the room lock: a message appended concurrently is either in the
// replayed snapshot or will be broadcast to the member, never both and
// never neither, and the replay is on the wire before any live broadcast.
// The snapshot is also returned to the caller.
func (r *Room) Join(m *Member) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.state == StateDeparted {
		return nil, errors.ErrMemberDeparted
	}

	history, err := r.repository.History(r.id)
	if err != nil {
		return nil, fmt.Errorf("history snapshot: %w", err)
	}

	if err := m.conn.SendHistory(history); err != nil {
		return nil, fmt.Errorf("history replay: %w", err)
	}

	r.members[m] = struct{}{}
	m.state = StateActive
	r.log.Debug("member joined",
		"room", r.id,
		"member", m.DisplayName,
		"history", len(history),
		"members", len(r.members))
	return history, nil
}

// Leave removes the member. Removing an already-absent member is a no-op,
// so the disconnect path and the failed-send path may both call it.
func (r *Room) Leave(m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(m)
}

// Post appends the message to the store and broadcasts the persisted
// record to every current member, the sender included. The message is
// moderated before it is persisted so history and broadcast agree.
//
// A store failure is returned to the caller and nothing is broadcast.
// A send failure to one member evicts that member and never aborts
// delivery to the others nor fails the call.
func (r *Room) Post(m *Member, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.state != StateActive {
		return errors.ErrMemberDeparted
	}

	if r.moderator != nil {
		censored, words := r.moderator.Censor(body)
		if len(words) > 0 {
			r.log.Warn("message censored",
				"room", r.id,
				"sender", m.DisplayName,
				"words", len(words))
		}
		body = censored
	}

	message, err := r.repository.Append(r.id, m.DisplayName, body)
	if err != nil {
		return fmt.Errorf("post to room %s: %w", r.id, err)
	}

	r.broadcastLocked(message)

	r.emit(event.MessagePosted{
		ID:     message.ID,
		Room:   message.Room,
		Sender: message.Sender,
		Body:   message.Body,
		Seq:    message.Seq,
		At:     message.At,
	})
	return nil
}

// MemberCount reports the current number of active members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// broadcastLocked delivers one persisted message to every member.
// Delivery is best-effort per member: a failed send evicts that member
// through the same path as an explicit leave.
func (r *Room) broadcastLocked(message domain.Message) {
	var failed []*Member
	for member := range r.members {
		if err := member.conn.SendMessage(message); err != nil {
			r.log.Warn("delivery failed, evicting member",
				"room", r.id,
				"member", member.DisplayName,
				"error", err)
			failed = append(failed, member)
		}
	}
	for _, member := range failed {
		r.emit(event.DeliveryFailed{Room: r.id, DisplayName: member.DisplayName, At: time.Now().UTC()})
		r.removeLocked(member)
	}
}

// removeLocked is the single removal path. It is idempotent, marks the
// member Departed, closes its connection and informs the remaining members
// with a non-persisted departure notice. Notice delivery failures cascade
// into further removals; the recursion terminates because the member set
// strictly shrinks.
func (r *Room) removeLocked(m *Member) {
	if _, ok := r.members[m]; !ok {
		return
	}
	delete(r.members, m)
	m.state = StateDeparted
	_ = m.conn.Close()

	r.log.Debug("member departed",
		"room", r.id,
		"member", m.DisplayName,
		"members", len(r.members))
	r.emit(event.MemberLeft{Room: r.id, DisplayName: m.DisplayName, At: time.Now().UTC()})

	notice := fmt.Sprintf("%s left the conversation", m.DisplayName)
	var failed []*Member
	for member := range r.members {
		if err := member.conn.SendNotice(notice); err != nil {
			failed = append(failed, member)
		}
	}
	for _, member := range failed {
		r.removeLocked(member)
	}
}

// emit hands an event to the pipeline without ever blocking the room's
// critical section. Sinks are observability, not correctness.
func (r *Room) emit(e event.DomainEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		r.log.Debug("event channel full, dropping event", "room", r.id)
	}
}
