package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"ajar-messaging/domain"
	"ajar-messaging/errors"
)

// fakeRepository is an in-memory append-only log, good enough to exercise
// room semantics without a real store behind it.
type fakeRepository struct {
	mu       sync.Mutex
	messages map[domain.RoomID][]domain.Message
	failNext bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{messages: make(map[domain.RoomID][]domain.Message)}
}

func (f *fakeRepository) Append(room domain.RoomID, sender, body string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return domain.Message{}, fmt.Errorf("store unavailable")
	}
	message := domain.Message{
		ID:     uuid.New(),
		Room:   room,
		Sender: sender,
		Body:   body,
		Seq:    uint64(len(f.messages[room]) + 1),
		At:     time.Now().UTC(),
	}
	f.messages[room] = append(f.messages[room], message)
	return message, nil
}

func (f *fakeRepository) History(room domain.RoomID) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages[room]...), nil
}

// fakeConn records everything delivered to one member.
type fakeConn struct {
	mu        sync.Mutex
	histories [][]domain.Message
	messages  []domain.Message
	notices   []string
	failSend  bool
	closed    bool
}

func (c *fakeConn) SendHistory(history []domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return fmt.Errorf("half-closed connection")
	}
	c.histories = append(c.histories, history)
	return nil
}

func (c *fakeConn) SendMessage(msg domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return fmt.Errorf("half-closed connection")
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeConn) SendNotice(notice string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return fmt.Errorf("half-closed connection")
	}
	c.notices = append(c.notices, notice)
	return nil
}

func (c *fakeConn) Receive() (string, error) { return "", fmt.Errorf("not used") }

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages...)
}

func (c *fakeConn) receivedNotices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.notices...)
}

func newTestRoom(repository *fakeRepository) *Room {
	return newRoom("listing-42", repository, nil, nil, slog.Default())
}

// Test_Room_Scenario replays the reference conversation: two joins on an
// empty room, a post seen by both, a late join replaying history, a second
// post seen by all three, then a double disconnect.
func Test_Room_Scenario(t *testing.T) {
	req := require.New(t)
	repository := newFakeRepository()
	room := newTestRoom(repository)

	// Given Alice and Bob join an empty room
	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := NewMember(aliceConn, "Alice")
	bob := NewMember(bobConn, "Bob")

	history, err := room.Join(alice)
	req.NoError(err)
	req.Empty(history)

	history, err = room.Join(bob)
	req.NoError(err)
	req.Empty(history)

	// When Alice posts
	req.NoError(room.Post(alice, "hi"))

	// Then both Alice and Bob receive the persisted message with seq 1
	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		received := conn.received()
		req.Len(received, 1)
		req.Equal("Alice", received[0].Sender)
		req.Equal("hi", received[0].Body)
		req.Equal(uint64(1), received[0].Seq)
	}

	// When Carol joins afterwards
	carolConn := &fakeConn{}
	carol := NewMember(carolConn, "Carol")
	history, err = room.Join(carol)
	req.NoError(err)

	// Then she receives exactly the prior history, on her connection too
	req.Len(history, 1)
	req.Equal("hi", history[0].Body)
	req.Equal(uint64(1), history[0].Seq)
	req.Equal([][]domain.Message{history}, carolConn.histories)

	// When Bob posts
	req.NoError(room.Post(bob, "hello"))

	// Then all three members receive it with seq 2
	for _, conn := range []*fakeConn{aliceConn, bobConn, carolConn} {
		received := conn.received()
		last := received[len(received)-1]
		req.Equal("Bob", last.Sender)
		req.Equal("hello", last.Body)
		req.Equal(uint64(2), last.Seq)
	}

	// When Bob disconnects
	room.Leave(bob)

	// Then Alice and Carol are informed once
	req.Equal([]string{"Bob left the conversation"}, aliceConn.receivedNotices())
	req.Equal([]string{"Bob left the conversation"}, carolConn.receivedNotices())
	req.True(bobConn.Closed())
	req.Equal(2, room.MemberCount())

	// And a second disconnect signal for Bob is a no-op
	room.Leave(bob)
	req.Equal([]string{"Bob left the conversation"}, aliceConn.receivedNotices())
	req.Equal(2, room.MemberCount())
}

func Test_Room_Leave_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(newFakeRepository())

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := NewMember(aliceConn, "Alice")
	bob := NewMember(bobConn, "Bob")
	_, err := room.Join(alice)
	req.NoError(err)
	_, err = room.Join(bob)
	req.NoError(err)

	room.Leave(alice)
	room.Leave(alice)
	room.Leave(alice)

	// Single departure notice, membership decremented once
	req.Equal([]string{"Alice left the conversation"}, bobConn.receivedNotices())
	req.Equal(1, room.MemberCount())
}

func Test_Room_Post_After_Departure_Is_Rejected(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(newFakeRepository())

	alice := NewMember(&fakeConn{}, "Alice")
	_, err := room.Join(alice)
	req.NoError(err)
	room.Leave(alice)

	// Departed is terminal: no operation may target the member anymore
	err = room.Post(alice, "anyone here?")
	req.ErrorIs(err, errors.ErrMemberDeparted)

	// And re-joining the departed member is rejected as well
	_, err = room.Join(alice)
	req.ErrorIs(err, errors.ErrMemberDeparted)
}

func Test_Room_Persist_Before_Broadcast(t *testing.T) {
	req := require.New(t)
	repository := newFakeRepository()
	room := newTestRoom(repository)

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := NewMember(aliceConn, "Alice")
	bob := NewMember(bobConn, "Bob")
	_, err := room.Join(alice)
	req.NoError(err)
	_, err = room.Join(bob)
	req.NoError(err)

	// Given the store fails the next append
	repository.failNext = true

	// When Alice posts
	err = room.Post(alice, "will be lost")

	// Then the failure is surfaced to the caller and nobody received it
	req.Error(err)
	req.Empty(aliceConn.received())
	req.Empty(bobConn.received())

	// And the member set is untouched
	req.Equal(2, room.MemberCount())

	// And a later post goes through normally
	req.NoError(room.Post(alice, "back online"))
	req.Len(bobConn.received(), 1)
}

func Test_Room_Failed_Send_Evicts_Member_Only(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(newFakeRepository())

	aliceConn := &fakeConn{}
	deadConn := &fakeConn{failSend: true}
	carolConn := &fakeConn{}
	alice := NewMember(aliceConn, "Alice")
	dead := NewMember(deadConn, "Bob")
	carol := NewMember(carolConn, "Carol")
	for _, m := range []*Member{alice, dead, carol} {
		_, err := room.Join(m)
		req.NoError(err)
	}

	// When Alice posts while Bob's connection is half-closed
	req.NoError(room.Post(alice, "hi"))

	// Then delivery reached the healthy members
	req.Len(aliceConn.received(), 1)
	req.Len(carolConn.received(), 1)

	// And Bob was evicted through the same path as an explicit leave
	req.Equal(2, room.MemberCount())
	req.True(deadConn.Closed())
	req.Equal([]string{"Bob left the conversation"}, aliceConn.receivedNotices())
	req.Equal([]string{"Bob left the conversation"}, carolConn.receivedNotices())
}

func Test_Room_Isolation_Across_Rooms(t *testing.T) {
	req := require.New(t)
	repository := newFakeRepository()
	registry := NewRegistry(slog.Default(), repository, nil, nil)

	roomA := registry.GetOrCreate("listing-a")
	roomB := registry.GetOrCreate("listing-b")

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := NewMember(aliceConn, "Alice")
	bob := NewMember(bobConn, "Bob")
	_, err := roomA.Join(alice)
	req.NoError(err)
	_, err = roomB.Join(bob)
	req.NoError(err)

	// When a message is posted to room A
	req.NoError(roomA.Post(alice, "only for room A"))

	// Then room B's member sees nothing, live or in history
	req.Empty(bobConn.received())
	historyB, err := repository.History("listing-b")
	req.NoError(err)
	req.Empty(historyB)
}

// Test_Room_Broadcast_Order_Matches_Append_Order posts concurrently from
// several members and verifies every member observed the exact history
// order.
func Test_Room_Broadcast_Order_Matches_Append_Order(t *testing.T) {
	req := require.New(t)
	repository := newFakeRepository()
	room := newTestRoom(repository)

	const members = 4
	const postsEach = 25

	conns := make([]*fakeConn, members)
	handles := make([]*Member, members)
	for i := range conns {
		conns[i] = &fakeConn{}
		handles[i] = NewMember(conns[i], fmt.Sprintf("member-%d", i))
		_, err := room.Join(handles[i])
		req.NoError(err)
	}

	// When all members post concurrently
	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < postsEach; j++ {
				if err := room.Post(handles[i], fmt.Sprintf("msg-%d-%d", i, j)); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()

	// Then the history order is the broadcast order for every member
	history, err := repository.History(room.ID())
	req.NoError(err)
	req.Len(history, members*postsEach)

	historySeqs := lo.Map(history, func(m domain.Message, _ int) uint64 { return m.Seq })
	for _, conn := range conns {
		received := conn.received()
		req.Equal(historySeqs, lo.Map(received, func(m domain.Message, _ int) uint64 { return m.Seq }))
	}
}
