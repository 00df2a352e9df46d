package storage

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"ajar-messaging/domain"
)

func openTestDB(t *testing.T, path string) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	return db
}

func Test_Append_Assigns_Increasing_Sequence(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	repository := NewMessageRepository(db, slog.Default())
	room := domain.RoomID("listing-42")

	// When three messages are appended to the same room
	bodies := []string{"hi", "is the flat still available?", "yes it is"}
	for i, body := range bodies {
		message, err := repository.Append(room, "Alice", body)
		req.NoError(err)

		// Then each append returns the next marker
		req.Equal(uint64(i+1), message.Seq)
		req.Equal(room, message.Room)
		req.NotEqual("00000000-0000-0000-0000-000000000000", message.ID.String())
	}
}

func Test_History_Returns_Append_Order(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	repository := NewMessageRepository(db, slog.Default())
	room := domain.RoomID("listing-42")

	// Given messages from several senders
	senders := []string{"Alice", "Bob", "Alice", "Carol"}
	var appended []domain.Message
	for _, sender := range senders {
		message, err := repository.Append(room, sender, "body of "+sender)
		req.NoError(err)
		appended = append(appended, message)
	}

	// When the history is read back
	history, err := repository.History(room)
	req.NoError(err)

	// Then order and content match the appends exactly
	req.Equal(appended, history)
}

func Test_History_Is_Isolated_Per_Room(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	repository := NewMessageRepository(db, slog.Default())

	// Given two rooms with interleaved appends
	_, err := repository.Append("listing-1", "Alice", "for room one")
	req.NoError(err)
	_, err = repository.Append("listing-2", "Bob", "for room two")
	req.NoError(err)
	_, err = repository.Append("listing-1", "Alice", "again room one")
	req.NoError(err)

	// Then each room only sees its own messages, with its own sequence
	one, err := repository.History("listing-1")
	req.NoError(err)
	req.Len(one, 2)
	req.Equal(uint64(1), one[0].Seq)
	req.Equal(uint64(2), one[1].Seq)

	two, err := repository.History("listing-2")
	req.NoError(err)
	req.Len(two, 1)
	req.Equal("for room two", two[0].Body)
	req.Equal(uint64(1), two[0].Seq)

	// And both rooms are listed
	rooms, err := repository.Rooms()
	req.NoError(err)
	req.ElementsMatch([]domain.RoomID{"listing-1", "listing-2"}, rooms)
}

func Test_History_Of_Unknown_Room_Is_Empty(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	repository := NewMessageRepository(db, slog.Default())

	history, err := repository.History("never-seen")
	req.NoError(err)
	req.Empty(history)
}

func Test_Append_Survives_Reopen(t *testing.T) {
	req := require.New(t)
	path := t.TempDir()
	room := domain.RoomID("listing-42")

	// Given a message appended by a first process
	db := openTestDB(t, path)
	repository := NewMessageRepository(db, slog.Default())
	appended, err := repository.Append(room, "Alice", "durable?")
	req.NoError(err)
	req.NoError(db.Close())

	// When another process opens the same store
	db = openTestDB(t, path)
	defer db.Close()
	repository = NewMessageRepository(db, slog.Default())

	// Then the record is retrievable and the sequence continues
	history, err := repository.History(room)
	req.NoError(err)
	req.Equal([]domain.Message{appended}, history)

	next, err := repository.Append(room, "Bob", "yes")
	req.NoError(err)
	req.Equal(uint64(2), next.Seq)
}

func Test_Concurrent_Appends_Keep_Sequence_Dense(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	repository := NewMessageRepository(db, slog.Default())
	room := domain.RoomID("listing-42")

	// When many appends happen back to back
	total := 50
	for i := 0; i < total; i++ {
		_, err := repository.Append(room, "Alice", "ping")
		req.NoError(err)
	}

	// Then markers are dense from 1 to total, in order
	history, err := repository.History(room)
	req.NoError(err)
	req.Len(history, total)
	seqs := lo.Map(history, func(m domain.Message, _ int) uint64 { return m.Seq })
	for i, seq := range seqs {
		req.Equal(uint64(i+1), seq)
	}
}
