//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"ajar-messaging/domain"
)

type IMessageRepository interface {
	Append(room domain.RoomID, sender, body string) (domain.Message, error)
	History(room domain.RoomID) ([]domain.Message, error)
}

// MessageRepository is the append-only message log backed by BadgerDB.
//
// Keys are formatted as "msg:{room_id}:{seq_padded}" to:
//  1. Ensure replay ordering using 19-digit zero padding (lexicographical order).
//  2. Keep rooms fully independent: a prefix scan never crosses rooms.
//
// The per-room sequence lives under "seq:{room_id}" and is read, incremented
// and written back inside the same Badger transaction as the message record,
// so append-and-assign-marker is atomic.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	Seq    uint64 `json:"seq"`
	At     int64  `json:"at"`
}

// Append persists a message for a room and assigns its append marker.
// Once Append returns, the record is visible to any History call against
// the same store, including from another process after reopen.
func (m MessageRepository) Append(room domain.RoomID, sender, body string) (domain.Message, error) {
	message := domain.Message{
		ID:     uuid.New(),
		Room:   room,
		Sender: sender,
		Body:   body,
		At:     time.Now().UTC(),
	}

	err := m.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSequence(txn, room)
		if err != nil {
			return err
		}
		message.Seq = seq

		bytes, err := json.Marshal(fromMessage(message))
		if err != nil {
			return err
		}
		key := fmt.Sprintf("msg:%s:%019d", room, seq)
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// History returns every message of a room in ascending append order.
// Thanks to the padded sequence in the key, a forward prefix scan yields
// messages already sorted.
func (m MessageRepository) History(room domain.RoomID) ([]domain.Message, error) {
	var byteMessages [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", room))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("room history: %w", err)
	}

	var messages []domain.Message
	for _, b := range byteMessages {
		var dm diskMessage
		if err = json.Unmarshal(b, &dm); err != nil {
			return nil, err
		}
		message, err := toMessage(dm)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// Histories returns the history of several rooms at once, keyed by room.
// Used by the viewer tool, not by the hot path.
func (m MessageRepository) Histories(rooms []domain.RoomID) (map[domain.RoomID][]domain.Message, error) {
	res := make(map[domain.RoomID][]domain.Message, len(rooms))
	for _, room := range rooms {
		messages, err := m.History(room)
		if err != nil {
			return nil, err
		}
		res[room] = messages
	}
	return res, nil
}

// Rooms lists every room identifier that holds at least one message.
func (m MessageRepository) Rooms() ([]domain.RoomID, error) {
	seen := make(map[domain.RoomID]struct{})
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false // room ids live in the keys
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte("seq:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			room := domain.RoomID(it.Item().Key()[len(prefix):])
			seen[room] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Keys(seen), nil
}

// nextSequence increments the per-room counter within the caller's transaction.
func nextSequence(txn *badger.Txn, room domain.RoomID) (uint64, error) {
	key := []byte(fmt.Sprintf("seq:%s", room))

	var seq uint64
	item, err := txn.Get(key)
	switch {
	case err == badger.ErrKeyNotFound:
		seq = 1
	case err != nil:
		return 0, err
	default:
		val, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		seq = binary.BigEndian.Uint64(val) + 1
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Set(key, buf); err != nil {
		return 0, err
	}
	return seq, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:     message.ID.String(),
		Room:   string(message.Room),
		Sender: message.Sender,
		Body:   message.Body,
		Seq:    message.Seq,
		At:     message.At.UnixNano(),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:     parsedID,
		Room:   domain.RoomID(dm.Room),
		Sender: dm.Sender,
		Body:   dm.Body,
		Seq:    dm.Seq,
		At:     time.Unix(0, dm.At).UTC(),
	}, nil
}
