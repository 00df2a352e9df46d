// Package search maintains a full-text index over persisted messages and
// answers per-room queries. It is fed asynchronously by the event
// pipeline, so the index may lag the message store by design.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/blugelabs/bluge"

	"ajar-messaging/domain"
)

// Hit is one search result.
type Hit struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	Seq    uint64 `json:"seq"`
}

// MessageIndex wraps a Bluge writer holding one document per message.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

// Index upserts one message document. The message id is the document id,
// so replaying an event is harmless.
func (x *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("room", string(message.Room)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", message.Sender).StoreValue()).
		AddField(bluge.NewTextField("body", message.Body).StoreValue()).
		AddField(bluge.NewNumericField("seq", float64(message.Seq)).StoreValue())
	return x.writer.Update(doc.ID(), doc)
}

// Search returns messages of one room matching the query, ordered by
// append marker. Room isolation is enforced by a mandatory term clause.
func (x *MessageIndex) Search(ctx context.Context, room domain.RoomID, q string, limit int) ([]Hit, error) {
	reader, err := x.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("search reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField("room")).
		AddMust(bluge.NewMatchQuery(q).SetField("body"))

	dmi, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var hits []Hit
	next, err := dmi.Next()
	for err == nil && next != nil {
		var hit Hit
		visitErr := next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.ID = string(value)
			case "room":
				hit.Room = string(value)
			case "sender":
				hit.Sender = string(value)
			case "body":
				hit.Body = string(value)
			case "seq":
				if seq, err := bluge.DecodeNumericFloat64(value); err == nil {
					hit.Seq = uint64(seq)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Seq < hits[j].Seq })
	return hits, nil
}

func (x *MessageIndex) Close() error {
	return x.writer.Close()
}
