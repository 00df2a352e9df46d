package services

import (
	"context"
	"fmt"

	"ajar-messaging/contract"
	"ajar-messaging/domain"
	"ajar-messaging/infrastructure/search"
	"ajar-messaging/infrastructure/storage"
	"ajar-messaging/runtime"
)

type IChatService interface {
	Join(roomID domain.RoomID, displayName string, conn contract.Conn) (*runtime.Member, []domain.Message, error)
	Leave(roomID domain.RoomID, member *runtime.Member)
	Post(roomID domain.RoomID, member *runtime.Member, body string) error
	History(roomID domain.RoomID) ([]domain.Message, error)
	Search(ctx context.Context, roomID domain.RoomID, q string, limit int) ([]search.Hit, error)
}

// ChatService is the thin use-case layer between the gateway and the
// messaging core. It carries no business logic of its own: rooms own the
// semantics, the service only resolves them.
type ChatService struct {
	registry   *runtime.Registry
	repository storage.IMessageRepository
	index      *search.MessageIndex
}

func NewChatService(registry *runtime.Registry, repository storage.IMessageRepository,
	index *search.MessageIndex) *ChatService {
	return &ChatService{registry: registry, repository: repository, index: index}
}

// Join resolves the room (creating it on first reference) and registers a
// fresh member for this connection. The returned history is the room's
// snapshot at the moment of join.
func (s *ChatService) Join(roomID domain.RoomID, displayName string, conn contract.Conn) (*runtime.Member, []domain.Message, error) {
	room := s.registry.GetOrCreate(roomID)
	member := runtime.NewMember(conn, displayName)
	history, err := room.Join(member)
	if err != nil {
		return nil, nil, err
	}
	return member, history, nil
}

func (s *ChatService) Leave(roomID domain.RoomID, member *runtime.Member) {
	s.registry.GetOrCreate(roomID).Leave(member)
}

func (s *ChatService) Post(roomID domain.RoomID, member *runtime.Member, body string) error {
	return s.registry.GetOrCreate(roomID).Post(member, body)
}

// History reads the room's log directly from the store; it does not
// require a live room.
func (s *ChatService) History(roomID domain.RoomID) ([]domain.Message, error) {
	return s.repository.History(roomID)
}

func (s *ChatService) Search(ctx context.Context, roomID domain.RoomID, q string, limit int) ([]search.Hit, error) {
	if s.index == nil {
		return nil, fmt.Errorf("search index is not configured")
	}
	return s.index.Search(ctx, roomID, q, limit)
}
