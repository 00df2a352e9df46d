package runtime

import (
	"embed"
	"log/slog"
	"strings"
	"sync"

	"ajar-messaging/domain"
	"ajar-messaging/domain/event"
	"ajar-messaging/infrastructure/storage"
	"ajar-messaging/moderation"
)

//go:embed censored/*
var censoredFolder embed.FS

// Registry maps a room identifier to exactly one live Room. Rooms are
// created lazily on first reference and are never evicted within the
// process lifetime; whether idle rooms should be reclaimed is a deliberate
// extension point, not handled here.
//
// The registry is an explicitly constructed component handed to the
// gateway, not a package-level singleton.
type Registry struct {
	mu         sync.RWMutex
	log        *slog.Logger
	rooms      map[domain.RoomID]*Room
	repository storage.IMessageRepository
	moderator  *moderation.Moderator
	events     chan<- event.DomainEvent
}

func NewRegistry(log *slog.Logger, repository storage.IMessageRepository,
	moderator *moderation.Moderator, events chan<- event.DomainEvent) *Registry {
	return &Registry{
		log:        log,
		rooms:      make(map[domain.RoomID]*Room),
		repository: repository,
		moderator:  moderator,
		events:     events,
	}
}

// GetOrCreate resolves the Room for an identifier, creating it on first
// reference. Concurrent calls with the same identifier always land on the
// same instance.
func (r *Registry) GetOrCreate(id domain.RoomID) *Room {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock: another goroutine may have won the race.
	if room, ok := r.rooms[id]; ok {
		return room
	}
	room = newRoom(id, r.repository, r.moderator, r.events, r.log)
	r.rooms[id] = room
	r.log.Debug("room created", "room", id, "rooms", len(r.rooms))
	return room
}

// Len reports how many rooms have been created so far.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// LoadModerator builds the message moderator from the embedded censored
// word dictionaries.
func LoadModerator(censoredChar rune, log *slog.Logger) (*moderation.Moderator, []string, error) {
	loader := NewCensoredLoader(censoredFolder)
	data, err := loader.LoadAll("censored")
	if err != nil {
		return nil, nil, err
	}

	log.Info("censored dictionaries loaded",
		"languages", strings.Join(data.Languages, ","),
		"words", len(data.Words))

	moderator, err := moderation.NewModerator(data.Words, censoredChar, log)
	if err != nil {
		return nil, nil, err
	}
	return &moderator, data.Languages, nil
}
