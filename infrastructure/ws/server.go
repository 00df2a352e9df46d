package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"ajar-messaging/domain"
	"ajar-messaging/observability"
	"ajar-messaging/services"
)

const defaultSearchLimit = 20

// Server exposes the messaging core over HTTP: a websocket endpoint per
// room plus read-only history, search and stats routes.
type Server struct {
	log                  *slog.Logger
	service              services.IChatService
	monitor              *observability.Monitor
	upgrader             websocket.Upgrader
	validate             *validator.Validate
	connectionBufferSize int
	deliveryTimeout      time.Duration
	maxContentLength     int
}

// joinRequest validates the connect parameters before the upgrade. The
// room id feeds storage keys, so ':' is rejected at the edge.
type joinRequest struct {
	Room string `validate:"required,max=64,excludesall=:"`
	Name string `validate:"required,max=64"`
}

func NewServer(log *slog.Logger, service services.IChatService, monitor *observability.Monitor,
	connectionBufferSize int, deliveryTimeout time.Duration, maxContentLength int) *Server {
	return &Server{
		log:     log,
		service: service,
		monitor: monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		validate:             validator.New(),
		connectionBufferSize: connectionBufferSize,
		deliveryTimeout:      deliveryTimeout,
		maxContentLength:     maxContentLength,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/rooms/{roomID}", s.handleConnect)
	r.Get("/rooms/{roomID}/messages", s.handleHistory)
	r.Get("/rooms/{roomID}/search", s.handleSearch)
	r.Get("/stats", s.handleStats)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleConnect upgrades the request, joins the room and pumps inbound
// payloads into it until the peer goes away.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	join := joinRequest{
		Room: chi.URLParam(r, "roomID"),
		Name: r.URL.Query().Get("name"),
	}
	if err := s.validate.Struct(join); err != nil {
		s.log.Warn("rejected connect request", "room", join.Room, "error", err)
		http.Error(w, "invalid room or name", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := NewSession(conn, s.connectionBufferSize, s.deliveryTimeout, s.log)
	roomID := domain.RoomID(join.Room)

	member, history, err := s.service.Join(roomID, join.Name, session)
	if err != nil {
		s.log.Error("join failed", "room", roomID, "name", join.Name, "error", err)
		_ = session.SendError("could not join the conversation")
		_ = session.Close()
		return
	}

	if s.monitor != nil {
		s.monitor.ConnectionOpened()
		defer s.monitor.ConnectionClosed()
	}
	s.log.Info("member connected", "room", roomID, "name", join.Name, "history", len(history))

	for {
		payload, err := session.Receive()
		if err != nil {
			break
		}
		body := strings.TrimSpace(payload)
		if body == "" {
			continue
		}
		if s.maxContentLength > 0 && utf8.RuneCountInString(body) > s.maxContentLength {
			_ = session.SendError("message too long")
			continue
		}
		if err := s.service.Post(roomID, member, body); err != nil {
			s.log.Error("message rejected", "room", roomID, "name", join.Name, "error", err)
			_ = session.SendError("message could not be delivered")
		}
	}

	s.service.Leave(roomID, member)
	_ = session.Close()
	s.log.Info("member disconnected", "room", roomID, "name", join.Name)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	messages, err := s.service.History(roomID)
	if err != nil {
		s.log.Error("history read failed", "room", roomID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, map[string]any{
		"room":     roomID,
		"messages": toPayloads(messages),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	hits, err := s.service.Search(r.Context(), roomID, q, limit)
	if err != nil {
		s.log.Error("search failed", "room", roomID, "query", q, "error", err)
		http.Error(w, "search unavailable", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, map[string]any{
		"room":  roomID,
		"query": q,
		"hits":  hits,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	s.respondJSON(w, s.monitor.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("response encoding failed", "error", err)
	}
}
