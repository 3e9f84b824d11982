package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

// Session is one connected websocket for a user.
type Session struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

// WriteJSON serializes writes to the underlying conn; gorilla conns do
// not tolerate concurrent writers.
func (s *Session) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub tracks connected sessions per user and fans events out to them.
// Delivery is best-effort and at-most-once: a write failure removes the
// session and is never retried or escalated.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*Session]struct{})}
}

// Register wraps a conn into a Session and starts tracking it.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Session {
	s := &Session{ID: uuid.NewString(), UserID: userID, conn: conn}
	h.mu.Lock()
	set, ok := h.sessions[userID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unregister drops a session and closes its conn.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.UserID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}

// SessionCount reports how many sessions a user has connected.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// ConnectionCount reports the total number of connected sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

// Dispatch wraps a payload in the event envelope and pushes it to every
// session the user currently has. Sessions that fail the write are
// treated as natural disconnects and removed.
func (h *Hub) Dispatch(userID string, eventType models.EventType, payload any) {
	event := models.Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.WriteJSON(event); err != nil {
			h.Unregister(s)
		}
	}
}
