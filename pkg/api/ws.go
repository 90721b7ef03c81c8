package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"packwire/pkg/auth"
)

// WSMessage is the envelope pushed to event subscribers.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// EventHub fans server events out to connected admin dashboards.
// Push is best effort; a subscriber that cannot keep up is dropped
// and falls back to polling the stats endpoint.
type EventHub struct {
	upgrader    websocket.Upgrader
	RequireAuth bool

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

func (h *EventHub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/admin/events", h.HandleEvents)
}

// HandleEvents upgrades the connection and keeps it subscribed until
// the peer goes away. Browsers cannot set headers on WebSocket dials,
// so the token may also arrive as ?token=.
func (h *EventHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.RequireAuth {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = bearerToken(r)
		}
		if _, err := auth.Parse(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("ws upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	log.Debugf("event subscriber connected (%d total)", n)
	go h.readLoop(c)
}

// Publish sends one event to every subscriber. The hub lock doubles
// as the per-connection write lock gorilla requires.
func (h *EventHub) Publish(event string, payload any) {
	msg := WSMessage{Type: event, Timestamp: time.Now().Unix(), Payload: payload}
	h.mu.Lock()
	for c := range h.subs {
		if err := c.WriteJSON(msg); err != nil {
			_ = c.Close()
			delete(h.subs, c)
		}
	}
	h.mu.Unlock()
}

// readLoop drains inbound frames so pings are answered; subscribers
// have nothing to say to us.
func (h *EventHub) readLoop(c *websocket.Conn) {
	defer func() {
		_ = c.Close()
		h.mu.Lock()
		delete(h.subs, c)
		h.mu.Unlock()
		log.Debugf("event subscriber disconnected")
	}()
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}
