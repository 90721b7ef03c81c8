package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"packwire/pkg/model"
)

// chatBacklog is how many chat lines the tracker keeps.
const chatBacklog = 50

// TrackerHandler receives game-server reports and serves the public
// presence snapshot. State is process-local and resets on restart.
type TrackerHandler struct {
	mu     sync.RWMutex
	state  model.TrackerState
	secret string
}

func NewTrackerHandler(secret string) *TrackerHandler {
	t := &TrackerHandler{secret: secret}
	t.state.OnlinePlayers = []model.PlayerPresence{}
	t.state.RecentChat = []model.ChatMessage{}
	return t
}

func (t *TrackerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/tracker/status", t.handleStatus)
	mux.HandleFunc("/api/v1/tracker/update", t.handleUpdate)
	mux.HandleFunc("/api/v1/tracker/chat", t.handleChat)
}

func (t *TrackerHandler) authorized(r *http.Request) bool {
	if t.secret == "" {
		return true
	}
	h := r.Header.Get("X-Tracker-Secret")
	if h == "" {
		h = bearerToken(r)
	}
	return h == t.secret
}

func (t *TrackerHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t.mu.RLock()
	snapshot := t.state
	snapshot.OnlinePlayers = append([]model.PlayerPresence(nil), t.state.OnlinePlayers...)
	snapshot.RecentChat = append([]model.ChatMessage(nil), t.state.RecentChat...)
	t.mu.RUnlock()
	writeJSON(w, http.StatusOK, snapshot)
}

func (t *TrackerHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !t.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req TrackerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	t.mu.Lock()
	if req.OnlinePlayers != nil {
		t.state.OnlinePlayers = req.OnlinePlayers
	}
	t.state.TPS = req.TPS
	t.state.MSPT = req.MSPT
	t.state.LastUpdated = time.Now().Unix()
	t.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *TrackerHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !t.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var msg model.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || strings.TrimSpace(msg.Player) == "" || msg.Message == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	t.mu.Lock()
	list := append(t.state.RecentChat, msg)
	if len(list) > chatBacklog {
		list = list[len(list)-chatBacklog:]
	}
	t.state.RecentChat = list
	t.state.LastUpdated = time.Now().Unix()
	t.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
