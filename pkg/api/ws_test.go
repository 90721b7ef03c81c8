package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"packwire/pkg/auth"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/admin/events"
}

func waitForSubscribers(t *testing.T, hub *EventHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		got := len(hub.subs)
		hub.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d", n)
}

func TestEventHub_RequiresToken(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	hub.RequireAuth = true
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err == nil {
		t.Fatal("dial succeeded without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestEventHub_PublishReachesSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	hub.RequireAuth = true
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	token, err := auth.Generate(1, "alice", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler registers the subscription after the handshake, so
	// wait for it before publishing.
	waitForSubscribers(t, hub, 1)
	hub.Publish("peer_online", map[string]string{"uuid": "u1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "peer_online" || msg.Timestamp == 0 {
		t.Fatalf("msg=%+v", msg)
	}
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok || payload["uuid"] != "u1" {
		t.Fatalf("payload=%#v", msg.Payload)
	}
}

func TestEventHub_DeadSubscriberDropped(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForSubscribers(t, hub, 1)
	_ = conn.Close()

	// Publish until the hub notices the broken pipe and evicts it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.Publish("tick", nil)
		hub.mu.Lock()
		n := len(hub.subs)
		hub.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("closed subscriber never evicted")
}
