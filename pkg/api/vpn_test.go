package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"packwire/pkg/store"
	"packwire/pkg/vpn"
	"packwire/pkg/wireguard"
)

// fakeTunnel stands in for the WireGuard device in handler tests.
type fakeTunnel struct {
	mu        sync.Mutex
	peers     map[string]string
	removeErr error
	pubKey    string
}

func newFakeTunnel(t *testing.T) *fakeTunnel {
	t.Helper()
	return &fakeTunnel{peers: map[string]string{}, pubKey: testKey(t)}
}

func (f *fakeTunnel) AddPeer(publicKey, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[publicKey] = ip
	return nil
}

func (f *fakeTunnel) RemovePeer(publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.peers, publicKey)
	return nil
}

func (f *fakeTunnel) PeerStats() (map[string]wireguard.PeerStats, error) {
	return map[string]wireguard.PeerStats{}, nil
}

func (f *fakeTunnel) PublicKey() (string, error) { return f.pubKey, nil }

func (f *fakeTunnel) DeviceStatus() string { return wireguard.StatusRunning }

func testKey(t *testing.T) string {
	t.Helper()
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.PublicKey().String()
}

func newTestAPI(t *testing.T) (*http.ServeMux, store.PeerStore, *fakeTunnel) {
	t.Helper()
	st := store.NewMemoryStore()
	tun := newFakeTunnel(t)
	svc, err := vpn.NewService(st, tun, nil, vpn.Config{Subnet: "10.8.0.0/24", Endpoint: "play.example.com:51820"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	mux := http.NewServeMux()
	(&VPNHandler{Service: svc, Store: st, RequireAuth: false}).RegisterRoutes(mux)
	return mux, st, tun
}

func postRegister(t *testing.T, mux *http.ServeMux, token string, req RegisterRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/vpn/register", bytes.NewReader(body))
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httpReq)
	return rec
}

func TestRegisterEndpoint_RequiresLauncherToken(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestAPI(t)
	rec := postRegister(t, mux, "", RegisterRequest{UUID: "u1", Username: "alice", PublicKey: testKey(t)})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vpn/register", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Authorization", "Bearer session-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("broken json: status=%d", rec.Code)
	}

	rec = postRegister(t, mux, "session-token", RegisterRequest{UUID: "u1", Username: "", PublicKey: testKey(t)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing username: status=%d", rec.Code)
	}

	rec = postRegister(t, mux, "session-token", RegisterRequest{UUID: "u1", Username: "alice", PublicKey: "garbage"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad key: status=%d", rec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/vpn/register", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, getReq)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET register: status=%d", rec.Code)
	}
}

func TestRegisterEndpoint_Success(t *testing.T) {
	t.Parallel()

	mux, _, tun := newTestAPI(t)
	key := testKey(t)
	rec := postRegister(t, mux, "session-token", RegisterRequest{UUID: "u1", Username: "alice", PublicKey: key})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AssignedIP != "10.8.0.2" {
		t.Fatalf("assigned_ip=%s", resp.AssignedIP)
	}
	if resp.ServerPublicKey != tun.pubKey || resp.Endpoint != "play.example.com:51820" || resp.Subnet != "10.8.0.0/24" {
		t.Fatalf("response=%+v", resp)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	mux, st, _ := newTestAPI(t)
	if rec := postRegister(t, mux, "tok", RegisterRequest{UUID: "u1", Username: "alice", PublicKey: testKey(t)}); rec.Code != http.StatusOK {
		t.Fatalf("seed u1: %d", rec.Code)
	}
	if rec := postRegister(t, mux, "tok", RegisterRequest{UUID: "u2", Username: "bob", PublicKey: testKey(t)}); rec.Code != http.StatusOK {
		t.Fatalf("seed u2: %d", rec.Code)
	}
	if err := st.UpsertTraffic("u1", 1000, 2000, time.Now()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/vpn/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var stats vpn.FleetStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalPeers != 2 || stats.ActiveConnections != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.TotalBandwidthSent != 1000 || stats.TotalBandwidthReceived != 2000 {
		t.Fatalf("totals=%d/%d", stats.TotalBandwidthSent, stats.TotalBandwidthReceived)
	}
	if stats.OnlineThresholdSeconds != 180 {
		t.Fatalf("threshold=%d", stats.OnlineThresholdSeconds)
	}

	post := httptest.NewRequest(http.MethodPost, "/api/v1/admin/vpn/stats", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, post)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST stats: status=%d", rec.Code)
	}
}

func TestPeersEndpoint(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestAPI(t)
	if rec := postRegister(t, mux, "tok", RegisterRequest{UUID: "u1", Username: "alice", PublicKey: testKey(t)}); rec.Code != http.StatusOK {
		t.Fatalf("seed: %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/vpn/peers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var peers []vpn.PeerStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &peers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(peers) != 1 || peers[0].UUID != "u1" || peers[0].Online {
		t.Fatalf("peers=%+v", peers)
	}
}

func TestDeletePeerEndpoint(t *testing.T) {
	t.Parallel()

	mux, st, tun := newTestAPI(t)
	if rec := postRegister(t, mux, "tok", RegisterRequest{UUID: "u1", Username: "alice", PublicKey: testKey(t)}); rec.Code != http.StatusOK {
		t.Fatalf("seed: %d", rec.Code)
	}

	del := func(uuid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/vpn/peers/"+uuid, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	if rec := del("ghost"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown peer: status=%d", rec.Code)
	}

	// Device refuses: the record must survive and the client sees 502.
	tun.removeErr = errors.New("device gone")
	if rec := del("u1"); rec.Code != http.StatusBadGateway {
		t.Fatalf("tunnel failure: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if _, ok, _ := st.Get("u1"); !ok {
		t.Fatal("record removed despite tunnel failure")
	}

	tun.removeErr = nil
	rec := del("u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "revoked" {
		t.Fatalf("body=%s err=%v", rec.Body.String(), err)
	}
	if rec := del("u1"); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status=%d", rec.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/api/v1/admin/vpn/peers/u1", nil)
	r := httptest.NewRecorder()
	mux.ServeHTTP(r, get)
	if r.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET peer: status=%d", r.Code)
	}
}
