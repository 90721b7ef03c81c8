package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"packwire/pkg/store"
	"packwire/pkg/vpn"
)

// VPNHandler serves the peer lifecycle API: client registration on the
// public side, stats and revocation on the admin side.
type VPNHandler struct {
	Service *vpn.Service
	Store   store.PeerStore
	// RequireAuth gates the admin routes behind JWT; tests switch it off.
	RequireAuth bool
}

func (h *VPNHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/vpn/register", h.handleRegister)
	mux.HandleFunc("/api/v1/admin/vpn/stats", AuthMiddleware(h.handleStats, h.RequireAuth))
	mux.HandleFunc("/api/v1/admin/vpn/peers", AuthMiddleware(h.handlePeers, h.RequireAuth))
	mux.HandleFunc("/api/v1/admin/vpn/peers/", AuthMiddleware(h.handlePeerByID, h.RequireAuth))
}

func (h *VPNHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// TODO: verify launcher session tokens against the account service once
	// it exposes an introspection endpoint; presence is all we can check now.
	if bearerToken(r) == "" {
		http.Error(w, "launcher token required", http.StatusUnauthorized)
		return
	}
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UUID) == "" || strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.PublicKey) == "" {
		http.Error(w, "uuid, username and public_key are required", http.StatusBadRequest)
		return
	}
	if _, err := wgtypes.ParseKey(strings.TrimSpace(req.PublicKey)); err != nil {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}
	res, err := h.Service.Register(req.UUID, req.Username, req.PublicKey)
	if err != nil {
		switch {
		case errors.Is(err, vpn.ErrPoolExhausted):
			http.Error(w, "address pool exhausted", http.StatusServiceUnavailable)
		case errors.Is(err, vpn.ErrTunnel):
			http.Error(w, "tunnel control plane failure", http.StatusBadGateway)
		default:
			log.Errorf("register %s failed: %v", req.UUID, err)
			http.Error(w, "registration failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{
		AssignedIP:      res.AssignedIP,
		ServerPublicKey: res.ServerPublicKey,
		Endpoint:        res.Endpoint,
		Subnet:          res.Subnet,
		DNS:             res.DNS,
	})
}

func (h *VPNHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.Service.Stats(time.Now())
	if err != nil {
		log.Errorf("stats query failed: %v", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *VPNHandler) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	peers, err := h.Service.Peers(time.Now())
	if err != nil {
		log.Errorf("peer listing failed: %v", err)
		http.Error(w, "failed to list peers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (h *VPNHandler) handlePeerByID(w http.ResponseWriter, r *http.Request) {
	uuid := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/vpn/peers/")
	if uuid == "" || strings.Contains(uuid, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Service.Revoke(uuid); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Distinct from a tunnel failure so the operator knows the peer
			// was already gone rather than still holding a live key.
			http.Error(w, "peer not found", http.StatusNotFound)
		case errors.Is(err, vpn.ErrTunnel):
			http.Error(w, "tunnel control plane failure", http.StatusBadGateway)
		default:
			log.Errorf("revoke %s failed: %v", uuid, err)
			http.Error(w, "revocation failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "uuid": uuid})
}

// bearerToken extracts an Authorization bearer token, empty when absent.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
